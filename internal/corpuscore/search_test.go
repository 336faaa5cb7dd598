package corpuscore

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdcorpus/internal/classify"
)

type fakeSearcher struct {
	gotQuery, gotLanguage string
	gotSize               int
	results               []APISearchResult
	err                   error
}

func (f *fakeSearcher) Search(queryStr, language string, size int) ([]APISearchResult, error) {
	f.gotQuery, f.gotLanguage, f.gotSize = queryStr, language, size
	return f.results, f.err
}

func TestSearchHandler(t *testing.T) {
	searcher := &fakeSearcher{results: []APISearchResult{{ID: "7", Command: "whoami", Language: "shell", Score: 1.5}}}
	srv := httptest.NewServer(NewAPIHandler(searcher, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/search?query=whoami&language=SHELL&size=500")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var results []APISearchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	assert.Equal(t, searcher.results, results)

	assert.Equal(t, "whoami", searcher.gotQuery)
	assert.Equal(t, "shell", searcher.gotLanguage)
	assert.Equal(t, maxSearchSize, searcher.gotSize)
}

func TestSearchHandlerLanguageOnly(t *testing.T) {
	searcher := &fakeSearcher{results: []APISearchResult{{ID: "2", Command: "Get-Process", Language: "ps1"}}}
	rec := httptest.NewRecorder()
	SearchHandler(searcher)(rec, httptest.NewRequest(http.MethodGet, "/api/search?language=PS1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, searcher.gotQuery)
	assert.Equal(t, "ps1", searcher.gotLanguage)

	var results []APISearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Equal(t, searcher.results, results)
}

func TestSearchHandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"missing query and language", "/api/search", nil, http.StatusBadRequest},
		{"empty query and language", "/api/search?query=&language=", nil, http.StatusBadRequest},
		{"bad language", "/api/search?query=x&language=cobol", nil, http.StatusBadRequest},
		{"bad size", "/api/search?query=x&size=-1", nil, http.StatusBadRequest},
		{"index failure", "/api/search?query=x", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			SearchHandler(&fakeSearcher{err: tt.err})(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSearchCORSPreflight(t *testing.T) {
	handler := NewAPIHandler(&fakeSearcher{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/search?query=x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestClassifyHandler(t *testing.T) {
	handler := ClassifyHandler(classify.Default())

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"command": "ls | grep foo", "hint": "bash"}`)
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/classify", body))
	require.Equal(t, http.StatusOK, rec.Code)

	var v classify.Verdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, classify.Verdict{IsScript: false, Language: classify.TagShell}, v)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(`{"hint": "bash"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/classify", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
