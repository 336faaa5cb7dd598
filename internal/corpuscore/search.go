package corpuscore

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/cors"

	"cmdcorpus/internal/classify"
)

const maxSearchSize = 100

// Searcher is what the search API needs from the index.
type Searcher interface {
	Search(queryStr, language string, size int) ([]APISearchResult, error)
}

// SearchHandler serves GET /api/search?query=&language=&size=. Without a
// query every record of the given language is listed.
func SearchHandler(s Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		queryStr := r.URL.Query().Get("query")
		language := r.URL.Query().Get("language")
		if queryStr == "" && language == "" {
			http.Error(w, "Query parameter 'query' or 'language' is required", http.StatusBadRequest)
			return
		}

		if language != "" {
			tag, ok := classify.ParseTag(language)
			if !ok {
				http.Error(w, "unknown language "+strconv.Quote(language), http.StatusBadRequest)
				return
			}
			language = string(tag)
		}

		size := 10
		if raw := r.URL.Query().Get("size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "size must be a positive integer", http.StatusBadRequest)
				return
			}
			size = min(n, maxSearchSize)
		}

		results, err := s.Search(queryStr, language, size)
		if err != nil {
			indexLog.Error("Search failed: %v", err)
			http.Error(w, "Internal server error: search failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(results); err != nil {
			indexLog.Error("Failed to encode search results: %v", err)
		}
	}
}

// ClassifyHandler serves POST /api/classify with a JSON body
// {"command": "...", "hint": "..."}.
func ClassifyHandler(c *classify.Classifier) http.HandlerFunc {
	type request struct {
		Command *string `json:"command"`
		Hint    string  `json:"hint"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		verdict, err := c.ClassifyOptional(req.Command, req.Hint)
		if err != nil {
			http.Error(w, "field 'command' is required", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(verdict); err != nil {
			indexLog.Error("Failed to encode verdict: %v", err)
		}
	}
}

// NewAPIHandler wires the API routes behind CORS.
func NewAPIHandler(s Searcher, c *classify.Classifier) http.Handler {
	if c == nil {
		c = classify.Default()
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", SearchHandler(s))
	mux.HandleFunc("/api/classify", ClassifyHandler(c))
	return corsHandler.Handler(mux)
}
