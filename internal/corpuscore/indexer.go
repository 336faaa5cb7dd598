package corpuscore

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"cmdcorpus/internal/logger"
)

const recordDocType = "record"

var indexLog = logger.New("index")

// SearchDocument is the document stored in the Bleve index for a record.
type SearchDocument struct {
	Command     string `json:"command"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Kind        string `json:"kind"`
	Technique   string `json:"technique"`
	Dataset     string `json:"dataset"`
	Type        string `json:"type"`
}

func newSearchDocument(r *Record) SearchDocument {
	return SearchDocument{
		Command:     r.Command,
		Description: r.Description,
		Language:    r.Language.String(),
		Kind:        r.Kind,
		Technique:   r.Technique,
		Dataset:     r.Dataset,
		Type:        recordDocType,
	}
}

// CreateIndexMapping returns the mapping for record documents.
func CreateIndexMapping() *mapping.IndexMappingImpl {
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	textFieldMapping := bleve.NewTextFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("command", textFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("language", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("kind", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("technique", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("dataset", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.TypeField = "type"
	indexMapping.AddDocumentMapping(recordDocType, docMapping)

	return indexMapping
}

// Indexer writes records to a Bleve index and searches it.
type Indexer struct {
	index     bleve.Index
	batchSize int
}

// OpenIndexer opens the index at indexPath, creating it when missing.
func OpenIndexer(indexPath string, batchSize int) (*Indexer, error) {
	index, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		indexLog.Info("Creating new Bleve index at %s...", indexPath)
		index, err = bleve.New(indexPath, CreateIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", indexPath, err)
	}
	return NewIndexer(index, batchSize), nil
}

// NewIndexer wraps an already open index.
func NewIndexer(index bleve.Index, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Indexer{index: index, batchSize: batchSize}
}

// IndexRecord indexes a single record.
func (ix *Indexer) IndexRecord(record *Record) error {
	return ix.index.Index(docID(record.ID), newSearchDocument(record))
}

// SaveRecords indexes records in batches of the configured size.
func (ix *Indexer) SaveRecords(records []*Record) error {
	batch := ix.index.NewBatch()
	count := 0

	for _, record := range records {
		if err := batch.Index(docID(record.ID), newSearchDocument(record)); err != nil {
			return fmt.Errorf("failed to batch record %d: %w", record.ID, err)
		}
		count++

		if count%ix.batchSize == 0 {
			if err := ix.index.Batch(batch); err != nil {
				return fmt.Errorf("failed to index batch: %w", err)
			}
			batch = ix.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := ix.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to index final batch: %w", err)
		}
	}
	indexLog.Debug("Successfully indexed %d documents.", count)
	return nil
}

// Search runs a match query, optionally restricted to one language. An
// empty query string matches every document.
func (ix *Indexer) Search(queryStr, language string, size int) ([]APISearchResult, error) {
	var q query.Query
	if queryStr == "" {
		q = bleve.NewMatchAllQuery()
	} else {
		q = bleve.NewMatchQuery(queryStr)
	}
	if language != "" {
		term := bleve.NewTermQuery(language)
		term.SetField("language")
		q = bleve.NewConjunctionQuery(q, term)
	}

	req := bleve.NewSearchRequest(q)
	req.Fields = []string{"command", "language", "kind", "technique", "dataset"}
	if size > 0 {
		req.Size = size
	}

	res, err := ix.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]APISearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, APISearchResult{
			ID:        hit.ID,
			Command:   fieldString(hit.Fields, "command"),
			Language:  fieldString(hit.Fields, "language"),
			Kind:      fieldString(hit.Fields, "kind"),
			Technique: fieldString(hit.Fields, "technique"),
			Dataset:   fieldString(hit.Fields, "dataset"),
			Score:     hit.Score,
		})
	}
	return results, nil
}

// DocCount returns the number of indexed documents.
func (ix *Indexer) DocCount() (uint64, error) {
	return ix.index.DocCount()
}

// Close closes the underlying index.
func (ix *Indexer) Close() error {
	return ix.index.Close()
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// fieldString reads a stored field, which Bleve returns either as a value or
// as a slice of values.
func fieldString(fields map[string]interface{}, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
