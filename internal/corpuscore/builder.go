package corpuscore

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"cmdcorpus/internal/classify"
	"cmdcorpus/internal/logger"
)

var buildLog = logger.New("builder")

// Sequence hands out record IDs.
type Sequence interface {
	Next() (int64, error)
}

// MemorySequence is an in-process counter starting after a given value.
type MemorySequence struct {
	mu   sync.Mutex
	last int64
}

// NewMemorySequence returns a sequence whose first ID is start+1.
func NewMemorySequence(start int64) *MemorySequence {
	return &MemorySequence{last: start}
}

// BlockSequence is a Sequence that can hand out a run of consecutive IDs in
// one step.
type BlockSequence interface {
	Sequence
	Reserve(n int) (first int64, err error)
}

func (s *MemorySequence) Next() (int64, error) {
	return s.Reserve(1)
}

// Reserve claims IDs first..first+n-1.
func (s *MemorySequence) Reserve(n int) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("cannot reserve %d IDs", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.last + 1
	s.last += int64(n)
	return first, nil
}

// RecordBuilder turns raw dataset entries into classified records.
type RecordBuilder struct {
	classifier *classify.Classifier
	seq        Sequence
	cache      *lru.Cache[string, classify.Verdict]
}

// NewRecordBuilder creates a new RecordBuilder. A nil classifier selects the
// embedded rules; cacheSize 0 disables verdict caching.
func NewRecordBuilder(c *classify.Classifier, seq Sequence, cacheSize int) (*RecordBuilder, error) {
	if seq == nil {
		return nil, fmt.Errorf("record builder needs an ID sequence")
	}
	if c == nil {
		c = classify.Default()
	}
	rb := &RecordBuilder{classifier: c, seq: seq}
	if cacheSize > 0 {
		cache, err := lru.New[string, classify.Verdict](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create verdict cache: %w", err)
		}
		rb.cache = cache
	}
	return rb, nil
}

// Build classifies one entry and assigns it the next ID. The stored command
// is normalized; classification runs on the command as captured.
func (rb *RecordBuilder) Build(entry RawEntry) (*Record, error) {
	verdict, err := rb.verdict(entry.Command, entry.Shell)
	if err != nil {
		return nil, fmt.Errorf("%s entry from %s: %w", entry.Dataset, entry.Source, err)
	}

	id, err := rb.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate record ID: %w", err)
	}
	return newRecord(entry, verdict, id), nil
}

func newRecord(entry RawEntry, verdict classify.Verdict, id int64) *Record {
	return &Record{
		ID:          id,
		Command:     classify.Normalize(*entry.Command),
		Description: entry.Description,
		Technique:   entry.Technique,
		Language:    verdict.Language,
		Kind:        verdict.Kind(),
		Dataset:     entry.Dataset,
	}
}

// BuildAll builds every entry, logging and skipping the ones that fail. When
// the sequence is a BlockSequence the IDs for the whole batch are reserved
// at once.
func (rb *RecordBuilder) BuildAll(entries []RawEntry) ([]*Record, int) {
	type pending struct {
		entry   RawEntry
		verdict classify.Verdict
	}

	batch := make([]pending, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		verdict, err := rb.verdict(entry.Command, entry.Shell)
		if err != nil {
			buildLog.Warn("Skipping entry: %s entry from %s: %v", entry.Dataset, entry.Source, err)
			skipped++
			continue
		}
		batch = append(batch, pending{entry: entry, verdict: verdict})
	}

	records := make([]*Record, 0, len(batch))
	if block, ok := rb.seq.(BlockSequence); ok && len(batch) > 0 {
		first, err := block.Reserve(len(batch))
		if err != nil {
			buildLog.Error("❌ Failed to reserve %d record IDs: %v", len(batch), err)
			return records, len(entries)
		}
		for i, p := range batch {
			records = append(records, newRecord(p.entry, p.verdict, first+int64(i)))
		}
	} else {
		for _, p := range batch {
			id, err := rb.seq.Next()
			if err != nil {
				buildLog.Warn("Skipping entry: failed to allocate record ID: %v", err)
				skipped++
				continue
			}
			records = append(records, newRecord(p.entry, p.verdict, id))
		}
	}

	buildLog.Info("Built %d records (%d skipped)", len(records), skipped)
	return records, skipped
}

func (rb *RecordBuilder) verdict(command *string, hint string) (classify.Verdict, error) {
	if command == nil || rb.cache == nil {
		return rb.classifier.ClassifyOptional(command, hint)
	}
	key := hint + "\x00" + *command
	if v, ok := rb.cache.Get(key); ok {
		return v, nil
	}
	v := rb.classifier.Classify(*command, hint)
	rb.cache.Add(key, v)
	return v, nil
}
