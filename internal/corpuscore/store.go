package corpuscore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"cmdcorpus/internal/classify"
	"cmdcorpus/internal/logger"
)

const (
	RecordBucket  = "records"
	DatasetBucket = "datasets"
)

var ErrRecordNotFound = errors.New("record not found")

var storeLog = logger.New("store")

// Store persists records in a bolt database.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the bolt database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{RecordBucket, DatasetBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Next implements Sequence using the records bucket sequence, so IDs keep
// increasing across runs.
func (s *Store) Next() (int64, error) {
	return s.Reserve(1)
}

// Reserve advances the records bucket sequence by n in a single transaction
// and returns the first ID of the block.
func (s *Store) Reserve(n int) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("cannot reserve %d IDs", n)
	}
	var first uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(RecordBucket))
		first = bucket.Sequence() + 1
		return bucket.SetSequence(bucket.Sequence() + uint64(n))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reserve record IDs: %w", err)
	}
	return int64(first), nil
}

func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// SaveRecord saves a record to the database
func (s *Store) SaveRecord(record *Record) error {
	return s.SaveRecords([]*Record{record})
}

// SaveRecords saves records in one transaction and bumps the per-dataset
// counters.
func (s *Store) SaveRecords(records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(RecordBucket))
		added := make(map[string]int)
		for _, record := range records {
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal record %d: %w", record.ID, err)
			}
			key := itob(record.ID)
			if bucket.Get(key) == nil {
				added[record.Dataset]++
			}
			if err := bucket.Put(key, data); err != nil {
				return fmt.Errorf("failed to save record %d: %w", record.ID, err)
			}
		}

		datasets := tx.Bucket([]byte(DatasetBucket))
		for name, n := range added {
			info := DatasetInfo{Name: name}
			if raw := datasets.Get([]byte(name)); raw != nil {
				if err := json.Unmarshal(raw, &info); err != nil {
					return fmt.Errorf("corrupt dataset entry %s: %w", name, err)
				}
			}
			info.Records += n
			info.IngestedAt = time.Now().UTC()
			data, err := json.Marshal(info)
			if err != nil {
				return err
			}
			if err := datasets.Put([]byte(name), data); err != nil {
				return fmt.Errorf("failed to update dataset %s: %w", name, err)
			}
		}

		storeLog.Debug("Saved %d records", len(records))
		return nil
	})
}

// GetRecord retrieves a record by ID
func (s *Store) GetRecord(id int64) (*Record, error) {
	var record Record

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(RecordBucket)).Get(itob(id))
		if data == nil {
			return fmt.Errorf("record %d: %w", id, ErrRecordNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRecords returns records in ID order with optional filtering. A zero
// limit returns everything.
func (s *Store) ListRecords(language, dataset string, limit int) ([]*Record, error) {
	var records []*Record

	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(RecordBucket)).Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}

			var record Record
			if err := json.Unmarshal(value, &record); err != nil {
				storeLog.Warn("failed to unmarshal record %d: %v", binary.BigEndian.Uint64(key), err)
				continue
			}

			if language != "" && string(record.Language) != language {
				continue
			}
			if dataset != "" && record.Dataset != dataset {
				continue
			}

			records = append(records, &record)
		}
		return nil
	})

	return records, err
}

// Datasets returns the stored per-dataset bookkeeping.
func (s *Store) Datasets() ([]DatasetInfo, error) {
	var infos []DatasetInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(DatasetBucket)).ForEach(func(_, v []byte) error {
			var info DatasetInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			infos = append(infos, info)
			return nil
		})
	})
	return infos, err
}

// GetStats computes statistics about the record collection
func (s *Store) GetStats() (*CorpusStats, error) {
	stats := &CorpusStats{
		LanguageFrequency:  make(map[string]int),
		DatasetFrequency:   make(map[string]int),
		TechniqueFrequency: make(map[string]int),
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(RecordBucket)).Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			var record Record
			if err := json.Unmarshal(value, &record); err != nil {
				continue
			}

			stats.TotalRecords++
			if record.Kind == classify.KindScript {
				stats.Scripts++
			} else {
				stats.Commands++
			}
			stats.LanguageFrequency[record.Language.String()]++
			stats.DatasetFrequency[record.Dataset]++
			if record.Technique != "" {
				stats.TechniqueFrequency[record.Technique]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
