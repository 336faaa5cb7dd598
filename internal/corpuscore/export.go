package corpuscore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"cmdcorpus/internal/logger"
)

var exportLog = logger.New("export")

const (
	jsonExt = ".json"
	zstdExt = ".json.zst"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ExportJSON writes records as an indented JSON array of row objects.
func ExportJSON(w io.Writer, records []*Record) error {
	if records == nil {
		records = []*Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return enc.Encode(records)
}

// WriteDataset writes <dir>/<name>.json, or <dir>/<name>.json.zst when
// compress is set, and returns the path written.
func WriteDataset(dir, name string, records []*Record, compress bool) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	ext := jsonExt
	if compress {
		ext = zstdExt
	}
	path := filepath.Join(dir, name+ext)
	if err := writeRecordsFile(path, records, compress); err != nil {
		return "", err
	}
	exportLog.Info("✅ Wrote %d records to %s", len(records), path)
	return path, nil
}

func writeRecordsFile(path string, records []*Record, compress bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if !compress {
		return ExportJSON(f, records)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := ExportJSON(enc, records); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadDataset reads an exported dataset, compressed or not.
func ReadDataset(path string) ([]*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		data, err = dec.DecodeAll(data, nil)
		dec.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
		}
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

// Merge concatenates record sets in order and renumbers IDs from 1. The
// input records are not modified.
func Merge(sets ...[]*Record) []*Record {
	var merged []*Record
	for _, set := range sets {
		for _, r := range set {
			cp := *r
			merged = append(merged, &cp)
		}
	}
	for i, r := range merged {
		r.ID = int64(i + 1)
	}
	return merged
}

// MergeDir merges every exported dataset in dir matching pattern (a glob
// over file names) into out.
func MergeDir(dir, pattern, out string, compress bool) (int, error) {
	sel, err := NewFileSelector([]string{pattern}, nil)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	absOut, _ := filepath.Abs(out)
	var sets [][]*Record
	for _, e := range entries {
		if e.IsDir() || !sel.Match(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if abs, _ := filepath.Abs(path); abs == absOut {
			continue
		}
		records, err := ReadDataset(path)
		if err != nil {
			return 0, err
		}
		exportLog.Info("📄 %s: %d records", e.Name(), len(records))
		sets = append(sets, records)
	}
	if len(sets) == 0 {
		exportLog.Warn("No datasets matching %q in %s", pattern, dir)
		return 0, nil
	}

	merged := Merge(sets...)
	if err := writeRecordsFile(out, merged, compress); err != nil {
		return 0, err
	}
	exportLog.Info("✅ Merged %d records into %s", len(merged), out)
	return len(merged), nil
}
