package corpuscore

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
)

// FileSelector picks dataset files by slash-separated path relative to the
// dataset root.
type FileSelector struct {
	include []glob.Glob
	skip    []glob.Glob
}

// NewFileSelector compiles include and skip patterns. A path is selected
// when it matches an include pattern and no skip pattern.
func NewFileSelector(include, skip []string) (*FileSelector, error) {
	fsel := &FileSelector{}
	for _, p := range include {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("bad include pattern %q: %w", p, err)
		}
		fsel.include = append(fsel.include, g)
	}
	for _, p := range skip {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("bad skip pattern %q: %w", p, err)
		}
		fsel.skip = append(fsel.skip, g)
	}
	return fsel, nil
}

func mustSelector(include, skip []string) *FileSelector {
	fsel, err := NewFileSelector(include, skip)
	if err != nil {
		panic(err)
	}
	return fsel
}

// Skipped reports whether rel matches a skip pattern.
func (s *FileSelector) Skipped(rel string) bool {
	for _, g := range s.skip {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Match reports whether rel is selected.
func (s *FileSelector) Match(rel string) bool {
	if s.Skipped(rel) {
		return false
	}
	for _, g := range s.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Walk returns the selected regular files under root in lexical order.
// Directories matching a skip pattern are not descended into.
func (s *FileSelector) Walk(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && s.Skipped(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.Match(rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
