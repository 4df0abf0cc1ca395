package rag

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/prcontext/internal/selection"
)

// MaxSourceFileBytes bounds the size of a file read for indexing
const MaxSourceFileBytes = 1 << 20

var skippedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
}

// LoadDirectory walks root and returns the indexable source files with paths
// relative to root, sorted by path. Noise, binary and oversized files are skipped.
func LoadDirectory(root string) ([]SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []SourceFile
	skipped := 0
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if selection.IsNoise(rel) {
			skipped++
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > MaxSourceFileBytes {
			log.Debug().Str("file", rel).Int64("bytes", fi.Size()).Msg("Skipping oversized file")
			skipped++
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if selection.IsBinaryContent(string(data)) {
			skipped++
			return nil
		}
		files = append(files, SourceFile{Path: rel, Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	log.Info().Str("root", root).Int("files", len(files)).Int("skipped", skipped).Msg("Loaded source files")
	return files, nil
}
