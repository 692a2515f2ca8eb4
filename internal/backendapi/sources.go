package backendapi

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SourceExt is the only file extension offered for ingestion.
const SourceExt = ".py"

// CollectSources walks root and returns every Python file beneath it, named
// by its slash-separated path relative to root's parent so the backend sees
// the directory name too (e.g. "project/pkg/mod.py"). Hidden directories
// are skipped.
func CollectSources(root string) ([]SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("backendapi: collect sources: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backendapi: collect sources: %s is not a directory", root)
	}
	base := filepath.Dir(filepath.Clean(root))

	var files []SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), SourceExt) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		files = append(files, SourceFile{Name: filepath.ToSlash(rel), Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("backendapi: collect sources: %w", err)
	}
	return files, nil
}
