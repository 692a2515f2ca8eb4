// Package memstore is an in-memory [codestore.Store] with brute-force cosine
// search. It is used by tests and by duckd when no database is configured.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/MrWong99/duckdebug/pkg/codestore"
)

var _ codestore.Store = (*Store)(nil)

// Store is a thread-safe, in-memory [codestore.Store].
type Store struct {
	mu     sync.RWMutex
	dims   int
	files  map[string]codestore.File
	chunks map[string][]codestore.Chunk
	// order records file paths in first-indexed order so search ties are
	// stable across calls.
	order []string
}

// New returns an empty Store. dims fixes the embedding dimension; 0 accepts
// whatever the first chunk carries.
func New(dims int) *Store {
	return &Store{
		dims:   dims,
		files:  make(map[string]codestore.File),
		chunks: make(map[string][]codestore.Chunk),
	}
}

// UpsertFile implements [codestore.Store].
func (s *Store) UpsertFile(_ context.Context, f codestore.File) error {
	if f.Path == "" {
		return fmt.Errorf("memstore: upsert file: empty path")
	}
	f.Functions = slices.Clone(f.Functions)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[f.Path] = f
	return nil
}

// Files implements [codestore.Store].
func (s *Store) Files(_ context.Context) ([]codestore.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]codestore.File, 0, len(s.files))
	for _, f := range s.files {
		f.Functions = slices.Clone(f.Functions)
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b codestore.File) int { return cmp.Compare(a.Path, b.Path) })
	return out, nil
}

// ReplaceChunks implements [codestore.Store].
func (s *Store) ReplaceChunks(_ context.Context, path string, chunks []codestore.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.dims
	for _, c := range chunks {
		if dims == 0 {
			dims = len(c.Embedding)
		}
		if len(c.Embedding) != dims {
			return fmt.Errorf("memstore: chunk %s: %w: want %d, got %d",
				c.ID, codestore.ErrDimensionMismatch, dims, len(c.Embedding))
		}
	}
	s.dims = dims

	if len(chunks) == 0 {
		delete(s.chunks, path)
		return nil
	}
	if _, ok := s.chunks[path]; !ok && !slices.Contains(s.order, path) {
		s.order = append(s.order, path)
	}
	stored := make([]codestore.Chunk, len(chunks))
	for i, c := range chunks {
		c.Embedding = slices.Clone(c.Embedding)
		stored[i] = c
	}
	s.chunks[path] = stored
	return nil
}

// Search implements [codestore.Store].
func (s *Store) Search(_ context.Context, embedding []float32, topK int) ([]codestore.Result, error) {
	if topK <= 0 {
		return []codestore.Result{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dims != 0 && len(embedding) != s.dims {
		return nil, fmt.Errorf("memstore: search: %w: want %d, got %d",
			codestore.ErrDimensionMismatch, s.dims, len(embedding))
	}

	var results []codestore.Result
	for _, path := range s.order {
		for _, c := range s.chunks[path] {
			results = append(results, codestore.Result{
				Chunk:    c,
				Distance: CosineDistance(embedding, c.Embedding),
			})
		}
	}
	slices.SortStableFunc(results, func(a, b codestore.Result) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	if results == nil {
		results = []codestore.Result{}
	}
	return results, nil
}

// CountChunks implements [codestore.Store].
func (s *Store) CountChunks(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, cs := range s.chunks {
		n += len(cs)
	}
	return n, nil
}

// Reset implements [codestore.Store].
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.files)
	clear(s.chunks)
	s.order = nil
	return nil
}

// CosineDistance returns 1 - cos(a, b), matching pgvector's <=> operator. A
// zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
