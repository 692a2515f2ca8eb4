// Package mock provides a test double for [codestore.Store].
//
// Store records every method call and returns the configured results. It is
// safe for concurrent use.
//
//	store := &mock.Store{SearchResult: []codestore.Result{{Chunk: c}}}
//	// inject store into the system under test …
//	if got := store.CallCount("Search"); got != 1 {
//	    t.Errorf("want 1 Search call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/duckdebug/pkg/codestore"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [codestore.Store]. Zero values
// return empty results and nil errors.
type Store struct {
	mu    sync.Mutex
	calls []Call

	UpsertFileErr error

	FilesResult []codestore.File
	FilesErr    error

	ReplaceChunksErr error

	SearchResult []codestore.Result
	SearchErr    error

	CountResult int
	CountErr    error

	ResetErr error
}

var _ codestore.Store = (*Store)(nil)

func (s *Store) record(method string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

// UpsertFile implements [codestore.Store].
func (s *Store) UpsertFile(_ context.Context, f codestore.File) error {
	s.record("UpsertFile", f)
	return s.UpsertFileErr
}

// Files implements [codestore.Store].
func (s *Store) Files(_ context.Context) ([]codestore.File, error) {
	s.record("Files")
	if s.FilesErr != nil {
		return nil, s.FilesErr
	}
	return append([]codestore.File{}, s.FilesResult...), nil
}

// ReplaceChunks implements [codestore.Store].
func (s *Store) ReplaceChunks(_ context.Context, path string, chunks []codestore.Chunk) error {
	s.record("ReplaceChunks", path, chunks)
	return s.ReplaceChunksErr
}

// Search implements [codestore.Store].
func (s *Store) Search(_ context.Context, embedding []float32, topK int) ([]codestore.Result, error) {
	s.record("Search", embedding, topK)
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	out := append([]codestore.Result{}, s.SearchResult...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// CountChunks implements [codestore.Store].
func (s *Store) CountChunks(_ context.Context) (int, error) {
	s.record("CountChunks")
	return s.CountResult, s.CountErr
}

// Reset implements [codestore.Store].
func (s *Store) Reset(_ context.Context) error {
	s.record("Reset")
	return s.ResetErr
}

// Calls returns a copy of every recorded call.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how often method was called.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}
