// Package codestore defines storage for ingested source files and the
// embedded chunks the retrieval endpoint searches.
//
// Two layers live behind one [Store]:
//
//   - Files: the raw uploaded sources keyed by their relative path, with the
//     class and function signatures extracted at upload time.
//   - Chunks: fragments of those files with a pre-computed embedding, searched
//     by cosine distance.
//
// Implementations: [github.com/MrWong99/duckdebug/pkg/codestore/postgres]
// (pgvector, HNSW index) and [github.com/MrWong99/duckdebug/pkg/codestore/memstore]
// (brute force, for tests and store-less runs).
//
// Every implementation must be safe for concurrent use.
package codestore

import (
	"context"
	"errors"
	"time"
)

// ErrDimensionMismatch is returned when a chunk or query embedding does not
// match the dimension the store was created with.
var ErrDimensionMismatch = errors.New("codestore: embedding dimension mismatch")

// Function is one function signature found in a source file.
type Function struct {
	// Name is the bare identifier, e.g. "bubble_sort".
	Name string `json:"name"`

	// Signature is the name plus parameter list, e.g. "bubble_sort(arr)".
	Signature string `json:"signature"`
}

// File is an uploaded source file.
type File struct {
	// Path is the path relative to the uploaded directory, e.g.
	// "src/utils/helper.py". It is the upsert key.
	Path string

	// Name is the base name of Path.
	Name string

	// Extension includes the leading dot, e.g. ".py".
	Extension string

	// Language is the human-readable language name, e.g. "Python".
	Language string

	// ClassName is the first class declared in the file, if any.
	ClassName string

	// Functions lists every function signature in declaration order.
	Functions []Function

	// Content is the full source text.
	Content string

	// LastModified is when the file was last uploaded.
	LastModified time.Time
}

// Chunk is an embedded fragment of a [File].
type Chunk struct {
	// ID is unique across the store; ingestion uses "<path>#<index>".
	ID string

	FilePath     string
	FileName     string
	FunctionName string
	ClassName    string
	Language     string

	// Index is the position of the chunk within its file.
	Index int

	// Content is the source text of the fragment.
	Content string

	// Embedding is the vector representation of Content.
	Embedding []float32
}

// Result is a [Chunk] returned by [Store.Search] with its cosine distance to
// the query (0 = identical direction, 2 = opposite).
type Result struct {
	Chunk    Chunk
	Distance float64
}

// Store persists source files and searches their chunks.
type Store interface {
	// UpsertFile inserts f or replaces the file stored under f.Path.
	UpsertFile(ctx context.Context, f File) error

	// Files returns every stored file ordered by path.
	Files(ctx context.Context) ([]File, error)

	// ReplaceChunks atomically replaces all chunks of the file at path with
	// chunks. An empty slice removes the file's chunks.
	ReplaceChunks(ctx context.Context, path string, chunks []Chunk) error

	// Search returns up to topK chunks ordered by ascending cosine distance to
	// embedding. Ties keep insertion order.
	Search(ctx context.Context, embedding []float32, topK int) ([]Result, error)

	// CountChunks returns the number of indexed chunks.
	CountChunks(ctx context.Context) (int, error)

	// Reset deletes every file and chunk.
	Reset(ctx context.Context) error
}

// Identifiers returns the distinct class and function names declared in
// files, in first-seen order.
func Identifiers(files []File) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, f := range files {
		add(f.ClassName)
		for _, fn := range f.Functions {
			add(fn.Name)
		}
	}
	return out
}
