// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider maps text to dense float32 vectors (e.g., OpenAI
// text-embedding-3 or nomic-embed-text served by Ollama). The code store keeps
// one vector per source chunk, and questions are embedded with the same
// provider at query time, so every vector in a store must come from one model.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
type Provider interface {
	// Embed computes the embedding vector for a single text string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for texts in as few provider calls
	// as possible. The i-th result corresponds to texts[i]. On error the whole
	// result is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider. Zero means the length is not known yet.
	Dimensions() int

	// ModelID returns the model identifier, e.g. "text-embedding-3-small".
	ModelID() string
}

// Batches splits texts into consecutive slices of at most size elements.
// size <= 0 yields a single batch.
func Batches(texts []string, size int) [][]string {
	if len(texts) == 0 {
		return nil
	}
	if size <= 0 || size >= len(texts) {
		return [][]string{texts}
	}
	out := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		out = append(out, texts[start:end])
	}
	return out
}
