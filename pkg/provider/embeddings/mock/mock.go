// Package mock provides a test double for the embeddings.Provider interface.
//
// Without configured results the mock returns deterministic bag-of-words
// vectors (see [Vector]), so texts sharing words score higher under cosine
// similarity. That is enough to exercise retrieval ordering in tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/MrWong99/duckdebug/pkg/provider/embeddings"
)

// DefaultDimensions is the vector size used when Dims is zero.
const DefaultDimensions = 64

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Dims is the vector length. Zero selects DefaultDimensions.
	Dims int

	// Model is returned by ModelID.
	Model string

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error

	// --- Call records ---

	// EmbedCalls records the text of every Embed call.
	EmbedCalls []string

	// EmbedBatchCalls records a copy of every EmbedBatch input.
	EmbedBatchCalls [][]string
}

// Embed records the call and returns Vector(text).
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return Vector(text, p.dims()), nil
}

// EmbedBatch records the call and returns one Vector per text.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, append([]string(nil), texts...))
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, p.dims())
	}
	return out, nil
}

// Dimensions returns Dims or DefaultDimensions.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dims()
}

// ModelID returns Model or "mock-embedder".
func (p *Provider) ModelID() string {
	if p.Model == "" {
		return "mock-embedder"
	}
	return p.Model
}

// BatchCount returns the number of EmbedBatch calls. Thread-safe.
func (p *Provider) BatchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedBatchCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
}

func (p *Provider) dims() int {
	if p.Dims > 0 {
		return p.Dims
	}
	return DefaultDimensions
}

// Vector hashes each lower-cased word of text into one of dims buckets and
// returns the L2-normalised counts. Underscores split words, so "bubble_sort"
// and "bubble sort" map to the same vector.
func Vector(text string, dims int) []float32 {
	v := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(dims)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)
