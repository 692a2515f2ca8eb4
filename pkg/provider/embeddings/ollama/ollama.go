// Package ollama provides an embeddings provider backed by a local Ollama server.
//
// It calls Ollama's native /api/embed endpoint with models such as
// nomic-embed-text or mxbai-embed-large, which keeps code embeddings on the
// developer's machine.
//
//	p, err := ollama.New("", "nomic-embed-text") // http://localhost:11434
//	vecs, err := p.EmbedBatch(ctx, chunks)
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/duckdebug/pkg/provider/embeddings"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// defaultBatchSize bounds the inputs per /api/embed call.
const defaultBatchSize = 64

var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider using a local Ollama server.
//
// The vector length comes from WithDimensions, the table of known models, or
// the first successful response, in that order.
type Provider struct {
	baseURL    string
	model      string
	keepAlive  string
	batchSize  int
	httpClient *http.Client

	mu         sync.Mutex
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithDimensions pre-sets the embedding dimension.
func WithDimensions(dims int) Option {
	return func(p *Provider) {
		p.dimensions = dims
	}
}

// WithKeepAlive controls how long Ollama keeps the model loaded after a
// request (e.g., "10m", "-1"). Empty leaves the server default.
func WithKeepAlive(d string) Option {
	return func(p *Provider) {
		p.keepAlive = d
	}
}

// WithBatchSize sets the maximum number of inputs per request.
func WithBatchSize(n int) Option {
	return func(p *Provider) {
		p.batchSize = n
	}
}

// New constructs a new Ollama Provider. An empty baseURL selects
// DefaultBaseURL. model must not be empty.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		batchSize:  defaultBatchSize,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.dimensions == 0 {
		p.dimensions = knownDimensions(model)
	}
	return p, nil
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error"`
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.call(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for _, batch := range embeddings.Batches(texts, p.batchSize) {
		vecs, err := p.call(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("ollama embeddings: embed batch: %w", err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider. It returns 0 for unknown models
// until the first successful request.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dimensions
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

func (p *Provider) call(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Input: texts, KeepAlive: p.keepAlive})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var result embedResponse
	if err := json.Unmarshal(raw, &result); err != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if result.Error != "" {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, result.Error)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	p.mu.Lock()
	if p.dimensions == 0 {
		p.dimensions = len(result.Embeddings[0])
	}
	p.mu.Unlock()
	return result.Embeddings, nil
}

// knownDimensions returns the output size of common Ollama embedding models,
// or 0 when unknown.
func knownDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "nomic-embed-text"):
		return 768
	case strings.Contains(lower, "mxbai-embed-large"):
		return 1024
	case strings.Contains(lower, "all-minilm"):
		return 384
	case strings.Contains(lower, "bge-m3"):
		return 1024
	default:
		return 0
	}
}
