package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/duckdebug/pkg/provider/embeddings/ollama"
)

type embedServer struct {
	mu     sync.Mutex
	inputs [][]string
	keep   []string
}

// handler answers every input with a vector [len(input), position].
func (s *embedServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		var req struct {
			Model     string   `json:"model"`
			Input     []string `json:"input"`
			KeepAlive string   `json:"keep_alive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model \"missing\" not found, try pulling it first"}`))
			return
		}
		s.mu.Lock()
		s.inputs = append(s.inputs, req.Input)
		s.keep = append(s.keep, req.KeepAlive)
		s.mu.Unlock()

		vecs := make([][]float32, len(req.Input))
		for i := range req.Input {
			vecs[i] = []float32{float32(len(req.Input)), float32(i), 0}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vecs})
	})
}

func TestEmbedBatch_SplitsRequests(t *testing.T) {
	t.Parallel()
	s := &embedServer{}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	p, err := ollama.New(srv.URL+"/", "custom-embedder", ollama.WithBatchSize(2), ollama.WithKeepAlive("10m"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d := p.Dimensions(); d != 0 {
		t.Errorf("want unknown dimensions before the first call, got %d", d)
	}

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("want 3 vectors, got %d", len(vecs))
	}
	if vecs[2][0] != 1 || vecs[2][1] != 0 {
		t.Errorf("want last vector from a second single-input request, got %v", vecs[2])
	}
	s.mu.Lock()
	if len(s.inputs) != 2 {
		t.Errorf("want 2 requests, got %d", len(s.inputs))
	}
	if s.keep[0] != "10m" {
		t.Errorf("want keep_alive 10m, got %q", s.keep[0])
	}
	s.mu.Unlock()
	if d := p.Dimensions(); d != 3 {
		t.Errorf("want dimensions learned from the response, got %d", d)
	}
}

func TestEmbed_ServerError(t *testing.T) {
	t.Parallel()
	s := &embedServer{}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	p, _ := ollama.New(srv.URL, "missing")
	_, err := p.Embed(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "try pulling it first") {
		t.Fatalf("want server error message, got %v", err)
	}
}

func TestKnownDimensions(t *testing.T) {
	tests := map[string]int{
		"nomic-embed-text":         768,
		"mxbai-embed-large:latest": 1024,
		"all-minilm":               384,
	}
	for model, want := range tests {
		p, err := ollama.New("", model)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if got := p.Dimensions(); got != want {
			t.Errorf("%s: want %d, got %d", model, want, got)
		}
	}
	p, _ := ollama.New("", "all-minilm", ollama.WithDimensions(12))
	if got := p.Dimensions(); got != 12 {
		t.Errorf("want explicit dimensions 12, got %d", got)
	}
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := ollama.New("", ""); err == nil {
		t.Fatal("want error for empty model")
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	p, _ := ollama.New("http://127.0.0.1:1", "nomic-embed-text")
	vecs, err := p.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("want nil, nil for empty input, got %v, %v", vecs, err)
	}
}
