package ingest_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/duckdebug/internal/ingest"
	"github.com/MrWong99/duckdebug/pkg/codestore"
	"github.com/MrWong99/duckdebug/pkg/codestore/memstore"
	storemock "github.com/MrWong99/duckdebug/pkg/codestore/mock"
	embmock "github.com/MrWong99/duckdebug/pkg/provider/embeddings/mock"
)

const bubbleSortPy = `def bubble_sort(arr):
    n = len(arr)
    for i in range(n - 1):
        for j in range(n - i - 1):
            if arr[j] > arr[j + 1]:
                arr[j], arr[j + 1] = arr[j + 1], arr[j]


if __name__ == "__main__":
    bubble_sort([5, 1, 4])
`

func newService(t *testing.T, store codestore.Store, emb *embmock.Provider, opts ...ingest.Option) *ingest.Service {
	t.Helper()
	opts = append([]ingest.Option{ingest.WithClock(func() time.Time { return time.Unix(0, 0) })}, opts...)
	svc, err := ingest.New(store, emb, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestIngest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New(embmock.DefaultDimensions)
	emb := &embmock.Provider{}
	svc := newService(t, store, emb)

	sum, err := svc.Ingest(ctx, []ingest.Upload{
		{Path: "sorting/bubble_sort.py", Content: []byte(bubbleSortPy)},
		{Path: "README.md", Content: []byte("# readme")},
		{Path: "../escape.py", Content: []byte("x = 1")},
		{Path: "bad.py", Content: []byte{0xff, 0xfe}},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if sum.Files != 1 {
		t.Errorf("want 1 file ingested, got %d", sum.Files)
	}
	wantSkipped := []string{"README.md", "../escape.py", "bad.py"}
	if !slices.Equal(sum.Skipped, wantSkipped) {
		t.Errorf("want skipped %v, got %v", wantSkipped, sum.Skipped)
	}

	files, _ := store.Files(ctx)
	if len(files) != 1 || files[0].Functions[0].Name != "bubble_sort" {
		t.Fatalf("want bubble_sort.py stored with its function, got %+v", files)
	}

	n, _ := store.CountChunks(ctx)
	if n != sum.Chunks || n == 0 {
		t.Fatalf("want %d chunks stored, got %d", sum.Chunks, n)
	}

	results, err := store.Search(ctx, embmock.Vector("how does bubble_sort swap elements", embmock.DefaultDimensions), 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Chunk.FunctionName != "bubble_sort" || results[0].Chunk.FileName != "bubble_sort.py" {
		t.Errorf("want the bubble_sort chunk first, got %+v", results[0].Chunk)
	}
}

func TestIngest_NoPythonFiles(t *testing.T) {
	t.Parallel()
	svc := newService(t, memstore.New(0), &embmock.Provider{})

	sum, err := svc.Ingest(context.Background(), []ingest.Upload{{Path: "main.go", Content: []byte("package main")}})
	if !errors.Is(err, ingest.ErrNoFiles) {
		t.Fatalf("want ErrNoFiles, got %v", err)
	}
	if len(sum.Skipped) != 1 {
		t.Errorf("want the go file reported as skipped, got %v", sum.Skipped)
	}
}

func TestIngest_EmbedderError(t *testing.T) {
	t.Parallel()
	store := &storemock.Store{}
	svc := newService(t, store, &embmock.Provider{Err: errors.New("rate limited")})

	_, err := svc.Ingest(context.Background(), []ingest.Upload{{Path: "a.py", Content: []byte(bubbleSortPy)}})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("want embedder error, got %v", err)
	}
	if store.CallCount("ReplaceChunks") != 0 {
		t.Error("want no chunks written when embedding fails")
	}
}

func TestIngest_Batching(t *testing.T) {
	t.Parallel()
	emb := &embmock.Provider{}
	svc := newService(t, memstore.New(0), emb, ingest.WithBatchSize(2), ingest.WithChunking(60, 10))

	sum, err := svc.Ingest(context.Background(), []ingest.Upload{{Path: "a.py", Content: []byte(bubbleSortPy)}})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	want := (sum.Chunks + 1) / 2
	if got := emb.BatchCount(); got != want {
		t.Errorf("want %d embedding batches for %d chunks, got %d", want, sum.Chunks, got)
	}
}

func TestReindex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New(0)
	emb := &embmock.Provider{}
	svc := newService(t, store, emb)

	if _, err := svc.Ingest(ctx, []ingest.Upload{{Path: "a.py", Content: []byte(bubbleSortPy)}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	before, _ := store.CountChunks(ctx)

	sum, err := svc.Reindex(ctx)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	after, _ := store.CountChunks(ctx)
	if sum.Files != 1 || after != before || sum.Chunks != before {
		t.Errorf("want the same %d chunks rebuilt for 1 file, got %+v (store has %d)", before, sum, after)
	}
}

func TestChunks_Metadata(t *testing.T) {
	t.Parallel()
	svc := newService(t, memstore.New(0), &embmock.Provider{})
	f := ingest.ParsePython("sorting/bubble_sort.py", bubbleSortPy, time.Unix(0, 0))

	chunks := svc.Chunks(f)
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.ID != "sorting/bubble_sort.py#0" || c.FunctionName != "bubble_sort" || c.Language != "Python" {
		t.Errorf("unexpected chunk metadata: %+v", c)
	}
}

func TestCleanPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "src/a.py", want: "src/a.py"},
		{in: "src\\utils\\b.py", want: "src/utils/b.py"},
		{in: "./src/../a.py", want: "a.py"},
		{in: "/etc/passwd", wantErr: true},
		{in: "../a.py", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ingest.CleanPath(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ingest.ErrInvalidPath) {
					t.Fatalf("want ErrInvalidPath, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("want %q, got %q", tt.want, got)
			}
		})
	}
}
