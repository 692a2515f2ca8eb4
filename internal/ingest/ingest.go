// Package ingest turns uploaded source files into searchable chunks.
//
// An upload is parsed for class and function signatures, stored as a
// [codestore.File], split into function-level chunks, embedded in parallel
// batches and written to the [codestore.Store]. Only Python sources are
// accepted.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/duckdebug/internal/observe"
	"github.com/MrWong99/duckdebug/pkg/codestore"
	"github.com/MrWong99/duckdebug/pkg/provider/embeddings"
)

var (
	// ErrNoFiles is returned when an upload contains no acceptable file.
	ErrNoFiles = errors.New("ingest: no Python files in upload")

	// ErrInvalidPath is returned for absolute paths or paths escaping the
	// upload root.
	ErrInvalidPath = errors.New("ingest: invalid file path")
)

// Upload is one file received from a client.
type Upload struct {
	// Path is relative to the uploaded directory, e.g. "src/utils/helper.py".
	Path    string
	Content []byte
}

// Summary reports the outcome of [Service.Ingest] or [Service.Reindex].
type Summary struct {
	Files   int
	Chunks  int
	Skipped []string
}

// Service ingests uploads into a code store.
type Service struct {
	store    codestore.Store
	embedder embeddings.Provider
	metrics  *observe.Metrics

	chunkSize   int
	overlap     int
	batchSize   int
	concurrency int
	now         func() time.Time
}

// Option is a functional option for [New].
type Option func(*Service)

// WithChunking sets the chunk size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(s *Service) {
		s.chunkSize = size
		s.overlap = overlap
	}
}

// WithBatchSize sets how many chunks are embedded per provider call.
func WithBatchSize(n int) Option {
	return func(s *Service) { s.batchSize = n }
}

// WithConcurrency caps the number of embedding calls in flight.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithMetrics records indexed chunks and embedding latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source for LastModified.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(store codestore.Store, embedder embeddings.Provider, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ingest: store must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("ingest: embedder must not be nil")
	}
	s := &Service{
		store:       store,
		embedder:    embedder,
		chunkSize:   DefaultChunkSize,
		overlap:     DefaultChunkOverlap,
		batchSize:   32,
		concurrency: 4,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.batchSize <= 0 {
		s.batchSize = 32
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	return s, nil
}

// CleanPath validates an upload path and returns it in slash-separated,
// cleaned form.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" || path.IsAbs(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return clean, nil
}

// Ingest stores and indexes every .py file in uploads. Other files, invalid
// paths and non-UTF-8 content are skipped and listed in the summary.
func (s *Service) Ingest(ctx context.Context, uploads []Upload) (Summary, error) {
	var (
		sum   Summary
		files []codestore.File
	)
	for _, u := range uploads {
		p, err := CleanPath(u.Path)
		if err != nil || path.Ext(p) != ".py" || !utf8.Valid(u.Content) {
			sum.Skipped = append(sum.Skipped, u.Path)
			continue
		}
		files = append(files, ParsePython(p, string(u.Content), s.now()))
	}
	if len(files) == 0 {
		return sum, ErrNoFiles
	}

	for _, f := range files {
		if err := s.store.UpsertFile(ctx, f); err != nil {
			return sum, fmt.Errorf("ingest: %w", err)
		}
	}
	n, err := s.index(ctx, files)
	if err != nil {
		return sum, err
	}
	sum.Files = len(files)
	sum.Chunks = n
	slog.Info("sources ingested", "files", sum.Files, "chunks", sum.Chunks, "skipped", len(sum.Skipped))
	return sum, nil
}

// Reindex rebuilds the chunks of every stored file, e.g. after switching the
// embedding model.
func (s *Service) Reindex(ctx context.Context) (Summary, error) {
	files, err := s.store.Files(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("ingest: reindex: %w", err)
	}
	n, err := s.index(ctx, files)
	if err != nil {
		return Summary{}, err
	}
	slog.Info("code store reindexed", "files", len(files), "chunks", n)
	return Summary{Files: len(files), Chunks: n}, nil
}

// Chunks splits f into chunks without embeddings.
func (s *Service) Chunks(f codestore.File) []codestore.Chunk {
	var out []codestore.Chunk
	for _, seg := range segments(f.Content) {
		for _, piece := range splitText(seg.text, s.chunkSize, s.overlap) {
			out = append(out, codestore.Chunk{
				ID:           fmt.Sprintf("%s#%d", f.Path, len(out)),
				FilePath:     f.Path,
				FileName:     f.Name,
				FunctionName: seg.function,
				ClassName:    f.ClassName,
				Language:     f.Language,
				Index:        len(out),
				Content:      piece,
			})
		}
	}
	return out
}

// embedText is what gets embedded for c: the source prefixed with where it
// lives, so questions naming a file or function land on it.
func embedText(c codestore.Chunk) string {
	var b strings.Builder
	b.WriteString("file: ")
	b.WriteString(c.FilePath)
	if c.FunctionName != "" {
		b.WriteString("\nfunction: ")
		b.WriteString(c.FunctionName)
	}
	b.WriteString("\n")
	b.WriteString(c.Content)
	return b.String()
}

func (s *Service) index(ctx context.Context, files []codestore.File) (int, error) {
	perFile := make([][]codestore.Chunk, len(files))
	var all []*codestore.Chunk
	for i, f := range files {
		perFile[i] = s.Chunks(f)
		for j := range perFile[i] {
			all = append(all, &perFile[i][j])
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)
	for start := 0; start < len(all); start += s.batchSize {
		batch := all[start:min(start+s.batchSize, len(all))]
		eg.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = embedText(*c)
			}
			begin := time.Now()
			vecs, err := s.embedder.EmbedBatch(egCtx, texts)
			if s.metrics != nil {
				s.metrics.EmbeddingDuration.Record(egCtx, time.Since(begin).Seconds())
			}
			if err != nil {
				return fmt.Errorf("ingest: embed %d chunks: %w", len(batch), err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("ingest: embed: want %d vectors, got %d", len(batch), len(vecs))
			}
			for i, c := range batch {
				c.Embedding = vecs[i]
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for i, f := range files {
		if err := s.store.ReplaceChunks(ctx, f.Path, perFile[i]); err != nil {
			return total, fmt.Errorf("ingest: %w", err)
		}
		total += len(perFile[i])
	}
	if s.metrics != nil {
		s.metrics.RecordChunksIndexed(ctx, total)
	}
	return total, nil
}
