// Package rag answers debugging questions against the ingested code.
//
// Retrieve embeds the question and returns the nearest chunks. Answer first
// asks the model whether the user already solved their problem; if so it
// congratulates them, otherwise it plays rubber duck: one comforting
// statement and one follow-up question grounded in the retrieved code.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/duckdebug/internal/observe"
	"github.com/MrWong99/duckdebug/pkg/codestore"
	"github.com/MrWong99/duckdebug/pkg/provider/embeddings"
	"github.com/MrWong99/duckdebug/pkg/provider/llm"
)

// DefaultTopK is the number of chunks returned by Retrieve.
const DefaultTopK = 5

var (
	// ErrNoDocuments is returned by Retrieve when the store is empty.
	ErrNoDocuments = errors.New("rag: no code documents loaded")

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("rag: empty question")
)

// Verdict is the outcome of the "has the user solved it" check.
type Verdict int

const (
	// Unsolved routes the question to the rubber duck prompt.
	Unsolved Verdict = iota
	// Solved routes the question to the congratulation prompt.
	Solved
)

// String returns "unsolved" or "solved".
func (v Verdict) String() string {
	if v == Solved {
		return "solved"
	}
	return "unsolved"
}

// Service runs retrieval and answer generation. It is safe for concurrent use.
type Service struct {
	store    codestore.Store
	embedder embeddings.Provider
	llm      llm.Provider
	metrics  *observe.Metrics

	topK        int
	temperature float64
	maxTokens   int
}

// Option is a functional option for [New].
type Option func(*Service)

// WithTopK sets how many chunks Retrieve returns.
func WithTopK(k int) Option {
	return func(s *Service) { s.topK = k }
}

// WithTemperature sets the sampling temperature for every prompt. Default 0.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// WithMaxTokens caps answer length. Zero keeps the provider default.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

// WithMetrics records retrieval and completion latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service.
func New(store codestore.Store, embedder embeddings.Provider, model llm.Provider, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("rag: store must not be nil")
	case embedder == nil:
		return nil, errors.New("rag: embedder must not be nil")
	case model == nil:
		return nil, errors.New("rag: llm must not be nil")
	}
	s := &Service{store: store, embedder: embedder, llm: model, topK: DefaultTopK}
	for _, o := range opts {
		o(s)
	}
	if s.topK <= 0 {
		s.topK = DefaultTopK
	}
	return s, nil
}

// Retrieve returns the chunks nearest to question, most similar first.
func (s *Service) Retrieve(ctx context.Context, question string) ([]codestore.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	ctx, span := observe.StartSpan(ctx, "rag.retrieve")
	defer span.End()
	start := time.Now()

	n, err := s.store.CountChunks(ctx)
	if err != nil {
		observe.Fail(span, err)
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}
	if n == 0 {
		return nil, ErrNoDocuments
	}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		observe.Fail(span, err)
		return nil, fmt.Errorf("rag: embed question: %w", err)
	}
	results, err := s.store.Search(ctx, vec, s.topK)
	if err != nil {
		observe.Fail(span, err)
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	span.SetAttributes(attribute.Int("rag.results", len(results)))
	if s.metrics != nil {
		s.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds())
	}
	return results, nil
}

// Classify asks the model whether question reads like the user already
// solved their issue.
func (s *Service) Classify(ctx context.Context, question string) (Verdict, error) {
	out, err := s.complete(ctx, fmt.Sprintf(filterPrompt, question))
	if err != nil {
		return Unsolved, fmt.Errorf("rag: classify: %w", err)
	}
	return parseVerdict(out), nil
}

// parseVerdict reads the filter output. Only an answer starting with "1"
// counts as solved so that a chatty or malformed reply keeps the user in the
// debugging flow.
func parseVerdict(out string) Verdict {
	out = strings.TrimLeft(strings.TrimSpace(out), "\"'`")
	if strings.HasPrefix(out, "1") {
		return Solved
	}
	return Unsolved
}

// Answer produces the spoken reply to question.
func (s *Service) Answer(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}
	ctx, span := observe.StartSpan(ctx, "rag.answer")
	defer span.End()
	log := observe.Logger(ctx)

	verdict, err := s.Classify(ctx, question)
	if err != nil {
		observe.Fail(span, err)
		return "", err
	}
	span.SetAttributes(attribute.String("rag.verdict", verdict.String()))
	log.Debug("question classified", "verdict", verdict.String())

	var prompt string
	if verdict == Solved {
		prompt = fmt.Sprintf(congratsPrompt, question)
	} else {
		codeContext, err := s.promptContext(ctx, question)
		if err != nil {
			observe.Fail(span, err)
			return "", err
		}
		prompt = fmt.Sprintf(duckPrompt, codeContext, question)
	}

	answer, err := s.complete(ctx, prompt)
	if err != nil {
		observe.Fail(span, err)
		return "", fmt.Errorf("rag: answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func (s *Service) promptContext(ctx context.Context, question string) (string, error) {
	results, err := s.Retrieve(ctx, question)
	if errors.Is(err, ErrNoDocuments) {
		return noDocumentsContext, nil
	}
	if err != nil {
		return "", err
	}
	return RenderContext(results), nil
}

// RenderContext formats retrieved chunks for a prompt.
func RenderContext(results []codestore.Result) string {
	if len(results) == 0 {
		return noDocumentsContext
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		c := r.Chunk
		fmt.Fprintf(&b, "--- %s", c.FilePath)
		if c.FunctionName != "" {
			fmt.Fprintf(&b, " (function %s)", c.FunctionName)
		}
		if c.ClassName != "" {
			fmt.Fprintf(&b, " [class %s]", c.ClassName)
		}
		b.WriteString(" ---\n")
		b.WriteString(c.Content)
	}
	return b.String()
}

func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: llm.Temperature(s.temperature),
		MaxTokens:   s.maxTokens,
	})
	if s.metrics != nil {
		s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("empty completion")
	}
	return resp.Content, nil
}
