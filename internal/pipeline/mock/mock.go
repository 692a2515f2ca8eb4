// Package mock provides test doubles for the [pipeline.Backend],
// [pipeline.Speaker] and [pipeline.Sink] interfaces.
//
// All mocks are safe for concurrent use and record every call.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/duckdebug/internal/pipeline"
	"github.com/MrWong99/duckdebug/pkg/api"
	"github.com/MrWong99/duckdebug/pkg/audio"
)

// Backend is a mock implementation of [pipeline.Backend].
type Backend struct {
	mu sync.Mutex

	TranscribeResult string
	TranscribeError  error

	RetrieveResult []api.Match
	RetrieveError  error

	QueryResult string
	QueryError  error

	SynthesizeResult string
	SynthesizeError  error

	FetchResult audio.Clip
	FetchError  error

	// Gates, when non-nil, make the named call block until the channel yields
	// or ctx is cancelled. Keys are "transcribe", "retrieve", "query",
	// "synthesize" and "fetch".
	Gates map[string]chan struct{}

	// Entered, when non-nil, receives the call name as each call starts.
	Entered chan string

	// Calls records the name of every call in order.
	Calls []string

	// Questions records the argument of every RetrieveContext and Query call.
	Questions []string

	// SynthesizeTexts records the text of every Synthesize call.
	SynthesizeTexts []string

	// FetchURLs records the URL of every FetchAudio call.
	FetchURLs []string
}

func (b *Backend) enter(ctx context.Context, name string) error {
	b.mu.Lock()
	b.Calls = append(b.Calls, name)
	gate := b.Gates[name]
	entered := b.Entered
	b.mu.Unlock()

	if entered != nil {
		entered <- name
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Transcribe implements [pipeline.Backend].
func (b *Backend) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if err := b.enter(ctx, "transcribe"); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.TranscribeResult, b.TranscribeError
}

// RetrieveContext implements [pipeline.Backend].
func (b *Backend) RetrieveContext(ctx context.Context, question string) ([]api.Match, error) {
	if err := b.enter(ctx, "retrieve"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Questions = append(b.Questions, question)
	return b.RetrieveResult, b.RetrieveError
}

// Query implements [pipeline.Backend].
func (b *Backend) Query(ctx context.Context, question string) (string, error) {
	if err := b.enter(ctx, "query"); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Questions = append(b.Questions, question)
	return b.QueryResult, b.QueryError
}

// Synthesize implements [pipeline.Backend].
func (b *Backend) Synthesize(ctx context.Context, text string) (string, error) {
	if err := b.enter(ctx, "synthesize"); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SynthesizeTexts = append(b.SynthesizeTexts, text)
	return b.SynthesizeResult, b.SynthesizeError
}

// FetchAudio implements [pipeline.Backend].
func (b *Backend) FetchAudio(ctx context.Context, url string) (audio.Clip, error) {
	if err := b.enter(ctx, "fetch"); err != nil {
		return audio.Clip{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FetchURLs = append(b.FetchURLs, url)
	return b.FetchResult, b.FetchError
}

// CallNames returns a copy of the recorded call names. Thread-safe.
func (b *Backend) CallNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.Calls...)
}

var _ pipeline.Backend = (*Backend)(nil)

// Speaker is a mock implementation of [pipeline.Speaker].
type Speaker struct {
	mu sync.Mutex

	// PlayError is returned by Play.
	PlayError error

	// Clips records every clip passed to Play.
	Clips []audio.Clip
}

// Play implements [pipeline.Speaker].
func (s *Speaker) Play(clip audio.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Clips = append(s.Clips, clip)
	return s.PlayError
}

// PlayCount returns the number of Play calls. Thread-safe.
func (s *Speaker) PlayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Clips)
}

var _ pipeline.Speaker = (*Speaker)(nil)

// Event is one recorded [pipeline.Sink] call.
type Event struct {
	// Kind is "transcript", "context" or "answer".
	Kind    string
	Text    string
	Matches []api.Match
}

// Sink is a mock implementation of [pipeline.Sink].
type Sink struct {
	mu     sync.Mutex
	events []Event
}

// TranscriptReady implements [pipeline.Sink].
func (s *Sink) TranscriptReady(text string) {
	s.record(Event{Kind: "transcript", Text: text})
}

// ContextRetrieved implements [pipeline.Sink].
func (s *Sink) ContextRetrieved(formatted string, matches []api.Match) {
	s.record(Event{Kind: "context", Text: formatted, Matches: matches})
}

// AnswerReady implements [pipeline.Sink].
func (s *Sink) AnswerReady(answer string) {
	s.record(Event{Kind: "answer", Text: answer})
}

func (s *Sink) record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of the recorded events. Thread-safe.
func (s *Sink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

var _ pipeline.Sink = (*Sink)(nil)
