// Package pipeline sequences the remote calls that turn a spoken (or typed)
// question into a spoken answer.
//
// A run walks five stages strictly in order:
//
//  1. Transcribe the recorded clip.
//  2. Retrieve the source chunks relevant to the transcript.
//  3. Query the answer model.
//  4. Synthesize the answer to speech.
//  5. Fetch the synthesized clip and hand it to the [Speaker].
//
// Results that the UI should show as soon as they exist (the transcript, the
// retrieved code and the answer) are reported through a [Sink] while the run is
// still in progress. A failure in stages 1 to 3 aborts the run; failures in
// stages 4 and 5 are soft, the answer has already been delivered.
package pipeline

import (
	"context"

	"github.com/MrWong99/duckdebug/pkg/api"
	"github.com/MrWong99/duckdebug/pkg/audio"
)

// Stage identifies one step of a pipeline run.
type Stage int

const (
	StageTranscribe Stage = iota
	StageRetrieve
	StageQuery
	StageSynthesize
	StagePlayback
)

// String returns the lowercase stage name used in logs and metrics.
func (s Stage) String() string {
	switch s {
	case StageTranscribe:
		return "transcribe"
	case StageRetrieve:
		return "retrieve"
	case StageQuery:
		return "query"
	case StageSynthesize:
		return "synthesize"
	case StagePlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// Backend is the remote boundary the orchestrator talks to. The HTTP
// implementation lives in package backendapi.
type Backend interface {
	// Transcribe returns the text spoken in clip.
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)

	// RetrieveContext returns the source chunks most relevant to question,
	// most relevant first.
	RetrieveContext(ctx context.Context, question string) ([]api.Match, error)

	// Query returns the answer model's reply to question.
	Query(ctx context.Context, question string) (string, error)

	// Synthesize converts text to speech and returns a URL to fetch it from.
	Synthesize(ctx context.Context, text string) (string, error)

	// FetchAudio downloads the clip behind a URL returned by Synthesize.
	FetchAudio(ctx context.Context, url string) (audio.Clip, error)
}

// Speaker starts playing a clip and returns without waiting for it to end.
type Speaker interface {
	Play(clip audio.Clip) error
}

// Sink receives intermediate results while a run is in progress. Methods are
// called from the goroutine executing the run, in stage order.
type Sink interface {
	// TranscriptReady is called once the question text is known.
	TranscriptReady(text string)

	// ContextRetrieved is called after retrieval and before the query starts.
	// formatted is the [FormatContext] rendering of matches.
	ContextRetrieved(formatted string, matches []api.Match)

	// AnswerReady is called with a non-empty answer.
	AnswerReady(answer string)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) TranscriptReady(string)               {}
func (NopSink) ContextRetrieved(string, []api.Match) {}
func (NopSink) AnswerReady(string)                   {}

var _ Sink = NopSink{}

// Result summarises a finished run. Fields are filled up to the last stage
// that succeeded.
type Result struct {
	Transcript string
	Context    string
	Matches    []api.Match
	Answer     string
	AudioURL   string

	// Played is true when a clip was handed to the speaker.
	Played bool
}
