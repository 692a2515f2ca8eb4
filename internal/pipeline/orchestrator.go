package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/duckdebug/internal/observe"
	"github.com/MrWong99/duckdebug/pkg/api"
	"github.com/MrWong99/duckdebug/pkg/audio"
)

// Orchestrator runs pipelines against a [Backend]. It holds no per-run state
// and is safe for concurrent use; the caller decides whether runs may overlap.
type Orchestrator struct {
	backend Backend
	speaker Speaker
	metrics *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithMetrics records stage latencies and the in-flight run count.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator. Both backend and speaker are required.
func New(backend Backend, speaker Speaker, opts ...Option) (*Orchestrator, error) {
	if backend == nil {
		return nil, errors.New("pipeline: backend must not be nil")
	}
	if speaker == nil {
		return nil, errors.New("pipeline: speaker must not be nil")
	}
	o := &Orchestrator{backend: backend, speaker: speaker}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RunClip runs every stage starting from a recorded clip.
//
// The returned error is nil, a *[StageError], or ctx.Err() when the run was
// cancelled. A soft StageError still comes with the answer in the Result.
func (o *Orchestrator) RunClip(ctx context.Context, clip audio.Clip, sink Sink) (Result, error) {
	if clip.Empty() {
		return Result{}, stageError(StageTranscribe, errors.New("empty clip"))
	}
	return o.run(ctx, NewRequest(""), &clip, sink)
}

// RunText runs the pipeline for a typed question, skipping transcription.
func (o *Orchestrator) RunText(ctx context.Context, question string, sink Sink) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, stageError(StageTranscribe, ErrNoTranscript)
	}
	return o.run(ctx, NewRequest(question), nil, sink)
}

func (o *Orchestrator) run(ctx context.Context, req *Request, clip *audio.Clip, sink Sink) (res Result, err error) {
	if sink == nil {
		sink = NopSink{}
	}
	ctx, span := observe.StartSpan(ctx, "pipeline.run",
		trace.WithAttributes(sourceAttr(clip != nil)),
	)
	defer func() {
		observe.Fail(span, err)
		span.End()
	}()
	if o.metrics != nil {
		o.metrics.ActivePipelines.Add(ctx, 1)
		defer o.metrics.ActivePipelines.Add(context.WithoutCancel(ctx), -1)
	}
	log := observe.Logger(ctx)

	// 1. Transcribe.
	transcript := req.Question()
	if clip != nil {
		err := o.stage(ctx, StageTranscribe, func(ctx context.Context) error {
			text, err := o.backend.Transcribe(ctx, *clip)
			if err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return ErrNoTranscript
			}
			transcript = text
			return nil
		})
		if err != nil {
			return req.result(), err
		}
	}
	if err := req.SetTranscript(transcript); err != nil {
		return req.result(), err
	}
	sink.TranscriptReady(transcript)

	// 2. Retrieve.
	var matches []api.Match
	err = o.stage(ctx, StageRetrieve, func(ctx context.Context) error {
		var err error
		matches, err = o.backend.RetrieveContext(ctx, transcript)
		return err
	})
	if err != nil {
		return req.result(), err
	}
	formatted := FormatContext(matches)
	if err := req.SetContext(formatted); err != nil {
		return req.result(), err
	}
	sink.ContextRetrieved(formatted, matches)

	// 3. Query.
	var answer string
	err = o.stage(ctx, StageQuery, func(ctx context.Context) error {
		a, err := o.backend.Query(ctx, transcript)
		if err != nil {
			return err
		}
		if a == "" {
			return ErrEmptyAnswer
		}
		answer = a
		return nil
	})
	if err != nil {
		res = req.result()
		res.Matches = matches
		return res, err
	}
	if err := req.SetAnswer(answer); err != nil {
		return req.result(), err
	}
	sink.AnswerReady(answer)

	// 4. Synthesize.
	var audioURL string
	err = o.stage(ctx, StageSynthesize, func(ctx context.Context) error {
		u, err := o.backend.Synthesize(ctx, answer)
		if err != nil {
			return err
		}
		if u == "" {
			return ErrNoAudioURL
		}
		audioURL = u
		return nil
	})
	res = req.result()
	res.Matches = matches
	if err != nil {
		log.Warn("answer synthesis failed", "err", err)
		return res, err
	}
	if err := req.SetAudioURL(audioURL); err != nil {
		return res, err
	}
	res.AudioURL = audioURL

	// 5. Fetch and play.
	err = o.stage(ctx, StagePlayback, func(ctx context.Context) error {
		clip, err := o.backend.FetchAudio(ctx, audioURL)
		if err != nil {
			return err
		}
		// A run cancelled during the download must stay silent.
		if err := ctx.Err(); err != nil {
			return err
		}
		return o.speaker.Play(clip)
	})
	if err != nil {
		log.Warn("answer playback failed", "err", err)
		return res, err
	}
	res.Played = true
	return res, nil
}

// stage runs fn as stage s. Cancellation of ctx is reported as ctx.Err()
// even when fn itself succeeded; every other failure becomes a *StageError.
func (o *Orchestrator) stage(ctx context.Context, s Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := fn(ctx)

	status := "ok"
	switch {
	case ctx.Err() != nil:
		status, err = "cancelled", ctx.Err()
	case err != nil:
		status, err = "error", stageError(s, err)
	}
	if o.metrics != nil {
		o.metrics.RecordStage(context.WithoutCancel(ctx), s.String(), status, time.Since(start))
	}
	observe.Logger(ctx).Debug("pipeline stage done", "stage", s, "status", status, "duration", time.Since(start))
	return err
}

func sourceAttr(fromClip bool) attribute.KeyValue {
	if fromClip {
		return attribute.String("pipeline.source", "voice")
	}
	return attribute.String("pipeline.source", "text")
}
