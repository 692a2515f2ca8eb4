// Package capture owns a single microphone recording at a time.
//
// A [Session] moves through Idle → Requesting → Recording → Stopping → Idle.
// While recording, a ticker samples the energy analyser and feeds the silence
// detector; sustained silence or an explicit [Session.Stop] finalises the
// recording into an [audio.Clip] that is published on [Session.Results].
// Stream, recorder or context failures pass through Error back to Idle and
// publish the error instead. The microphone is always released before the
// session reports Idle.
//
// All recording state is owned by one run goroutine per recording; recorder
// callbacks arrive there as [audio.RecorderEvent] messages.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/duckdebug/internal/observe"
	"github.com/MrWong99/duckdebug/pkg/audio"
	"github.com/MrWong99/duckdebug/pkg/provider/vad"
)

const (
	defaultTickInterval = 16 * time.Millisecond
	defaultFlushTimeout = 5 * time.Second
)

var (
	// ErrStreamEnded is published when the microphone stream closes without
	// reporting a cause.
	ErrStreamEnded = errors.New("capture: microphone stream ended")

	// ErrRecorder wraps encoder failures.
	ErrRecorder = errors.New("capture: recorder failed")
)

// Result is published once per recording.
type Result struct {
	// Clip is the finished recording. Empty when Err is set.
	Clip audio.Clip

	// Reason is why the recording stopped.
	Reason StopReason

	// Err is non-nil when the recording failed. No clip accompanies it.
	Err error
}

// Option is a functional option for [New].
type Option func(*Session)

// WithTickInterval sets how often the analyser is sampled. Defaults to 16 ms.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.tick = d }
}

// WithClock overrides the time source fed to the silence detector.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithVADConfig sets the silence detector configuration.
func WithVADConfig(cfg vad.Config) Option {
	return func(s *Session) { s.vadCfg = cfg }
}

// WithStateHook registers fn to be called on every state change. fn runs on
// the goroutine that made the change and must not block.
func WithStateHook(fn func(State)) Option {
	return func(s *Session) { s.onState = fn }
}

// WithMetrics records per-recording metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithFlushTimeout bounds how long Stopping waits for the recorder to flush.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Session) { s.flushTimeout = d }
}

// Session is the microphone capture state machine. It is safe for
// concurrent use.
type Session struct {
	device       audio.Device
	newRecorder  audio.RecorderFactory
	engine       vad.Engine
	vadCfg       vad.Config
	tick         time.Duration
	flushTimeout time.Duration
	now          func() time.Time
	onState      func(State)
	metrics      *observe.Metrics
	results      chan Result

	mu      sync.Mutex
	state   State
	stopReq chan struct{}
	done    chan struct{}
}

// New creates an idle session. All three collaborators are required.
func New(device audio.Device, newRecorder audio.RecorderFactory, engine vad.Engine, opts ...Option) (*Session, error) {
	if device == nil {
		return nil, errors.New("capture: device must not be nil")
	}
	if newRecorder == nil {
		return nil, errors.New("capture: recorder factory must not be nil")
	}
	if engine == nil {
		return nil, errors.New("capture: vad engine must not be nil")
	}
	s := &Session{
		device:       device,
		newRecorder:  newRecorder,
		engine:       engine,
		tick:         defaultTickInterval,
		flushTimeout: defaultFlushTimeout,
		now:          time.Now,
		results:      make(chan Result, 8),
	}
	for _, o := range opts {
		o(s)
	}
	if s.tick <= 0 {
		s.tick = defaultTickInterval
	}
	return s, nil
}

// Results returns the channel on which finished recordings and recording
// failures are published.
func (s *Session) Results() <-chan Result { return s.results }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel closed when the current recording's run goroutine
// has exited, or nil if no recording was ever started.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed && s.onState != nil {
		s.onState(st)
	}
}

// Start acquires the microphone and begins recording. ctx bounds both the
// acquisition and the recording: cancelling it while recording discards the
// audio and publishes the cancellation as a failure.
//
// Start while Recording behaves as [Session.Stop]. Start while Requesting or
// Stopping is a no-op. Acquisition failures wrap [audio.ErrPermissionDenied]
// or [audio.ErrDevice] and are returned after the session is back to Idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateRecording:
		s.mu.Unlock()
		s.Stop()
		return nil
	case StateRequesting, StateStopping, StateError:
		s.mu.Unlock()
		return nil
	}
	s.state = StateRequesting
	s.stopReq = make(chan struct{}, 1)
	s.mu.Unlock()
	if s.onState != nil {
		s.onState(StateRequesting)
	}

	stream, err := s.device.Open(ctx)
	if err != nil {
		s.setState(StateError)
		s.setState(StateIdle)
		slog.Warn("capture: microphone unavailable", "err", err)
		return fmt.Errorf("capture: open microphone: %w", err)
	}

	rec, err := s.newRecorder(stream.Format())
	if err != nil {
		_ = stream.Close()
		s.setState(StateError)
		s.setState(StateIdle)
		return fmt.Errorf("capture: create recorder: %w", err)
	}

	sess, err := s.engine.NewSession(s.vadCfg)
	if err != nil {
		rec.Abort()
		_ = stream.Close()
		s.setState(StateError)
		s.setState(StateIdle)
		return fmt.Errorf("capture: create vad session: %w", err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.state = StateRecording
	s.done = done
	stopReq := s.stopReq
	s.mu.Unlock()
	if s.onState != nil {
		s.onState(StateRecording)
	}
	slog.Info("capture: recording started", "format", stream.Format().String())

	go s.run(ctx, recording{
		stream:  stream,
		rec:     rec,
		vad:     sess,
		stopReq: stopReq,
		started: s.now(),
		done:    done,
	})
	return nil
}

// Stop requests the end of the current recording. It is only valid while
// Recording and reports whether a stop was requested. A manual stop takes
// precedence over an automatic stop decided on the same tick.
func (s *Session) Stop() bool {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return false
	}
	s.state = StateStopping
	select {
	case s.stopReq <- struct{}{}:
	default:
	}
	s.mu.Unlock()
	if s.onState != nil {
		s.onState(StateStopping)
	}
	return true
}

// autoStop moves to Stopping on behalf of the silence detector. A manual
// stop that raced the tick has already done so and keeps its reason.
func (s *Session) autoStop() StopReason {
	s.mu.Lock()
	if s.state == StateStopping {
		s.mu.Unlock()
		return ReasonManual
	}
	s.state = StateStopping
	s.mu.Unlock()
	if s.onState != nil {
		s.onState(StateStopping)
	}
	return ReasonSilence
}

// recording bundles the resources owned by one run goroutine.
type recording struct {
	stream  audio.Stream
	rec     audio.Recorder
	vad     vad.SessionHandle
	stopReq <-chan struct{}
	started time.Time
	done    chan struct{}
}

func (s *Session) run(ctx context.Context, r recording) {
	defer close(r.done)

	ticker := time.NewTicker(s.tick)
	format := r.stream.Format()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: format.SampleRate, Channels: 1}}
	analyser := audio.NewAnalyser()
	snapshot := make(audio.EnergySample, audio.EnergySampleSize)
	frames := r.stream.Frames()
	events := r.rec.Events()
	var chunks [][]byte

	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			s.fail(r, ctx.Err())
			return

		case <-r.stopReq:
			ticker.Stop()
			s.finish(ctx, r, chunks, ReasonManual)
			return

		case f, ok := <-frames:
			if !ok {
				ticker.Stop()
				err := r.stream.Err()
				if err == nil {
					err = ErrStreamEnded
				}
				s.fail(r, err)
				return
			}
			analyser.Write(conv.Convert(f).Data)
			if err := r.rec.Write(f.Data); err != nil {
				ticker.Stop()
				s.fail(r, fmt.Errorf("%w: %w", ErrRecorder, err))
				return
			}

		case ev, ok := <-events:
			if !ok {
				ticker.Stop()
				s.fail(r, fmt.Errorf("%w: event channel closed", ErrRecorder))
				return
			}
			switch ev.Kind {
			case audio.RecorderChunk:
				chunks = append(chunks, ev.Data)
			case audio.RecorderError:
				ticker.Stop()
				s.fail(r, fmt.Errorf("%w: %w", ErrRecorder, ev.Err))
				return
			}

		case <-ticker.C:
			select {
			case <-r.stopReq:
				ticker.Stop()
				s.finish(ctx, r, chunks, ReasonManual)
				return
			default:
			}
			ev, err := r.vad.ProcessFrame(analyser.Snapshot(snapshot), s.now())
			if err != nil {
				slog.Warn("capture: silence detection failed", "err", err)
				continue
			}
			if ev.ShouldStop {
				ticker.Stop()
				reason := s.autoStop()
				slog.Debug("capture: silence detected, stopping", "silence", ev.SilenceFor, "reason", reason.String())
				s.finish(ctx, r, chunks, reason)
				return
			}
		}
	}
}

// finish releases the microphone, flushes the recorder and publishes the
// concatenated clip.
func (s *Session) finish(ctx context.Context, r recording, chunks [][]byte, reason StopReason) {
	_ = r.stream.Close()
	_ = r.vad.Close()

	if err := r.rec.Stop(); err != nil {
		s.fail(r, fmt.Errorf("%w: stop: %w", ErrRecorder, err))
		return
	}

	timeout := time.NewTimer(s.flushTimeout)
	defer timeout.Stop()
	events := r.rec.Events()
flush:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break flush
			}
			switch ev.Kind {
			case audio.RecorderChunk:
				chunks = append(chunks, ev.Data)
			case audio.RecorderStopped:
				break flush
			case audio.RecorderError:
				s.fail(r, fmt.Errorf("%w: %w", ErrRecorder, ev.Err))
				return
			}
		case <-timeout.C:
			s.fail(r, fmt.Errorf("%w: flush timed out after %s", ErrRecorder, s.flushTimeout))
			return
		}
	}
	go audio.Drain(events)

	clip := audio.Clip{Data: bytes.Join(chunks, nil), ContentType: r.rec.ContentType()}
	dur := s.now().Sub(r.started)
	s.setState(StateIdle)
	if s.metrics != nil {
		s.metrics.RecordCapture(ctx, reason.String(), dur)
	}
	slog.Info("capture: recording finished", "reason", reason.String(), "bytes", len(clip.Data), "duration", dur)
	s.publish(Result{Clip: clip, Reason: reason})
}

// fail discards the recording, releases the microphone and publishes err.
func (s *Session) fail(r recording, err error) {
	s.setState(StateError)
	r.rec.Abort()
	go audio.Drain(r.rec.Events())
	_ = r.stream.Close()
	_ = r.vad.Close()
	s.setState(StateIdle)
	if s.metrics != nil {
		s.metrics.RecordCapture(context.Background(), "error", s.now().Sub(r.started))
	}
	slog.Warn("capture: recording failed", "err", err)
	s.publish(Result{Err: err})
}

func (s *Session) publish(r Result) {
	select {
	case s.results <- r:
	default:
		slog.Warn("capture: result dropped, consumer is not keeping up", "reason", r.Reason.String(), "err", r.Err)
	}
}
