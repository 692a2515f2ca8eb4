// Package mock provides in-memory mock implementations of the [audio.Device],
// [audio.Stream], [audio.Recorder] and [audio.Player] interfaces for use in
// unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewStream(audio.Format{SampleRate: 16000, Channels: 1})
//	dev := &mock.Device{OpenResult: stream}
//	rec := mock.NewRecorder()
//	// ... start a capture session, then drive it:
//	stream.Send(audio.Frame{Data: pcm})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/duckdebug/pkg/audio"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream]. Frames are injected with
// [Stream.Send]; a failure is simulated with [Stream.Fail].
type Stream struct {
	mu     sync.Mutex
	format audio.Format
	frames chan audio.Frame
	err    error
	closed bool

	// CloseError is returned by [Stream.Close].
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewStream returns an open stream with a generously buffered frame channel.
func NewStream(f audio.Format) *Stream {
	return &Stream{format: f, frames: make(chan audio.Frame, 256)}
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.Frame { return s.frames }

// Format implements [audio.Stream].
func (s *Stream) Format() audio.Format { return s.format }

// Err implements [audio.Stream].
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [audio.Stream]. Returns CloseError.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return s.CloseError
}

// Send delivers f to the stream's consumer. Frames sent after Close or Fail
// are dropped.
func (s *Stream) Send(f audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.frames <- f
}

// Fail terminates the stream with err, as if the device had been unplugged.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.frames)
}

// Closed reports whether Close was called at least once.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose > 0
}

var _ audio.Stream = (*Stream)(nil)

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// OpenResult is returned by Open.
	OpenResult audio.Stream

	// OpenError is returned by Open.
	OpenError error

	// Gate, when non-nil, makes Open block until a value is received or the
	// channel is closed. Tests use it to observe the requesting state.
	Gate chan struct{}

	// CallCountOpen records how many times Open was called.
	CallCountOpen int
}

// Open implements [audio.Device]. Records the call and returns OpenResult / OpenError.
func (d *Device) Open(ctx context.Context) (audio.Stream, error) {
	d.mu.Lock()
	d.CallCountOpen++
	gate := d.Gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	return d.OpenResult, nil
}

// Calls returns the number of Open invocations. Thread-safe.
func (d *Device) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountOpen
}

var _ audio.Device = (*Device)(nil)

// ─── Recorder ─────────────────────────────────────────────────────────────────

// Recorder is a mock implementation of [audio.Recorder]. Every Write is
// echoed as a chunk event so that tests can assert on chunk ordering; Stop
// emits StopChunks followed by the stopped event.
type Recorder struct {
	mu     sync.Mutex
	events chan audio.RecorderEvent
	closed bool

	// StopChunks are emitted as chunk events when Stop is called.
	StopChunks [][]byte

	// StopError is returned by Stop. When set, no events are emitted.
	StopError error

	// EchoWrites makes every Write emit its bytes as a chunk event.
	EchoWrites bool

	// Writes records the data of every Write call.
	Writes [][]byte

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountAbort records how many times Abort was called.
	CallCountAbort int
}

// NewRecorder returns a recorder with a buffered event channel.
func NewRecorder() *Recorder {
	return &Recorder{events: make(chan audio.RecorderEvent, 256)}
}

// Write implements [audio.Recorder].
func (r *Recorder) Write(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := append([]byte(nil), pcm...)
	r.Writes = append(r.Writes, cp)
	if r.EchoWrites && !r.closed {
		r.events <- audio.RecorderEvent{Kind: audio.RecorderChunk, Data: cp}
	}
	return nil
}

// Stop implements [audio.Recorder].
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountStop++
	if r.StopError != nil {
		return r.StopError
	}
	if r.closed {
		return nil
	}
	for _, c := range r.StopChunks {
		r.events <- audio.RecorderEvent{Kind: audio.RecorderChunk, Data: c}
	}
	r.events <- audio.RecorderEvent{Kind: audio.RecorderStopped}
	r.closed = true
	close(r.events)
	return nil
}

// Abort implements [audio.Recorder].
func (r *Recorder) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountAbort++
	if !r.closed {
		r.closed = true
		close(r.events)
	}
}

// Events implements [audio.Recorder].
func (r *Recorder) Events() <-chan audio.RecorderEvent { return r.events }

// ContentType implements [audio.Recorder].
func (r *Recorder) ContentType() string { return audio.ContentTypeWebM }

// EmitChunk delivers data as a chunk event.
func (r *Recorder) EmitChunk(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.events <- audio.RecorderEvent{Kind: audio.RecorderChunk, Data: data}
	}
}

// Fail delivers an error event.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.events <- audio.RecorderEvent{Kind: audio.RecorderError, Err: err}
	}
}

// WriteCount returns the number of Write calls. Thread-safe.
func (r *Recorder) WriteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Writes)
}

// Counts returns the Stop and Abort call counts. Thread-safe.
func (r *Recorder) Counts() (stops, aborts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.CallCountStop, r.CallCountAbort
}

var _ audio.Recorder = (*Recorder)(nil)

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayError is returned by Play after Block (if any) is released.
	PlayError error

	// Block makes Play wait until Release is called or ctx is cancelled.
	Block bool

	// Started receives every clip as soon as Play is entered, when non-nil.
	Started chan audio.Clip

	// PlayCalls records the clip of every Play call.
	PlayCalls []audio.Clip

	release chan struct{}
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	p.mu.Lock()
	p.PlayCalls = append(p.PlayCalls, clip)
	block := p.Block
	if block && p.release == nil {
		p.release = make(chan struct{})
	}
	release := p.release
	started := p.Started
	err := p.PlayError
	p.mu.Unlock()

	if started != nil {
		started <- clip
	}
	if block {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Release unblocks every Play call currently waiting.
func (p *Player) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.release != nil {
		close(p.release)
		p.release = nil
	}
}

// Calls returns a copy of the recorded clips. Thread-safe.
func (p *Player) Calls() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audio.Clip(nil), p.PlayCalls...)
}

var _ audio.Player = (*Player)(nil)
