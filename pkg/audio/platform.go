// Package audio defines the interfaces and types for local audio input and
// output within Duck Debug.
//
// The primary abstractions are:
//
//   - [Device] opens the microphone and returns a [Stream] of PCM frames.
//   - [Recorder] encodes those frames into a container (WebM/Opus, WAV) and
//     reports progress as [RecorderEvent] messages.
//   - [Player] plays an encoded [Clip] to the speakers and blocks until done.
//
// Implementations live in adapter packages (e.g. audio/ffmpeg). The
// interfaces are intentionally narrow so the capture session and the playback
// controller stay decoupled from process or device details.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned (wrapped) by [Device.Open] when the
	// operating system refuses access to the microphone.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrDevice is returned (wrapped) by [Device.Open] when no usable input
	// device exists or the capture backend cannot be started.
	ErrDevice = errors.New("audio: device unavailable")
)

// Stream is an open microphone stream. Frames are delivered on the channel
// returned by [Stream.Frames] until the stream fails or is closed; the channel
// is then closed and [Stream.Err] reports the failure, if any.
//
// Implementations must be safe for concurrent use.
type Stream interface {
	// Frames returns the channel that delivers captured PCM frames.
	Frames() <-chan Frame

	// Format reports the PCM layout of every frame on this stream.
	Format() Format

	// Err returns the error that terminated the stream, or nil if the stream
	// is still running or was closed normally.
	Err() error

	// Close releases the underlying device (the "tracks"). It is safe to call
	// Close more than once; subsequent calls are no-ops and return nil.
	Close() error
}

// Device is the entry point for microphone access.
type Device interface {
	// Open acquires the microphone. The returned error wraps
	// [ErrPermissionDenied] or [ErrDevice] so callers can distinguish the two.
	// ctx governs the acquisition only; the stream lives until closed.
	Open(ctx context.Context) (Stream, error)
}

// RecorderEventKind classifies a [RecorderEvent].
type RecorderEventKind int

const (
	// RecorderChunk carries a piece of encoded output in Data.
	RecorderChunk RecorderEventKind = iota

	// RecorderStopped is emitted exactly once after [Recorder.Stop] once every
	// chunk has been delivered.
	RecorderStopped

	// RecorderError carries a fatal encoder failure in Err.
	RecorderError
)

// String returns the human-readable name of the event kind.
func (k RecorderEventKind) String() string {
	switch k {
	case RecorderChunk:
		return "CHUNK"
	case RecorderStopped:
		return "STOPPED"
	case RecorderError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// RecorderEvent is a message emitted by a [Recorder] on its event channel.
type RecorderEvent struct {
	Kind RecorderEventKind
	Data []byte
	Err  error
}

// Recorder encodes PCM written to it into a single container. Encoded output
// is reported as [RecorderChunk] events in production order, followed by one
// [RecorderStopped] event after Stop. The event channel is closed after the
// final event.
type Recorder interface {
	// Write feeds raw PCM to the encoder.
	Write(pcm []byte) error

	// Stop flushes the encoder. Remaining chunks and the stopped event are
	// delivered asynchronously on Events.
	Stop() error

	// Abort terminates the encoder without flushing. No stopped event follows.
	Abort()

	// Events returns the recorder's event channel.
	Events() <-chan RecorderEvent

	// ContentType is the MIME type of the concatenated output.
	ContentType() string
}

// RecorderFactory creates a recorder for PCM in the given format.
type RecorderFactory func(f Format) (Recorder, error)

// Player plays encoded audio to the local output device.
type Player interface {
	// Play blocks until clip has finished playing, ctx is cancelled, or the
	// output fails. Cancellation stops the sound immediately and returns
	// ctx.Err().
	Play(ctx context.Context, clip Clip) error
}
