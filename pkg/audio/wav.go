package audio

import (
	"encoding/binary"
	"errors"
	"sync"
)

// ErrRecorderClosed is returned by [WAVRecorder.Write] and [WAVRecorder.Stop]
// after the recorder was stopped or aborted.
var ErrRecorderClosed = errors.New("audio: recorder closed")

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func EncodeWAV(pcm []byte, f Format) []byte {
	const bps = 16
	byteRate := f.SampleRate * f.Channels * bps / 8
	blockAlign := f.Channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// WAVRecorder is a pure-Go [Recorder] that buffers PCM in memory and emits a
// single WAV chunk on Stop. Input is converted to the target format first.
type WAVRecorder struct {
	mu     sync.Mutex
	in     Format
	conv   FormatConverter
	pcm    []byte
	events chan RecorderEvent
	closed bool
}

var _ Recorder = (*WAVRecorder)(nil)

// NewWAVRecorder returns a recorder for PCM in format in. When target has a
// non-zero sample rate the audio is resampled to it and downmixed to mono.
func NewWAVRecorder(in, target Format) *WAVRecorder {
	if target.SampleRate == 0 {
		target = in
	}
	return &WAVRecorder{
		in:     in,
		conv:   FormatConverter{Target: target},
		events: make(chan RecorderEvent, 2),
	}
}

// WAVRecorderFactory returns a [RecorderFactory] producing WAV recorders that
// resample to targetRate (0 keeps the input rate).
func WAVRecorderFactory(targetRate int) RecorderFactory {
	return func(f Format) (Recorder, error) {
		target := Format{}
		if targetRate > 0 {
			target = Format{SampleRate: targetRate, Channels: 1}
		}
		return NewWAVRecorder(f, target), nil
	}
}

// Write implements [Recorder].
func (r *WAVRecorder) Write(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	out := r.conv.Convert(Frame{Data: pcm, SampleRate: r.in.SampleRate, Channels: r.in.Channels})
	r.pcm = append(r.pcm, out.Data...)
	return nil
}

// Stop implements [Recorder]. The WAV chunk and the stopped event are queued
// before Stop returns.
func (r *WAVRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	r.closed = true
	r.events <- RecorderEvent{Kind: RecorderChunk, Data: EncodeWAV(r.pcm, r.conv.Target)}
	r.events <- RecorderEvent{Kind: RecorderStopped}
	close(r.events)
	r.pcm = nil
	return nil
}

// Abort implements [Recorder].
func (r *WAVRecorder) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.pcm = nil
	close(r.events)
}

// Events implements [Recorder].
func (r *WAVRecorder) Events() <-chan RecorderEvent { return r.events }

// ContentType implements [Recorder].
func (r *WAVRecorder) ContentType() string { return ContentTypeWAV }
