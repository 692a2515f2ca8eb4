package audio

import "time"

// Content types for encoded clips produced by recorders and synthesis backends.
const (
	ContentTypeWebM = "audio/webm"
	ContentTypeWAV  = "audio/wav"
	ContentTypeMPEG = "audio/mpeg"
)

// Frame is a single block of raw PCM read from a capture [Stream]. Frames are
// the unit the capture session feeds to both the recorder and the energy
// analyser.
type Frame struct {
	// Data is 16-bit signed little-endian PCM.
	Data []byte

	// SampleRate in Hz (16000 for the default microphone device).
	SampleRate int

	// Channels: 1 for mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Clip is a finished, encoded recording or a synthesized answer. Clips are
// immutable once produced; the bytes are never modified after the clip leaves
// the component that built it.
type Clip struct {
	Data        []byte
	ContentType string
}

// Empty reports whether the clip carries no audio bytes.
func (c Clip) Empty() bool { return len(c.Data) == 0 }
