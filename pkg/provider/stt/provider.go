// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., OpenAI whisper-1 or a
// local whisper.cpp server) and turns one finished recording into text. The
// client records a whole question before sending it, so the interface is batch
// shaped: one Audio in, one Transcription out.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when Transcribe is called without audio data.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Audio is an encoded recording ready for upload.
type Audio struct {
	// Data holds the encoded file bytes (WebM/Opus, WAV, MP3, ...).
	Data []byte

	// Filename is the name reported to the provider. Some providers infer the
	// container from its extension, so it should match ContentType.
	Filename string

	// ContentType is the MIME type of Data (e.g., "audio/webm").
	ContentType string
}

// Options carries per-request recognition hints.
type Options struct {
	// Language is an ISO-639-1 code (e.g., "en"). Empty lets the provider
	// auto-detect.
	Language string

	// Prompt biases recognition towards the given vocabulary, such as
	// identifiers from the ingested code base.
	Prompt string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe uploads audio and returns the recognised text. An empty
	// Transcription.Text is a valid result for silent recordings.
	Transcribe(ctx context.Context, audio Audio, opts Options) (*Transcription, error)
}

// Validate checks that a carries data and fills in a default filename.
func (a *Audio) Validate() error {
	if len(a.Data) == 0 {
		return ErrEmptyAudio
	}
	if a.Filename == "" {
		a.Filename = "recording.webm"
	}
	if a.ContentType == "" {
		a.ContentType = "application/octet-stream"
	}
	return nil
}
