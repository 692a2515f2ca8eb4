// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or OpenAI)
// and turns a complete answer into one encoded audio file. The backend stores
// the file and hands the client a URL, so providers return whole clips rather
// than raw PCM streams.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: empty text")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice. An empty voice.ID selects
	// the provider's configured default voice.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (*Speech, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
