package resilience

import (
	"context"

	"github.com/MrWong99/duckdebug/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs the first healthy provider. Empty audio is rejected before
// any provider is called so that it never counts against a breaker.
func (f *STTFallback) Transcribe(ctx context.Context, audio stt.Audio, opts stt.Options) (*stt.Transcription, error) {
	if err := audio.Validate(); err != nil {
		return nil, err
	}
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p stt.Provider) (*stt.Transcription, error) {
		return p.Transcribe(ctx, audio, opts)
	})
}
