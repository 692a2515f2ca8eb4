// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Result: &stt.Transcription{Text: "my loop never ends"}}
//	tr, _ := p.Transcribe(ctx, audio, stt.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/duckdebug/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Audio is a copy of the audio passed to Transcribe.
	Audio stt.Audio
	// Opts is the Options value passed to Transcribe.
	Opts stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe. If nil, an empty Transcription is
	// returned.
	Result *stt.Transcription

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(_ context.Context, audio stt.Audio, opts stt.Options) (*stt.Transcription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	audio.Data = append([]byte(nil), audio.Data...)
	p.Calls = append(p.Calls, TranscribeCall{Audio: audio, Opts: opts})
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result == nil {
		return &stt.Transcription{}, nil
	}
	r := *p.Result
	return &r, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
