// Package openai provides a TTS provider backed by the OpenAI speech endpoint.
package openai

import (
	"context"
	"fmt"
	"io"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/duckdebug/pkg/provider/tts"
)

const (
	// DefaultModel is used when New receives an empty model.
	DefaultModel = "tts-1"
	// DefaultVoice is used when Synthesize receives an empty voice ID.
	DefaultVoice = "alloy"
)

// voices is the fixed catalogue of the speech endpoint.
var voices = []string{"alloy", "ash", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer"}

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithVoice sets the default voice.
func WithVoice(v string) Option {
	return func(p *Provider) { p.voice = v }
}

// WithFormat sets the response format ("mp3", "wav", "opus", ...). Defaults to mp3.
func WithFormat(f string) Option {
	return func(p *Provider) { p.format = f }
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client  oai.Client
	model   string
	voice   string
	format  string
	baseURL string
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	p := &Provider{model: model, voice: DefaultVoice, format: "mp3"}
	for _, o := range opts {
		o(p)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("openai tts: %w", tts.ErrEmptyText)
	}
	v := voice.ID
	if v == "" {
		v = p.voice
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(v),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(p.format),
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = tts.ContentTypeFor(p.format)
	}
	return &tts.Speech{Audio: audio, ContentType: ct}, nil
}

// ListVoices implements tts.Provider. The catalogue is static.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	out := make([]tts.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		out = append(out, tts.VoiceProfile{ID: v, Name: v, Provider: "openai"})
	}
	return out, nil
}
