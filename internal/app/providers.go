package app

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/duckdebug/internal/config"
	"github.com/MrWong99/duckdebug/internal/observe"
	"github.com/MrWong99/duckdebug/internal/resilience"
)

// BuildProviders instantiates every provider named in cfg through reg. When
// an entry lists fallbacks, the primary and its fallbacks are wrapped in a
// circuit-breaking failover group.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	ps := &Providers{}
	fb := resilience.FallbackConfig{Metrics: m}

	llmP, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	if fallbacks := cfg.Providers.LLM.Fallbacks; len(fallbacks) > 0 {
		group := resilience.NewLLMFallback(llmP, cfg.Providers.LLM.Name, fb)
		for i, e := range fallbacks {
			p, err := reg.CreateLLM(e)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %d %q: %w", i, e.Name, err)
			}
			group.AddFallback(fallbackName(e, i), p)
		}
		ps.LLM = group
	} else {
		ps.LLM = llmP
	}
	logCreated("llm", cfg.Providers.LLM)

	sttP, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	if fallbacks := cfg.Providers.STT.Fallbacks; len(fallbacks) > 0 {
		group := resilience.NewSTTFallback(sttP, cfg.Providers.STT.Name, fb)
		for i, e := range fallbacks {
			p, err := reg.CreateSTT(e)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %d %q: %w", i, e.Name, err)
			}
			group.AddFallback(fallbackName(e, i), p)
		}
		ps.STT = group
	} else {
		ps.STT = sttP
	}
	logCreated("stt", cfg.Providers.STT)

	ttsP, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	if fallbacks := cfg.Providers.TTS.Fallbacks; len(fallbacks) > 0 {
		group := resilience.NewTTSFallback(ttsP, cfg.Providers.TTS.Name, fb)
		for i, e := range fallbacks {
			p, err := reg.CreateTTS(e)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %d %q: %w", i, e.Name, err)
			}
			group.AddFallback(fallbackName(e, i), p)
		}
		ps.TTS = group
	} else {
		ps.TTS = ttsP
	}
	logCreated("tts", cfg.Providers.TTS)

	ps.Embeddings, err = reg.CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("create embeddings provider %q: %w", cfg.Providers.Embeddings.Name, err)
	}
	if len(cfg.Providers.Embeddings.Fallbacks) > 0 {
		slog.Warn("embeddings fallbacks ignored; vectors from different models are not comparable")
	}
	logCreated("embeddings", cfg.Providers.Embeddings)

	return ps, nil
}

// fallbackName keeps breaker labels unique when the same provider appears
// twice with different models.
func fallbackName(e config.ProviderEntry, i int) string {
	if e.Model == "" {
		return fmt.Sprintf("%s#%d", e.Name, i+1)
	}
	return fmt.Sprintf("%s/%s#%d", e.Name, e.Model, i+1)
}

func logCreated(kind string, e config.ProviderEntry) {
	slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model, "fallbacks", len(e.Fallbacks))
}
