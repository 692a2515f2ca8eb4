package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"openai", "whisper"},
	"tts":        {"elevenlabs", "openai"},
	"embeddings": {"openai", "ollama"},
}

// Environment variables consulted by [ApplyEnv].
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvElevenLabsKey = "ELEVENLABS_API_KEY"
	EnvPostgresDSN   = "DUCKDEBUG_POSTGRES_DSN"
	EnvBackendURL    = "DUCKDEBUG_BACKEND_URL"
	EnvLogLevel      = "DUCKDEBUG_LOG_LEVEL"
)

// apiKeyEnv maps provider names to the variable holding their API key.
var apiKeyEnv = map[string]string{
	"openai":     EnvOpenAIKey,
	"elevenlabs": EnvElevenLabsKey,
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. With no arguments ".env" is tried.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
		slog.Debug("environment file loaded", "path", p)
	}
	return nil
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. A missing file is reported with an
// error wrapping [fs.ErrNotExist].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// it. The environment is not consulted, which keeps tests hermetic.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data, func(string) string { return "" })
}

func parse(data []byte, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	ApplyEnv(cfg, getenv)
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills secrets and deployment settings from the environment.
// Provider API keys are only filled when empty; the DSN, backend URL and log
// level variables override the file.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	keys := make(map[string]string, len(apiKeyEnv))
	for name, env := range apiKeyEnv {
		if v := getenv(env); v != "" {
			keys[name] = v
		}
	}
	fill := func(e *ProviderEntry) {
		for i := range e.Fallbacks {
			if e.Fallbacks[i].APIKey == "" {
				e.Fallbacks[i].APIKey = keys[e.Fallbacks[i].Name]
			}
		}
		if e.APIKey == "" {
			e.APIKey = keys[e.Name]
		}
	}
	fill(&cfg.Providers.LLM)
	fill(&cfg.Providers.STT)
	fill(&cfg.Providers.TTS)
	fill(&cfg.Providers.Embeddings)

	if v := getenv(EnvPostgresDSN); v != "" {
		cfg.Store.PostgresDSN = v
	}
	if v := getenv(EnvBackendURL); v != "" {
		cfg.Client.BackendURL = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must not be negative"))
	}

	entries := []struct {
		kind  string
		entry ProviderEntry
	}{
		{"llm", cfg.Providers.LLM},
		{"stt", cfg.Providers.STT},
		{"tts", cfg.Providers.TTS},
		{"embeddings", cfg.Providers.Embeddings},
	}
	for _, e := range entries {
		validateProviderName(e.kind, e.entry.Name)
		if e.entry.Name == "" && len(e.entry.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks set without a primary provider", e.kind))
		}
		for i, fb := range e.entry.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", e.kind, i))
				continue
			}
			if len(fb.Fallbacks) > 0 {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d] must not declare nested fallbacks", e.kind, i))
			}
			validateProviderName(e.kind, fb.Name)
		}
	}
	if len(cfg.Providers.Embeddings.Fallbacks) > 0 {
		slog.Warn("providers.embeddings.fallbacks are ignored; vectors from different models are not comparable")
	}

	if cfg.Store.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("store.embedding_dimensions %d must be positive", cfg.Store.EmbeddingDimensions))
	}
	if cfg.Store.PostgresDSN == "" && cfg.Store.ResetOnStart {
		slog.Warn("store.reset_on_start has no effect on the in-memory store")
	}

	if cfg.RAG.TopK < 0 {
		errs = append(errs, fmt.Errorf("rag.top_k %d must not be negative", cfg.RAG.TopK))
	}
	if t := cfg.RAG.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("rag.temperature %.2f is out of range [0, 2]", *t))
	}
	if cfg.RAG.ChunkSize < 0 || cfg.RAG.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("rag.chunk_size and rag.chunk_overlap must not be negative"))
	} else if cfg.RAG.ChunkSize > 0 && cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap %d must be smaller than rag.chunk_size %d", cfg.RAG.ChunkOverlap, cfg.RAG.ChunkSize))
	}

	if cfg.Speech.TTL < 0 {
		errs = append(errs, fmt.Errorf("speech.ttl must not be negative"))
	}

	if cfg.Client.Recorder != "" && !cfg.Client.Recorder.IsValid() {
		errs = append(errs, fmt.Errorf("client.recorder %q is invalid; valid values: webm, wav", cfg.Client.Recorder))
	}
	if cfg.Client.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("client.silence_threshold must not be negative"))
	}
	if cfg.Client.SilenceEpsilon < 0 || cfg.Client.SilenceEpsilon > 128 {
		errs = append(errs, fmt.Errorf("client.silence_epsilon %d is out of range [0, 128]", cfg.Client.SilenceEpsilon))
	}
	if u := cfg.Client.BackendURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		errs = append(errs, fmt.Errorf("client.backend_url %q must start with http:// or https://", u))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
