// Package app wires the duckd subsystems into a running backend.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API, and Shutdown tears everything down in
// order.
//
// For testing, inject a code store via [WithStore]. When it is not provided,
// New opens PostgreSQL if a DSN is configured and falls back to an in-memory
// store otherwise.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/duckdebug/internal/config"
	"github.com/MrWong99/duckdebug/internal/health"
	"github.com/MrWong99/duckdebug/internal/ingest"
	"github.com/MrWong99/duckdebug/internal/observe"
	"github.com/MrWong99/duckdebug/internal/rag"
	"github.com/MrWong99/duckdebug/internal/server"
	"github.com/MrWong99/duckdebug/internal/speech"
	"github.com/MrWong99/duckdebug/internal/transcript"
	"github.com/MrWong99/duckdebug/pkg/codestore"
	"github.com/MrWong99/duckdebug/pkg/codestore/memstore"
	"github.com/MrWong99/duckdebug/pkg/codestore/postgres"
	"github.com/MrWong99/duckdebug/pkg/provider/embeddings"
	"github.com/MrWong99/duckdebug/pkg/provider/llm"
	"github.com/MrWong99/duckdebug/pkg/provider/stt"
	"github.com/MrWong99/duckdebug/pkg/provider/tts"
)

// sweepInterval is how often expired speech clips are removed.
const sweepInterval = time.Minute

// Providers holds one interface value per provider slot. Populated by
// [BuildProviders] from the config registry.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes of the backend.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	metricsH  http.Handler

	store  codestore.Store
	speech *speech.Store
	ingest *ingest.Service
	rag    *rag.Service
	server *server.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStore injects a code store instead of creating one from config.
func WithStore(s codestore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the instrument set shared by all subsystems. Nil uses the
// global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler exposes h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsH = h }
}

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous: the store is opened and migrated, optionally reset, and the
// HTTP routes are built.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.checkProviders(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initServices(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init services: %w", err)
	}
	if err := a.initServer(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init server: %w", err)
	}
	return a, nil
}

func (a *App) checkProviders() error {
	var errs []error
	if a.providers.LLM == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if a.providers.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if a.providers.TTS == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	if a.providers.Embeddings == nil {
		errs = append(errs, errors.New("embeddings provider is required"))
	}
	return errors.Join(errs...)
}

// initStore opens the configured code store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		dims := a.cfg.Store.EmbeddingDimensions
		if dsn := a.cfg.Store.PostgresDSN; dsn != "" {
			pg, err := postgres.NewStore(ctx, dsn, dims)
			if err != nil {
				return err
			}
			a.store = pg
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
			slog.Info("code store opened", "backend", "postgres", "dims", dims)
		} else {
			a.store = memstore.New(dims)
			slog.Info("code store opened", "backend", "memory", "dims", dims)
		}
	}

	if a.cfg.Store.ResetOnStart {
		if err := a.store.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		slog.Info("code store reset")
	}
	return nil
}

func (a *App) initServices() error {
	var err error
	a.ingest, err = ingest.New(a.store, a.providers.Embeddings,
		ingest.WithChunking(a.cfg.RAG.ChunkSize, a.cfg.RAG.ChunkOverlap),
		ingest.WithConcurrency(a.cfg.RAG.EmbedConcurrency),
		ingest.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}

	ragOpts := []rag.Option{
		rag.WithTopK(a.cfg.RAG.TopK),
		rag.WithMaxTokens(a.cfg.RAG.MaxTokens),
		rag.WithMetrics(a.metrics),
	}
	if t := a.cfg.RAG.Temperature; t != nil {
		ragOpts = append(ragOpts, rag.WithTemperature(*t))
	}
	a.rag, err = rag.New(a.store, a.providers.Embeddings, a.providers.LLM, ragOpts...)
	if err != nil {
		return err
	}

	a.speech, err = speech.New(a.cfg.Speech.Dir, speech.WithTTL(a.cfg.Speech.TTL))
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.speech.Close)
	return nil
}

func (a *App) initServer() error {
	checks := []health.Checker{
		health.Present("providers", map[string]any{
			"llm":        a.providers.LLM,
			"stt":        a.providers.STT,
			"tts":        a.providers.TTS,
			"embeddings": a.providers.Embeddings,
		}),
	}
	if p, ok := a.store.(health.Pinger); ok {
		checks = append(checks, health.Ping("database", p))
	}

	cfg := server.Config{
		RAG:            a.rag,
		Ingest:         a.ingest,
		STT:            a.providers.STT,
		TTS:            a.providers.TTS,
		Speech:         a.speech,
		Voice:          tts.VoiceProfile{ID: a.cfg.Speech.Voice},
		Language:       a.cfg.Providers.STT.OptString("language"),
		Health:         health.New(checks...),
		MetricsHandler: a.metricsH,
		Metrics:        a.metrics,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
	}
	if !a.cfg.RAG.DisableIdentifierCorrection {
		cfg.Sources = a.store
		cfg.Corrector = transcript.NewCorrector()
	}

	var err error
	a.server, err = server.New(cfg)
	return err
}

// Handler returns the HTTP handler of the backend.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Run serves the HTTP API on the configured address and blocks until ctx is
// cancelled. In-flight requests are drained before it returns.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.speech.Run(ctx, sweepInterval)
	}()
	defer wg.Wait()

	slog.Info("app running", "addr", ln.Addr().String())
	return a.server.Serve(ctx, ln, a.cfg.Server.ShutdownTimeout)
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New opened before failing.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
