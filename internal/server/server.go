// Package server exposes the duckd HTTP API consumed by the duckdebug client.
//
// Routes:
//
//	POST /api/audio/process         multipart "audio" → {"transcription"}
//	POST /api/audio/tts             {"text"} → {"audio_url"}
//	GET  /api/audio/{filename}      synthesized clip
//	POST /api/rag/query             {"question"} → text/plain answer
//	POST /api/rag/retrieved-code    {"question"} → top matches
//	POST /api/code/scrape-python    multipart "files" → {"message"}
//	POST /api/code/refresh          → {"message"}
//	GET  /api/voices                → {"voices"}
//	GET  /healthz, /readyz, /metrics
//
// Failures are reported as {"error": "..."} with a 4xx or 5xx status.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/duckdebug/internal/health"
	"github.com/MrWong99/duckdebug/internal/ingest"
	"github.com/MrWong99/duckdebug/internal/observe"
	"github.com/MrWong99/duckdebug/internal/speech"
	"github.com/MrWong99/duckdebug/internal/transcript"
	"github.com/MrWong99/duckdebug/pkg/api"
	"github.com/MrWong99/duckdebug/pkg/codestore"
	"github.com/MrWong99/duckdebug/pkg/provider/stt"
	"github.com/MrWong99/duckdebug/pkg/provider/tts"
)

// DefaultMaxUploadBytes caps multipart bodies when Config leaves it zero.
const DefaultMaxUploadBytes = 32 << 20

// Answerer answers questions about indexed code. *rag.Service satisfies it.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
	Retrieve(ctx context.Context, question string) ([]codestore.Result, error)
}

// Indexer ingests uploaded sources. *ingest.Service satisfies it.
type Indexer interface {
	Ingest(ctx context.Context, uploads []ingest.Upload) (ingest.Summary, error)
	Reindex(ctx context.Context) (ingest.Summary, error)
}

// Sources lists stored files for identifier correction. codestore.Store
// satisfies it.
type Sources interface {
	Files(ctx context.Context) ([]codestore.File, error)
}

// Config holds the collaborators of a [Server].
type Config struct {
	RAG    Answerer
	Ingest Indexer
	STT    stt.Provider
	TTS    tts.Provider
	Speech *speech.Store

	// Voice is passed to every synthesis call. A zero value selects the
	// provider default.
	Voice tts.VoiceProfile

	// Language is the STT language hint. Empty lets the provider detect it.
	Language string

	// Sources and Corrector enable identifier correction of transcriptions.
	// Either being nil disables it.
	Sources   Sources
	Corrector *transcript.Corrector

	// Health serves /healthz and /readyz. Nil registers probes without
	// readiness checks.
	Health *health.Handler

	// MetricsHandler serves /metrics when non-nil.
	MetricsHandler http.Handler

	// Metrics receives HTTP request durations. Nil uses the global default.
	Metrics *observe.Metrics

	MaxUploadBytes int64
}

// Server implements the HTTP API.
type Server struct {
	cfg     Config
	handler http.Handler
}

// New validates cfg and builds the route table.
func New(cfg Config) (*Server, error) {
	var errs []error
	if cfg.RAG == nil {
		errs = append(errs, errors.New("rag service is required"))
	}
	if cfg.Ingest == nil {
		errs = append(errs, errors.New("ingest service is required"))
	}
	if cfg.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if cfg.TTS == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	if cfg.Speech == nil {
		errs = append(errs, errors.New("speech store is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}

	s := &Server{cfg: cfg}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+api.PathTranscribe, s.handleTranscribe)
	mux.HandleFunc("POST "+api.PathSynthesize, s.handleSynthesize)
	mux.HandleFunc("GET "+api.PathAudioPrefix+"{filename}", s.handleAudio)
	mux.HandleFunc("POST "+api.PathQuery, s.handleQuery)
	mux.HandleFunc("POST "+api.PathRetrievedCode, s.handleRetrievedCode)
	mux.HandleFunc("POST "+api.PathScrapePython, s.handleScrapePython)
	mux.HandleFunc("POST "+api.PathRefresh, s.handleRefresh)
	mux.HandleFunc("GET "+api.PathVoices, s.handleVoices)
	cfg.Health.Register(mux)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}
	s.handler = observe.Middleware(cfg.Metrics)(mux)
	return s, nil
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests for at most shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is [Server.ListenAndServe] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// identifiers returns the names used to correct and bias transcriptions.
func (s *Server) identifiers(ctx context.Context) []string {
	if s.cfg.Sources == nil {
		return nil
	}
	files, err := s.cfg.Sources.Files(ctx)
	if err != nil {
		observe.Logger(ctx).Warn("list sources for identifier correction", "err", err)
		return nil
	}
	return codestore.Identifiers(files)
}

// sttPrompt biases recognition towards known identifiers. Whisper only reads
// the tail of long prompts, so the list is capped.
func sttPrompt(ids []string) string {
	const maxPromptIDs = 50
	if len(ids) > maxPromptIDs {
		ids = ids[:maxPromptIDs]
	}
	return strings.Join(ids, ", ")
}
