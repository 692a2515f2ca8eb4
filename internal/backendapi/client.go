// Package backendapi is the HTTP client for the duckd backend.
//
// Every call carries its own timeout, runs inside an OpenTelemetry span with
// W3C trace context propagated to the server, and is guarded by a shared
// circuit breaker so a dead backend fails fast instead of stalling the UI.
package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/duckdebug/internal/observe"
	"github.com/MrWong99/duckdebug/internal/pipeline"
	"github.com/MrWong99/duckdebug/internal/resilience"
	"github.com/MrWong99/duckdebug/pkg/api"
	"github.com/MrWong99/duckdebug/pkg/audio"
)

// maxResponseBytes caps every response body read by the client.
const maxResponseBytes = 32 << 20

// Timeouts bounds each backend call.
type Timeouts struct {
	Transcribe time.Duration
	Retrieve   time.Duration
	Query      time.Duration
	Synthesize time.Duration
	Fetch      time.Duration
	Upload     time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Transcribe: 60 * time.Second,
		Retrieve:   20 * time.Second,
		Query:      90 * time.Second,
		Synthesize: 60 * time.Second,
		Fetch:      30 * time.Second,
		Upload:     5 * time.Minute,
	}
}

// merge fills zero fields of t from d.
func (t Timeouts) merge(d Timeouts) Timeouts {
	pick := func(v, def time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return def
	}
	return Timeouts{
		Transcribe: pick(t.Transcribe, d.Transcribe),
		Retrieve:   pick(t.Retrieve, d.Retrieve),
		Query:      pick(t.Query, d.Query),
		Synthesize: pick(t.Synthesize, d.Synthesize),
		Fetch:      pick(t.Fetch, d.Fetch),
		Upload:     pick(t.Upload, d.Upload),
	}
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
	// CorrelationID is the backend's trace ID for the failed request, used
	// to find the matching duckd log lines.
	CorrelationID string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Message)
}

// UserMessage returns the server's own error text, or the status text when
// the body carried none.
func (e *StatusError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.StatusCode)
}

// TranscriptionError is the error text duckd reported alongside a
// successful status and no transcription.
type TranscriptionError struct {
	Message string
}

func (e *TranscriptionError) Error() string {
	return "backendapi: transcribe: " + e.Message
}

// UserMessage returns the server's error text.
func (e *TranscriptionError) UserMessage() string { return e.Message }

// Option is a functional option for [New].
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeouts overrides per-call timeouts. Zero fields keep their defaults.
func WithTimeouts(t Timeouts) Option {
	return func(c *Client) { c.timeouts = t.merge(DefaultTimeouts()) }
}

// WithCircuitBreaker overrides the breaker configuration. A nil IsFailure
// keeps the default of ignoring 4xx responses.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) {
		if cfg.IsFailure == nil {
			cfg.IsFailure = IsBackendFailure
		}
		c.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

// IsBackendFailure reports whether err says something about the backend's
// health. Client errors (HTTP 4xx) such as "no documents loaded" do not.
func IsBackendFailure(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

// Client talks to the backend API. It is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	timeouts Timeouts
	breaker  *resilience.CircuitBreaker
	prop     propagation.TraceContext
}

var _ pipeline.Backend = (*Client)(nil)

// New creates a client for the backend at baseURL (e.g. "http://localhost:8000").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("backendapi: base URL must not be empty")
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		timeouts: DefaultTimeouts(),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:      "backend",
			IsFailure: IsBackendFailure,
		}),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns the normalised backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Transcribe uploads clip and returns the transcription. A body that carries
// only an error text yields a [*TranscriptionError]. An empty transcription
// is otherwise returned as is; deciding whether that is an error is up to the
// caller.
func (c *Client) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, api.FieldAudio, uploadName(clip.ContentType)))
	contentType := clip.ContentType
	if contentType == "" {
		contentType = audio.ContentTypeWebM
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("backendapi: create form part: %w", err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return "", fmt.Errorf("backendapi: write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("backendapi: close multipart writer: %w", err)
	}

	var out api.TranscribeResponse
	err = c.do(ctx, "transcribe", c.timeouts.Transcribe, http.MethodPost, c.baseURL+api.PathTranscribe,
		mw.FormDataContentType(), body.Bytes(), func(r io.Reader) error {
			return json.NewDecoder(r).Decode(&out)
		})
	if err != nil {
		return "", err
	}
	if out.Transcription == "" && out.Error != "" {
		return "", &TranscriptionError{Message: out.Error}
	}
	return out.Transcription, nil
}

// uploadName picks the multipart file name for a clip content type.
func uploadName(contentType string) string {
	switch contentType {
	case audio.ContentTypeWAV:
		return "recording.wav"
	default:
		return api.AudioUploadName
	}
}

// RetrieveContext returns the indexed code chunks most relevant to question,
// in relevance order.
func (c *Client) RetrieveContext(ctx context.Context, question string) ([]api.Match, error) {
	payload, err := json.Marshal(api.QuestionRequest{Question: question})
	if err != nil {
		return nil, fmt.Errorf("backendapi: encode request: %w", err)
	}
	var out []api.Match
	err = c.do(ctx, "retrieve", c.timeouts.Retrieve, http.MethodPost, c.baseURL+api.PathRetrievedCode,
		"application/json", payload, func(r io.Reader) error {
			return json.NewDecoder(r).Decode(&out)
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Query asks the answer model about question and returns the plain-text answer.
func (c *Client) Query(ctx context.Context, question string) (string, error) {
	payload, err := json.Marshal(api.QuestionRequest{Question: question})
	if err != nil {
		return "", fmt.Errorf("backendapi: encode request: %w", err)
	}
	var answer string
	err = c.do(ctx, "query", c.timeouts.Query, http.MethodPost, c.baseURL+api.PathQuery,
		"application/json", payload, func(r io.Reader) error {
			b, err := io.ReadAll(r)
			answer = string(b)
			return err
		})
	if err != nil {
		return "", err
	}
	return answer, nil
}

// Synthesize converts text to speech and returns the relative audio URL.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(api.TTSRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("backendapi: encode request: %w", err)
	}
	var out api.TTSResponse
	err = c.do(ctx, "synthesize", c.timeouts.Synthesize, http.MethodPost, c.baseURL+api.PathSynthesize,
		"application/json", payload, func(r io.Reader) error {
			return json.NewDecoder(r).Decode(&out)
		})
	if err != nil {
		return "", err
	}
	return out.AudioURL, nil
}

// FetchAudio downloads a synthesized clip. Relative URLs such as
// "/audio/x.mp3" are resolved under the API root; absolute URLs are used as is.
func (c *Client) FetchAudio(ctx context.Context, audioURL string) (audio.Clip, error) {
	if audioURL == "" {
		return audio.Clip{}, errors.New("backendapi: empty audio URL")
	}
	target := audioURL
	if !strings.HasPrefix(audioURL, "http://") && !strings.HasPrefix(audioURL, "https://") {
		target = c.baseURL + "/api" + audioURL
	}
	var clip audio.Clip
	err := c.doWithResponse(ctx, "fetch", c.timeouts.Fetch, http.MethodGet, target, "", nil, func(resp *http.Response) error {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		ct := resp.Header.Get("Content-Type")
		if ct == "" {
			ct = audio.ContentTypeMPEG
		}
		clip = audio.Clip{Data: b, ContentType: ct}
		return nil
	})
	if err != nil {
		return audio.Clip{}, err
	}
	return clip, nil
}

// SourceFile is a file offered for ingestion.
type SourceFile struct {
	// Name is the path relative to the upload root, with forward slashes.
	Name string
	Data []byte
}

// UploadSources sends files to the ingestion endpoint and returns the
// server's summary message.
func (c *Client) UploadSources(ctx context.Context, files []SourceFile) (string, error) {
	if len(files) == 0 {
		return "", errors.New("backendapi: no files to upload")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		fw, err := mw.CreateFormFile(api.FieldFiles, f.Name)
		if err != nil {
			return "", fmt.Errorf("backendapi: create form file: %w", err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return "", fmt.Errorf("backendapi: write %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("backendapi: close multipart writer: %w", err)
	}

	var out api.MessageResponse
	err := c.do(ctx, "upload", c.timeouts.Upload, http.MethodPost, c.baseURL+api.PathScrapePython,
		mw.FormDataContentType(), body.Bytes(), func(r io.Reader) error {
			return json.NewDecoder(r).Decode(&out)
		})
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// Refresh asks the backend to re-embed every stored file.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	var out api.MessageResponse
	err := c.do(ctx, "refresh", c.timeouts.Upload, http.MethodPost, c.baseURL+api.PathRefresh, "", nil,
		func(r io.Reader) error {
			return json.NewDecoder(r).Decode(&out)
		})
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// Voices lists the synthesis voices offered by the backend.
func (c *Client) Voices(ctx context.Context) ([]api.Voice, error) {
	var out api.VoicesResponse
	err := c.do(ctx, "voices", c.timeouts.Retrieve, http.MethodGet, c.baseURL+api.PathVoices, "", nil,
		func(r io.Reader) error {
			return json.NewDecoder(r).Decode(&out)
		})
	if err != nil {
		return nil, err
	}
	return out.Voices, nil
}

// do performs a request and hands the successful body to decode.
func (c *Client) do(ctx context.Context, op string, timeout time.Duration, method, url, contentType string, body []byte, decode func(io.Reader) error) error {
	return c.doWithResponse(ctx, op, timeout, method, url, contentType, body, func(resp *http.Response) error {
		return decode(io.LimitReader(resp.Body, maxResponseBytes))
	})
}

func (c *Client) doWithResponse(ctx context.Context, op string, timeout time.Duration, method, url, contentType string, body []byte, handle func(*http.Response) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "backend."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", url)),
	)
	defer span.End()

	err := c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rdr)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		c.prop.Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{
				StatusCode:    resp.StatusCode,
				Message:       errorMessage(resp.Body),
				CorrelationID: resp.Header.Get(api.CorrelationIDKey),
			}
		}
		if err := handle(resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		observe.Fail(span, err)
		log := observe.Logger(ctx).With("op", op)
		var se *StatusError
		if errors.As(err, &se) && se.CorrelationID != "" {
			log = log.With("backend_correlation_id", se.CorrelationID)
		}
		log.Debug("backend call failed", "err", err)
		return fmt.Errorf("backendapi: %s: %w", op, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a failure body, falling back
// to the raw text.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var e api.ErrorResponse
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(b))
}
