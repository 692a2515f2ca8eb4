package backendapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/duckdebug/internal/backendapi"
	"github.com/MrWong99/duckdebug/internal/resilience"
	"github.com/MrWong99/duckdebug/pkg/api"
	"github.com/MrWong99/duckdebug/pkg/audio"
)

func newClient(t *testing.T, h http.Handler, opts ...backendapi.Option) *backendapi.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := backendapi.New(srv.URL+"/", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_EmptyBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := backendapi.New(""); err == nil {
		t.Fatal("want error for empty base URL")
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+api.PathTranscribe, func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile(api.FieldAudio)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "recording.webm" {
			t.Errorf("want filename recording.webm, got %q", hdr.Filename)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != audio.ContentTypeWebM {
			t.Errorf("want content type %q, got %q", audio.ContentTypeWebM, ct)
		}
		if string(data) != "opus-bytes" {
			t.Errorf("want opus-bytes, got %q", data)
		}
		_ = json.NewEncoder(w).Encode(api.TranscribeResponse{Transcription: "why does my loop hang"})
	})
	c := newClient(t, mux)

	got, err := c.Transcribe(context.Background(), audio.Clip{Data: []byte("opus-bytes"), ContentType: audio.ContentTypeWebM})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "why does my loop hang" {
		t.Errorf("want transcript, got %q", got)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(api.CorrelationIDKey, "4bf92f3577b34da6a3ce929d0e0e4736")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(api.TranscribeResponse{Error: "model overloaded"})
	}))

	_, err := c.Transcribe(context.Background(), audio.Clip{Data: []byte{1}})
	var se *backendapi.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("want StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusInternalServerError || se.Message != "model overloaded" {
		t.Errorf("want 500 model overloaded, got %d %q", se.StatusCode, se.Message)
	}
	if se.CorrelationID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("want backend correlation id, got %q", se.CorrelationID)
	}
}

func TestTranscribe_ErrorInSuccessBody(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.TranscribeResponse{Error: "audio too short"})
	}))

	_, err := c.Transcribe(context.Background(), audio.Clip{Data: []byte{1}})
	var te *backendapi.TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("want TranscriptionError, got %v", err)
	}
	if te.UserMessage() != "audio too short" {
		t.Errorf("want server error text, got %q", te.UserMessage())
	}
	var se *backendapi.StatusError
	if errors.As(err, &se) {
		t.Errorf("want no StatusError for a 200 response, got %v", se)
	}
}

func TestRetrieveContext(t *testing.T) {
	t.Parallel()
	want := []api.Match{
		{Content: "def a(): pass", Metadata: api.MatchMetadata{FileName: "x.py", FunctionName: "a"}},
		{Content: "B", Metadata: api.MatchMetadata{FileName: "y.py"}},
	}
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.PathRetrievedCode {
			t.Errorf("want path %s, got %s", api.PathRetrievedCode, r.URL.Path)
		}
		var req api.QuestionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question != "q" {
			t.Errorf("want question q, got %q (%v)", req.Question, err)
		}
		_ = json.NewEncoder(w).Encode(want)
	}))

	got, err := c.RetrieveContext(context.Background(), "q")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if len(got) != 2 || got[0].Metadata.FunctionName != "a" || got[1].Content != "B" {
		t.Errorf("want matches in order, got %+v", got)
	}
}

func TestQuery_PlainText(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "Have you checked the loop bound?")
	}))

	got, err := c.Query(context.Background(), "q")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got != "Have you checked the loop bound?" {
		t.Errorf("want answer, got %q", got)
	}
}

func TestSynthesizeAndFetch(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+api.PathSynthesize, func(w http.ResponseWriter, r *http.Request) {
		var req api.TTSRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Text != "hello" {
			t.Errorf("want text hello, got %q", req.Text)
		}
		_ = json.NewEncoder(w).Encode(api.TTSResponse{AudioURL: "/audio/abc.mp3"})
	})
	mux.HandleFunc("GET /api/audio/abc.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", audio.ContentTypeMPEG)
		_, _ = w.Write([]byte("ID3mp3"))
	})
	c := newClient(t, mux)

	url, err := c.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if url != "/audio/abc.mp3" {
		t.Fatalf("want /audio/abc.mp3, got %q", url)
	}
	clip, err := c.FetchAudio(context.Background(), url)
	if err != nil {
		t.Fatalf("FetchAudio: %v", err)
	}
	if string(clip.Data) != "ID3mp3" || clip.ContentType != audio.ContentTypeMPEG {
		t.Errorf("want mp3 clip, got %q %q", clip.Data, clip.ContentType)
	}
}

func TestFetchAudio_EmptyURL(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.NotFoundHandler())
	if _, err := c.FetchAudio(context.Background(), ""); err == nil {
		t.Fatal("want error for empty URL")
	}
}

func TestUploadSources(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		files := r.MultipartForm.File[api.FieldFiles]
		if len(files) != 2 {
			t.Errorf("want 2 files, got %d", len(files))
		}
		_ = json.NewEncoder(w).Encode(api.MessageResponse{Message: "Successfully processed 2 files"})
	}))

	msg, err := c.UploadSources(context.Background(), []backendapi.SourceFile{
		{Name: "a.py", Data: []byte("def a(): pass")},
		{Name: "pkg/b.py", Data: []byte("class B: pass")},
	})
	if err != nil {
		t.Fatalf("UploadSources: %v", err)
	}
	if !strings.Contains(msg, "2 files") {
		t.Errorf("want summary message, got %q", msg)
	}

	if _, err := c.UploadSources(context.Background(), nil); err == nil {
		t.Error("want error for empty upload")
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), backendapi.WithTimeouts(backendapi.Timeouts{Query: 50 * time.Millisecond}))
	// Cleanups run last in first out: the handler must be released before
	// the server's Close waits for it.
	t.Cleanup(func() { close(release) })

	start := time.Now()
	_, err := c.Query(context.Background(), "q")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("query should have timed out quickly, took %v", time.Since(start))
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}), backendapi.WithCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	}))

	for range 2 {
		if _, err := c.Query(context.Background(), "q"); err == nil {
			t.Fatal("want error from failing backend")
		}
	}
	_, err := c.Query(context.Background(), "q")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("want ErrCircuitOpen, got %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("want 2 backend hits, got %d", n)
	}
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "No code documents loaded. Please upload code first."})
	}), backendapi.WithCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	}))

	for range 3 {
		_, err := c.RetrieveContext(context.Background(), "q")
		var se *backendapi.StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
			t.Fatalf("want 400 StatusError, got %v", err)
		}
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("want every call to reach the backend, got %d hits", n)
	}
}

func TestIsBackendFailure(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad request", &backendapi.StatusError{StatusCode: 400}, false},
		{"not found", &backendapi.StatusError{StatusCode: 404}, false},
		{"bad gateway", &backendapi.StatusError{StatusCode: 502}, true},
		{"transport", errors.New("connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backendapi.IsBackendFailure(tt.err); got != tt.want {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.MessageResponse{Message: "ok"})
	}))
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != api.PathVoices {
			t.Errorf("want GET %s, got %s %s", api.PathVoices, r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.VoicesResponse{Voices: []api.Voice{
			{ID: "alloy", Name: "alloy"},
			{ID: "vDIugAdS5Kvhnm7nVYQ7", Name: "Duck", Selected: true},
		}})
	}))
	voices, err := c.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 2 || !voices[1].Selected {
		t.Errorf("want two voices with the second selected, got %+v", voices)
	}
}
