package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/duckdebug/internal/ingest"
	"github.com/MrWong99/duckdebug/internal/rag"
	"github.com/MrWong99/duckdebug/internal/server"
	"github.com/MrWong99/duckdebug/internal/speech"
	"github.com/MrWong99/duckdebug/internal/transcript"
	"github.com/MrWong99/duckdebug/pkg/api"
	"github.com/MrWong99/duckdebug/pkg/codestore"
	"github.com/MrWong99/duckdebug/pkg/codestore/memstore"
	embmock "github.com/MrWong99/duckdebug/pkg/provider/embeddings/mock"
	"github.com/MrWong99/duckdebug/pkg/provider/llm"
	llmmock "github.com/MrWong99/duckdebug/pkg/provider/llm/mock"
	"github.com/MrWong99/duckdebug/pkg/provider/stt"
	sttmock "github.com/MrWong99/duckdebug/pkg/provider/stt/mock"
	"github.com/MrWong99/duckdebug/pkg/provider/tts"
	ttsmock "github.com/MrWong99/duckdebug/pkg/provider/tts/mock"
)

const bubbleSortPy = `def bubble_sort(arr):
    n = len(arr)
    for i in range(n - 1):
        for j in range(n - i - 1):
            if arr[j] > arr[j + 1]:
                arr[j], arr[j + 1] = arr[j + 1], arr[j]
`

type fixture struct {
	srv    *httptest.Server
	store  *memstore.Store
	stt    *sttmock.Provider
	tts    *ttsmock.Provider
	llm    *llmmock.Provider
	ingest *ingest.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memstore.New(embmock.DefaultDimensions),
		stt:   &sttmock.Provider{},
		tts:   &ttsmock.Provider{},
		llm: &llmmock.Provider{
			CompleteFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
				if strings.HasPrefix(req.Messages[0].Content, "Determine whether") {
					return &llm.CompletionResponse{Content: "0"}, nil
				}
				return &llm.CompletionResponse{Content: "Let's look at the loop bounds."}, nil
			},
		},
	}
	emb := &embmock.Provider{}

	var err error
	f.ingest, err = ingest.New(f.store, emb)
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}
	ragSvc, err := rag.New(f.store, emb, f.llm)
	if err != nil {
		t.Fatalf("rag.New: %v", err)
	}
	clips, err := speech.New(t.TempDir())
	if err != nil {
		t.Fatalf("speech.New: %v", err)
	}

	s, err := server.New(server.Config{
		RAG:       ragSvc,
		Ingest:    f.ingest,
		STT:       f.stt,
		TTS:       f.tts,
		Speech:    clips,
		Voice:     tts.VoiceProfile{ID: "duck"},
		Sources:   f.store,
		Corrector: transcript.NewCorrector(),
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	_, err := f.ingest.Ingest(context.Background(), []ingest.Upload{{Path: "sort/bubble.py", Content: []byte(bubbleSortPy)}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

type part struct {
	field, filename string
	data            []byte
}

func postMultipart(t *testing.T, url string, parts ...part) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", "application/octet-stream")
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write(p.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("want status %d, got %d", want, resp.StatusCode)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	_, err := server.New(server.Config{})
	if err == nil {
		t.Fatal("want error for empty config")
	}
	for _, want := range []string{"rag", "ingest", "stt", "tts", "speech"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("want error to mention %q, got %v", want, err)
		}
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	t.Run("missing audio", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		resp := postMultipart(t, f.srv.URL+api.PathTranscribe, part{field: "other", filename: "x", data: []byte{1}})
		wantStatus(t, resp, http.StatusBadRequest)
		if got := decode[api.ErrorResponse](t, resp); got.Error != "No audio file provided" {
			t.Errorf("want no-audio error, got %q", got.Error)
		}
	})

	t.Run("corrects identifiers", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seed(t)
		f.stt.Result = &stt.Transcription{Text: "my bubble sort never terminates"}

		resp := postMultipart(t, f.srv.URL+api.PathTranscribe, part{field: api.FieldAudio, filename: api.AudioUploadName, data: []byte("webm")})
		wantStatus(t, resp, http.StatusOK)
		got := decode[api.TranscribeResponse](t, resp)
		if got.Transcription != "my bubble_sort never terminates" {
			t.Errorf("want corrected transcription, got %q", got.Transcription)
		}
		if f.stt.CallCount() != 1 {
			t.Fatalf("want 1 transcribe call, got %d", f.stt.CallCount())
		}
		call := f.stt.Calls[0]
		if !strings.Contains(call.Opts.Prompt, "bubble_sort") {
			t.Errorf("want prompt to mention bubble_sort, got %q", call.Opts.Prompt)
		}
		if string(call.Audio.Data) != "webm" || call.Audio.Filename != api.AudioUploadName {
			t.Errorf("want uploaded clip forwarded, got %q (%s)", call.Audio.Data, call.Audio.Filename)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.stt.Err = errors.New("boom")
		resp := postMultipart(t, f.srv.URL+api.PathTranscribe, part{field: api.FieldAudio, filename: "a.webm", data: []byte{1}})
		wantStatus(t, resp, http.StatusInternalServerError)
		if got := decode[api.ErrorResponse](t, resp); got.Error != "Failed to process audio" {
			t.Errorf("want process error, got %q", got.Error)
		}
	})

	t.Run("empty audio", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.stt.Err = stt.ErrEmptyAudio
		resp := postMultipart(t, f.srv.URL+api.PathTranscribe, part{field: api.FieldAudio, filename: "a.webm"})
		wantStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	})
}

func TestSynthesizeAndFetch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.tts.Speech = &tts.Speech{Audio: []byte("ID3-audio"), ContentType: "audio/mpeg"}

	resp := postJSON(t, f.srv.URL+api.PathSynthesize, api.TTSRequest{Text: "Quack."})
	wantStatus(t, resp, http.StatusOK)
	got := decode[api.TTSResponse](t, resp)
	if !strings.HasPrefix(got.AudioURL, api.AudioURLPrefix) || !strings.HasSuffix(got.AudioURL, ".mp3") {
		t.Fatalf("want /audio/<id>.mp3, got %q", got.AudioURL)
	}
	if texts := f.tts.Texts(); len(texts) != 1 || texts[0] != "Quack." {
		t.Errorf("want one synthesis of %q, got %v", "Quack.", texts)
	}

	audio, err := http.Get(f.srv.URL + "/api" + got.AudioURL)
	if err != nil {
		t.Fatal(err)
	}
	defer audio.Body.Close()
	wantStatus(t, audio, http.StatusOK)
	if ct := audio.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("want audio/mpeg, got %q", ct)
	}
	body, _ := io.ReadAll(audio.Body)
	if string(body) != "ID3-audio" {
		t.Errorf("want stored audio, got %q", body)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		text       string
		ttsErr     error
		wantStatus int
		wantError  string
	}{
		{name: "blank text", text: "  ", wantStatus: http.StatusBadRequest, wantError: "No text provided"},
		{name: "provider failure", text: "hi", ttsErr: errors.New("quota"), wantStatus: http.StatusInternalServerError, wantError: "Failed to generate speech"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.tts.SynthesizeErr = tt.ttsErr
			resp := postJSON(t, f.srv.URL+api.PathSynthesize, api.TTSRequest{Text: tt.text})
			wantStatus(t, resp, tt.wantStatus)
			if got := decode[api.ErrorResponse](t, resp); got.Error != tt.wantError {
				t.Errorf("want error %q, got %q", tt.wantError, got.Error)
			}
		})
	}
}

func TestAudio_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, name := range []string{"missing.mp3", "00000000-0000-0000-0000-000000000000.mp3"} {
		resp, err := http.Get(f.srv.URL + api.PathAudioPrefix + name)
		if err != nil {
			t.Fatal(err)
		}
		wantStatus(t, resp, http.StatusNotFound)
		if got := decode[api.ErrorResponse](t, resp); got.Error != "Audio file not found" {
			t.Errorf("want not-found error, got %q", got.Error)
		}
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed(t)

	resp := postJSON(t, f.srv.URL+api.PathQuery, api.QuestionRequest{Question: "why does my sort loop forever?"})
	defer resp.Body.Close()
	wantStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Let's look at the loop bounds." {
		t.Errorf("want model answer, got %q", body)
	}
	calls := f.llm.Completes()
	if len(calls) != 2 {
		t.Fatalf("want filter and answer completions, got %d", len(calls))
	}
	if !strings.Contains(calls[1].Req.Messages[0].Content, "def bubble_sort") {
		t.Error("want retrieved code in the answer prompt")
	}
}

func TestQuery_Errors(t *testing.T) {
	t.Parallel()

	t.Run("blank question", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		resp := postJSON(t, f.srv.URL+api.PathQuery, api.QuestionRequest{})
		wantStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	})

	t.Run("model failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.llm.CompleteFunc = nil
		f.llm.CompleteErr = errors.New("unavailable")
		resp := postJSON(t, f.srv.URL+api.PathQuery, api.QuestionRequest{Question: "help"})
		wantStatus(t, resp, http.StatusInternalServerError)
		if got := decode[api.ErrorResponse](t, resp); got.Error != "Failed to get RAG response" {
			t.Errorf("want RAG error, got %q", got.Error)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		resp, err := http.Post(f.srv.URL+api.PathQuery, "application/json", strings.NewReader("{"))
		if err != nil {
			t.Fatal(err)
		}
		wantStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	})
}

func TestRetrievedCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := postJSON(t, f.srv.URL+api.PathRetrievedCode, api.QuestionRequest{Question: "bubble sort"})
	wantStatus(t, resp, http.StatusBadRequest)
	if got := decode[api.ErrorResponse](t, resp); got.Error != api.NoDocumentsMessage {
		t.Errorf("want no-documents error, got %q", got.Error)
	}

	f.seed(t)
	resp = postJSON(t, f.srv.URL+api.PathRetrievedCode, api.QuestionRequest{Question: "bubble sort"})
	wantStatus(t, resp, http.StatusOK)
	matches := decode[[]api.Match](t, resp)
	if len(matches) == 0 {
		t.Fatal("want at least one match")
	}
	m := matches[0].Metadata
	if m.FilePath != "sort/bubble.py" || m.FileName != "bubble.py" || m.Language != "Python" {
		t.Errorf("want bubble.py metadata, got %+v", m)
	}
}

func TestScrapePython(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := postMultipart(t, f.srv.URL+api.PathScrapePython,
		part{field: api.FieldFiles, filename: "src/utils/helper.py", data: []byte("def helper():\n    return 1\n")},
		part{field: api.FieldFiles, filename: "README.md", data: []byte("# readme")},
	)
	wantStatus(t, resp, http.StatusOK)
	if got := decode[api.MessageResponse](t, resp); got.Message != "1 Python files scraped and saved." {
		t.Errorf("want scrape message, got %q", got.Message)
	}

	files, err := f.store.Files(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Path != "src/utils/helper.py" {
		t.Fatalf("want src/utils/helper.py stored with its directory, got %+v", files)
	}
}

func TestScrapePython_NoPythonFiles(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := postMultipart(t, f.srv.URL+api.PathScrapePython, part{field: api.FieldFiles, filename: "notes.txt", data: []byte("x")})
	wantStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := postJSON(t, f.srv.URL+api.PathRefresh, struct{}{})
	wantStatus(t, resp, http.StatusOK)
	if got := decode[api.MessageResponse](t, resp); got.Message != "No documents found. Vectorstore not initialized." {
		t.Errorf("want empty-store message, got %q", got.Message)
	}

	f.seed(t)
	resp = postJSON(t, f.srv.URL+api.PathRefresh, struct{}{})
	wantStatus(t, resp, http.StatusOK)
	if got := decode[api.MessageResponse](t, resp); got.Message != "Vectorstore refreshed successfully." {
		t.Errorf("want refreshed message, got %q", got.Message)
	}
}

type stubAnswerer struct{}

func (stubAnswerer) Answer(context.Context, string) (string, error) { return "", nil }

func (stubAnswerer) Retrieve(context.Context, string) ([]codestore.Result, error) {
	return nil, nil
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	clips, err := speech.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	idx, err := ingest.New(memstore.New(embmock.DefaultDimensions), &embmock.Provider{})
	if err != nil {
		t.Fatal(err)
	}
	s, err := server.New(server.Config{
		RAG:    stubAnswerer{},
		Ingest: idx,
		STT:    &sttmock.Provider{},
		TTS:    &ttsmock.Provider{},
		Speech: clips,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx, "127.0.0.1:0", time.Second) }()
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("want clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.tts.ListVoicesResult = []tts.VoiceProfile{
		{ID: "rachel", Name: "Rachel", Provider: "elevenlabs"},
		{ID: "duck", Name: "Duck", Provider: "elevenlabs"},
	}

	resp, err := http.Get(f.srv.URL + api.PathVoices)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	wantStatus(t, resp, http.StatusOK)
	got := decode[api.VoicesResponse](t, resp)
	if len(got.Voices) != 2 {
		t.Fatalf("want 2 voices, got %+v", got.Voices)
	}
	if got.Voices[0].Selected || !got.Voices[1].Selected {
		t.Errorf("want only the configured voice selected, got %+v", got.Voices)
	}
	if got.Voices[1].Name != "Duck" || got.Voices[1].Provider != "elevenlabs" {
		t.Errorf("want voice details copied, got %+v", got.Voices[1])
	}
}

func TestVoices_ProviderFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.tts.ListVoicesErr = errors.New("401 unauthorized")

	resp, err := http.Get(f.srv.URL + api.PathVoices)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	wantStatus(t, resp, http.StatusBadGateway)
	if got := decode[api.ErrorResponse](t, resp); got.Error != "Failed to list voices" {
		t.Errorf("want voice listing error, got %q", got.Error)
	}
}
