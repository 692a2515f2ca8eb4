package openai_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/duckdebug/pkg/provider/stt"
	"github.com/MrWong99/duckdebug/pkg/provider/stt/openai"
)

func TestNew_Validation(t *testing.T) {
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("want error for empty API key")
	}
	if _, err := openai.New("sk-test", ""); err != nil {
		t.Fatalf("want default model to be accepted, got %v", err)
	}
}

func TestTranscribe(t *testing.T) {
	var model, prompt, language, filename, data string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("want audio/transcriptions path, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		model = r.FormValue("model")
		prompt = r.FormValue("prompt")
		language = r.FormValue("language")
		f, hdr, err := r.FormFile("file")
		if err == nil {
			b, _ := io.ReadAll(f)
			data, filename = string(b), hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text": " Why is my list empty? "}`)
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/"), openai.WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.Transcribe(context.Background(),
		stt.Audio{Data: []byte("RIFF"), Filename: "recording.wav", ContentType: "audio/wav"},
		stt.Options{Prompt: "merge_sort"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if tr.Text != "Why is my list empty?" {
		t.Errorf("want trimmed text, got %q", tr.Text)
	}
	if model != openai.DefaultModel {
		t.Errorf("want model %s, got %q", openai.DefaultModel, model)
	}
	if prompt != "merge_sort" || language != "en" {
		t.Errorf("want prompt merge_sort and language en, got %q %q", prompt, language)
	}
	if filename != "recording.wav" || data != "RIFF" {
		t.Errorf("want file recording.wav with data RIFF, got %q %q", filename, data)
	}
}
