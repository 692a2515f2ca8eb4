package pipeline

import (
	"errors"
	"testing"
)

func TestRequest_InOrder(t *testing.T) {
	r := NewRequest("typed")
	steps := []func(string) error{r.SetTranscript, r.SetContext, r.SetAnswer, r.SetAudioURL}
	for i, set := range steps {
		if err := set("v"); err != nil {
			t.Fatalf("step %d: unexpected error %v", i, err)
		}
	}
	if r.Question() != "typed" || r.AudioURL() != "v" {
		t.Errorf("unexpected request state %+v", r)
	}
}

func TestRequest_OutOfOrder(t *testing.T) {
	tests := []struct {
		name string
		run  func(*Request) error
	}{
		{"context before transcript", func(r *Request) error { return r.SetContext("c") }},
		{"answer before context", func(r *Request) error {
			_ = r.SetTranscript("t")
			return r.SetAnswer("a")
		}},
		{"transcript twice", func(r *Request) error {
			_ = r.SetTranscript("t")
			return r.SetTranscript("t2")
		}},
		{"audio before answer", func(r *Request) error { return r.SetAudioURL("/audio/x.mp3") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRequest("")
			if err := tt.run(r); !errors.Is(err, ErrOutOfOrder) {
				t.Errorf("want ErrOutOfOrder, got %v", err)
			}
		})
	}
}

func TestStageError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(stageError(StageRetrieve, cause))
	if !errors.Is(err, ErrRetrieval) || !errors.Is(err, cause) {
		t.Errorf("want both kind and cause reachable, got %v", err)
	}
	if errors.Is(err, ErrQuery) {
		t.Error("retrieval failure must not match ErrQuery")
	}
	if got := err.Error(); got != "pipeline: retrieve: context retrieval failed: connection refused" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestStageStrings(t *testing.T) {
	tests := []struct {
		s    Stage
		want string
	}{
		{StageTranscribe, "transcribe"},
		{StageRetrieve, "retrieve"},
		{StageQuery, "query"},
		{StageSynthesize, "synthesize"},
		{StagePlayback, "playback"},
		{Stage(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("want %q, got %q", tt.want, got)
		}
	}
}
