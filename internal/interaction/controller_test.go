package interaction_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/duckdebug/internal/backendapi"
	"github.com/MrWong99/duckdebug/internal/capture"
	"github.com/MrWong99/duckdebug/internal/interaction"
	"github.com/MrWong99/duckdebug/internal/interaction/mock"
	"github.com/MrWong99/duckdebug/internal/pipeline"
	pipemock "github.com/MrWong99/duckdebug/internal/pipeline/mock"
	"github.com/MrWong99/duckdebug/pkg/api"
	"github.com/MrWong99/duckdebug/pkg/audio"
)

var voice = audio.Clip{Data: []byte("webm"), ContentType: audio.ContentTypeWebM}

type harness struct {
	ctl     *interaction.Controller
	capture *mock.Capture
	backend *pipemock.Backend
	player  *pipemock.Speaker
	speaker *mock.Speaker
}

func newHarness(t *testing.T, b *pipemock.Backend) *harness {
	t.Helper()
	h := &harness{
		capture: mock.NewCapture(),
		backend: b,
		player:  &pipemock.Speaker{},
		speaker: &mock.Speaker{},
	}
	orch, err := pipeline.New(b, h.player)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	h.ctl, err = interaction.New(h.capture, orch, h.speaker)
	if err != nil {
		t.Fatalf("interaction.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return h
}

func answeringBackend() *pipemock.Backend {
	return &pipemock.Backend{
		TranscribeResult: "my binary search never ends",
		RetrieveResult: []api.Match{
			{Content: "def binary_search(a, x): ...", Metadata: api.MatchMetadata{FileName: "binary_search.py", FunctionName: "binary_search"}},
		},
		QueryResult:      "What happens to low when the middle element is smaller?",
		SynthesizeResult: "/audio/a.mp3",
		FetchResult:      audio.Clip{Data: []byte("mp3"), ContentType: audio.ContentTypeMPEG},
	}
}

func (h *harness) waitFor(t *testing.T, what string, cond func(interaction.State) bool) interaction.State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		st := h.ctl.State()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; state %+v", what, st)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) record(t *testing.T) {
	t.Helper()
	h.ctl.Toggle()
	h.waitFor(t, "recording", func(s interaction.State) bool { return s.IsRecording })
}

// stop toggles the running recording off and waits until the capture has
// accepted the stop request.
func (h *harness) stop(t *testing.T) {
	t.Helper()
	_, before := h.capture.Counts()
	h.ctl.Toggle()
	waitCount(t, func() int { _, stops := h.capture.Counts(); return stops }, before+1)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	if _, err := interaction.New(nil, nil, nil); err == nil {
		t.Fatal("want error for missing collaborators")
	}
}

func TestInitialState(t *testing.T) {
	t.Parallel()
	h := newHarness(t, answeringBackend())
	st := h.ctl.State()
	if st != interaction.InitialState() {
		t.Errorf("want initial state, got %+v", st)
	}
	if st.BubbleText != "Hello! What are you having trouble with?" {
		t.Errorf("unexpected initial bubble %q", st.BubbleText)
	}
	if st.Mode() != interaction.ModeIdle || st.ActiveTab != interaction.TabCode {
		t.Errorf("want idle on code tab, got %s on %s", st.Mode(), st.ActiveTab)
	}
}

func TestVoiceRoundTrip(t *testing.T) {
	t.Parallel()
	b := answeringBackend()
	h := newHarness(t, b)

	h.record(t)
	if h.ctl.State().Mode() != interaction.ModeRecording {
		t.Fatal("want recording mode")
	}
	h.stop(t)

	h.capture.Finish(voice, capture.ReasonManual)
	st := h.waitFor(t, "answer", func(s interaction.State) bool {
		return s.BubbleText == b.QueryResult && !s.IsThinking && !s.IsRecording
	})

	if st.Transcript != "my binary search never ends" {
		t.Errorf("want transcript, got %q", st.Transcript)
	}
	if st.Content.Code != "// [Match 1] binary_search() in binary_search.py\ndef binary_search(a, x): ..." {
		t.Errorf("unexpected code panel %q", st.Content.Code)
	}
	if st.ActiveTab != interaction.TabCode {
		t.Errorf("want code tab, got %s", st.ActiveTab)
	}
	waitCount(t, h.player.PlayCount, 1)
}

func TestThinkingWhileQuerying(t *testing.T) {
	t.Parallel()
	b := answeringBackend()
	gate := make(chan struct{})
	b.Gates = map[string]chan struct{}{"query": gate}
	h := newHarness(t, b)

	h.record(t)
	h.stop(t)
	h.capture.Finish(voice, capture.ReasonSilence)

	st := h.waitFor(t, "thinking", func(s interaction.State) bool { return s.IsThinking && s.Transcript != "" })
	if st.Mode() != interaction.ModeThinking {
		t.Errorf("want thinking mode, got %s", st.Mode())
	}
	close(gate)
	h.waitFor(t, "answer", func(s interaction.State) bool { return !s.IsThinking && s.BubbleText == b.QueryResult })
}

func TestErrorBubbles(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*pipemock.Backend)
		want   string
	}{
		{
			name: "transcription error from server",
			mutate: func(b *pipemock.Backend) {
				b.TranscribeError = fmt.Errorf("backendapi: transcribe: %w",
					&backendapi.StatusError{StatusCode: http.StatusInternalServerError, Message: "model overloaded"})
			},
			want: "❌ Transcription error: model overloaded",
		},
		{
			name: "transcription error in a successful response",
			mutate: func(b *pipemock.Backend) {
				b.TranscribeError = &backendapi.TranscriptionError{Message: "audio too short"}
			},
			want: "❌ Transcription error: audio too short",
		},
		{
			name:   "empty transcription",
			mutate: func(b *pipemock.Backend) { b.TranscribeResult = "" },
			want:   "❌ Transcription error: Unknown transcription error",
		},
		{
			name:   "retrieval failure",
			mutate: func(b *pipemock.Backend) { b.RetrieveError = errors.New("connection refused") },
			want:   "❌ Error contacting AI or retrieving code",
		},
		{
			name:   "query transport failure",
			mutate: func(b *pipemock.Backend) { b.QueryError = errors.New("connection reset") },
			want:   "❌ Error contacting AI or retrieving code",
		},
		{
			name:   "empty answer",
			mutate: func(b *pipemock.Backend) { b.QueryResult = "" },
			want:   "Hello! What are you having trouble with?\n\n❌ AI error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := answeringBackend()
			tt.mutate(b)
			h := newHarness(t, b)

			h.record(t)
			h.stop(t)
			h.capture.Finish(voice, capture.ReasonManual)
			st := h.waitFor(t, "error bubble", func(s interaction.State) bool { return s.BubbleText == tt.want })
			if st.IsThinking {
				t.Error("want thinking cleared after failure")
			}
			if h.player.PlayCount() != 0 {
				t.Error("want no playback after a hard failure")
			}
		})
	}
}

func TestSynthesisFailureKeepsAnswer(t *testing.T) {
	t.Parallel()
	b := answeringBackend()
	b.SynthesizeResult = ""
	h := newHarness(t, b)

	h.ctl.Ask("why")
	st := h.waitFor(t, "answer", func(s interaction.State) bool {
		return s.BubbleText == b.QueryResult && !s.IsThinking
	})
	if st.IsTalking {
		t.Error("want not talking without audio")
	}
	time.Sleep(10 * time.Millisecond)
	if h.ctl.State().BubbleText != b.QueryResult {
		t.Error("soft failure must not replace the answer")
	}
}

func TestMicrophoneErrors(t *testing.T) {
	t.Parallel()

	t.Run("permission denied", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, answeringBackend())
		h.capture.StartError = fmt.Errorf("capture: open microphone: %w", audio.ErrPermissionDenied)
		h.ctl.Toggle()
		st := h.waitFor(t, "mic error", func(s interaction.State) bool {
			return s.BubbleText == interaction.MsgMicError
		})
		if st.IsRecording {
			t.Error("want not recording")
		}
	})

	t.Run("stream lost", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, answeringBackend())
		h.record(t)
		h.capture.FailRecording(audio.ErrDevice)
		st := h.waitFor(t, "mic error", func(s interaction.State) bool {
			return s.BubbleText == interaction.MsgMicError
		})
		if st.IsRecording || st.IsThinking {
			t.Errorf("want idle after failure, got %s", st.Mode())
		}
		if calls := h.backend.CallNames(); len(calls) != 0 {
			t.Errorf("want no pipeline after a failed recording, got %v", calls)
		}
	})
}

func TestToggleCancelsPipelineAndPlayback(t *testing.T) {
	t.Parallel()
	b := answeringBackend()
	b.Gates = map[string]chan struct{}{"query": make(chan struct{})}
	h := newHarness(t, b)

	h.ctl.Ask("first question")
	h.waitFor(t, "thinking", func(s interaction.State) bool { return s.IsThinking })

	h.ctl.Toggle()
	st := h.waitFor(t, "recording", func(s interaction.State) bool { return s.IsRecording })
	if st.IsThinking {
		t.Error("want thinking cleared by the new recording")
	}
	if h.speaker.Stops() == 0 {
		t.Error("want playback stopped when a recording starts")
	}
	// the cancelled run must never report an answer
	time.Sleep(20 * time.Millisecond)
	if st := h.ctl.State(); st.BubbleText != interaction.InitialBubble {
		t.Errorf("want bubble untouched by the cancelled run, got %q", st.BubbleText)
	}
}

func TestSilenceStopRacingToggle_NewRecordingWins(t *testing.T) {
	t.Parallel()
	b := answeringBackend()
	gate := make(chan struct{})
	b.Gates = map[string]chan struct{}{"query": gate}
	h := newHarness(t, b)

	h.record(t)
	// The silence stop publishes its clip while the user toggles again.
	h.capture.Finish(voice, capture.ReasonSilence)
	h.ctl.Toggle()

	waitCount(t, func() int { starts, _ := h.capture.Counts(); return starts }, 2)
	h.waitFor(t, "second recording", func(s interaction.State) bool { return s.IsRecording && !s.IsThinking })
	close(gate)

	time.Sleep(50 * time.Millisecond)
	st := h.ctl.State()
	if st.Mode() != interaction.ModeRecording {
		t.Errorf("want recording mode, got %s", st.Mode())
	}
	if st.BubbleText != interaction.InitialBubble {
		t.Errorf("want no answer during the new recording, got %q", st.BubbleText)
	}
	if n := h.player.PlayCount(); n != 0 {
		t.Errorf("want no playback during the new recording, got %d", n)
	}
}

func TestAskSupersedesPreviousRun(t *testing.T) {
	t.Parallel()
	b := answeringBackend()
	gate := make(chan struct{})
	b.Gates = map[string]chan struct{}{"retrieve": gate}
	b.Entered = make(chan string, 16)
	h := newHarness(t, b)

	h.ctl.Ask("one")
	waitEntered(t, b.Entered, "retrieve")
	h.ctl.Ask("two")
	waitEntered(t, b.Entered, "retrieve")
	close(gate)

	st := h.waitFor(t, "answer", func(s interaction.State) bool { return s.BubbleText == b.QueryResult && !s.IsThinking })
	if st.Transcript != "two" {
		t.Errorf("want transcript of the latest question, got %q", st.Transcript)
	}
	calls := b.CallNames()
	if n := countOf(calls, "query"); n != 1 {
		t.Errorf("want exactly one query, got %d (%v)", n, calls)
	}
}

func TestAskIgnoresBlank(t *testing.T) {
	t.Parallel()
	h := newHarness(t, answeringBackend())
	h.ctl.Ask("   ")
	h.ctl.Notify("sync")
	h.waitFor(t, "notify", func(s interaction.State) bool { return s.BubbleText == "sync" })
	if calls := h.backend.CallNames(); len(calls) != 0 {
		t.Errorf("want no pipeline for a blank question, got %v", calls)
	}
}

func TestSelectTab(t *testing.T) {
	t.Parallel()
	h := newHarness(t, answeringBackend())

	if err := h.ctl.SelectTab("diagram"); !errors.Is(err, interaction.ErrUnknownTab) {
		t.Fatalf("want ErrUnknownTab, got %v", err)
	}
	if err := h.ctl.SelectTab(interaction.TabUML); err != nil {
		t.Fatalf("SelectTab: %v", err)
	}
	st := h.waitFor(t, "uml tab", func(s interaction.State) bool { return s.ActiveTab == interaction.TabUML })
	if st.ActiveContent() != "To be implemented" {
		t.Errorf("want UML placeholder, got %q", st.ActiveContent())
	}
}

func TestTalkingIndicatorAndUpdates(t *testing.T) {
	t.Parallel()
	h := newHarness(t, answeringBackend())

	h.ctl.TalkingChanged(true)
	st := h.waitFor(t, "talking", func(s interaction.State) bool { return s.IsTalking })
	if st.Mode() != interaction.ModeTalking {
		t.Errorf("want talking mode, got %s", st.Mode())
	}

	select {
	case u := <-h.ctl.Updates():
		if !u.IsTalking {
			t.Errorf("want update with talking set, got %+v", u)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no update delivered")
	}

	h.ctl.TalkingChanged(false)
	h.waitFor(t, "silent", func(s interaction.State) bool { return !s.IsTalking })
}

func waitCount(t *testing.T, f func() int, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for f() < want {
		if time.Now().After(deadline) {
			t.Fatalf("want count %d, got %d", want, f())
		}
		time.Sleep(time.Millisecond)
	}
}

func waitEntered(t *testing.T, ch <-chan string, name string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == name {
				return
			}
		case <-timeout:
			t.Fatalf("backend call %q never started", name)
		}
	}
}

func countOf(calls []string, name string) int {
	return len(slices.DeleteFunc(slices.Clone(calls), func(s string) bool { return s != name }))
}
