package interaction

import "testing"

func TestMode_Precedence(t *testing.T) {
	tests := []struct {
		name string
		st   State
		want Mode
	}{
		{"idle", State{}, ModeIdle},
		{"thinking", State{IsThinking: true}, ModeThinking},
		{"talking beats thinking", State{IsThinking: true, IsTalking: true}, ModeTalking},
		{"recording beats all", State{IsRecording: true, IsThinking: true, IsTalking: true}, ModeRecording},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.st.Mode(); got != tt.want {
				t.Errorf("want %s, got %s", tt.want, got)
			}
		})
	}
}

func TestInitialState_Content(t *testing.T) {
	st := InitialState()
	want := "# This is your CODE view\ndef debug():\n    print(\"Hello from Duck Debug!\")"
	if st.ActiveContent() != want {
		t.Errorf("want %q, got %q", want, st.ActiveContent())
	}
	if st.Content.UML != "To be implemented" {
		t.Errorf("unexpected UML placeholder %q", st.Content.UML)
	}
}

func TestTabValid(t *testing.T) {
	for _, tab := range []Tab{TabCode, TabUML} {
		if !tab.Valid() {
			t.Errorf("want %q valid", tab)
		}
	}
	if Tab("CODE").Valid() {
		t.Error("tab names are lowercase")
	}
}
