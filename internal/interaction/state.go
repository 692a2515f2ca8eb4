package interaction

// Texts shown in the duck's speech bubble.
const (
	InitialBubble       = "Hello! What are you having trouble with?"
	MsgMicError         = "❌ Microphone access denied or error"
	MsgTranscriptPrefix = "❌ Transcription error: "
	MsgBackendError     = "❌ Error contacting AI or retrieving code"
	MsgAIError          = "❌ AI error"
)

// Default panel contents.
const (
	DefaultCode = "# This is your CODE view\ndef debug():\n    print(\"Hello from Duck Debug!\")"
	DefaultUML  = "To be implemented"
)

// Tab names a content panel.
type Tab string

const (
	TabCode Tab = "code"
	TabUML  Tab = "uml"
)

// Valid reports whether t names a known panel.
func (t Tab) Valid() bool { return t == TabCode || t == TabUML }

// Content holds the text of every panel.
type Content struct {
	Code string
	UML  string
}

// State is everything the UI renders. Values are snapshots; mutating one has
// no effect on the controller.
type State struct {
	IsRecording bool
	IsThinking  bool
	IsTalking   bool
	BubbleText  string
	Transcript  string
	ActiveTab   Tab
	Content     Content
}

// InitialState returns the state shown before any interaction.
func InitialState() State {
	return State{
		BubbleText: InitialBubble,
		ActiveTab:  TabCode,
		Content:    Content{Code: DefaultCode, UML: DefaultUML},
	}
}

// ActiveContent returns the text of the selected panel.
func (s State) ActiveContent() string {
	if s.ActiveTab == TabUML {
		return s.Content.UML
	}
	return s.Content.Code
}

// Mode is the single perceptual state the duck shows.
type Mode int

const (
	ModeIdle Mode = iota
	ModeRecording
	ModeThinking
	ModeTalking
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRecording:
		return "recording"
	case ModeThinking:
		return "thinking"
	case ModeTalking:
		return "talking"
	default:
		return "unknown"
	}
}

// Mode resolves the flags with precedence recording > talking > thinking > idle.
func (s State) Mode() Mode {
	switch {
	case s.IsRecording:
		return ModeRecording
	case s.IsTalking:
		return ModeTalking
	case s.IsThinking:
		return ModeThinking
	default:
		return ModeIdle
	}
}
