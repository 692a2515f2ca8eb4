package capture

// State is the lifecycle state of a capture [Session].
type State int

const (
	// StateIdle means no recording exists and the microphone is released.
	StateIdle State = iota

	// StateRequesting means the microphone is being acquired.
	StateRequesting

	// StateRecording means audio is being captured and analysed.
	StateRecording

	// StateStopping means the recording is being finalised into a clip.
	StateStopping

	// StateError is entered briefly on failure before returning to idle.
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StopReason explains why a recording ended.
type StopReason int

const (
	// ReasonNone is used for failed recordings.
	ReasonNone StopReason = iota

	// ReasonManual means the user stopped the recording.
	ReasonManual

	// ReasonSilence means sustained silence ended the recording.
	ReasonSilence
)

// String returns the reason as used in logs and metric attributes.
func (r StopReason) String() string {
	switch r {
	case ReasonManual:
		return "manual"
	case ReasonSilence:
		return "silence"
	default:
		return "none"
	}
}
