package pipeline

import (
	"errors"
	"fmt"
)

// Stage failure kinds. Every [StageError] unwraps to exactly one of them.
var (
	ErrTranscription = errors.New("transcription failed")
	ErrRetrieval     = errors.New("context retrieval failed")
	ErrQuery         = errors.New("query failed")
	ErrSynthesis     = errors.New("speech synthesis failed")
	ErrPlayback      = errors.New("playback failed")
)

// Causes produced by the orchestrator itself when the backend answers
// successfully but without the expected payload.
var (
	ErrNoTranscript = errors.New("no transcription returned")
	ErrEmptyAnswer  = errors.New("empty answer")
	ErrNoAudioURL   = errors.New("no audio URL returned")
)

// StageError reports the stage a run failed in. errors.Is matches both the
// kind sentinel and anything in the cause chain.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error

	// Soft errors happen after the answer was delivered.
	Soft bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error { return []error{e.Kind, e.Err} }

func stageError(s Stage, err error) *StageError {
	se := &StageError{Stage: s, Err: err}
	switch s {
	case StageTranscribe:
		se.Kind = ErrTranscription
	case StageRetrieve:
		se.Kind = ErrRetrieval
	case StageQuery:
		se.Kind = ErrQuery
	case StageSynthesize:
		se.Kind, se.Soft = ErrSynthesis, true
	default:
		se.Kind, se.Soft = ErrPlayback, true
	}
	return se
}
