package vad

import "time"

// Window is the silence-tracking state of one recording.
//
// SilenceStartedAt is non-zero only while the latest contiguous run of
// samples was all silent. Fired latches once ShouldStop has been reported for
// the current run so the stop request is not repeated.
type Window struct {
	SilenceStartedAt time.Time
	Threshold        time.Duration
	Fired            bool
}

// NewWindow returns an empty window with the given threshold.
func NewWindow(threshold time.Duration) Window {
	return Window{Threshold: threshold}
}

// VADEvent is the decision produced for a single energy sample.
type VADEvent struct {
	// Silent reports whether every amplitude was inside the silence band.
	Silent bool

	// ShouldStop is true exactly once per silence run, on the first sample
	// taken more than Threshold after the run began.
	ShouldStop bool

	// SilenceFor is how long the current silence run has lasted. Zero when
	// the sample was not silent.
	SilenceFor time.Duration
}
