// Package vad defines the Engine interface for silence detection backends.
//
// A VAD engine wraps a frame-level silence classifier and surfaces it as a
// stateful, per-recording session. Each session keeps its own silence window
// so that consecutive recordings never share detection state.
//
// VAD is synchronous: ProcessFrame returns immediately with a decision, which
// makes it suitable for the capture session's sampling tick.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"errors"
	"time"

	"github.com/MrWong99/duckdebug/pkg/audio"
)

// Defaults used when a Config field is zero.
const (
	DefaultEpsilon   = 3
	DefaultThreshold = 2000 * time.Millisecond
)

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("vad: session closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// Epsilon is the silence band around the byte midpoint 128: a sample is
	// silent when |v-128| < Epsilon. Zero selects DefaultEpsilon.
	Epsilon int

	// Threshold is how long silence must last before the session asks the
	// caller to stop. The comparison is strictly greater-than. Zero selects
	// DefaultThreshold.
	Threshold time.Duration
}

// WithDefaults returns cfg with zero fields replaced by the package defaults.
func (c Config) WithDefaults() Config {
	if c.Epsilon <= 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	return c
}

// SessionHandle represents an active VAD session for a single recording. It is
// an interface so that test code can supply mock implementations without a
// live engine. Reset clears the silence window without closing the session.
type SessionHandle interface {
	// ProcessFrame classifies one energy sample taken at now and returns the
	// decision. ShouldStop is reported at most once per silence run.
	ProcessFrame(samples audio.EnergySample, now time.Time) (VADEvent, error)

	// Reset clears the silence window. Use this when a recording restarts.
	Reset()

	// Close releases the session. After Close, ProcessFrame returns
	// ErrSessionClosed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new session with the given configuration.
	NewSession(cfg Config) (SessionHandle, error)
}
