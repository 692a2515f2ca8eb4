// Package energy implements silence detection over byte time-domain samples.
//
// A sample is silent when every amplitude lies strictly inside the band
// (128-epsilon, 128+epsilon). Sustained silence for longer than the window's
// threshold produces a single stop decision; any audible sample resets the
// window.
//
// [Classify] is a pure function over a [vad.Window] so it can be driven with
// synthetic clocks. [Engine] wraps it as a [vad.Engine].
package energy

import (
	"sync"
	"time"

	"github.com/MrWong99/duckdebug/pkg/audio"
	"github.com/MrWong99/duckdebug/pkg/provider/vad"
)

// IsSilent reports whether every amplitude satisfies |v-128| < epsilon.
// An empty sample is silent.
func IsSilent(samples audio.EnergySample, epsilon int) bool {
	for _, v := range samples {
		d := int(v) - int(audio.Silence)
		if d < 0 {
			d = -d
		}
		if d >= epsilon {
			return false
		}
	}
	return true
}

// Classify advances w by one sample taken at now and returns the new window
// with its decision.
func Classify(w vad.Window, samples audio.EnergySample, now time.Time, epsilon int) (vad.Window, vad.VADEvent) {
	if !IsSilent(samples, epsilon) {
		w.SilenceStartedAt = time.Time{}
		w.Fired = false
		return w, vad.VADEvent{}
	}

	if w.SilenceStartedAt.IsZero() {
		w.SilenceStartedAt = now
	}
	elapsed := now.Sub(w.SilenceStartedAt)
	ev := vad.VADEvent{Silent: true, SilenceFor: elapsed}
	if !w.Fired && elapsed > w.Threshold {
		w.Fired = true
		ev.ShouldStop = true
	}
	return w, ev
}

// Engine is the energy-threshold [vad.Engine]. It is stateless; every
// session owns its own window.
type Engine struct{}

var _ vad.Engine = (*Engine)(nil)

// New returns an energy engine.
func New() *Engine { return &Engine{} }

// NewSession implements [vad.Engine]. Zero config fields take the vad
// package defaults.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	cfg = cfg.WithDefaults()
	return &session{cfg: cfg, w: vad.NewWindow(cfg.Threshold)}, nil
}

type session struct {
	mu     sync.Mutex
	cfg    vad.Config
	w      vad.Window
	closed bool
}

func (s *session) ProcessFrame(samples audio.EnergySample, now time.Time) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, vad.ErrSessionClosed
	}
	var ev vad.VADEvent
	s.w, ev = Classify(s.w, samples, now, s.cfg.Epsilon)
	return ev, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = vad.NewWindow(s.cfg.Threshold)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
