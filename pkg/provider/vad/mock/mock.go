// Package mock provides scriptable vad.Engine and vad.SessionHandle doubles.
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/duckdebug/pkg/audio"
	"github.com/MrWong99/duckdebug/pkg/provider/vad"
)

// Engine hands out Session, or a fresh never-stopping session when Session
// is nil. It records the config of every NewSession call.
type Engine struct {
	Session       *Session
	NewSessionErr error

	mu      sync.Mutex
	configs []vad.Config
	opened  []*Session
}

var _ vad.Engine = (*Engine)(nil)

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	s := e.Session
	if s == nil {
		s = &Session{}
	}
	e.opened = append(e.opened, s)
	return s, nil
}

// Configs returns the configs passed to NewSession so far.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

// Opened returns the sessions handed out so far.
func (e *Engine) Opened() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.opened...)
}

// Session replays Script one event per frame, then repeats Default. Err is
// returned from every ProcessFrame call when set.
type Session struct {
	Script  []vad.VADEvent
	Default vad.VADEvent
	Err     error

	mu     sync.Mutex
	frames int
	resets int
	closes int
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame implements vad.SessionHandle.
func (s *Session) ProcessFrame(_ audio.EnergySample, _ time.Time) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if s.Err != nil {
		return vad.VADEvent{}, s.Err
	}
	if len(s.Script) > 0 {
		ev := s.Script[0]
		s.Script = s.Script[1:]
		return ev, nil
	}
	return s.Default, nil
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

// Frames is the number of ProcessFrame calls.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Closes is the number of Close calls.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
