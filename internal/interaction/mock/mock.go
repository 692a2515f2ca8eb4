// Package mock provides test doubles for the [interaction.Capture] and
// [interaction.Speaker] interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/duckdebug/internal/capture"
	"github.com/MrWong99/duckdebug/internal/interaction"
	"github.com/MrWong99/duckdebug/pkg/audio"
)

// Capture is a scriptable [interaction.Capture]. Start moves it to
// recording; the test ends the recording with [Capture.Finish] or
// [Capture.FailRecording].
type Capture struct {
	mu      sync.Mutex
	state   capture.State
	results chan capture.Result

	// StartError is returned by Start, which then leaves the state idle.
	StartError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop accepted a stop request.
	CallCountStop int
}

// NewCapture returns an idle capture.
func NewCapture() *Capture {
	return &Capture{results: make(chan capture.Result, 8)}
}

// Start implements [interaction.Capture].
func (c *Capture) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStart++
	if c.StartError != nil {
		return c.StartError
	}
	c.state = capture.StateRecording
	return nil
}

// Stop implements [interaction.Capture].
func (c *Capture) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != capture.StateRecording {
		return false
	}
	c.CallCountStop++
	c.state = capture.StateStopping
	return true
}

// State implements [interaction.Capture].
func (c *Capture) State() capture.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Results implements [interaction.Capture].
func (c *Capture) Results() <-chan capture.Result { return c.results }

// Finish ends the recording and publishes clip.
func (c *Capture) Finish(clip audio.Clip, reason capture.StopReason) {
	c.mu.Lock()
	c.state = capture.StateIdle
	c.mu.Unlock()
	c.results <- capture.Result{Clip: clip, Reason: reason}
}

// FailRecording ends the recording with err.
func (c *Capture) FailRecording(err error) {
	c.mu.Lock()
	c.state = capture.StateIdle
	c.mu.Unlock()
	c.results <- capture.Result{Err: err}
}

// Counts returns the Start and Stop call counts. Thread-safe.
func (c *Capture) Counts() (starts, stops int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountStart, c.CallCountStop
}

var _ interaction.Capture = (*Capture)(nil)

// Speaker is a mock [interaction.Speaker].
type Speaker struct {
	mu sync.Mutex

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Stop implements [interaction.Speaker].
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
}

// Stops returns the Stop call count. Thread-safe.
func (s *Speaker) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountStop
}

var _ interaction.Speaker = (*Speaker)(nil)
