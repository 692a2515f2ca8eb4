// Package playback owns the speaker: at most one answer clip plays at a time
// and the controller reports whether the duck is currently talking.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/duckdebug/internal/observe"
	"github.com/MrWong99/duckdebug/pkg/audio"
)

// ErrEmptyClip is returned by [Controller.Play] for a clip without data.
var ErrEmptyClip = errors.New("playback: empty clip")

// Option is a functional option for [New].
type Option func(*Controller)

// WithOnChange registers fn to be called whenever the talking indicator
// flips. fn is called with the controller's lock held and must not call back
// into the controller.
func WithOnChange(fn func(talking bool)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// WithLogger overrides the logger used for playback failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics records how long each clip played, as the "speak" stage.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller plays clips through an [audio.Player]. A new Play stops the
// unit that is currently playing. It is safe for concurrent use.
type Controller struct {
	player   audio.Player
	onChange func(bool)
	log      *slog.Logger
	metrics  *observe.Metrics

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	talking bool

	wg sync.WaitGroup
}

// New creates a Controller around player.
func New(player audio.Player, opts ...Option) (*Controller, error) {
	if player == nil {
		return nil, errors.New("playback: player must not be nil")
	}
	c := &Controller{player: player, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Play starts playing clip and returns immediately. The talking indicator is
// set before Play returns and cleared when the clip ends, fails or is
// replaced.
func (c *Controller) Play(clip audio.Clip) error {
	if clip.Empty() {
		return ErrEmptyClip
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setTalkingLocked(true)

	c.wg.Add(1)
	go c.run(ctx, cancel, gen, clip)
	return nil
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, gen uint64, clip audio.Clip) {
	defer c.wg.Done()
	defer cancel()

	start := time.Now()
	err := c.player.Play(ctx, clip)
	status := "ok"
	switch {
	case ctx.Err() != nil:
		status = "cancelled"
	case err != nil:
		status = "error"
		c.log.Warn("playback failed", "err", err, "bytes", len(clip.Data))
	}
	if c.metrics != nil {
		c.metrics.RecordStage(context.Background(), "speak", status, time.Since(start))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.cancel = nil
	c.setTalkingLocked(false)
}

// Stop ends the active unit, if any, and clears the talking indicator.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.gen++
	c.setTalkingLocked(false)
}

// IsTalking reports whether a clip is currently playing.
func (c *Controller) IsTalking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.talking
}

// Close stops playback and waits for every playback goroutine to return.
func (c *Controller) Close() error {
	c.Stop()
	c.wg.Wait()
	return nil
}

func (c *Controller) setTalkingLocked(v bool) {
	if c.talking == v {
		return
	}
	c.talking = v
	if c.onChange != nil {
		c.onChange(v)
	}
}
