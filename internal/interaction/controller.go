// Package interaction ties capture, the answer pipeline and playback
// together behind a single toggle and owns the state the UI renders.
//
// All state lives in one actor goroutine started by [Controller.Run].
// Commands ([Controller.Toggle], [Controller.Ask], ...) are queued to it;
// blocking work such as opening the microphone or running a pipeline happens
// in helper goroutines that report back through the same queue.
//
// Every pipeline run carries a generation number. Starting a new recording or
// asking a new question cancels the running pipeline and bumps the
// generation, so late results from the old run are dropped.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/duckdebug/internal/capture"
	"github.com/MrWong99/duckdebug/internal/pipeline"
	"github.com/MrWong99/duckdebug/pkg/api"
	"github.com/MrWong99/duckdebug/pkg/audio"
)

// ErrUnknownTab is returned by [Controller.SelectTab] for a tab that does not exist.
var ErrUnknownTab = errors.New("interaction: unknown tab")

// Capture is the microphone side. *capture.Session satisfies it.
type Capture interface {
	Start(ctx context.Context) error
	Stop() bool
	State() capture.State
	Results() <-chan capture.Result
}

// Runner executes pipelines. *pipeline.Orchestrator satisfies it.
type Runner interface {
	RunClip(ctx context.Context, clip audio.Clip, sink pipeline.Sink) (pipeline.Result, error)
	RunText(ctx context.Context, question string, sink pipeline.Sink) (pipeline.Result, error)
}

// Speaker is the playback side. *playback.Controller satisfies it.
type Speaker interface {
	Stop()
}

const (
	inboxSize   = 64
	updatesSize = 16
)

// Option is a functional option for [New].
type Option func(*Controller)

// WithLogger overrides the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Controller is the interaction actor.
type Controller struct {
	capture Capture
	runner  Runner
	speaker Speaker
	log     *slog.Logger

	inbox   chan any
	talkSig chan struct{}
	talking atomic.Bool
	updates chan State
	stopped chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup

	snapMu sync.RWMutex
	snap   State

	// Owned by the actor goroutine.
	st        State
	gen       uint64
	cancelRun context.CancelFunc
	starting  bool
}

// New creates a controller in [InitialState]. Call [Controller.Run] to start it.
func New(cp Capture, runner Runner, speaker Speaker, opts ...Option) (*Controller, error) {
	if cp == nil || runner == nil || speaker == nil {
		return nil, errors.New("interaction: capture, runner and speaker are required")
	}
	c := &Controller{
		capture: cp,
		runner:  runner,
		speaker: speaker,
		log:     slog.Default(),
		inbox:   make(chan any, inboxSize),
		talkSig: make(chan struct{}, 1),
		updates: make(chan State, updatesSize),
		stopped: make(chan struct{}),
		st:      InitialState(),
	}
	c.snap = c.st
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type (
	toggleCmd  struct{}
	askCmd     struct{ text string }
	tabCmd     struct{ tab Tab }
	notifyCmd  struct{ text string }
	startedMsg struct{ err error }

	stageMsg struct {
		gen  uint64
		kind stageKind
		text string
	}
	doneMsg struct {
		gen uint64
		err error
	}
)

type stageKind int

const (
	stageTranscript stageKind = iota
	stageContext
	stageAnswer
)

// Toggle starts a recording when idle and stops it while recording.
func (c *Controller) Toggle() { c.post(toggleCmd{}) }

// Ask runs the pipeline for a typed question.
func (c *Controller) Ask(text string) { c.post(askCmd{text: text}) }

// SelectTab switches the visible panel.
func (c *Controller) SelectTab(tab Tab) error {
	if !tab.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTab, tab)
	}
	c.post(tabCmd{tab: tab})
	return nil
}

// Notify replaces the bubble text, e.g. with an upload summary.
func (c *Controller) Notify(text string) { c.post(notifyCmd{text: text}) }

// TalkingChanged feeds the playback indicator into the controller. It never
// blocks and may be called with the playback lock held.
func (c *Controller) TalkingChanged(talking bool) {
	c.talking.Store(talking)
	select {
	case c.talkSig <- struct{}{}:
	default:
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// Updates delivers a snapshot after every change. When the consumer falls
// behind, older snapshots are dropped in favour of newer ones.
func (c *Controller) Updates() <-chan State { return c.updates }

// post queues m for the actor. After Run has returned, m is dropped.
func (c *Controller) post(m any) {
	select {
	case c.inbox <- m:
	case <-c.stopped:
	}
}

// Run processes commands until ctx is cancelled. It may only be called once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("interaction: Run called twice")
	}
	defer func() {
		c.cancelPipeline()
		c.speaker.Stop()
		if c.capture.State() == capture.StateRecording {
			c.capture.Stop()
		}
		close(c.stopped)
		c.wg.Wait()
	}()

	results := c.capture.Results()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-c.inbox:
			c.handle(ctx, m)
		case r := <-results:
			c.handleCapture(ctx, r)
		case <-c.talkSig:
			c.st.IsTalking = c.talking.Load()
		}
		c.publish()
	}
}

func (c *Controller) handle(ctx context.Context, m any) {
	switch m := m.(type) {
	case toggleCmd:
		c.handleToggle(ctx)
	case askCmd:
		q := strings.TrimSpace(m.text)
		if q == "" {
			return
		}
		c.speaker.Stop()
		c.startPipeline(ctx, func(ctx context.Context, sink pipeline.Sink) error {
			_, err := c.runner.RunText(ctx, q, sink)
			return err
		})
	case tabCmd:
		c.st.ActiveTab = m.tab
	case notifyCmd:
		c.st.BubbleText = m.text
	case startedMsg:
		c.starting = false
		if m.err != nil {
			c.log.Warn("interaction: recording could not start", "err", m.err)
			c.st.IsRecording = false
			c.st.BubbleText = MsgMicError
			return
		}
		st := c.capture.State()
		c.st.IsRecording = st == capture.StateRecording || st == capture.StateStopping
	case stageMsg:
		if m.gen != c.gen {
			return
		}
		switch m.kind {
		case stageTranscript:
			c.st.Transcript = m.text
		case stageContext:
			c.st.Content.Code = m.text
			c.st.ActiveTab = TabCode
		case stageAnswer:
			c.st.BubbleText = m.text
			c.st.IsThinking = false
		}
	case doneMsg:
		if m.gen != c.gen {
			return
		}
		c.cancelRun = nil
		c.st.IsThinking = false
		c.applyError(m.err)
	}
}

func (c *Controller) handleToggle(ctx context.Context) {
	if c.starting {
		return
	}
	switch c.capture.State() {
	case capture.StateRecording:
		c.capture.Stop()
		return
	case capture.StateIdle:
	default:
		return
	}

	c.cancelPipeline()
	c.speaker.Stop()
	c.starting = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.post(startedMsg{err: c.capture.Start(ctx)})
	}()
}

// handleCapture turns a finished recording into a pipeline run. The capture
// publishes only after returning to idle, so a result seen while a start is
// pending or the microphone is busy belongs to a recording that a newer one
// has replaced.
func (c *Controller) handleCapture(ctx context.Context, r capture.Result) {
	if c.starting || c.capture.State() != capture.StateIdle {
		c.log.Debug("interaction: dropping result of a replaced recording", "reason", r.Reason, "err", r.Err)
		return
	}
	c.st.IsRecording = false
	switch {
	case r.Err != nil:
		c.log.Warn("interaction: recording failed", "err", r.Err)
		c.st.BubbleText = MsgMicError
	case r.Clip.Empty():
		c.log.Warn("interaction: recording produced no audio", "reason", r.Reason)
	default:
		clip := r.Clip
		c.startPipeline(ctx, func(ctx context.Context, sink pipeline.Sink) error {
			_, err := c.runner.RunClip(ctx, clip, sink)
			return err
		})
	}
}

// startPipeline cancels the running pipeline and starts fn as the next
// generation.
func (c *Controller) startPipeline(ctx context.Context, fn func(context.Context, pipeline.Sink) error) {
	c.cancelPipeline()
	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(ctx)
	c.cancelRun = cancel
	c.st.IsThinking = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		err := fn(runCtx, &sink{c: c, gen: gen})
		c.post(doneMsg{gen: gen, err: err})
	}()
}

func (c *Controller) cancelPipeline() {
	if c.cancelRun == nil {
		return
	}
	c.cancelRun()
	c.cancelRun = nil
	c.gen++
	c.st.IsThinking = false
}

// applyError maps a finished run's error onto the bubble.
func (c *Controller) applyError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	var se *pipeline.StageError
	if !errors.As(err, &se) {
		c.log.Error("interaction: pipeline failed", "err", err)
		c.st.BubbleText = MsgBackendError
		return
	}
	if se.Soft {
		c.log.Warn("interaction: answer not spoken", "stage", se.Stage, "err", se.Err)
		return
	}
	c.log.Warn("interaction: pipeline failed", "stage", se.Stage, "err", se.Err)
	switch {
	case errors.Is(se, pipeline.ErrTranscription):
		c.st.BubbleText = MsgTranscriptPrefix + userMessage(se.Err)
	case errors.Is(se, pipeline.ErrEmptyAnswer):
		c.st.BubbleText = c.st.BubbleText + "\n\n" + MsgAIError
	default:
		c.st.BubbleText = MsgBackendError
	}
}

// userMessage prefers the text the server itself reported.
func userMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	if errors.Is(err, pipeline.ErrNoTranscript) {
		return "Unknown transcription error"
	}
	return err.Error()
}

func (c *Controller) publish() {
	c.snapMu.Lock()
	changed := c.snap != c.st
	c.snap = c.st
	c.snapMu.Unlock()
	if !changed {
		return
	}
	select {
	case c.updates <- c.st:
		return
	default:
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- c.st:
	default:
	}
}

// sink forwards stage results of one generation to the actor.
type sink struct {
	c   *Controller
	gen uint64
}

func (s *sink) TranscriptReady(text string) {
	s.c.post(stageMsg{gen: s.gen, kind: stageTranscript, text: text})
}

func (s *sink) ContextRetrieved(formatted string, _ []api.Match) {
	s.c.post(stageMsg{gen: s.gen, kind: stageContext, text: formatted})
}

func (s *sink) AnswerReady(answer string) {
	s.c.post(stageMsg{gen: s.gen, kind: stageAnswer, text: answer})
}

var _ pipeline.Sink = (*sink)(nil)
