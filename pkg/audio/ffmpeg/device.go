// Package ffmpeg implements the audio interfaces on top of the ffmpeg and
// ffplay command line tools.
//
// [Mic] captures the default system microphone as 16-bit mono PCM,
// [NewWebMRecorder] encodes PCM to WebM/Opus, and [Player] plays encoded clips
// through ffplay. Both binaries must be available in PATH (or configured with
// explicit paths). Supported capture platforms are linux (PulseAudio) and
// darwin (AVFoundation).
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/duckdebug/pkg/audio"
)

const (
	defaultSampleRate = 16000
	defaultFrameMs    = 20
)

// MicOption is a functional option for [NewMic].
type MicOption func(*Mic)

// WithFFmpegPath overrides the ffmpeg binary. Defaults to "ffmpeg".
func WithFFmpegPath(path string) MicOption {
	return func(m *Mic) { m.ffmpegPath = path }
}

// WithInput overrides the capture input (e.g. "alsa_input.usb-..." for pulse
// or ":1" for avfoundation). Defaults to the platform's default device.
func WithInput(input string) MicOption {
	return func(m *Mic) { m.input = input }
}

// WithSampleRate sets the capture rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) MicOption {
	return func(m *Mic) { m.sampleRate = rate }
}

// WithFrameDuration sets the duration of each delivered frame. Defaults to 20 ms.
func WithFrameDuration(d time.Duration) MicOption {
	return func(m *Mic) { m.frameMs = int(d / time.Millisecond) }
}

// Mic is an [audio.Device] that captures through an ffmpeg subprocess.
type Mic struct {
	ffmpegPath string
	goos       string
	input      string
	sampleRate int
	frameMs    int
}

var _ audio.Device = (*Mic)(nil)

// NewMic returns a microphone device. It does not start ffmpeg; that happens
// in Open.
func NewMic(opts ...MicOption) *Mic {
	m := &Mic{
		ffmpegPath: "ffmpeg",
		goos:       runtime.GOOS,
		sampleRate: defaultSampleRate,
		frameMs:    defaultFrameMs,
	}
	for _, o := range opts {
		o(m)
	}
	if m.frameMs <= 0 {
		m.frameMs = defaultFrameMs
	}
	return m
}

// captureArgs builds the ffmpeg command line for goos.
func captureArgs(goos, input string, sampleRate int) ([]string, error) {
	var format string
	switch goos {
	case "darwin":
		format = "avfoundation"
		if input == "" {
			input = ":0"
		}
	case "linux":
		format = "pulse"
		if input == "" {
			input = "default"
		}
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-i", input,
		"-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"-f", "s16le", "-",
	}, nil
}

// classifyFailure maps ffmpeg's diagnostic output onto the audio sentinels.
func classifyFailure(stderr string) error {
	s := strings.ToLower(stderr)
	for _, marker := range []string{"permission denied", "operation not permitted", "not authorized", "access denied"} {
		if strings.Contains(s, marker) {
			return audio.ErrPermissionDenied
		}
	}
	return audio.ErrDevice
}

// Open starts ffmpeg and waits for the first frame of audio, so that device
// and permission failures surface here rather than on the stream.
func (m *Mic) Open(ctx context.Context) (audio.Stream, error) {
	if _, err := exec.LookPath(m.ffmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s not found in PATH", audio.ErrDevice, m.ffmpegPath)
	}
	args, err := captureArgs(m.goos, m.input, m.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %v", audio.ErrDevice, err)
	}

	cmd := exec.Command(m.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: open stdout: %w", err)
	}
	s := &stream{
		cmd:    cmd,
		stdout: stdout,
		format: audio.Format{SampleRate: m.sampleRate, Channels: 1},
		frames: make(chan audio.Frame, 64),
		first:  make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	cmd.Stderr = &s.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: start capture: %v", audio.ErrDevice, err)
	}

	frameBytes := m.sampleRate * 2 * m.frameMs / 1000
	go s.readLoop(frameBytes)

	select {
	case <-s.first:
		return s, nil
	case <-s.done:
		return nil, fmt.Errorf("ffmpeg: capture exited: %w", s.Err())
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}
}

// stream is the [audio.Stream] backed by a running ffmpeg capture process.
type stream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr syncBuffer
	format audio.Format
	frames chan audio.Frame
	first  chan struct{}
	stop   chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *stream) readLoop(frameBytes int) {
	defer close(s.done)
	defer close(s.frames)

	var firstOnce sync.Once
	start := time.Now()
	for {
		buf := make([]byte, frameBytes)
		n, err := io.ReadFull(s.stdout, buf)
		if n > 0 {
			firstOnce.Do(func() { close(s.first) })
			select {
			case s.frames <- audio.Frame{
				Data:       buf[:n],
				SampleRate: s.format.SampleRate,
				Channels:   s.format.Channels,
				Timestamp:  time.Since(start),
			}:
			case <-s.stop:
			}
		}
		if err != nil {
			werr := s.cmd.Wait()
			s.mu.Lock()
			if !s.closed {
				msg := strings.TrimSpace(s.stderr.String())
				if msg == "" && werr != nil {
					msg = werr.Error()
				}
				if msg == "" {
					msg = "capture ended unexpectedly"
				}
				s.err = fmt.Errorf("%w: %s", classifyFailure(msg), msg)
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *stream) Frames() <-chan audio.Frame { return s.frames }
func (s *stream) Format() audio.Format       { return s.format }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close kills ffmpeg, which releases the capture device.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	<-s.done
	return nil
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes exec performs
// while another goroutine inspects the output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// errNotRunning is returned by recorder writes once ffmpeg has exited.
var errNotRunning = errors.New("ffmpeg: encoder is not running")
