package ffmpeg

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/duckdebug/pkg/audio"
)

// chunkSize is the read size for encoded output.
const chunkSize = 4096

// webmArgs builds the command line that encodes s16le PCM from stdin into a
// WebM/Opus stream on stdout.
func webmArgs(f audio.Format) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", strconv.Itoa(f.SampleRate), "-ac", strconv.Itoa(f.Channels),
		"-i", "pipe:0",
		"-c:a", "libopus", "-b:a", "32k",
		"-f", "webm", "pipe:1",
	}
}

// Recorder is an [audio.Recorder] that pipes PCM through ffmpeg's libopus
// encoder. Encoded bytes are emitted as chunk events while recording.
type Recorder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr syncBuffer
	events chan audio.RecorderEvent

	mu      sync.Mutex
	stopped bool
	aborted bool
}

var _ audio.Recorder = (*Recorder)(nil)

// NewWebMRecorder starts an encoder for PCM in format f.
func NewWebMRecorder(ffmpegPath string, f audio.Format) (*Recorder, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if _, err := exec.LookPath(ffmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg: %s not found in PATH: %w", ffmpegPath, err)
	}

	cmd := exec.Command(ffmpegPath, webmArgs(f)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: open encoder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: open encoder stdout: %w", err)
	}
	r := &Recorder{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		events: make(chan audio.RecorderEvent, 64),
	}
	cmd.Stderr = &r.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start encoder: %w", err)
	}
	go r.readLoop()
	return r, nil
}

// WebMRecorderFactory returns an [audio.RecorderFactory] for WebM/Opus.
func WebMRecorderFactory(ffmpegPath string) audio.RecorderFactory {
	return func(f audio.Format) (audio.Recorder, error) {
		return NewWebMRecorder(ffmpegPath, f)
	}
}

func (r *Recorder) readLoop() {
	defer close(r.events)
	for {
		buf := make([]byte, chunkSize)
		n, err := r.stdout.Read(buf)
		if n > 0 {
			r.events <- audio.RecorderEvent{Kind: audio.RecorderChunk, Data: buf[:n]}
		}
		if err != nil {
			werr := r.cmd.Wait()
			r.mu.Lock()
			aborted, stopped := r.aborted, r.stopped
			r.mu.Unlock()
			switch {
			case aborted:
			case werr != nil || !stopped:
				msg := strings.TrimSpace(r.stderr.String())
				if msg == "" && werr != nil {
					msg = werr.Error()
				}
				r.events <- audio.RecorderEvent{Kind: audio.RecorderError, Err: fmt.Errorf("ffmpeg: encoder failed: %s", msg)}
			default:
				r.events <- audio.RecorderEvent{Kind: audio.RecorderStopped}
			}
			return
		}
	}
}

// Write implements [audio.Recorder].
func (r *Recorder) Write(pcm []byte) error {
	r.mu.Lock()
	done := r.stopped || r.aborted
	r.mu.Unlock()
	if done {
		return errNotRunning
	}
	if _, err := r.stdin.Write(pcm); err != nil {
		return fmt.Errorf("ffmpeg: write pcm: %w", err)
	}
	return nil
}

// Stop closes ffmpeg's stdin so the encoder flushes and finalises the
// container. The stopped event follows the last chunk.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.stopped || r.aborted {
		r.mu.Unlock()
		return errNotRunning
	}
	r.stopped = true
	r.mu.Unlock()
	if err := r.stdin.Close(); err != nil {
		return fmt.Errorf("ffmpeg: close encoder stdin: %w", err)
	}
	return nil
}

// Abort kills the encoder. Pending chunks are dropped by the caller.
func (r *Recorder) Abort() {
	r.mu.Lock()
	if r.aborted {
		r.mu.Unlock()
		return
	}
	r.aborted = true
	r.mu.Unlock()
	_ = r.stdin.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
}

// Events implements [audio.Recorder].
func (r *Recorder) Events() <-chan audio.RecorderEvent { return r.events }

// ContentType implements [audio.Recorder].
func (r *Recorder) ContentType() string { return audio.ContentTypeWebM }
