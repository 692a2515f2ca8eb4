package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/MrWong99/duckdebug/pkg/audio"
)

// Player is an [audio.Player] that plays each clip in a fresh ffplay process
// fed over stdin.
type Player struct {
	ffplayPath string
	volume     int
}

var _ audio.Player = (*Player)(nil)

// PlayerOption is a functional option for [NewPlayer].
type PlayerOption func(*Player)

// WithFFplayPath overrides the ffplay binary. Defaults to "ffplay".
func WithFFplayPath(path string) PlayerOption {
	return func(p *Player) { p.ffplayPath = path }
}

// WithVolume sets ffplay's volume (0-100). Defaults to 100.
func WithVolume(v int) PlayerOption {
	return func(p *Player) { p.volume = v }
}

// NewPlayer returns a player. It fails when ffplay cannot be found.
func NewPlayer(opts ...PlayerOption) (*Player, error) {
	p := &Player{ffplayPath: "ffplay", volume: 100}
	for _, o := range opts {
		o(p)
	}
	if _, err := exec.LookPath(p.ffplayPath); err != nil {
		return nil, fmt.Errorf("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH): %w", err)
	}
	return p, nil
}

func playArgs(volume int) []string {
	return []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-volume", strconv.Itoa(volume),
		"-i", "pipe:0",
	}
}

// Play implements [audio.Player]. ffplay is killed when ctx is cancelled.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Empty() {
		return fmt.Errorf("ffplay: empty clip")
	}
	cmd := exec.CommandContext(ctx, p.ffplayPath, playArgs(p.volume)...)
	cmd.Stdin = bytes.NewReader(clip.Data)
	cmd.Stdout = io.Discard
	var stderr syncBuffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffplay: %w: %s", err, stderr.String())
	}
	return nil
}
