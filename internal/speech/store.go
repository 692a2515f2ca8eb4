// Package speech keeps synthesized answers on disk until the client fetches
// them.
//
// Each clip is written under a random UUID name, so URLs cannot be guessed
// and names never collide. Files older than the TTL are removed by [Store.Run].
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Open for unknown, expired or malformed names.
var ErrNotFound = errors.New("speech: audio file not found")

// DefaultTTL is how long a clip stays available.
const DefaultTTL = 10 * time.Minute

var extensions = map[string]string{
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/ogg":  ".ogg",
	"audio/webm": ".webm",
}

// Store writes clips into one directory. It is safe for concurrent use.
type Store struct {
	dir   string
	ttl   time.Duration
	now   func() time.Time
	owned bool

	mu      sync.Mutex
	created map[string]time.Time
}

// Option is a functional option for [New].
type Option func(*Store)

// WithTTL sets how long clips stay available.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store in dir. An empty dir creates a private temporary
// directory that [Store.Close] removes.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{dir: dir, ttl: DefaultTTL, now: time.Now, created: make(map[string]time.Time)}
	for _, o := range opts {
		o(s)
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.dir == "" {
		d, err := os.MkdirTemp("", "duckd-audio-")
		if err != nil {
			return nil, fmt.Errorf("speech: create temp dir: %w", err)
		}
		s.dir, s.owned = d, true
	} else if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: create dir: %w", err)
	}
	return s, nil
}

// Dir returns the directory holding the clips.
func (s *Store) Dir() string { return s.dir }

// Save writes audio and returns the generated file name, e.g.
// "0b6c7f0e-….mp3".
func (s *Store) Save(audio []byte, contentType string) (string, error) {
	ext, ok := extensions[contentType]
	if !ok {
		ext = ".mp3"
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), audio, 0o644); err != nil {
		return "", fmt.Errorf("speech: write %s: %w", name, err)
	}
	s.mu.Lock()
	s.created[name] = s.now()
	s.mu.Unlock()
	return name, nil
}

// Open returns the clip stored under name. The caller closes the file.
func (s *Store) Open(name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	if _, err := uuid.Parse(strings.TrimSuffix(name, ext)); err != nil {
		return nil, "", ErrNotFound
	}
	contentType := ""
	for ct, e := range extensions {
		if e == ext {
			contentType = ct
		}
	}
	if contentType == "" {
		return nil, "", ErrNotFound
	}

	s.mu.Lock()
	created, ok := s.created[name]
	s.mu.Unlock()
	if !ok || s.now().Sub(created) > s.ttl {
		return nil, "", ErrNotFound
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("speech: open %s: %w", name, err)
	}
	return f, contentType, nil
}

// Sweep deletes every clip older than the TTL and returns how many were
// removed.
func (s *Store) Sweep() int {
	now := s.now()
	var expired []string
	s.mu.Lock()
	for name, created := range s.created {
		if now.Sub(created) > s.ttl {
			expired = append(expired, name)
			delete(s.created, name)
		}
	}
	s.mu.Unlock()

	for _, name := range expired {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("speech: remove expired clip", "file", name, "err", err)
		}
	}
	return len(expired)
}

// Run sweeps expired clips every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("expired speech clips removed", "count", n)
			}
		}
	}
}

// Close removes the directory if the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return os.RemoveAll(s.dir)
}
