package speech

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T, clock *fakeClock) *Store {
	t.Helper()
	s, err := New(t.TempDir(), WithTTL(time.Minute), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSaveAndOpen(t *testing.T) {
	t.Parallel()
	s := newStore(t, &fakeClock{now: time.Unix(1000, 0)})

	name, err := s.Save([]byte("ID3mp3"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(name, ".mp3") {
		t.Errorf("want .mp3 name, got %q", name)
	}

	f, ct, err := s.Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if ct != "audio/mpeg" {
		t.Errorf("want audio/mpeg, got %q", ct)
	}
	data, _ := io.ReadAll(f)
	if string(data) != "ID3mp3" {
		t.Errorf("want stored bytes back, got %q", data)
	}

	other, _ := s.Save([]byte("x"), "audio/mpeg")
	if other == name {
		t.Error("want unique names")
	}
}

func TestOpen_RejectsUnknownNames(t *testing.T) {
	t.Parallel()
	s := newStore(t, &fakeClock{now: time.Unix(1000, 0)})
	if err := os.WriteFile(filepath.Join(s.Dir(), "secret.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{
		"secret.mp3",
		"../etc/passwd",
		"0b6c7f0e-7b1f-4c41-9d0a-1f1c2b3a4d5e.mp3",
		"0b6c7f0e-7b1f-4c41-9d0a-1f1c2b3a4d5e.exe",
	} {
		if _, _, err := s.Open(name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q): want ErrNotFound, got %v", name, err)
		}
	}
}

func TestSweep(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := newStore(t, clock)

	old, _ := s.Save([]byte("old"), "audio/mpeg")
	clock.Advance(45 * time.Second)
	fresh, _ := s.Save([]byte("fresh"), "audio/mpeg")
	clock.Advance(30 * time.Second)

	if _, _, err := s.Open(old); !errors.Is(err, ErrNotFound) {
		t.Errorf("want expired clip hidden before sweep, got %v", err)
	}
	if n := s.Sweep(); n != 1 {
		t.Errorf("want 1 clip swept, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), old)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want expired file removed, stat err = %v", err)
	}
	f, _, err := s.Open(fresh)
	if err != nil {
		t.Fatalf("want fresh clip available, got %v", err)
	}
	f.Close()
}

func TestNew_TempDirRemovedOnClose(t *testing.T) {
	t.Parallel()
	s, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := os.Stat(s.Dir()); err != nil {
		t.Fatalf("want temp dir created: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(s.Dir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want temp dir removed, stat err = %v", err)
	}
}
