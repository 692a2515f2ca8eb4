package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func get(t *testing.T, h *Handler, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("want JSON content type, got %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "never", Check: func(context.Context) error { return errors.New("down") }})
	code, body := get(t, h, "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("want 200 ok, got %d %q", code, body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantChecks map[string]string
	}{
		{
			name:     "no checkers",
			wantCode: http.StatusOK,
		},
		{
			name:       "all pass",
			checkers:   []Checker{Ping("database", pinger{}), Present("providers", map[string]any{"llm": 1})},
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "providers": "ok"},
		},
		{
			name:       "database down",
			checkers:   []Checker{Ping("database", pinger{err: errors.New("connection refused")}), Present("providers", map[string]any{"llm": 1})},
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "fail: connection refused", "providers": "ok"},
		},
		{
			name:       "provider missing",
			checkers:   []Checker{Present("providers", map[string]any{"tts": nil})},
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"providers": "fail: tts not configured"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := get(t, New(tt.checkers...), "/readyz")
			if code != tt.wantCode {
				t.Errorf("want status %d, got %d", tt.wantCode, code)
			}
			for k, want := range tt.wantChecks {
				if got := body.Checks[k]; got != want {
					t.Errorf("check %s: want %q, got %q", k, want, got)
				}
			}
		})
	}
}

func TestReadyz_RunsChecksConcurrently(t *testing.T) {
	t.Parallel()
	var running atomic.Int32
	release := make(chan struct{})
	slow := func(ctx context.Context) error {
		if running.Add(1) == 2 {
			close(release)
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(Checker{Name: "a", Check: slow}, Checker{Name: "b", Check: slow}).WithTimeout(2 * time.Second)

	code, body := get(t, h, "/readyz")
	if code != http.StatusOK {
		t.Errorf("want both checks to meet, got %d %v", code, body.Checks)
	}
}

func TestReadyz_Timeout(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}).WithTimeout(20 * time.Millisecond)

	code, body := get(t, h, "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("want 503, got %d", code)
	}
	if body.Checks["slow"] != "fail: "+context.DeadlineExceeded.Error() {
		t.Errorf("want deadline failure, got %q", body.Checks["slow"])
	}
}
