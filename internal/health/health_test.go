package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeRunner struct {
	running bool
	err     error
}

func (f fakeRunner) Running() bool { return f.running }
func (f fakeRunner) Err() error    { return f.err }

func serve(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	rec := serve(t, New(), "/healthz")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if body := decode(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz_AllCheckersPass(t *testing.T) {
	t.Parallel()
	h := New(
		SessionChecker("session", fakeRunner{running: true}),
		Checker{Name: "recorder", Check: func(context.Context) error { return nil }},
	)

	rec := serve(t, h, "/readyz")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decode(t, rec)
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	for _, name := range []string{"session", "recorder"} {
		if body.Checks[name] != "ok" {
			t.Errorf("%s check = %q, want ok", name, body.Checks[name])
		}
	}
}

func TestReadyz_StoppedSession(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		runner  fakeRunner
		wantMsg string
	}{
		{"clean stop", fakeRunner{}, "fail: not running"},
		{"device error", fakeRunner{err: errors.New("capture device lost")}, "fail: capture device lost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, New(SessionChecker("session", tt.runner)), "/readyz")
			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
			}
			body := decode(t, rec)
			if body.Status != "fail" {
				t.Errorf("status = %q, want fail", body.Status)
			}
			if body.Checks["session"] != tt.wantMsg {
				t.Errorf("session check = %q, want %q", body.Checks["session"], tt.wantMsg)
			}
		})
	}
}

func TestReadyz_CheckerGetsDeadline(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "deadline", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}})
	if rec := serve(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestStatusz(t *testing.T) {
	t.Parallel()
	h := New().WithStatus(func() any {
		return map[string]any{"SessionID": "abc", "QueueLength": 3}
	})
	rec := serve(t, h, "/statusz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"QueueLength":3`) {
		t.Errorf("body = %s, want the snapshot", rec.Body.String())
	}
}

func TestStatusz_NotConfigured(t *testing.T) {
	t.Parallel()
	if rec := serve(t, New(), "/statusz"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestStatusz_UnencodableSnapshot(t *testing.T) {
	t.Parallel()
	h := New().WithStatus(func() any { return make(chan int) })
	if rec := serve(t, h, "/statusz"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
