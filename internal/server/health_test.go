package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string               { return f.name }
func (f *fakePinger) Ping(context.Context) error { return f.err }

// probe runs GET /api/ready against a server holding pingers and decodes the body.
func probe(t *testing.T, pingers ...Pinger) (*httptest.ResponseRecorder, readyResponse) {
	t.Helper()
	s := newTestServer()
	s.pingers = pingers

	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	var resp readyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode ready body %q: %v", w.Body.String(), err)
	}
	return w, resp
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var body struct{ Status string }
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Status != "ok" {
		t.Errorf("body: got %q (err %v)", w.Body.String(), err)
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()
	refused := errors.New("connection refused")

	tests := []struct {
		name      string
		pingers   []Pinger
		wantCode  int
		wantReady bool
		failing   map[string]bool
	}{
		{
			name:      "no dependencies",
			wantCode:  http.StatusOK,
			wantReady: true,
		},
		{
			name:      "sqlite and qdrant up",
			pingers:   []Pinger{&fakePinger{name: "sqlite"}, &fakePinger{name: "qdrant"}},
			wantCode:  http.StatusOK,
			wantReady: true,
		},
		{
			name:     "qdrant down",
			pingers:  []Pinger{&fakePinger{name: "sqlite"}, &fakePinger{name: "qdrant", err: refused}},
			wantCode: http.StatusServiceUnavailable,
			failing:  map[string]bool{"qdrant": true},
		},
		{
			name: "everything down",
			pingers: []Pinger{
				&fakePinger{name: "sqlite", err: errors.New("database is locked")},
				&fakePinger{name: "qdrant", err: refused},
			},
			wantCode: http.StatusServiceUnavailable,
			failing:  map[string]bool{"sqlite": true, "qdrant": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, resp := probe(t, tt.pingers...)

			if w.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", w.Code, tt.wantCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type: got %q", ct)
			}
			if resp.Ready != tt.wantReady {
				t.Errorf("ready: got %v, want %v", resp.Ready, tt.wantReady)
			}
			if len(resp.Checks) != len(tt.pingers) {
				t.Fatalf("checks: got %d, want %d", len(resp.Checks), len(tt.pingers))
			}
			for _, c := range resp.Checks {
				down := tt.failing[c.Name]
				if c.OK == down {
					t.Errorf("%s: ok=%v, want %v", c.Name, c.OK, !down)
				}
				if down != (c.Error != "") {
					t.Errorf("%s: error %q does not match ok=%v", c.Name, c.Error, c.OK)
				}
			}
		})
	}
}

func TestHandleReady_ChecksInRegistrationOrder(t *testing.T) {
	t.Parallel()
	_, resp := probe(t,
		&fakePinger{name: "sqlite"},
		&fakePinger{name: "qdrant", err: errors.New("down")},
		&fakePinger{name: "embedder"},
	)

	want := []string{"sqlite", "qdrant", "embedder"}
	if len(resp.Checks) != len(want) {
		t.Fatalf("checks: got %d, want %d", len(resp.Checks), len(want))
	}
	for i, name := range want {
		if resp.Checks[i].Name != name {
			t.Errorf("checks[%d]: got %q, want %q", i, resp.Checks[i].Name, name)
		}
	}
}

func TestDependencyPinger(t *testing.T) {
	t.Parallel()

	up := NewDependencyPinger("sqlite", &fakePinger{})
	if up.Name() != "sqlite" {
		t.Errorf("Name: got %q", up.Name())
	}
	if err := up.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	cause := errors.New("connection refused")
	down := NewDependencyPinger("qdrant", &fakePinger{err: cause})
	if err := down.Ping(context.Background()); !errors.Is(err, cause) {
		t.Errorf("Ping: want wrapped cause, got %v", err)
	}
}
