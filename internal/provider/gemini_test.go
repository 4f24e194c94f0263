package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// geminiServer answers generateContent calls with "reply N" and records the
// number of contents each request carried.
type geminiServer struct {
	mu       sync.Mutex
	contents []int
	paths    []string
	onReply  func()
}

func (g *geminiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":generateContent") {
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
		return
	}
	var req struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	g.contents = append(g.contents, len(req.Contents))
	g.paths = append(g.paths, r.URL.Path)
	n := len(g.contents)
	onReply := g.onReply
	g.mu.Unlock()

	if onReply != nil {
		onReply()
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"reply %d"}]},"finishReason":"STOP"}]}`, n)
}

func (g *geminiServer) sent() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.contents...)
}

func newTestGemini(t *testing.T, srv *geminiServer) *GeminiChat {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	g, err := NewGeminiChat(context.Background(), &Config{
		Backend: BackendGemini,
		Gemini:  ProviderGemini{APIKey: "test-key", Model: DefaultGeminiModel, BaseURL: ts.URL},
	})
	if err != nil {
		t.Fatalf("NewGeminiChat: %v", err)
	}
	return g
}

func TestGeminiConversation_KeepsHistory(t *testing.T) {
	t.Parallel()
	srv := &geminiServer{}
	g := newTestGemini(t, srv)

	conv, err := g.NewConversation(context.Background(), "")
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if conv.ID() == "" {
		t.Error("conversation id must not be empty")
	}

	for i, want := range []string{"reply 1", "reply 2"} {
		got, err := conv.Send(context.Background(), fmt.Sprintf("question %d", i+1))
		if err != nil {
			t.Fatalf("Send %d: %v", i+1, err)
		}
		if got != want {
			t.Errorf("Send %d: got %q, want %q", i+1, got, want)
		}
	}

	// The second request replays the first turn: user, model, user.
	if got := srv.sent(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("contents per request: got %v, want [1 3]", got)
	}
	if n := conv.(*geminiConversation).turns(); n != 4 {
		t.Errorf("recorded history: got %d entries, want 4", n)
	}
}

func TestGeminiConversation_ModelOverride(t *testing.T) {
	t.Parallel()
	srv := &geminiServer{}
	g := newTestGemini(t, srv)

	conv, err := g.NewConversation(context.Background(), "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if _, err := conv.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	srv.mu.Lock()
	path := srv.paths[0]
	srv.mu.Unlock()
	if !strings.Contains(path, "gemini-2.0-flash") {
		t.Errorf("request path %q does not name the requested model", path)
	}
}

// expiringCtx never signals Done, so the transport completes the call, but
// reports DeadlineExceeded once expired is set.
type expiringCtx struct {
	context.Context
	expired *atomic.Bool
}

func (c expiringCtx) Err() error {
	if c.expired.Load() {
		return context.DeadlineExceeded
	}
	return nil
}

func TestGeminiConversation_LateReplyNotRecorded(t *testing.T) {
	t.Parallel()
	var expired atomic.Bool
	srv := &geminiServer{}
	g := newTestGemini(t, srv)

	conv, err := g.NewConversation(context.Background(), "")
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if _, err := conv.Send(context.Background(), "first"); err != nil {
		t.Fatalf("Send first: %v", err)
	}

	srv.mu.Lock()
	srv.onReply = func() { expired.Store(true) }
	srv.mu.Unlock()

	ctx := expiringCtx{Context: context.Background(), expired: &expired}
	if _, err := conv.Send(ctx, "too late"); err == nil {
		t.Fatal("expected an error for a reply after the deadline")
	}
	if n := conv.(*geminiConversation).turns(); n != 2 {
		t.Fatalf("history after late reply: got %d entries, want 2", n)
	}

	srv.mu.Lock()
	srv.onReply = nil
	srv.mu.Unlock()

	if _, err := conv.Send(context.Background(), "third"); err != nil {
		t.Fatalf("Send third: %v", err)
	}
	// first turn (2) plus the new question; the late turn is gone.
	if got := srv.sent(); got[len(got)-1] != 3 {
		t.Errorf("contents on the next request: got %d, want 3", got[len(got)-1])
	}
}

func TestGeminiConversation_ServerError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"code":500,"message":"backend unavailable","status":"INTERNAL"}}`)
	}))
	t.Cleanup(ts.Close)

	g, err := NewGeminiChat(context.Background(), &Config{
		Backend: BackendGemini,
		Gemini:  ProviderGemini{APIKey: "test-key", Model: DefaultGeminiModel, BaseURL: ts.URL},
	})
	if err != nil {
		t.Fatalf("NewGeminiChat: %v", err)
	}
	conv, err := g.NewConversation(context.Background(), "")
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if _, err := conv.Send(context.Background(), "hi"); err == nil || !strings.Contains(err.Error(), "gemini send") {
		t.Errorf("expected wrapped send error, got %v", err)
	}
	if n := conv.(*geminiConversation).turns(); n != 0 {
		t.Errorf("failed send recorded %d history entries", n)
	}
}
