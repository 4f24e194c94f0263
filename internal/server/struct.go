package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/documents"
	"github.com/54b3r/docqa-go/internal/qa"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed the answer path's embed and generate timeouts combined.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per client on
	// POST /api/ask (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per client. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// OwnerHeader names the header carrying the caller's user id, set by the
	// upstream gateway. Defaults to X-User-ID.
	OwnerHeader string
	// MaxBodyBytes caps request bodies. Defaults to 10 MiB.
	MaxBodyBytes int64
	// IndexSize reports the number of indexed documents for the
	// docqa_index_documents gauge. Optional.
	IndexSize func() int
	// ActiveSessions reports the number of live conversations for the
	// docqa_sessions_active gauge. Optional.
	ActiveSessions func() int
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// answerer is the interface handleAsk calls. *qa.Orchestrator satisfies it;
// tests inject a fake.
type answerer interface {
	// Answer runs the question-answering path for req.
	Answer(ctx context.Context, req qa.Request) (*qa.Result, error)
}

// documentService is the interface the document handlers call.
// *documents.Service satisfies it.
type documentService interface {
	// Upload embeds, persists, and indexes a document.
	Upload(ctx context.Context, req documents.UploadRequest) (rag.DocumentRef, error)
	// Remove deletes an owned document.
	Remove(ctx context.Context, ownerID, id string) error
	// List returns the owner's documents.
	List(ctx context.Context, ownerID string) ([]rag.DocumentRef, error)
	// Get returns one owned document.
	Get(ctx context.Context, ownerID, id string) (rag.DocumentRef, error)
}

// Server is the HTTP server exposing the question-answering engine.
type Server struct {
	// answerer runs the answer path; an *qa.Orchestrator in production.
	answerer answerer
	// docs manages uploads and deletions.
	docs documentService
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Query is the user's natural language question.
	Query string `json:"query"`
	// DocumentIDs optionally restricts retrieval to these documents.
	DocumentIDs []string `json:"document_ids,omitempty"`
	// NewChat starts a fresh conversation before answering.
	NewChat bool `json:"new_chat,omitempty"`
}

// askDocument describes one document that contributed to an answer.
type askDocument struct {
	// ID is the document id.
	ID string `json:"id"`
	// Name is the document's file name.
	Name string `json:"document_name"`
	// Score is the cosine similarity to the query.
	Score float64 `json:"score"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	// Response is the model's answer text.
	Response string `json:"response"`
	// Documents lists the documents placed in the context, most relevant first.
	Documents []askDocument `json:"documents"`
	// ConversationID identifies the conversation the answer belongs to.
	ConversationID string `json:"conversation_id,omitempty"`
}

// uploadRequest is the JSON body for POST /api/documents.
type uploadRequest struct {
	// Name is the file name, e.g. "notes.txt". Optional with URL.
	Name string `json:"name"`
	// Text is the raw document text.
	Text string `json:"text,omitempty"`
	// URL is fetched when Text is empty.
	URL string `json:"url,omitempty"`
}

// documentResponse is one entry of GET /api/documents.
type documentResponse struct {
	// ID is the document id.
	ID string `json:"id"`
	// Name is the original file name.
	Name string `json:"document_name"`
	// UploadedAt is formatted "2006-01-02 15:04:05" in UTC.
	UploadedAt string `json:"uploaded_at"`
}

// documentDetailResponse is the JSON response for GET /api/documents/{id}.
type documentDetailResponse struct {
	documentResponse
	// Text is the stored document text.
	Text string `json:"text"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	// Error is the machine-readable failure kind, e.g. "no_relevant_documents".
	Error string `json:"error"`
	// Detail is a human-readable explanation.
	Detail string `json:"detail,omitempty"`
}
