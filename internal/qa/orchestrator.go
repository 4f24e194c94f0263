// Package qa implements the question-answering path: embed the query, rank
// the caller's documents, assemble context, and continue the caller's
// conversation with the chat model.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/assembler"
	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/index"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// DefaultTopK is the number of documents that feed an answer.
	DefaultTopK = 3
	// DefaultEmbedTimeout bounds a single embedding call.
	DefaultEmbedTimeout = 30 * time.Second
	// DefaultGenerateTimeout bounds a single chat model call.
	DefaultGenerateTimeout = 2 * time.Minute
)

// Ranker ranks indexed documents against a query vector.
type Ranker interface {
	TopK(query []float32, k int, allowed map[string]struct{}) ([]index.Hit, error)
}

// Sessions resolves the conversation handle for a user.
type Sessions interface {
	GetOrCreate(ctx context.Context, key string, reset bool) (rag.Conversation, error)
}

// Config holds the collaborators and limits of an Orchestrator.
type Config struct {
	// Embedder converts the query into a vector. Required.
	Embedder rag.Embedder
	// Index ranks documents. Required.
	Index Ranker
	// Documents lists and resolves the caller's documents. Required.
	Documents rag.DocumentSource
	// Sessions holds per-user conversations. Required.
	Sessions Sessions
	// Assembler builds the context block. Nil means no size limit.
	Assembler *assembler.Assembler
	// TopK is the number of documents retrieved per query. Defaults to DefaultTopK.
	TopK int
	// EmbedTimeout bounds the embedding call. Defaults to DefaultEmbedTimeout.
	EmbedTimeout time.Duration
	// GenerateTimeout bounds the chat model call. Defaults to DefaultGenerateTimeout.
	GenerateTimeout time.Duration
}

// Request is a single question from a user.
type Request struct {
	// Query is the natural-language question.
	Query string
	// OwnerID identifies the asking user; it scopes documents and the session.
	OwnerID string
	// DocumentIDs optionally restricts retrieval to these documents.
	// Ids the owner does not own are ignored.
	DocumentIDs []string
	// Reset starts a new conversation before sending.
	Reset bool
}

// Result is a successful answer.
type Result struct {
	// Text is the chat model's reply.
	Text string
	// Documents are the ids whose text was placed in the context, most relevant first.
	Documents []string
	// Names are the file names of Documents, in the same order.
	Names []string
	// Scores are the similarities of Documents, in the same order.
	Scores []float64
	// ConversationID identifies the conversation the reply belongs to.
	ConversationID string
}

// Orchestrator answers questions against a user's documents. It is safe for
// concurrent use; no lock is held while an external call is awaited.
type Orchestrator struct {
	embedder        rag.Embedder
	index           Ranker
	docs            rag.DocumentSource
	sessions        Sessions
	assembler       *assembler.Assembler
	topK            int
	embedTimeout    time.Duration
	generateTimeout time.Duration
}

// New validates cfg and constructs an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Embedder == nil:
		return nil, fmt.Errorf("qa: embedder is required")
	case cfg.Index == nil:
		return nil, fmt.Errorf("qa: index is required")
	case cfg.Documents == nil:
		return nil, fmt.Errorf("qa: document source is required")
	case cfg.Sessions == nil:
		return nil, fmt.Errorf("qa: session store is required")
	}

	o := &Orchestrator{
		embedder:        cfg.Embedder,
		index:           cfg.Index,
		docs:            cfg.Documents,
		sessions:        cfg.Sessions,
		assembler:       cfg.Assembler,
		topK:            cfg.TopK,
		embedTimeout:    cfg.EmbedTimeout,
		generateTimeout: cfg.GenerateTimeout,
	}
	if o.assembler == nil {
		o.assembler = assembler.New(0)
	}
	if o.topK <= 0 {
		o.topK = DefaultTopK
	}
	if o.embedTimeout <= 0 {
		o.embedTimeout = DefaultEmbedTimeout
	}
	if o.generateTimeout <= 0 {
		o.generateTimeout = DefaultGenerateTimeout
	}
	return o, nil
}

// Answer runs the full question-answering path for req. Every failure is
// returned as a *rag.Error whose Kind classifies it; the caller's
// conversation is left untouched on failure.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*Result, error) {
	log := logging.FromContext(ctx).With(slog.String("owner_id", req.OwnerID))

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, rag.Errorf(rag.KindInvalidInput, "validate", "query must not be empty")
	}
	if req.OwnerID == "" {
		return nil, rag.Errorf(rag.KindInvalidInput, "validate", "owner id must not be empty")
	}

	candidates, byID, err := o.candidates(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		log.Info("qa: no candidate documents")
		return nil, rag.Errorf(rag.KindNoRelevantDocuments, "candidates", "no documents available for this user")
	}

	embedStart := time.Now()
	vec, err := callWithTimeout(ctx, o.embedTimeout, func(ctx context.Context) ([]float32, error) {
		return o.embedder.Embed(ctx, query)
	})
	if err != nil {
		kind := classify(err, rag.KindEmbeddingFailed, rag.KindEmbeddingTimeout)
		log.Warn("qa: embedding failed",
			slog.String("kind", string(kind)),
			slog.Duration("elapsed", time.Since(embedStart)),
			slog.String("error", err.Error()),
		)
		return nil, rag.Wrap(kind, "embed", err)
	}

	hits, err := o.index.TopK(vec, o.topK, candidates)
	switch {
	case errors.Is(err, index.ErrEmptyIndex):
		log.Info("qa: no rankable documents", slog.Int("candidates", len(candidates)))
		return nil, rag.Wrap(rag.KindNoRelevantDocuments, "rank", err)
	case errors.Is(err, index.ErrDimensionMismatch):
		return nil, rag.Wrap(rag.KindDimensionMismatch, "rank", err)
	case err != nil:
		return nil, rag.Wrap(rag.KindInternal, "rank", err)
	}

	ranked := make([]rag.DocumentRef, 0, len(hits))
	for _, h := range hits {
		ranked = append(ranked, byID[h.DocumentID])
	}
	contextText, rep := o.assembler.AssembleWithReport(ranked)
	if rep.Dropped > 0 {
		log.Warn("qa: context limit dropped documents",
			slog.Int("kept", rep.Kept),
			slog.Int("dropped", rep.Dropped),
		)
	}

	conv, err := o.sessions.GetOrCreate(ctx, req.OwnerID, req.Reset)
	if err != nil {
		log.Error("qa: session unavailable", slog.String("error", err.Error()))
		return nil, rag.Wrap(rag.KindGenerationFailed, "session", err)
	}

	message := BuildMessage(query, contextText)
	log.Debug("qa: sending message",
		slog.String("conversation_id", conv.ID()),
		slog.Bool("reset", req.Reset),
		slog.Int("context_docs", rep.Kept),
		slog.Int("message_tokens_est", budget.Estimate(message)),
	)

	sendStart := time.Now()
	reply, err := callWithTimeout(ctx, o.generateTimeout, func(ctx context.Context) (string, error) {
		return conv.Send(ctx, message)
	})
	if err != nil {
		kind := classify(err, rag.KindGenerationFailed, rag.KindGenerationTimeout)
		log.Warn("qa: generation failed",
			slog.String("kind", string(kind)),
			slog.String("conversation_id", conv.ID()),
			slog.Duration("elapsed", time.Since(sendStart)),
			slog.String("error", err.Error()),
		)
		return nil, rag.Wrap(kind, "send", err)
	}

	res := &Result{
		Text:           reply,
		Documents:      make([]string, 0, rep.Kept),
		Names:          make([]string, 0, rep.Kept),
		Scores:         make([]float64, 0, rep.Kept),
		ConversationID: conv.ID(),
	}
	for _, h := range hits[:rep.Kept] {
		res.Documents = append(res.Documents, h.DocumentID)
		res.Names = append(res.Names, byID[h.DocumentID].Name)
		res.Scores = append(res.Scores, h.Score)
	}

	log.Info("qa: answered",
		slog.String("conversation_id", conv.ID()),
		slog.Any("documents", res.Documents),
		slog.Duration("generate", time.Since(sendStart)),
	)
	return res, nil
}

// candidates resolves the set of document ids the query may rank against and
// an id-to-document lookup. When req.DocumentIDs is set it is intersected with
// the owner's documents.
func (o *Orchestrator) candidates(ctx context.Context, req Request) (map[string]struct{}, map[string]rag.DocumentRef, error) {
	owned, err := o.docs.ListDocuments(ctx, req.OwnerID)
	if err != nil {
		return nil, nil, rag.Wrap(rag.KindInternal, "list documents", err)
	}

	byID := make(map[string]rag.DocumentRef, len(owned))
	for _, d := range owned {
		byID[d.ID] = d
	}

	allowed := make(map[string]struct{}, len(owned))
	if len(req.DocumentIDs) == 0 {
		for id := range byID {
			allowed[id] = struct{}{}
		}
		return allowed, byID, nil
	}

	for _, id := range req.DocumentIDs {
		if _, ok := byID[id]; ok {
			allowed[id] = struct{}{}
		}
	}
	return allowed, byID, nil
}

// classify maps an external call error to its failure or timeout kind.
func classify(err error, failed, timeout rag.Kind) rag.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeout
	}
	return failed
}
