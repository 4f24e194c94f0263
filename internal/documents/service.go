// Package documents manages the document lifecycle around the question
// answering engine: upload (fetch, embed, persist, index), removal, listing,
// and warming the in-memory vector index from the embedding archive at
// startup. It is used by both the HTTP API and the `docqa ingest` command.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// DefaultEmbedTimeout bounds the embedding call made during an upload.
const DefaultEmbedTimeout = 30 * time.Second

// errPDF is returned for PDF input, which is not supported.
var errPDF = errors.New("PDF documents are not supported, upload plain text")

// allowedExtensions lists the file extensions accepted on upload. A name
// without an extension is accepted as raw text.
var allowedExtensions = map[string]bool{
	"":      true,
	".txt":  true,
	".text": true,
	".md":   true,
}

// Store is the persistence the service needs: the read side used by the
// engine plus create and delete.
type Store interface {
	rag.DocumentSource

	// CreateDocument persists doc and returns it as stored.
	CreateDocument(ctx context.Context, doc rag.DocumentRef) (rag.DocumentRef, error)

	// DeleteDocument removes a document. Missing ids wrap store.ErrNotFound.
	DeleteDocument(ctx context.Context, id string) error

	// DocumentIDs returns the id of every stored document.
	DocumentIDs(ctx context.Context) ([]string, error)
}

// Index is the write side of the in-memory vector index.
type Index interface {
	// Dimension returns the vector length the index accepts.
	Dimension() int

	// Upsert inserts or replaces the embedding of rec.DocumentID.
	Upsert(rec rag.EmbeddingRecord) error

	// Remove deletes the embedding of documentID.
	Remove(documentID string)

	// Load replaces the whole index content with records.
	Load(records []rag.EmbeddingRecord) error
}

// Config wires the collaborators of a Service.
type Config struct {
	// Store persists document rows. Required.
	Store Store

	// Archive persists embeddings for warm-up. Required. It may be the same
	// value as Store.
	Archive rag.EmbeddingArchive

	// Index is the in-memory vector index kept in sync on upload and delete.
	// Required.
	Index Index

	// Embedder computes document embeddings. Required.
	Embedder rag.Embedder

	// Fetcher retrieves URL uploads. A default Fetcher is used when nil.
	Fetcher *Fetcher

	// EmbedTimeout bounds each embedding call. Defaults to DefaultEmbedTimeout.
	EmbedTimeout time.Duration
}

// UploadRequest describes one upload. Exactly one of Text or URL is set.
type UploadRequest struct {
	// OwnerID identifies the uploading user.
	OwnerID string

	// Name is the original file name. Derived from URL when empty.
	Name string

	// Text is the raw document text.
	Text string

	// URL is fetched when Text is empty.
	URL string
}

// Service coordinates the document store, the embedding archive, and the
// vector index. It is safe for concurrent use.
type Service struct {
	store        Store
	archive      rag.EmbeddingArchive
	index        Index
	embedder     rag.Embedder
	fetcher      *Fetcher
	embedTimeout time.Duration
}

// New constructs a Service from cfg.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("documents: store must not be nil")
	}
	if cfg.Archive == nil {
		return nil, fmt.Errorf("documents: archive must not be nil")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("documents: index must not be nil")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("documents: embedder must not be nil")
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewFetcher(FetchConfig{})
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultEmbedTimeout
	}
	return &Service{
		store:        cfg.Store,
		archive:      cfg.Archive,
		index:        cfg.Index,
		embedder:     cfg.Embedder,
		fetcher:      cfg.Fetcher,
		embedTimeout: cfg.EmbedTimeout,
	}, nil
}

// Upload embeds and persists a document, then publishes its embedding to the
// index. The document row is rolled back if the embedding cannot be archived.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (rag.DocumentRef, error) {
	const op = "upload"
	log := logging.FromContext(ctx)

	if strings.TrimSpace(req.OwnerID) == "" {
		return rag.DocumentRef{}, rag.Errorf(rag.KindInvalidInput, op, "owner id is required")
	}

	name, text := strings.TrimSpace(req.Name), req.Text
	fromURL := false
	if text == "" && req.URL != "" {
		fetchedName, body, err := s.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return rag.DocumentRef{}, rag.Wrap(rag.KindInvalidInput, "fetch", err)
		}
		if name == "" {
			name = fetchedName
			fromURL = true
		}
		text = body
	}

	if name == "" {
		return rag.DocumentRef{}, rag.Errorf(rag.KindInvalidInput, op, "document name is required")
	}
	if err := checkExtension(name, fromURL); err != nil {
		return rag.DocumentRef{}, rag.Wrap(rag.KindInvalidInput, op, err)
	}
	if strings.TrimSpace(text) == "" {
		return rag.DocumentRef{}, rag.Errorf(rag.KindInvalidInput, op, "document %q has no text", name)
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	vec, err := s.embedder.Embed(embedCtx, text)
	cancel()
	if err != nil {
		kind := rag.KindEmbeddingFailed
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			kind = rag.KindEmbeddingTimeout
		}
		return rag.DocumentRef{}, rag.Wrap(kind, "embed", err)
	}
	if len(vec) != s.index.Dimension() {
		return rag.DocumentRef{}, rag.Errorf(rag.KindDimensionMismatch, "embed",
			"embedder returned %d dimensions, index expects %d", len(vec), s.index.Dimension())
	}

	doc, err := s.store.CreateDocument(ctx, rag.DocumentRef{
		ID:      uuid.NewString(),
		OwnerID: req.OwnerID,
		Name:    name,
		Text:    text,
	})
	if err != nil {
		return rag.DocumentRef{}, rag.Wrap(rag.KindInternal, op, err)
	}

	rec := rag.EmbeddingRecord{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Vector:     vec,
		CreatedAt:  time.Now(),
	}
	if err := s.archive.SaveEmbedding(ctx, rec); err != nil {
		if derr := s.store.DeleteDocument(context.WithoutCancel(ctx), doc.ID); derr != nil {
			log.Error("upload rollback failed",
				slog.String("document_id", doc.ID),
				slog.Any("error", derr),
			)
		}
		return rag.DocumentRef{}, rag.Wrap(rag.KindInternal, op, err)
	}
	if err := s.index.Upsert(rec); err != nil {
		return rag.DocumentRef{}, rag.Wrap(rag.KindDimensionMismatch, op, err)
	}

	log.Info("document uploaded",
		slog.String("document_id", doc.ID),
		slog.String("owner_id", doc.OwnerID),
		slog.String("name", doc.Name),
		slog.Int("chars", len(doc.Text)),
	)
	return doc, nil
}

// Remove deletes an owned document, its archived embedding, and its index
// entry. A document owned by someone else is reported as not found. If the
// archive delete fails the document is already gone from the store and the
// index; the leftover embedding is dropped by the next Warm.
func (s *Service) Remove(ctx context.Context, ownerID, id string) error {
	const op = "remove"
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}

	if err := s.store.DeleteDocument(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return rag.Wrap(rag.KindNotFound, op, err)
		}
		return rag.Wrap(rag.KindInternal, op, err)
	}
	s.index.Remove(id)

	if err := s.archive.DeleteEmbedding(ctx, id); err != nil {
		return rag.Wrap(rag.KindInternal, op, err)
	}

	logging.FromContext(ctx).Info("document removed",
		slog.String("document_id", id),
		slog.String("owner_id", ownerID),
	)
	return nil
}

// List returns every document owned by ownerID.
func (s *Service) List(ctx context.Context, ownerID string) ([]rag.DocumentRef, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, rag.Errorf(rag.KindInvalidInput, "list", "owner id is required")
	}
	docs, err := s.store.ListDocuments(ctx, ownerID)
	if err != nil {
		return nil, rag.Wrap(rag.KindInternal, "list", err)
	}
	return docs, nil
}

// Get returns one document owned by ownerID.
func (s *Service) Get(ctx context.Context, ownerID, id string) (rag.DocumentRef, error) {
	const op = "get"
	if strings.TrimSpace(ownerID) == "" {
		return rag.DocumentRef{}, rag.Errorf(rag.KindInvalidInput, op, "owner id is required")
	}
	doc, err := s.store.GetDocument(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return rag.DocumentRef{}, rag.Wrap(rag.KindNotFound, op, err)
	}
	if err != nil {
		return rag.DocumentRef{}, rag.Wrap(rag.KindInternal, op, err)
	}
	if doc.OwnerID != ownerID {
		return rag.DocumentRef{}, rag.Errorf(rag.KindNotFound, op, "document not found: %s", id)
	}
	return doc, nil
}

// Warm replaces the index content with the archived embedding of every
// stored document. Records of the wrong dimension are skipped. Records whose
// document no longer exists, left behind when an archive delete failed, are
// skipped and deleted from the archive on a best-effort basis. It returns the
// number of records loaded.
func (s *Service) Warm(ctx context.Context) (int, error) {
	log := logging.FromContext(ctx)

	ids, err := s.store.DocumentIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("documents: warm: %w", err)
	}
	live := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		live[id] = struct{}{}
	}

	recs, err := s.archive.LoadEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("documents: warm: %w", err)
	}

	dim := s.index.Dimension()
	usable := make([]rag.EmbeddingRecord, 0, len(recs))
	orphans := 0
	for _, rec := range recs {
		if _, ok := live[rec.DocumentID]; !ok {
			orphans++
			log.Warn("skipping archived embedding of deleted document",
				slog.String("document_id", rec.DocumentID),
			)
			if err := s.archive.DeleteEmbedding(ctx, rec.DocumentID); err != nil {
				log.Warn("orphaned embedding not deleted",
					slog.String("document_id", rec.DocumentID),
					slog.Any("error", err),
				)
			}
			continue
		}
		if len(rec.Vector) != dim {
			log.Warn("skipping archived embedding with wrong dimension",
				slog.String("document_id", rec.DocumentID),
				slog.Int("dimension", len(rec.Vector)),
				slog.Int("want", dim),
			)
			continue
		}
		usable = append(usable, rec)
	}

	if err := s.index.Load(usable); err != nil {
		return 0, fmt.Errorf("documents: warm: %w", err)
	}
	log.Info("index warmed",
		slog.Int("documents", len(usable)),
		slog.Int("orphans", orphans),
		slog.Int("skipped", len(recs)-len(usable)),
	)
	return len(usable), nil
}

// checkExtension rejects PDFs and unknown extensions. Names derived from a
// URL only reject PDFs, since web paths rarely carry a .txt suffix.
func checkExtension(name string, fromURL bool) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".pdf" {
		return errPDF
	}
	if fromURL || allowedExtensions[ext] {
		return nil
	}
	return fmt.Errorf("unsupported file type %q, upload a .txt file", ext)
}
