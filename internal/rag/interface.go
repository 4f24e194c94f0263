// Package rag defines the value types and collaborator interfaces shared by
// the retrieval-and-conversation engine: documents, embeddings, the embedding
// backend, the generative chat backend, and the document source.
// Concrete implementations (SQLite, Qdrant, Gemini, Ollama, etc.) satisfy
// these interfaces so the engine never depends on a specific backend.
package rag

import (
	"context"
	"time"
)

// DefaultDimension is the embedding vector length used when none is
// configured. It matches Gemini text-embedding-004 and nomic-embed-text.
const DefaultDimension = 768

// DocumentRef identifies an uploaded document and carries its extracted text.
// The engine treats it as read-only for the duration of a query.
type DocumentRef struct {
	// ID is the opaque unique identifier of the document.
	ID string

	// OwnerID identifies the user who uploaded the document.
	OwnerID string

	// Name is the original file name supplied at upload time.
	Name string

	// Text is the full extracted text of the document.
	Text string

	// UploadedAt is when the document was persisted. Zero when unknown.
	UploadedAt time.Time
}

// EmbeddingRecord is the single active embedding of a document.
type EmbeddingRecord struct {
	// ID is the opaque identifier of this embedding.
	ID string

	// DocumentID is the DocumentRef.ID this vector was computed from.
	DocumentID string

	// Vector is the dense embedding. Its length must match the index dimension.
	Vector []float32

	// CreatedAt is when the embedding was computed.
	CreatedAt time.Time
}

// Embedder converts text into a dense vector embedding.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed returns the embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Conversation is an opaque, provider-side conversation handle. Sending a
// message through it continues the same multi-turn exchange.
// Implementations must be safe to call from multiple goroutines.
type Conversation interface {
	// ID returns a stable identifier for logging and inspection.
	ID() string

	// Send delivers message and returns the model's reply. A failed or
	// abandoned send must not alter the conversation's history.
	Send(ctx context.Context, message string) (string, error)
}

// ChatModel creates conversation handles on a generative model backend.
// Implementations must be safe to call from multiple goroutines.
type ChatModel interface {
	// NewConversation starts an empty conversation against the named model.
	// An empty model selects the backend's configured default.
	NewConversation(ctx context.Context, model string) (Conversation, error)
}

// DocumentSource is the read side of the document-storage collaborator.
// Implementations must be safe to call from multiple goroutines.
type DocumentSource interface {
	// ListDocuments returns every document owned by ownerID.
	ListDocuments(ctx context.Context, ownerID string) ([]DocumentRef, error)

	// GetDocument returns a single document by id.
	GetDocument(ctx context.Context, id string) (DocumentRef, error)
}

// EmbeddingArchive persists embedding records so the in-memory index can be
// rebuilt after a restart. Implementations must be safe for concurrent use.
type EmbeddingArchive interface {
	// SaveEmbedding inserts or replaces the embedding for rec.DocumentID.
	SaveEmbedding(ctx context.Context, rec EmbeddingRecord) error

	// DeleteEmbedding removes the embedding of documentID. Absent is not an error.
	DeleteEmbedding(ctx context.Context, documentID string) error

	// LoadEmbeddings returns every archived embedding.
	LoadEmbeddings(ctx context.Context) ([]EmbeddingRecord, error)
}
