package rag

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of the question-answering path so callers can
// map it to a response without parsing error strings.
type Kind string

const (
	// KindInvalidInput is an empty or malformed request.
	KindInvalidInput Kind = "invalid_input"
	// KindDimensionMismatch is a vector whose length differs from the index dimension.
	KindDimensionMismatch Kind = "dimension_mismatch"
	// KindNoRelevantDocuments means no candidate document could be ranked.
	// It is an expected outcome, not an infrastructure fault.
	KindNoRelevantDocuments Kind = "no_relevant_documents"
	// KindEmbeddingFailed is an error returned by the Embedder.
	KindEmbeddingFailed Kind = "embedding_failed"
	// KindGenerationFailed is an error returned by the ChatModel.
	KindGenerationFailed Kind = "generation_failed"
	// KindEmbeddingTimeout means the Embedder did not answer within the bound.
	KindEmbeddingTimeout Kind = "embedding_timeout"
	// KindGenerationTimeout means the ChatModel did not answer within the bound.
	KindGenerationTimeout Kind = "generation_timeout"
	// KindNotFound is a document lookup for an id that does not exist or
	// is not owned by the caller.
	KindNotFound Kind = "not_found"
	// KindInternal is any failure outside the taxonomy above.
	KindInternal Kind = "internal"
)

// Sentinel values for errors.Is matching. Any *Error with the same Kind
// matches, regardless of Op or cause.
var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrDimensionMismatch   = &Error{Kind: KindDimensionMismatch}
	ErrNoRelevantDocuments = &Error{Kind: KindNoRelevantDocuments}
	ErrEmbeddingFailed     = &Error{Kind: KindEmbeddingFailed}
	ErrGenerationFailed    = &Error{Kind: KindGenerationFailed}
	ErrEmbeddingTimeout    = &Error{Kind: KindEmbeddingTimeout}
	ErrGenerationTimeout   = &Error{Kind: KindGenerationTimeout}
	ErrNotFound            = &Error{Kind: KindNotFound}
)

// Error is the structured error returned across the engine boundary.
type Error struct {
	// Kind is the taxonomy class.
	Kind Kind
	// Op names the step that failed (e.g. "embed", "send").
	Op string
	// Err is the underlying cause, if any.
	Err error
}

// Errorf builds an *Error of the given kind whose cause is a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap builds an *Error of the given kind around err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Detail returns the cause message without the kind prefix, suitable for
// the "detail" field of an API error body.
func (e *Error) Detail() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when err carries no classification. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
