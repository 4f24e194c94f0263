// Package index implements the in-memory vector index that ranks documents
// against a query embedding by cosine similarity.
//
// Reads are lock-free: every mutation builds a new immutable snapshot and
// publishes it atomically, so a query never observes a half-written record
// and never waits on an upload or delete in progress.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/54b3r/docqa-go/internal/rag"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the dimension the index was configured with.
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")

	// ErrEmptyIndex is returned by TopK when no candidate document can be
	// ranked after filtering.
	ErrEmptyIndex = errors.New("index: no candidate documents")
)

// Hit is a single ranked result.
type Hit struct {
	// DocumentID is the id of the matching document.
	DocumentID string
	// Score is the cosine similarity to the query, in [-1, 1].
	Score float64
}

// entry is an immutable indexed record with its precomputed norm.
type entry struct {
	record rag.EmbeddingRecord
	norm   float64
}

// snapshot is an immutable view of the index. It is never mutated after
// publication.
type snapshot struct {
	entries map[string]*entry
}

// VectorIndex holds one embedding per document. It is safe for concurrent use.
type VectorIndex struct {
	// dim is the required vector length.
	dim int
	// mu serializes writers; readers only load current.
	mu sync.Mutex
	// current is the published snapshot.
	current atomic.Pointer[snapshot]
}

// New constructs an empty VectorIndex for vectors of length dim.
// A non-positive dim selects rag.DefaultDimension.
func New(dim int) *VectorIndex {
	if dim <= 0 {
		dim = rag.DefaultDimension
	}
	idx := &VectorIndex{dim: dim}
	idx.current.Store(&snapshot{entries: map[string]*entry{}})
	return idx
}

// Dimension returns the configured vector length.
func (x *VectorIndex) Dimension() int { return x.dim }

// Len returns the number of indexed documents.
func (x *VectorIndex) Len() int { return len(x.current.Load().entries) }

// Has reports whether documentID is indexed.
func (x *VectorIndex) Has(documentID string) bool {
	_, ok := x.current.Load().entries[documentID]
	return ok
}

// Upsert inserts or replaces the embedding for rec.DocumentID.
func (x *VectorIndex) Upsert(rec rag.EmbeddingRecord) error {
	if rec.DocumentID == "" {
		return fmt.Errorf("index: upsert: document id must not be empty")
	}
	if len(rec.Vector) != x.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(rec.Vector), x.dim)
	}
	e := newEntry(rec)

	x.mu.Lock()
	defer x.mu.Unlock()

	next := x.clone(1)
	next.entries[rec.DocumentID] = e
	x.current.Store(next)
	return nil
}

// Load replaces the whole index content with records in one publication.
// It is used to warm the index from an archive at startup. Every record is
// validated before anything is published.
func (x *VectorIndex) Load(records []rag.EmbeddingRecord) error {
	entries := make(map[string]*entry, len(records))
	for _, rec := range records {
		if len(rec.Vector) != x.dim {
			return fmt.Errorf("%w: document %s has %d, want %d", ErrDimensionMismatch, rec.DocumentID, len(rec.Vector), x.dim)
		}
		entries[rec.DocumentID] = newEntry(rec)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.current.Store(&snapshot{entries: entries})
	return nil
}

// Remove deletes the embedding for documentID. Removing an absent id is a no-op.
func (x *VectorIndex) Remove(documentID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.current.Load()
	if _, ok := cur.entries[documentID]; !ok {
		return
	}
	next := x.clone(0)
	delete(next.entries, documentID)
	x.current.Store(next)
}

// TopK returns up to k documents ranked by descending cosine similarity to
// query. When allowed is non-nil only those ids are considered. Ties are
// broken by ascending document id. Documents whose similarity is undefined
// (a zero stored vector, or a zero query) are excluded. ErrEmptyIndex is
// returned when nothing remains to rank.
func (x *VectorIndex) TopK(query []float32, k int, allowed map[string]struct{}) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(query), x.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("index: k must be positive, got %d", k)
	}

	snap := x.current.Load()
	qnorm := norm(query)

	hits := make([]Hit, 0, candidateCap(snap, allowed))
	visit := func(e *entry) {
		score, ok := cosine(query, qnorm, e.record.Vector, e.norm)
		if !ok {
			return
		}
		hits = append(hits, Hit{DocumentID: e.record.DocumentID, Score: score})
	}

	if allowed != nil {
		for id := range allowed {
			if e, ok := snap.entries[id]; ok {
				visit(e)
			}
		}
	} else {
		for _, e := range snap.entries {
			visit(e)
		}
	}

	if len(hits) == 0 {
		return nil, ErrEmptyIndex
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// clone copies the current snapshot's map with room for extra entries.
// Callers must hold x.mu.
func (x *VectorIndex) clone(extra int) *snapshot {
	cur := x.current.Load()
	entries := make(map[string]*entry, len(cur.entries)+extra)
	for id, e := range cur.entries {
		entries[id] = e
	}
	return &snapshot{entries: entries}
}

// newEntry copies rec.Vector so later mutation by the caller cannot reach
// the published snapshot.
func newEntry(rec rag.EmbeddingRecord) *entry {
	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	rec.Vector = vec
	return &entry{record: rec, norm: norm(vec)}
}

// candidateCap estimates the hit slice capacity.
func candidateCap(snap *snapshot, allowed map[string]struct{}) int {
	if allowed != nil && len(allowed) < len(snap.entries) {
		return len(allowed)
	}
	return len(snap.entries)
}
