package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// qdrantScrollPage is the number of points fetched per scroll request when
// warming the index.
const qdrantScrollPage = 256

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use (default: docqa_embeddings).
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantArchive implements EmbeddingArchive on a Qdrant collection. Each
// document's embedding is one point whose id is the document id, so an
// upsert replaces the previous embedding. Document ids must be UUIDs.
type QdrantArchive struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration.
	cfg *QdrantConfig
}

// NewQdrantArchive connects to Qdrant and ensures the target collection
// exists, creating it with cosine distance if necessary.
func NewQdrantArchive(ctx context.Context, cfg *QdrantConfig) (*QdrantArchive, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "docqa_embeddings"
	}
	if cfg.VectorSize == 0 {
		cfg.VectorSize = DefaultDimension
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	a := &QdrantArchive{client: client, cfg: cfg}
	if err := a.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return a, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (a *QdrantArchive) ensureCollection(ctx context.Context) error {
	exists, err := a.client.CollectionExists(ctx, a.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = a.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: a.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     a.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", a.cfg.Collection, err)
	}
	return nil
}

// SaveEmbedding upserts the point for rec.DocumentID.
func (a *QdrantArchive) SaveEmbedding(ctx context.Context, rec EmbeddingRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(rec.DocumentID),
		Vectors: qdrant.NewVectors(rec.Vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			"record_id":  rec.ID,
			"created_at": rec.CreatedAt.Unix(),
		}),
	}

	wait := true
	_, err := a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: a.cfg.Collection,
		Wait:           &wait,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %s: %w", rec.DocumentID, err)
	}
	return nil
}

// DeleteEmbedding removes the point for documentID. Absent is not an error.
func (a *QdrantArchive) DeleteEmbedding(ctx context.Context, documentID string) error {
	wait := true
	_, err := a.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: a.cfg.Collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(documentID)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete %s: %w", documentID, err)
	}
	return nil
}

// LoadEmbeddings scrolls the whole collection with vectors. The scroll
// offset is inclusive, so each page after the first repeats its offset point,
// which is skipped.
func (a *QdrantArchive) LoadEmbeddings(ctx context.Context) ([]EmbeddingRecord, error) {
	var (
		recs   []EmbeddingRecord
		offset *qdrant.PointId
		limit  uint32 = qdrantScrollPage
	)
	for {
		points, err := a.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: a.cfg.Collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll: %w", err)
		}

		for _, p := range points {
			if offset != nil && p.GetId().GetUuid() == offset.GetUuid() {
				continue
			}
			recs = append(recs, recordFromPoint(p))
		}

		if len(points) < int(limit) {
			return recs, nil
		}
		offset = points[len(points)-1].GetId()
	}
}

// Ping calls the Qdrant HealthCheck RPC.
func (a *QdrantArchive) Ping(ctx context.Context) error {
	if _, err := a.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (a *QdrantArchive) Close() error {
	return a.client.Close()
}

func recordFromPoint(p *qdrant.RetrievedPoint) EmbeddingRecord {
	rec := EmbeddingRecord{
		DocumentID: p.GetId().GetUuid(),
		Vector:     p.GetVectors().GetVector().GetData(), //nolint:staticcheck // dense data accessor kept for older servers
	}
	if v, ok := p.GetPayload()["record_id"]; ok {
		rec.ID = v.GetStringValue()
	}
	if v, ok := p.GetPayload()["created_at"]; ok {
		rec.CreatedAt = time.Unix(v.GetIntegerValue(), 0)
	}
	return rec
}
