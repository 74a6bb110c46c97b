package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// Payload keys written by the indexing job.
const (
	PayloadChunkID = "chunk_id"
	PayloadSource  = "source"
)

// QdrantConfig locates a Qdrant collection.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// pointQuerier is the subset of *qdrant.Client used for search.
type pointQuerier interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// QdrantIndex searches a Qdrant collection whose points carry the chunk id
// either as numeric point id or as a "chunk_<n>" payload value.
type QdrantIndex struct {
	client     pointQuerier
	collection string
}

// NewQdrantIndex connects to Qdrant over gRPC.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, errors.ServiceUnavailable("qdrant", fmt.Errorf("failed to create qdrant client: %w", err))
	}

	slog.Info("dense_index_connected",
		slog.String("backend", BackendQdrant),
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("collection", cfg.Collection))
	return &QdrantIndex{client: client, collection: cfg.Collection}, nil
}

// Search implements DenseIndex. Qdrant returns cosine similarity directly.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, topN int, source string) ([]Scored, error) {
	if topN <= 0 {
		return []Scored{}, nil
	}

	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topN)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if source != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(PayloadSource, source),
			},
		}
	}

	points, err := q.client.Query(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.ServiceUnavailable("qdrant", err)
	}

	results := make([]Scored, 0, len(points))
	for _, point := range points {
		id, ok := pointChunkID(point)
		if !ok {
			slog.Warn("qdrant_point_without_chunk_id", slog.String("collection", q.collection))
			continue
		}
		results = append(results, Scored{ChunkID: id, Score: float64(point.Score)})
	}
	return results, nil
}

func pointChunkID(point *qdrant.ScoredPoint) (int, bool) {
	if v, ok := point.Payload[PayloadChunkID]; ok {
		switch k := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			id, err := chunk.ParseID(k.StringValue)
			return id, err == nil
		case *qdrant.Value_IntegerValue:
			return int(k.IntegerValue), k.IntegerValue >= 0
		}
	}
	if n, ok := point.GetId().GetPointIdOptions().(*qdrant.PointId_Num); ok {
		return int(n.Num), true
	}
	return 0, false
}

// Backend implements DenseIndex.
func (q *QdrantIndex) Backend() string {
	return BackendQdrant
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

var _ DenseIndex = (*QdrantIndex)(nil)
