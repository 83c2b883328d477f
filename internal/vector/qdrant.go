package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

const chunkIDField = "chunk_id"

// QdrantConfig addresses a Qdrant collection over gRPC.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimensions int
}

// QdrantIndex stores vectors in a remote Qdrant collection. Point ids must be UUIDs, so chunk
// ids are mapped to name-based UUIDs and the original id is kept in the payload.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimensions int
	logger     *zap.Logger

	once    sync.Once
	initErr error
}

// NewQdrantIndex connects to Qdrant. The collection is created on first use if missing.
func NewQdrantIndex(cfg QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		logger:     logger,
	}, nil
}

// PointID maps a chunk id to the UUID used as the Qdrant point id.
func PointID(chunkID string) string {
	if u, err := uuid.Parse(chunkID); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	q.once.Do(func() {
		existing, err := q.client.ListCollections(ctx)
		if err != nil {
			q.initErr = fmt.Errorf("failed to list collections: %w", err)
			return
		}
		for _, name := range existing {
			if name == q.collection {
				return
			}
		}
		err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			q.initErr = fmt.Errorf("failed to create collection %s: %w", q.collection, err)
			return
		}
		q.logger.Info("created qdrant collection", zap.String("collection", q.collection))
	})
	return q.initErr
}

// Upsert writes points. Re-upserting a chunk id replaces its vector.
func (q *QdrantIndex) Upsert(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	if len(ids) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx); err != nil {
		return err
	}
	points := make([]*qdrant.PointStruct, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != q.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), q.dimensions)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(id)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				chunkIDField: id,
			}),
		}
	}
	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Search queries the collection and returns chunk ids with their cosine scores.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != q.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), q.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query qdrant: %w", err)
	}
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		id := hit.GetPayload()[chunkIDField].GetStringValue()
		if id == "" {
			continue
		}
		results = append(results, Result{ID: id, Score: float64(hit.GetScore())})
	}
	return results, nil
}

// Remove deletes the points for the given chunk ids.
func (q *QdrantIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx); err != nil {
		return err
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(PointID(id))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

// Size returns the exact point count of the collection.
func (q *QdrantIndex) Size(ctx context.Context) (int, error) {
	if err := q.ensureCollection(ctx); err != nil {
		return 0, err
	}
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

// Close releases the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
