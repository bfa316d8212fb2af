package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantIndex keeps chunk embeddings in an external Qdrant collection over
// gRPC. Points are keyed by chunk id with resource id and sequence in the
// payload so the service tie-break can be applied after retrieval.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	vectorSize uint64
}

// NewQdrantIndex connects to Qdrant and ensures the collection exists.
func NewQdrantIndex(cfg Config) (*QdrantIndex, error) {
	host := cfg.QdrantHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.QdrantPort
	if port == 0 {
		port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}

	name := cfg.Collection
	if name == "" {
		name = defaultCollection
	}
	size := uint64(cfg.VectorSize)
	if size == 0 {
		size = 1536
	}

	x := &QdrantIndex{client: client, collection: name, vectorSize: size}
	if err := x.ensureCollection(context.Background()); err != nil {
		return nil, err
	}
	return x, nil
}

func (x *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", x.collection, err)
	}
	if exists {
		return nil
	}
	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     x.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", x.collection, err)
	}
	return nil
}

// Upsert stores or replaces a chunk entry.
func (x *QdrantIndex) Upsert(ctx context.Context, e Entry) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(e.ChunkID),
		Vectors: qdrant.NewVectors(Normalise(e.Vector)...),
		Payload: map[string]*qdrant.Value{
			"chunk_id":    qdrant.NewValueString(e.ChunkID),
			"resource_id": qdrant.NewValueString(e.ResourceID),
			"sequence":    qdrant.NewValueInt(int64(e.Sequence)),
		},
	}
	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: x.collection,
		Points:         []*qdrant.PointStruct{point},
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to index chunk %s: %w", e.ChunkID, err)
	}
	return nil
}

// Delete removes entries by chunk id.
func (x *QdrantIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = qdrant.NewIDUUID(id)
	}
	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: x.collection,
		Points:         qdrant.NewPointsSelector(ids...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Query returns the top k candidates, re-ranked with the service
// tie-break.
func (x *QdrantIndex) Query(ctx context.Context, vector []float32, k int, resourceIDs []string) ([]Match, error) {
	var filter *qdrant.Filter
	if len(resourceIDs) > 0 {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords("resource_id", resourceIDs...),
			},
		}
	}

	// Over-fetch so client-side tie-breaking cannot change the member set
	// of the top k.
	limit := uint64(k * 4)
	if limit == 0 {
		limit = 64
	}

	results, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.collection,
		Query:          qdrant.NewQuery(Normalise(vector)...),
		Limit:          qdrant.PtrOf(limit),
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, p := range results {
		payload := p.GetPayload()
		matches = append(matches, Match{
			ChunkID:    payload["chunk_id"].GetStringValue(),
			ResourceID: payload["resource_id"].GetStringValue(),
			Sequence:   int(payload["sequence"].GetIntegerValue()),
			Score:      float64(p.GetScore()),
		})
	}
	return rankMatches(matches, k), nil
}

// Close closes the gRPC connection.
func (x *QdrantIndex) Close() error {
	return x.client.Close()
}
