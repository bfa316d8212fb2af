package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
)

const defaultCollection = "knowledged_chunks"

// ChromemIndex is the embedded index. It persists to disk when a path is
// configured, otherwise it lives in memory. Embeddings are always supplied
// by the caller, never computed by chromem.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection

	mu sync.Mutex
}

// NewChromemIndex creates the embedded index.
func NewChromemIndex(cfg Config) (*ChromemIndex, error) {
	var db *chromem.DB
	var err error
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem at %s: %w", cfg.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	name := cfg.Collection
	if name == "" {
		name = defaultCollection
	}
	collection, err := db.GetOrCreateCollection(name, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	return &ChromemIndex{db: db, collection: collection}, nil
}

// rejectEmbeddingFunc guards against chromem computing embeddings itself;
// every document carries a precomputed vector.
func rejectEmbeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("embeddings must be precomputed")
}

// Upsert stores or replaces a chunk entry.
func (x *ChromemIndex) Upsert(ctx context.Context, e Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	doc := chromem.Document{
		ID:        e.ChunkID,
		Embedding: Normalise(e.Vector),
		Content:   e.ChunkID, // content is unused; retrieval goes via the graph
		Metadata: map[string]string{
			"resource_id": e.ResourceID,
			"sequence":    strconv.Itoa(e.Sequence),
		},
	}
	if err := x.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("failed to index chunk %s: %w", e.ChunkID, err)
	}
	return nil
}

// Delete removes entries by chunk id.
func (x *ChromemIndex) Delete(ctx context.Context, chunkIDs []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if len(chunkIDs) == 0 {
		return nil
	}
	if err := x.collection.Delete(ctx, nil, nil, chunkIDs...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Query returns the top k candidates. chromem's own ranking is replaced by
// the service tie-break (score desc, sequence asc, resource id asc), so
// all candidates are fetched and re-ranked here.
func (x *ChromemIndex) Query(ctx context.Context, vector []float32, k int, resourceIDs []string) ([]Match, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	count := x.collection.Count()
	if count == 0 {
		return nil, nil
	}

	results, err := x.collection.QueryEmbedding(ctx, Normalise(vector), count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query failed: %w", err)
	}

	allowed := make(map[string]bool, len(resourceIDs))
	for _, id := range resourceIDs {
		allowed[id] = true
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		rid := res.Metadata["resource_id"]
		if len(allowed) > 0 && !allowed[rid] {
			continue
		}
		seq, _ := strconv.Atoi(res.Metadata["sequence"])
		matches = append(matches, Match{
			ChunkID:    res.ID,
			ResourceID: rid,
			Sequence:   seq,
			Score:      float64(res.Similarity),
		})
	}
	return rankMatches(matches, k), nil
}

// Close is a no-op for the embedded index.
func (x *ChromemIndex) Close() error { return nil }
