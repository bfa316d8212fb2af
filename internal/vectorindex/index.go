// Package vectorindex maintains the similarity index over chunk
// embeddings used by the graph adapters to rank candidates.
//
// Two implementations exist: an embedded chromem-go index (default, no
// external dependencies) and a Qdrant-backed index for deployments that
// already run one. A factory selects by provider name.
package vectorindex

import (
	"context"
	"errors"
)

// ErrUnknownProvider is returned by New for an unrecognised provider name.
var ErrUnknownProvider = errors.New("unknown vector index provider")

// Entry is one indexed chunk embedding.
type Entry struct {
	ChunkID    string
	ResourceID string
	Sequence   int
	Vector     []float32
}

// Match is a scored index hit.
type Match struct {
	ChunkID    string
	ResourceID string
	Sequence   int
	Score      float64
}

// Index is the similarity index over chunk embeddings.
type Index interface {
	// Upsert stores or replaces the entry for a chunk.
	Upsert(ctx context.Context, e Entry) error

	// Delete removes entries by chunk id. Unknown ids are ignored.
	Delete(ctx context.Context, chunkIDs []string) error

	// Query returns the top k entries by cosine similarity to vector.
	// When resourceIDs is non-empty only chunks of those resources are
	// candidates. Ordering is by descending score, ties broken by
	// ascending sequence then ascending resource id.
	Query(ctx context.Context, vector []float32, k int, resourceIDs []string) ([]Match, error)

	// Close releases index resources.
	Close() error
}

// Config selects and configures an index implementation.
type Config struct {
	// Provider is "chromem" (default) or "qdrant".
	Provider string

	// Path is the chromem persistence directory; empty means in-memory.
	Path string

	// QdrantHost and QdrantPort locate the Qdrant gRPC endpoint.
	QdrantHost string
	QdrantPort int

	// Collection is the index collection name.
	Collection string

	// VectorSize is the embedding dimensionality (qdrant only; chromem
	// infers it).
	VectorSize int
}

// New builds the configured index. An empty provider selects chromem.
func New(cfg Config) (Index, error) {
	switch cfg.Provider {
	case "", "chromem":
		return NewChromemIndex(cfg)
	case "qdrant":
		return NewQdrantIndex(cfg)
	default:
		return nil, ErrUnknownProvider
	}
}
