package ports

import (
	"context"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
)

// ScoredChunk pairs a chunk with its similarity to a query embedding.
type ScoredChunk struct {
	Chunk domain.ResourceChunk
	Score float64
}

// GraphStore is the property-graph substrate: the
// Subscription-OWNS->Collection-CONTAINS->Resource-HAS_CHUNK->Chunk chain,
// plus search requests and their MATCHES edges.
type GraphStore interface {
	// ResourceNodeExists reports whether a (non-deleted or deleted)
	// resource node is present.
	ResourceNodeExists(ctx context.Context, resourceID string) (bool, error)

	// UpsertResourceNode merges the three-node chain and its edges.
	// Idempotent.
	UpsertResourceNode(ctx context.Context, sub *domain.Subscription, col *domain.Collection, r *domain.Resource) error

	// CreateChunkNodes merges chunk nodes and HAS_CHUNK edges, keyed by
	// chunk id. Replays do not duplicate nodes or edges.
	CreateChunkNodes(ctx context.Context, chunks []domain.ResourceChunk) error

	// UpdateChunkEmbedding stores the embedding vector on a chunk node.
	UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error

	// ChunksMissingEmbeddings lists the resource's chunks that have no
	// embedding yet, in sequence order.
	ChunksMissingEmbeddings(ctx context.Context, resourceID string) ([]domain.ResourceChunk, error)

	// Chunks lists all chunks of a resource in sequence order.
	Chunks(ctx context.Context, resourceID string) ([]domain.ResourceChunk, error)

	// SoftDeleteResource marks the resource node is_deleted=true. The node
	// is retained for operational analysis; cleanup is an external job.
	SoftDeleteResource(ctx context.Context, resourceID string) error

	// SaveSearchRequest merges the search node and its ABOUT edge to the
	// collection.
	SaveSearchRequest(ctx context.Context, sr *domain.SearchRequest) error

	// StoreSearchEmbedding sets the query embedding on the search node.
	StoreSearchEmbedding(ctx context.Context, searchID string, embedding []float32) error

	// RankRelevantChunks scores the candidate chunks of the search's scope
	// (the whole collection, or the named resources) against the stored
	// query embedding and returns the top k. Ordering is by descending
	// score, then ascending sequence, then ascending resource id. Deleted
	// resources and chunks matching none of the filters are excluded.
	RankRelevantChunks(ctx context.Context, sr *domain.SearchRequest, k int) ([]ScoredChunk, error)

	// SaveSearchMatches persists MATCHES{score} edges from the search node
	// to the matched chunks. Replays overwrite rather than duplicate.
	SaveSearchMatches(ctx context.Context, searchID string, matches []ScoredChunk) error

	// RelevantChunks returns the previously matched chunks of a search in
	// stored rank order.
	RelevantChunks(ctx context.Context, searchID string) ([]ScoredChunk, error)

	// SaveSearchResponse stores the rendered prompt and the model response
	// on the search node.
	SaveSearchResponse(ctx context.Context, searchID, prompt, response string) error

	// SaveCredentialURL stores the issued credential reference on the
	// search node.
	SaveCredentialURL(ctx context.Context, searchID, credentialURL string) error
}
