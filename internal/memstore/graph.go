package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
	"github.com/fyrsmithlabs/knowledged/internal/vectorindex"
)

type resourceNode struct {
	subscriptionID string
	collectionID   string
	deleted        bool
}

type searchNode struct {
	request domain.SearchRequest
	matches []ports.ScoredChunk
}

// GraphStore is the in-memory ports.GraphStore. It mirrors the property
// graph as maps and delegates similarity ranking to a vectorindex.Index.
type GraphStore struct {
	index vectorindex.Index

	mu        sync.RWMutex
	resources map[string]resourceNode
	chunks    map[string]domain.ResourceChunk
	byRes     map[string][]string // resource id -> chunk ids, sequence order
	searches  map[string]*searchNode
}

// NewGraphStore builds a graph store over the given similarity index. A
// nil index gets a fresh in-memory one.
func NewGraphStore(index vectorindex.Index) *GraphStore {
	if index == nil {
		index, _ = vectorindex.NewChromemIndex(vectorindex.Config{})
	}
	return &GraphStore{
		index:     index,
		resources: make(map[string]resourceNode),
		chunks:    make(map[string]domain.ResourceChunk),
		byRes:     make(map[string][]string),
		searches:  make(map[string]*searchNode),
	}
}

func (g *GraphStore) ResourceNodeExists(_ context.Context, resourceID string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.resources[resourceID]
	return ok, nil
}

func (g *GraphStore) UpsertResourceNode(_ context.Context, sub *domain.Subscription, col *domain.Collection, r *domain.Resource) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node := g.resources[r.ID]
	node.subscriptionID = sub.ID
	node.collectionID = col.ID
	g.resources[r.ID] = node
	return nil
}

func (g *GraphStore) CreateChunkNodes(_ context.Context, chunks []domain.ResourceChunk) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range chunks {
		if existing, ok := g.chunks[c.ID]; ok {
			// Keep an existing embedding on replay.
			if c.Embedding == nil {
				c.Embedding = existing.Embedding
			}
		} else {
			g.byRes[c.ResourceID] = append(g.byRes[c.ResourceID], c.ID)
		}
		g.chunks[c.ID] = c
	}
	for _, c := range chunks {
		ids := g.byRes[c.ResourceID]
		sort.Slice(ids, func(i, j int) bool {
			return g.chunks[ids[i]].Sequence < g.chunks[ids[j]].Sequence
		})
		g.byRes[c.ResourceID] = ids
	}
	return nil
}

func (g *GraphStore) UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	g.mu.Lock()
	c, ok := g.chunks[chunkID]
	if !ok {
		g.mu.Unlock()
		return faults.NotFound("update_chunk_embedding", "chunk %s not found", chunkID)
	}
	c.Embedding = embedding
	g.chunks[chunkID] = c
	g.mu.Unlock()

	return g.index.Upsert(ctx, vectorindex.Entry{
		ChunkID:    c.ID,
		ResourceID: c.ResourceID,
		Sequence:   c.Sequence,
		Vector:     embedding,
	})
}

func (g *GraphStore) ChunksMissingEmbeddings(_ context.Context, resourceID string) ([]domain.ResourceChunk, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []domain.ResourceChunk
	for _, id := range g.byRes[resourceID] {
		c := g.chunks[id]
		if !c.Embedded() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *GraphStore) Chunks(_ context.Context, resourceID string) ([]domain.ResourceChunk, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.byRes[resourceID]
	out := make([]domain.ResourceChunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.chunks[id])
	}
	return out, nil
}

func (g *GraphStore) SoftDeleteResource(ctx context.Context, resourceID string) error {
	g.mu.Lock()
	node, ok := g.resources[resourceID]
	if !ok {
		g.mu.Unlock()
		return nil
	}
	node.deleted = true
	g.resources[resourceID] = node
	chunkIDs := append([]string(nil), g.byRes[resourceID]...)
	g.mu.Unlock()

	return g.index.Delete(ctx, chunkIDs)
}

func (g *GraphStore) SaveSearchRequest(_ context.Context, sr *domain.SearchRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.searches[sr.ID]
	if !ok {
		node = &searchNode{}
		g.searches[sr.ID] = node
	}
	node.request = *sr
	return nil
}

func (g *GraphStore) StoreSearchEmbedding(_ context.Context, searchID string, embedding []float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.searches[searchID]
	if !ok {
		return faults.NotFound("store_search_embedding", "search %s not found", searchID)
	}
	node.request.Embedding = embedding
	return nil
}

func (g *GraphStore) RankRelevantChunks(ctx context.Context, sr *domain.SearchRequest, k int) ([]ports.ScoredChunk, error) {
	g.mu.RLock()
	node, ok := g.searches[sr.ID]
	if !ok {
		g.mu.RUnlock()
		return nil, faults.NotFound("rank_relevant_chunks", "search %s not found", sr.ID)
	}
	embedding := node.request.Embedding

	// Scope: the named resources, or every live resource of the collection.
	scope := sr.ResourceIDs
	if len(scope) == 0 {
		for id, n := range g.resources {
			if n.collectionID == sr.CollectionID && !n.deleted {
				scope = append(scope, id)
			}
		}
	} else {
		live := scope[:0:0]
		for _, id := range scope {
			if n, ok := g.resources[id]; ok && !n.deleted {
				live = append(live, id)
			}
		}
		scope = live
	}
	g.mu.RUnlock()

	if len(embedding) == 0 {
		return nil, faults.Validation("rank_relevant_chunks", "search %s has no embedding", sr.ID)
	}
	if len(scope) == 0 {
		return nil, nil
	}

	// Over-fetch so metadata filtering cannot starve the top k.
	fetch := k
	if len(sr.Filters) > 0 {
		fetch = 0 // all candidates
	}
	matches, err := g.index.Query(ctx, embedding, fetch, scope)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]ports.ScoredChunk, 0, len(matches))
	for _, m := range matches {
		c, ok := g.chunks[m.ChunkID]
		if !ok {
			continue
		}
		if !matchesFilters(c.Metadata, sr.Filters) {
			continue
		}
		score := m.Score
		c.Score = &score
		out = append(out, ports.ScoredChunk{Chunk: c, Score: score})
		if k > 0 && len(out) == k {
			break
		}
	}
	return out, nil
}

func matchesFilters(metadata, filters map[string]string) bool {
	for key, want := range filters {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

func (g *GraphStore) SaveSearchMatches(_ context.Context, searchID string, matches []ports.ScoredChunk) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.searches[searchID]
	if !ok {
		return faults.NotFound("save_search_matches", "search %s not found", searchID)
	}
	node.matches = append([]ports.ScoredChunk(nil), matches...)
	return nil
}

func (g *GraphStore) RelevantChunks(_ context.Context, searchID string) ([]ports.ScoredChunk, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.searches[searchID]
	if !ok {
		return nil, faults.NotFound("relevant_chunks", "search %s not found", searchID)
	}
	return append([]ports.ScoredChunk(nil), node.matches...), nil
}

func (g *GraphStore) SaveSearchResponse(_ context.Context, searchID, prompt, response string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.searches[searchID]
	if !ok {
		return faults.NotFound("save_search_response", "search %s not found", searchID)
	}
	node.request.Prompt = prompt
	node.request.Response = response
	return nil
}

func (g *GraphStore) SaveCredentialURL(_ context.Context, searchID, credentialURL string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.searches[searchID]
	if !ok {
		return faults.NotFound("save_credential_url", "search %s not found", searchID)
	}
	node.request.CredentialURL = credentialURL
	return nil
}
