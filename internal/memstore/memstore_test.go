package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
)

func TestCollectionStoreUniqueNamePerSubscription(t *testing.T) {
	ctx := t.Context()
	store := NewCollectionStore()

	require.NoError(t, store.Create(ctx, &domain.Collection{ID: "c1", SubscriptionID: "s1", Name: "docs"}))

	err := store.Create(ctx, &domain.Collection{ID: "c2", SubscriptionID: "s1", Name: "docs"})
	assert.Equal(t, faults.KindConflict, faults.KindOf(err))

	// Same name under another subscription is fine.
	assert.NoError(t, store.Create(ctx, &domain.Collection{ID: "c3", SubscriptionID: "s2", Name: "docs"}))
}

func TestSubscriptionStoreDeleteIdempotent(t *testing.T) {
	ctx := t.Context()
	store := NewSubscriptionStore()
	require.NoError(t, store.Create(ctx, &domain.Subscription{ID: "s1", Name: "acme"}))

	deleted, err := store.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, deleted, "second delete reports nothing removed")
}

func TestResourceStoreCopiesOnReturn(t *testing.T) {
	ctx := t.Context()
	store := NewResourceStore()
	require.NoError(t, store.Create(ctx, &domain.Resource{ID: "r1", CollectionID: "c1", Name: "a"}))

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Name)
}

func TestGraphStoreChunkLifecycle(t *testing.T) {
	ctx := t.Context()
	g := NewGraphStore(nil)

	sub := &domain.Subscription{ID: "s1"}
	col := &domain.Collection{ID: "c1", SubscriptionID: "s1"}
	res := &domain.Resource{ID: "r1", CollectionID: "c1"}
	require.NoError(t, g.UpsertResourceNode(ctx, sub, col, res))

	exists, err := g.ResourceNodeExists(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, exists)

	chunks := []domain.ResourceChunk{
		{ID: "ch1", ResourceID: "r1", Sequence: 1, Extract: "second"},
		{ID: "ch0", ResourceID: "r1", Sequence: 0, Extract: "first"},
	}
	require.NoError(t, g.CreateChunkNodes(ctx, chunks))
	// Replay must not duplicate.
	require.NoError(t, g.CreateChunkNodes(ctx, chunks))

	stored, err := g.Chunks(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "ch0", stored[0].ID, "sequence order")
	assert.Equal(t, "ch1", stored[1].ID)

	missing, err := g.ChunksMissingEmbeddings(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, missing, 2)

	require.NoError(t, g.UpdateChunkEmbedding(ctx, "ch0", []float32{1, 0, 0}))
	missing, err = g.ChunksMissingEmbeddings(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "ch1", missing[0].ID)
}

func TestGraphStoreRankScopesAndFilters(t *testing.T) {
	ctx := t.Context()
	g := NewGraphStore(nil)

	sub := &domain.Subscription{ID: "s1"}
	col := &domain.Collection{ID: "c1", SubscriptionID: "s1"}
	for _, rid := range []string{"r1", "r2"} {
		require.NoError(t, g.UpsertResourceNode(ctx, sub, col, &domain.Resource{ID: rid, CollectionID: "c1"}))
	}
	require.NoError(t, g.CreateChunkNodes(ctx, []domain.ResourceChunk{
		{ID: "ch0", ResourceID: "r1", Sequence: 0, Extract: "alpha", Metadata: map[string]string{"lang": "en"}},
		{ID: "ch1", ResourceID: "r1", Sequence: 1, Extract: "beta", Metadata: map[string]string{"lang": "de"}},
		{ID: "ch2", ResourceID: "r2", Sequence: 0, Extract: "gamma", Metadata: map[string]string{"lang": "en"}},
	}))
	require.NoError(t, g.UpdateChunkEmbedding(ctx, "ch0", []float32{1, 0, 0}))
	require.NoError(t, g.UpdateChunkEmbedding(ctx, "ch1", []float32{0, 1, 0}))
	require.NoError(t, g.UpdateChunkEmbedding(ctx, "ch2", []float32{0.9, 0.1, 0}))

	sr := &domain.SearchRequest{ID: "q1", CollectionID: "c1"}
	require.NoError(t, g.SaveSearchRequest(ctx, sr))
	require.NoError(t, g.StoreSearchEmbedding(ctx, "q1", []float32{1, 0, 0}))

	// Whole collection.
	ranked, err := g.RankRelevantChunks(ctx, sr, 2)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "ch0", ranked[0].Chunk.ID)
	assert.Equal(t, "ch2", ranked[1].Chunk.ID)

	// Scoped to one resource.
	scoped := &domain.SearchRequest{ID: "q1", CollectionID: "c1", ResourceIDs: []string{"r2"}}
	ranked, err = g.RankRelevantChunks(ctx, scoped, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "ch2", ranked[0].Chunk.ID)

	// Metadata filter.
	filtered := &domain.SearchRequest{ID: "q1", CollectionID: "c1", Filters: map[string]string{"lang": "de"}}
	ranked, err = g.RankRelevantChunks(ctx, filtered, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "ch1", ranked[0].Chunk.ID)

	// Soft delete excludes a resource from ranking.
	require.NoError(t, g.SoftDeleteResource(ctx, "r1"))
	ranked, err = g.RankRelevantChunks(ctx, sr, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "ch2", ranked[0].Chunk.ID)

	exists, err := g.ResourceNodeExists(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, exists, "soft delete keeps the node")
}

func TestGraphStoreSearchState(t *testing.T) {
	ctx := t.Context()
	g := NewGraphStore(nil)

	sr := &domain.SearchRequest{ID: "q1", CollectionID: "c1"}
	require.NoError(t, g.SaveSearchRequest(ctx, sr))

	score := 0.9
	matches := []ports.ScoredChunk{
		{Chunk: domain.ResourceChunk{ID: "ch0", ResourceID: "r1", Extract: "alpha", Score: &score}, Score: score},
	}
	require.NoError(t, g.SaveSearchMatches(ctx, "q1", matches))
	// Replay overwrites.
	require.NoError(t, g.SaveSearchMatches(ctx, "q1", matches))

	got, err := g.RelevantChunks(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ch0", got[0].Chunk.ID)

	require.NoError(t, g.SaveSearchResponse(ctx, "q1", "prompt", "response"))
	require.NoError(t, g.SaveCredentialURL(ctx, "q1", "https://credentials.invalid/q1"))
}

func TestQuarantineHoldsContent(t *testing.T) {
	ctx := t.Context()
	q := NewQuarantine()
	r := &domain.Resource{ID: "r1", File: []byte("infected")}

	require.NoError(t, q.QuarantineResource(ctx, r))
	assert.Nil(t, r.File, "content stripped from the record")

	held, err := q.IsQuarantined(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, held)

	held, err = q.IsQuarantined(ctx, "other")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestDispatcherRecordsAndRuns(t *testing.T) {
	ctx := t.Context()
	d := NewDispatcher()

	var ran []string
	d.OnResourceStage(func(_ context.Context, stage ports.Stage, id string) error {
		ran = append(ran, string(stage)+":"+id)
		return nil
	})

	require.NoError(t, d.EnqueueStage(ctx, ports.StageInitiateProcessing, "r1"))
	require.NoError(t, d.EnqueueSearchStage(ctx, ports.StageInitiateSearchRequest, "q1"))

	tasks := d.Tasks()
	require.Len(t, tasks, 2)
	assert.False(t, tasks[0].Search)
	assert.True(t, tasks[1].Search)
	assert.Equal(t, []string{"initiate-processing:r1"}, ran)
}

func TestStaticLanguageModelDeterministic(t *testing.T) {
	ctx := t.Context()
	m := NewStaticLanguageModel()

	a, err := m.Embed(ctx, "hello")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := m.Embed(ctx, "goodbye")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 3, m.EmbedCalls())

	url, err := m.IssueCredential(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "https://credentials.invalid/q1", url)
}

func TestWebhookRecorderDeduplicates(t *testing.T) {
	w := NewWebhookRecorder()
	status, err := w.Deliver(t.Context(), []string{"https://a", "https://a", "https://b"}, map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Len(t, status, 2)

	deliveries := w.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, []string{"https://a", "https://b"}, deliveries[0].URLs)
}
