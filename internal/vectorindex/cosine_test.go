package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{1}), "length mismatch")
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}), "zero vector")
}

func TestNormalise(t *testing.T) {
	v := Normalise([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := Normalise([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestRankMatchesTieBreak(t *testing.T) {
	matches := []Match{
		{ChunkID: "c-b", ResourceID: "r1", Sequence: 0, Score: 0.80},
		{ChunkID: "c-a", ResourceID: "r1", Sequence: 2, Score: 0.91},
		{ChunkID: "c-c", ResourceID: "r1", Sequence: 5, Score: 0.80},
	}
	ranked := rankMatches(matches, 3)

	assert.Equal(t, "c-a", ranked[0].ChunkID, "highest score first")
	assert.Equal(t, "c-b", ranked[1].ChunkID, "tie broken by sequence")
	assert.Equal(t, "c-c", ranked[2].ChunkID)
}

func TestRankMatchesResourceTieBreak(t *testing.T) {
	matches := []Match{
		{ChunkID: "c2", ResourceID: "r-zzz", Sequence: 1, Score: 0.5},
		{ChunkID: "c1", ResourceID: "r-aaa", Sequence: 1, Score: 0.5},
	}
	ranked := rankMatches(matches, 2)
	assert.Equal(t, "c1", ranked[0].ChunkID, "equal score and sequence: ascending resource id")
}

func TestRankMatchesTruncates(t *testing.T) {
	matches := []Match{
		{ChunkID: "a", Score: 0.9},
		{ChunkID: "b", Score: 0.8},
		{ChunkID: "c", Score: 0.7},
	}
	ranked := rankMatches(matches, 2)
	assert.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].ChunkID)
}

func TestChromemIndexRoundTrip(t *testing.T) {
	ctx := t.Context()
	idx, err := NewChromemIndex(Config{})
	assert.NoError(t, err)
	defer idx.Close()

	entries := []Entry{
		{ChunkID: "c0", ResourceID: "r1", Sequence: 0, Vector: []float32{1, 0, 0}},
		{ChunkID: "c1", ResourceID: "r1", Sequence: 1, Vector: []float32{0, 1, 0}},
		{ChunkID: "c2", ResourceID: "r2", Sequence: 0, Vector: []float32{0.9, 0.1, 0}},
	}
	for _, e := range entries {
		assert.NoError(t, idx.Upsert(ctx, e))
	}

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, 2, nil)
	assert.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.Equal(t, "c0", matches[0].ChunkID)
	assert.Equal(t, "c2", matches[1].ChunkID)

	// Scope to a single resource.
	matches, err = idx.Query(ctx, []float32{1, 0, 0}, 5, []string{"r2"})
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, "c2", matches[0].ChunkID)
}

func TestChromemIndexEmpty(t *testing.T) {
	idx, err := NewChromemIndex(Config{})
	assert.NoError(t, err)
	matches, err := idx.Query(t.Context(), []float32{1, 0}, 5, nil)
	assert.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFactoryUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "bolt-from-the-blue"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
