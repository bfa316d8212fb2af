package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResourceStatusHappyPath(t *testing.T) {
	order := []ResourceStatus{
		ResourcePending, ResourceScanning, ResourceGraphed,
		ResourceExtracted, ResourceChunked, ResourceEmbedded, ResourceReady,
	}
	for i := 0; i < len(order)-1; i++ {
		assert.True(t, order[i].CanAdvanceTo(order[i+1]),
			"%s -> %s should be legal", order[i], order[i+1])
	}
}

func TestResourceStatusNoSkipping(t *testing.T) {
	assert.False(t, ResourcePending.CanAdvanceTo(ResourceExtracted))
	assert.False(t, ResourceScanning.CanAdvanceTo(ResourceChunked))
	assert.False(t, ResourceGraphed.CanAdvanceTo(ResourceEmbedded))
}

func TestResourceStatusReplayTolerated(t *testing.T) {
	assert.True(t, ResourceChunked.CanAdvanceTo(ResourceGraphed))
	assert.True(t, ResourceChunked.Replay(ResourceGraphed))
	assert.True(t, ResourceChunked.Replay(ResourceChunked))
	assert.False(t, ResourceChunked.Replay(ResourceEmbedded))
}

func TestResourceStatusQuarantineBranch(t *testing.T) {
	assert.True(t, ResourceScanning.CanAdvanceTo(ResourceQuarantined))
	assert.True(t, ResourceScanning.CanAdvanceTo(ResourceInvalidFormat))
	assert.False(t, ResourceGraphed.CanAdvanceTo(ResourceQuarantined))
}

func TestResourceStatusTerminal(t *testing.T) {
	for _, s := range []ResourceStatus{
		ResourceQuarantined, ResourceInvalidFormat, ResourceReady, ResourceFailed,
	} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range []ResourceStatus{
		ResourcePending, ResourceScanning, ResourceGraphed,
		ResourceExtracted, ResourceChunked, ResourceEmbedded,
	} {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestSearchStatusMonotone(t *testing.T) {
	order := []SearchStatus{
		SearchPending, SearchVectorised, SearchMatched,
		SearchGenerated, SearchCredentialled, SearchReady,
	}
	for i := 0; i < len(order)-1; i++ {
		assert.True(t, order[i].CanAdvanceTo(order[i+1]))
	}
	assert.False(t, SearchPending.CanAdvanceTo(SearchMatched))
	assert.True(t, SearchMatched.CanAdvanceTo(SearchVectorised), "replay tolerated")
	assert.True(t, SearchMatched.CanAdvanceTo(SearchFailed))
	assert.False(t, SearchReady.CanAdvanceTo(SearchFailed))
}

func TestSubscriptionAllowsResourceType(t *testing.T) {
	s := &Subscription{ResourceTypes: []ResourceType{{ID: "t1"}, {ID: "t2"}}}
	assert.True(t, s.AllowsResourceType("t1"))
	assert.False(t, s.AllowsResourceType("t3"))
}

func TestQueryTypeRender(t *testing.T) {
	qt := DefaultQueryType()
	prompt := qt.Render("what is X?", []string{"para one", "para two"})
	assert.Contains(t, prompt, "what is X?")
	assert.Contains(t, prompt, "para one\npara two")
	assert.NotContains(t, prompt, "{query}")
	assert.NotContains(t, prompt, "{context}")
}

func TestSearchDeadline(t *testing.T) {
	now := time.Now()
	s := &SearchRequest{}
	assert.False(t, s.DeadlineExceeded(now), "zero deadline never expires")
	s.Deadline = now.Add(-time.Second)
	assert.True(t, s.DeadlineExceeded(now))
	s.Deadline = now.Add(time.Second)
	assert.False(t, s.DeadlineExceeded(now))
}
