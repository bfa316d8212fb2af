package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", NotFound("get_resource", "resource %s not found", "r1"), KindNotFound},
		{"validation", Validation("post_query", "query cannot be empty"), KindValidation},
		{"conflict", Conflict("create_collection", "name taken"), KindConflict},
		{"virus", VirusDetected("scan", "infected"), KindVirusDetected},
		{"format", InvalidFormat("validate", "mismatch"), KindInvalidFormat},
		{"transient", Transient("embed", errors.New("connection reset")), KindTransient},
		{"internal", Internal("registry", errors.New("nil port")), KindInternal},
		{"untagged", errors.New("anything"), KindInternal},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"canceled", context.Canceled, KindTransient},
		{"nil", nil, Kind("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapPreservesKind(t *testing.T) {
	inner := NotFound("get_collection", "collection c1 not found")
	outer := Wrap(KindInternal, "initialise_resource_graph", inner)
	assert.Equal(t, KindNotFound, KindOf(outer))
	assert.Contains(t, outer.Error(), "initialise_resource_graph")
	assert.Contains(t, outer.Error(), "collection c1 not found")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindTransient, "op", nil))
	assert.Nil(t, Transient("op", nil))
	assert.Nil(t, Internal("op", nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Transient("webhook", errors.New("503"))))
	assert.True(t, Retryable(fmt.Errorf("stage: %w", context.DeadlineExceeded)))
	assert.False(t, Retryable(NotFound("get", "gone")))
	assert.False(t, Retryable(Internal("op", errors.New("bug"))))
}

func TestUnwrapChain(t *testing.T) {
	root := errors.New("boom")
	err := Wrap(KindTransient, "outer", fmt.Errorf("inner: %w", root))
	require.ErrorIs(t, err, root)
}
