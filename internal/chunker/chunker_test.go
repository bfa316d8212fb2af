package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
)

const sampleDoc = `# Guide

Intro paragraph about the guide.

## Setup

Install the binary and run it once to generate a config file. The config
file lives next to the binary and is read on every start.

## Usage

### Searching

Type a query and press enter. Results stream in as they are found and the
best match is highlighted at the top of the list.
`

func markdownType() *domain.ResourceType {
	return &domain.ResourceType{ID: "rt-md", Name: "markdown"}
}

func TestChunkSequencesAndOrder(t *testing.T) {
	c := New(Config{ChunkSize: 80, ChunkOverlap: 0})
	r := &domain.Resource{ID: "r1", FileName: "guide.md", MarkdownContent: sampleDoc}

	chunks, err := c.Chunk(t.Context(), markdownType(), r)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Sequence)
		assert.Equal(t, "r1", ch.ResourceID)
		assert.NotEmpty(t, ch.ID)
		assert.NotEmpty(t, ch.Text)
		assert.NotEmpty(t, ch.Extract)
	}
}

func TestChunkSectionPath(t *testing.T) {
	c := New(Config{ChunkSize: 80, ChunkOverlap: 0})
	r := &domain.Resource{ID: "r1", FileName: "guide.md", MarkdownContent: sampleDoc}

	chunks, err := c.Chunk(t.Context(), markdownType(), r)
	require.NoError(t, err)

	var found bool
	for _, ch := range chunks {
		if !strings.Contains(ch.Text, "press enter") {
			continue
		}
		found = true
		headings := make([]string, 0, len(ch.Path))
		for _, h := range ch.Path {
			headings = append(headings, h.Heading)
		}
		assert.Equal(t, []string{"Guide", "Usage", "Searching"}, headings)
		assert.Contains(t, ch.Extract, "Guide > Usage > Searching")
	}
	assert.True(t, found, "expected a chunk under the Searching section")
}

func TestChunkNeighbourContext(t *testing.T) {
	c := New(Config{ChunkSize: 80, ChunkOverlap: 0, ContextWindow: 40})
	r := &domain.Resource{ID: "r1", FileName: "guide.md", MarkdownContent: sampleDoc}

	chunks, err := c.Chunk(t.Context(), markdownType(), r)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	assert.Empty(t, chunks[0].Preamble, "first chunk has nothing before it")
	assert.NotEmpty(t, chunks[0].Postamble)
	last := chunks[len(chunks)-1]
	assert.NotEmpty(t, last.Preamble)
	assert.Empty(t, last.Postamble, "last chunk has nothing after it")
}

func TestChunkPlainTextStrategy(t *testing.T) {
	c := New(Config{ChunkSize: 50, ChunkOverlap: 10})
	text := strings.Repeat("one two three four five six seven eight nine ten. ", 10)
	r := &domain.Resource{ID: "r1", FileName: "notes.txt", MarkdownContent: text}
	rt := &domain.ResourceType{ID: "rt-txt", Name: "plain_text"}

	chunks, err := c.Chunk(t.Context(), rt, r)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.Empty(t, ch.Path, "plain split carries no section path")
	}
}

func TestChunkRequiresExtractedContent(t *testing.T) {
	c := New(Config{})
	r := &domain.Resource{ID: "r1"}
	_, err := c.Chunk(t.Context(), markdownType(), r)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
}

func TestChunkSingleShortDocument(t *testing.T) {
	c := New(Config{})
	r := &domain.Resource{ID: "r1", MarkdownContent: "just one short line"}

	chunks, err := c.Chunk(t.Context(), markdownType(), r)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Sequence)
	assert.Empty(t, chunks[0].Preamble)
	assert.Empty(t, chunks[0].Postamble)
}
