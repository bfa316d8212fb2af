package domain

// SectionHeader is one element of a chunk's location within the document
// structure (section > subsection > ...).
type SectionHeader struct {
	ID      string `json:"id"`
	Heading string `json:"heading"`
}

// ResourceChunk is a bounded text fragment of a resource, the unit of
// embedding and retrieval. (ResourceID, Sequence) is unique; sequences run
// 0..n-1 in document order.
//
// Extract is the canonical text used for embedding; it may equal Text.
// Score is transient and only set while a search is ranking chunks.
type ResourceChunk struct {
	ID         string            `json:"id"`
	ResourceID string            `json:"resource_id"`
	Sequence   int               `json:"sequence"`
	Text       string            `json:"text"`
	Extract    string            `json:"extract"`
	Preamble   string            `json:"preamble,omitempty"`
	Postamble  string            `json:"postamble,omitempty"`
	Path       []SectionHeader   `json:"path,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Embedding  []float32         `json:"-"`
	Score      *float64          `json:"score,omitempty"`
}

// Embedded reports whether the chunk has an embedding vector.
func (c *ResourceChunk) Embedded() bool {
	return len(c.Embedding) > 0
}
