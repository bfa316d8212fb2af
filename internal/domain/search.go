package domain

import "time"

// SearchRequest is an asynchronous query job over a collection, or a
// subset of its resources when ResourceIDs is non-empty. An absent or
// empty ResourceIDs list means the whole collection.
type SearchRequest struct {
	ID            string            `json:"id"`
	CollectionID  string            `json:"collection_id"`
	Query         string            `json:"query"`
	ResourceIDs   []string          `json:"resource_ids,omitempty"`
	Filters       map[string]string `json:"filters,omitempty"`
	CallbackURLs  []string          `json:"callback_urls,omitempty"`
	MaxResults    int               `json:"max_results,omitempty"` // 0 means the configured default
	CreatedAt     time.Time         `json:"created_at"`
	Deadline      time.Time         `json:"deadline,omitempty"`
	Status        SearchStatus      `json:"status"`
	Embedding     []float32         `json:"-"`
	Prompt        string            `json:"prompt,omitempty"`
	Response      string            `json:"response,omitempty"`
	CredentialURL string            `json:"credential_url,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// DeadlineExceeded reports whether the end-to-end search deadline has
// passed. A zero deadline never expires.
func (s *SearchRequest) DeadlineExceeded(now time.Time) bool {
	return !s.Deadline.IsZero() && now.After(s.Deadline)
}

// SearchResult is one piece of evidence for a search: a matched chunk with
// the extract that was used and its similarity score.
type SearchResult struct {
	ID        string    `json:"id"`
	SearchID  string    `json:"search_id"`
	ChunkID   string    `json:"chunk_id"`
	Content   string    `json:"content"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}
