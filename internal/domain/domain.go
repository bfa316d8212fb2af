// Package domain holds the logical entities of the knowledge service:
// subscriptions, collections, resources, chunks and search requests.
//
// Entities are plain values. All persistence and side effects live behind
// the ports in internal/ports; nothing in this package does I/O.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh opaque identifier (UUIDv4 string).
func NewID() string {
	return uuid.NewString()
}

// ResourceType is a named capability of the service. It determines the
// chunking strategy and prompt templates used downstream. Immutable after
// creation.
type ResourceType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Tooltip string `json:"tooltip"`
}

// Subscription is the top-level tenant scope. It owns collections and the
// set of resource types its collections may use. Exactly one of
// OrganisationID or UserID identifies the owner when set.
type Subscription struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	IsActive       bool           `json:"is_active"`
	ResourceTypes  []ResourceType `json:"resource_types"`
	Collections    []Collection   `json:"collections,omitempty"`
	OrganisationID string         `json:"organisation_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
}

// AllowsResourceType reports whether the subscription includes the given
// resource type.
func (s *Subscription) AllowsResourceType(resourceTypeID string) bool {
	for _, rt := range s.ResourceTypes {
		if rt.ID == resourceTypeID {
			return true
		}
	}
	return false
}

// Collection is a bag of resources scoped to a subscription.
// (SubscriptionID, Name) is unique.
type Collection struct {
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscription_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	ResourceTypes  []ResourceType `json:"resource_types"`
}

// AllowsResourceType reports whether the collection admits the given
// resource type.
func (c *Collection) AllowsResourceType(resourceTypeID string) bool {
	for _, rt := range c.ResourceTypes {
		if rt.ID == resourceTypeID {
			return true
		}
	}
	return false
}

// Resource is one ingested artifact: a file plus metadata, advanced through
// the ingest pipeline by its status.
//
// File is nulled once the resource is quarantined. MarkdownContent is empty
// until the extraction stage has run.
type Resource struct {
	ID              string         `json:"id"`
	CollectionID    string         `json:"collection_id"`
	ResourceTypeID  string         `json:"resource_type_id"`
	Name            string         `json:"name,omitempty"`
	FileName        string         `json:"file_name"`
	FileType        string         `json:"file_type,omitempty"` // MIME, empty until detected
	File            []byte         `json:"-"`
	MetadataFile    []byte         `json:"-"`
	MarkdownContent string         `json:"markdown_content,omitempty"`
	CallbackURLs    []string       `json:"callback_urls,omitempty"`
	Status          ResourceStatus `json:"status"`
	Error           string         `json:"error,omitempty"`
}

// QueryType defines how a class of queries is rendered into a RAG prompt.
// PromptTemplate contains {query} and {context} placeholders.
type QueryType struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	PromptTemplate string            `json:"prompt_template"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	Description    string            `json:"description,omitempty"`
}

// Render substitutes the query and the ordered context extracts into the
// prompt template.
func (q QueryType) Render(query string, context []string) string {
	out := strings.ReplaceAll(q.PromptTemplate, "{query}", query)
	return strings.ReplaceAll(out, "{context}", strings.Join(context, "\n"))
}

// DefaultQueryType is the template used when a collection has not
// configured its own.
func DefaultQueryType() QueryType {
	return QueryType{
		ID:   "default",
		Name: "default",
		PromptTemplate: "Answer the question using only the provided context.\n" +
			"Question: {query}\nContext:\n{context}",
	}
}

// DeleteResult reports the outcome of a delete operation.
type DeleteResult struct {
	ID        string    `json:"id"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
