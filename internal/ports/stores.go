package ports

import (
	"context"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
)

// SubscriptionStore is CRUD over subscriptions in the relational store.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *domain.Subscription) error

	// Get returns the subscription with its resource types resolved, or a
	// not-found fault. Collections are attached by the caller.
	Get(ctx context.Context, id string) (*domain.Subscription, error)

	List(ctx context.Context) ([]*domain.Subscription, error)

	// Delete removes the subscription. Cascading deletion of collections
	// and resources is the caller's responsibility (the use case walks the
	// tree so graph soft deletes happen per resource). Returns false when
	// nothing was deleted.
	Delete(ctx context.Context, id string) (bool, error)
}

// CollectionStore is CRUD over collections.
type CollectionStore interface {
	Create(ctx context.Context, col *domain.Collection) error
	Get(ctx context.Context, id string) (*domain.Collection, error)

	// GetBySubscriptionAndName supports the (subscription_id, name)
	// uniqueness check. Returns a not-found fault when absent.
	GetBySubscriptionAndName(ctx context.Context, subscriptionID, name string) (*domain.Collection, error)

	ListForSubscription(ctx context.Context, subscriptionID string) ([]*domain.Collection, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// ResourceTypeStore is CRUD over resource types. Types are immutable after
// creation so there is no update.
type ResourceTypeStore interface {
	Create(ctx context.Context, rt *domain.ResourceType) error
	Get(ctx context.Context, id string) (*domain.ResourceType, error)
	List(ctx context.Context) ([]*domain.ResourceType, error)
}

// ResourceStore is CRUD over resources plus the pipeline's narrow writes.
type ResourceStore interface {
	Create(ctx context.Context, r *domain.Resource) error
	Get(ctx context.Context, id string) (*domain.Resource, error)
	ListForCollection(ctx context.Context, collectionID string) ([]*domain.Resource, error)
	CountForCollection(ctx context.Context, collectionID string) (int, error)

	// Update clobbers the stored resource if it differs; a no-op when equal.
	Update(ctx context.Context, r *domain.Resource) error

	// SetFileType stores a detected MIME type without touching other fields.
	SetFileType(ctx context.Context, resourceID, fileType string) error

	Delete(ctx context.Context, id string) (bool, error)
}

// SearchStore persists search requests and their results in the
// relational store (the front buffer; the graph holds the processing copy).
type SearchStore interface {
	SaveRequest(ctx context.Context, sr *domain.SearchRequest) error
	Get(ctx context.Context, id string) (*domain.SearchRequest, error)

	// Update clobbers the stored request (status, embedding, prompt,
	// response, credential URL advance through the pipeline).
	Update(ctx context.Context, sr *domain.SearchRequest) error

	SaveResults(ctx context.Context, searchID string, results []*domain.SearchResult) error
	Results(ctx context.Context, searchID string) ([]*domain.SearchResult, error)
}
