// Package memstore provides in-memory adapters for every port. They back
// the embedded (no external dependencies) mode and the test suites, the
// same way the embedded vector store backs the default deployment.
//
// All adapters are safe for concurrent use. Stored entities are copied on
// the way in and out so callers cannot alias internal state.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
)

// SubscriptionStore is the in-memory ports.SubscriptionStore.
type SubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]domain.Subscription
}

func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subs: make(map[string]domain.Subscription)}
}

func (s *SubscriptionStore) Create(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = *sub
	return nil
}

func (s *SubscriptionStore) Get(_ context.Context, id string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, faults.NotFound("get_subscription", "subscription %s not found", id)
	}
	out := sub
	return &out, nil
}

func (s *SubscriptionStore) List(_ context.Context) ([]*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		c := sub
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *SubscriptionStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return false, nil
	}
	delete(s.subs, id)
	return true, nil
}

// CollectionStore is the in-memory ports.CollectionStore.
type CollectionStore struct {
	mu   sync.RWMutex
	cols map[string]domain.Collection
}

func NewCollectionStore() *CollectionStore {
	return &CollectionStore{cols: make(map[string]domain.Collection)}
}

func (s *CollectionStore) Create(_ context.Context, col *domain.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cols {
		if existing.SubscriptionID == col.SubscriptionID && existing.Name == col.Name {
			return faults.Conflict("create_collection",
				"collection %q already exists in subscription %s", col.Name, col.SubscriptionID)
		}
	}
	s.cols[col.ID] = *col
	return nil
}

func (s *CollectionStore) Get(_ context.Context, id string) (*domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.cols[id]
	if !ok {
		return nil, faults.NotFound("get_collection", "collection %s not found", id)
	}
	out := col
	return &out, nil
}

func (s *CollectionStore) GetBySubscriptionAndName(_ context.Context, subscriptionID, name string) (*domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, col := range s.cols {
		if col.SubscriptionID == subscriptionID && col.Name == name {
			out := col
			return &out, nil
		}
	}
	return nil, faults.NotFound("get_collection",
		"collection %q not found in subscription %s", name, subscriptionID)
}

func (s *CollectionStore) ListForSubscription(_ context.Context, subscriptionID string) ([]*domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Collection
	for _, col := range s.cols {
		if col.SubscriptionID == subscriptionID {
			c := col
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *CollectionStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cols[id]; !ok {
		return false, nil
	}
	delete(s.cols, id)
	return true, nil
}

// ResourceTypeStore is the in-memory ports.ResourceTypeStore.
type ResourceTypeStore struct {
	mu    sync.RWMutex
	types map[string]domain.ResourceType
}

func NewResourceTypeStore() *ResourceTypeStore {
	return &ResourceTypeStore{types: make(map[string]domain.ResourceType)}
}

func (s *ResourceTypeStore) Create(_ context.Context, rt *domain.ResourceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[rt.ID] = *rt
	return nil
}

func (s *ResourceTypeStore) Get(_ context.Context, id string) (*domain.ResourceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.types[id]
	if !ok {
		return nil, faults.NotFound("get_resource_type", "resource type %s not found", id)
	}
	out := rt
	return &out, nil
}

func (s *ResourceTypeStore) List(_ context.Context) ([]*domain.ResourceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.ResourceType, 0, len(s.types))
	for _, rt := range s.types {
		c := rt
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ResourceStore is the in-memory ports.ResourceStore.
type ResourceStore struct {
	mu        sync.RWMutex
	resources map[string]domain.Resource
}

func NewResourceStore() *ResourceStore {
	return &ResourceStore{resources: make(map[string]domain.Resource)}
}

func (s *ResourceStore) Create(_ context.Context, r *domain.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[r.ID] = *r
	return nil
}

func (s *ResourceStore) Get(_ context.Context, id string) (*domain.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, faults.NotFound("get_resource", "resource %s not found", id)
	}
	out := r
	return &out, nil
}

func (s *ResourceStore) ListForCollection(_ context.Context, collectionID string) ([]*domain.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Resource
	for _, r := range s.resources {
		if r.CollectionID == collectionID {
			c := r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, nil
}

func (s *ResourceStore) CountForCollection(_ context.Context, collectionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.resources {
		if r.CollectionID == collectionID {
			n++
		}
	}
	return n, nil
}

func (s *ResourceStore) Update(_ context.Context, r *domain.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[r.ID]; !ok {
		return faults.NotFound("update_resource", "resource %s not found", r.ID)
	}
	s.resources[r.ID] = *r
	return nil
}

func (s *ResourceStore) SetFileType(_ context.Context, resourceID, fileType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[resourceID]
	if !ok {
		return faults.NotFound("set_file_type", "resource %s not found", resourceID)
	}
	r.FileType = fileType
	s.resources[resourceID] = r
	return nil
}

func (s *ResourceStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[id]; !ok {
		return false, nil
	}
	delete(s.resources, id)
	return true, nil
}

// SearchStore is the in-memory ports.SearchStore.
type SearchStore struct {
	mu       sync.RWMutex
	requests map[string]domain.SearchRequest
	results  map[string][]domain.SearchResult
}

func NewSearchStore() *SearchStore {
	return &SearchStore{
		requests: make(map[string]domain.SearchRequest),
		results:  make(map[string][]domain.SearchResult),
	}
}

func (s *SearchStore) SaveRequest(_ context.Context, sr *domain.SearchRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[sr.ID] = *sr
	return nil
}

func (s *SearchStore) Get(_ context.Context, id string) (*domain.SearchRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.requests[id]
	if !ok {
		return nil, faults.NotFound("get_search_request", "search request %s not found", id)
	}
	out := sr
	return &out, nil
}

func (s *SearchStore) Update(_ context.Context, sr *domain.SearchRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[sr.ID]; !ok {
		return faults.NotFound("update_search_request", "search request %s not found", sr.ID)
	}
	s.requests[sr.ID] = *sr
	return nil
}

func (s *SearchStore) SaveResults(_ context.Context, searchID string, results []*domain.SearchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SearchResult, len(results))
	for i, r := range results {
		out[i] = *r
	}
	s.results[searchID] = out
	return nil
}

func (s *SearchStore) Results(_ context.Context, searchID string) ([]*domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.results[searchID]
	out := make([]*domain.SearchResult, len(stored))
	for i := range stored {
		c := stored[i]
		out[i] = &c
	}
	return out, nil
}
