package usecases

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
)

// NewSubscriptionInput creates a subscription. At most one of
// OrganisationID and UserID may be set.
type NewSubscriptionInput struct {
	Name            string
	ResourceTypeIDs []string
	IsActive        bool
	OrganisationID  string
	UserID          string
}

// NewCollectionInput creates a collection under a subscription.
type NewCollectionInput struct {
	Name            string
	Description     string
	ResourceTypeIDs []string
}

// UploadResourceInput creates a resource and starts its ingest pipeline.
type UploadResourceInput struct {
	CollectionID   string
	ResourceTypeID string
	Name           string
	FileName       string
	FileContent    []byte
	MetadataFile   []byte
	CallbackURLs   []string
}

// QueryInput starts a search over a collection or a resource subset.
type QueryInput struct {
	Query        string
	ResourceIDs  []string
	Filters      map[string]string
	CallbackURLs []string
	MaxResults   int
}

// CollectionDetails is a collection plus its resource count.
type CollectionDetails struct {
	Collection   *domain.Collection `json:"collection"`
	NumResources int                `json:"num_resources"`
}

// QueryResultView is the polled state of a search.
type QueryResultView struct {
	SearchID      string                 `json:"search_id"`
	Status        domain.SearchStatus    `json:"status"`
	Response      string                 `json:"response,omitempty"`
	CredentialURL string                 `json:"credential_url,omitempty"`
	Results       []*domain.SearchResult `json:"results,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

func (s *service) CreateSubscription(ctx context.Context, in NewSubscriptionInput) (*domain.Subscription, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, faults.Validation("create_subscription", "subscription name is required")
	}
	if in.OrganisationID != "" && in.UserID != "" {
		return nil, faults.Validation("create_subscription",
			"a subscription is owned by an organisation or a user, not both")
	}
	types, err := s.resolveResourceTypes(ctx, "create_subscription", in.ResourceTypeIDs)
	if err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		ID:             domain.NewID(),
		Name:           in.Name,
		IsActive:       in.IsActive,
		ResourceTypes:  types,
		OrganisationID: in.OrganisationID,
		UserID:         in.UserID,
	}
	if err := s.reg.Subscriptions().Create(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID),
		zap.String("name", sub.Name))
	return sub, nil
}

func (s *service) ListSubscriptions(ctx context.Context) ([]*domain.Subscription, error) {
	return s.reg.Subscriptions().List(ctx)
}

func (s *service) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.reg.Subscriptions().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cols, err := s.reg.Collections().ListForSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	sub.Collections = make([]domain.Collection, len(cols))
	for i, c := range cols {
		sub.Collections[i] = *c
	}
	return sub, nil
}

// DeleteSubscription cascades: every collection and resource goes with the
// subscription. Graph nodes are soft-deleted, relational rows removed.
func (s *service) DeleteSubscription(ctx context.Context, id string) (*domain.DeleteResult, error) {
	if _, err := s.reg.Subscriptions().Get(ctx, id); err != nil {
		return nil, err
	}
	cols, err := s.reg.Collections().ListForSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, col := range cols {
		if err := s.deleteCollectionCascade(ctx, col.ID); err != nil {
			return nil, err
		}
	}
	if _, err := s.reg.Subscriptions().Delete(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("subscription deleted", zap.String("subscription_id", id))
	return &domain.DeleteResult{
		ID:        id,
		Success:   true,
		Message:   "subscription deleted",
		Timestamp: time.Now().UTC(),
	}, nil
}

func (s *service) SubscriptionResourceTypes(ctx context.Context, id string) ([]domain.ResourceType, error) {
	sub, err := s.reg.Subscriptions().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sub.ResourceTypes, nil
}

func (s *service) SubscriptionCollections(ctx context.Context, id string) ([]*domain.Collection, error) {
	if _, err := s.reg.Subscriptions().Get(ctx, id); err != nil {
		return nil, err
	}
	return s.reg.Collections().ListForSubscription(ctx, id)
}

func (s *service) CreateCollection(ctx context.Context, subscriptionID string, in NewCollectionInput) (*domain.Collection, error) {
	sub, err := s.reg.Subscriptions().Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, faults.Validation("create_collection", "collection name is required")
	}

	types := make([]domain.ResourceType, 0, len(in.ResourceTypeIDs))
	for _, rtID := range in.ResourceTypeIDs {
		if !sub.AllowsResourceType(rtID) {
			return nil, faults.Validation("create_collection",
				"resource type %s is not allowed by subscription %s", rtID, subscriptionID)
		}
		rt, err := s.reg.ResourceTypes().Get(ctx, rtID)
		if err != nil {
			return nil, err
		}
		types = append(types, *rt)
	}

	col := &domain.Collection{
		ID:             domain.NewID(),
		SubscriptionID: subscriptionID,
		Name:           in.Name,
		Description:    in.Description,
		ResourceTypes:  types,
	}
	if err := s.reg.Collections().Create(ctx, col); err != nil {
		return nil, err
	}
	s.logger.Info("collection created",
		zap.String("collection_id", col.ID),
		zap.String("subscription_id", subscriptionID))
	return col, nil
}

func (s *service) GetCollection(ctx context.Context, id string) (*CollectionDetails, error) {
	col, err := s.reg.Collections().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.reg.Resources().CountForCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CollectionDetails{Collection: col, NumResources: n}, nil
}

func (s *service) CollectionResourceTypes(ctx context.Context, id string) ([]domain.ResourceType, error) {
	col, err := s.reg.Collections().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return col.ResourceTypes, nil
}

func (s *service) DeleteCollection(ctx context.Context, id string) (*domain.DeleteResult, error) {
	if _, err := s.reg.Collections().Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.deleteCollectionCascade(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("collection deleted", zap.String("collection_id", id))
	return &domain.DeleteResult{
		ID:        id,
		Success:   true,
		Message:   "collection deleted",
		Timestamp: time.Now().UTC(),
	}, nil
}

func (s *service) deleteCollectionCascade(ctx context.Context, collectionID string) error {
	resources, err := s.reg.Resources().ListForCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	for _, r := range resources {
		if err := s.deleteResourceCascade(ctx, r.ID); err != nil {
			return err
		}
	}
	_, err = s.reg.Collections().Delete(ctx, collectionID)
	return err
}

func (s *service) deleteResourceCascade(ctx context.Context, resourceID string) error {
	if err := s.reg.Graph().SoftDeleteResource(ctx, resourceID); err != nil {
		return err
	}
	_, err := s.reg.Resources().Delete(ctx, resourceID)
	return err
}

// UploadResource validates and stores a new resource, then schedules the
// first pipeline stage.
func (s *service) UploadResource(ctx context.Context, in UploadResourceInput) (*domain.Resource, error) {
	col, err := s.reg.Collections().Get(ctx, in.CollectionID)
	if err != nil {
		return nil, err
	}
	if !col.AllowsResourceType(in.ResourceTypeID) {
		return nil, faults.Validation("upload_resource",
			"resource type %s is not allowed by collection %s", in.ResourceTypeID, in.CollectionID)
	}
	if strings.TrimSpace(in.FileName) == "" {
		return nil, faults.Validation("upload_resource", "file name is required")
	}
	if len(in.FileContent) == 0 {
		return nil, faults.Validation("upload_resource", "file content is empty")
	}

	r := &domain.Resource{
		ID:             domain.NewID(),
		CollectionID:   in.CollectionID,
		ResourceTypeID: in.ResourceTypeID,
		Name:           in.Name,
		FileName:       in.FileName,
		File:           in.FileContent,
		MetadataFile:   in.MetadataFile,
		CallbackURLs:   in.CallbackURLs,
		Status:         domain.ResourcePending,
	}
	if err := s.reg.Resources().Create(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info("resource uploaded",
		zap.String("resource_id", r.ID),
		zap.String("collection_id", r.CollectionID),
		zap.String("file_name", r.FileName))

	if err := s.reg.Dispatch().EnqueueStage(ctx, ports.StageInitiateProcessing, r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *service) GetResource(ctx context.Context, id string) (*domain.Resource, error) {
	return s.reg.Resources().Get(ctx, id)
}

func (s *service) ListResources(ctx context.Context, collectionID string) ([]*domain.Resource, error) {
	if _, err := s.reg.Collections().Get(ctx, collectionID); err != nil {
		return nil, err
	}
	return s.reg.Resources().ListForCollection(ctx, collectionID)
}

func (s *service) DeleteResource(ctx context.Context, id string) (*domain.DeleteResult, error) {
	if _, err := s.reg.Resources().Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.deleteResourceCascade(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("resource deleted", zap.String("resource_id", id))
	return &domain.DeleteResult{
		ID:        id,
		Success:   true,
		Message:   "resource deleted",
		Timestamp: time.Now().UTC(),
	}, nil
}

func (s *service) CreateResourceType(ctx context.Context, name, tooltip string) (*domain.ResourceType, error) {
	if strings.TrimSpace(name) == "" {
		return nil, faults.Validation("create_resource_type", "resource type name is required")
	}
	rt := &domain.ResourceType{ID: domain.NewID(), Name: name, Tooltip: tooltip}
	if err := s.reg.ResourceTypes().Create(ctx, rt); err != nil {
		return nil, err
	}
	return rt, nil
}

func (s *service) ListResourceTypes(ctx context.Context) ([]*domain.ResourceType, error) {
	return s.reg.ResourceTypes().List(ctx)
}

// QueryCollection accepts a search over a collection, optionally scoped to
// some of its resources, and schedules the query pipeline.
func (s *service) QueryCollection(ctx context.Context, collectionID string, in QueryInput) (*domain.SearchRequest, error) {
	col, err := s.reg.Collections().Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, faults.Validation("query_collection", "query must not be empty")
	}
	for _, rid := range in.ResourceIDs {
		r, err := s.reg.Resources().Get(ctx, rid)
		if err != nil || r.CollectionID != col.ID {
			return nil, faults.Validation("query_collection",
				"resource %s is not part of collection %s", rid, collectionID)
		}
	}

	now := time.Now().UTC()
	sr := &domain.SearchRequest{
		ID:           domain.NewID(),
		CollectionID: collectionID,
		Query:        query,
		ResourceIDs:  in.ResourceIDs,
		Filters:      in.Filters,
		CallbackURLs: in.CallbackURLs,
		MaxResults:   in.MaxResults,
		CreatedAt:    now,
		Deadline:     now.Add(s.cfg.SearchDeadline),
		Status:       domain.SearchPending,
	}
	if err := s.reg.Searches().SaveRequest(ctx, sr); err != nil {
		return nil, err
	}
	if err := s.reg.Graph().SaveSearchRequest(ctx, sr); err != nil {
		return nil, err
	}
	s.logger.Info("search accepted",
		zap.String("search_id", sr.ID),
		zap.String("collection_id", collectionID))

	if err := s.reg.Dispatch().EnqueueSearchStage(ctx, ports.StageInitiateSearchRequest, sr.ID); err != nil {
		return nil, err
	}
	return sr, nil
}

// QueryResource is QueryCollection scoped to one resource plus any extra
// ids from the input.
func (s *service) QueryResource(ctx context.Context, resourceID string, in QueryInput) (*domain.SearchRequest, error) {
	r, err := s.reg.Resources().Get(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	scope := []string{resourceID}
	for _, rid := range in.ResourceIDs {
		if rid != resourceID {
			scope = append(scope, rid)
		}
	}
	in.ResourceIDs = scope
	return s.QueryCollection(ctx, r.CollectionID, in)
}

// QueryResult returns the polled state of a search: pending while the
// pipeline runs, the response and evidence once ready.
func (s *service) QueryResult(ctx context.Context, searchID string) (*QueryResultView, error) {
	sr, err := s.reg.Searches().Get(ctx, searchID)
	if err != nil {
		return nil, err
	}
	view := &QueryResultView{
		SearchID:      sr.ID,
		Status:        sr.Status,
		Error:         sr.Error,
		CredentialURL: sr.CredentialURL,
	}
	if sr.Status == domain.SearchReady {
		view.Response = sr.Response
		results, err := s.reg.Searches().Results(ctx, searchID)
		if err != nil {
			return nil, err
		}
		view.Results = results
	}
	return view, nil
}

// QueryMetadata returns the search record itself.
func (s *service) QueryMetadata(ctx context.Context, searchID string) (*domain.SearchRequest, error) {
	return s.reg.Searches().Get(ctx, searchID)
}

func (s *service) resolveResourceTypes(ctx context.Context, op string, ids []string) ([]domain.ResourceType, error) {
	types := make([]domain.ResourceType, 0, len(ids))
	for _, id := range ids {
		rt, err := s.reg.ResourceTypes().Get(ctx, id)
		if err != nil {
			if faults.KindOf(err) == faults.KindNotFound {
				return nil, faults.Validation(op, "unknown resource type %s", id)
			}
			return nil, err
		}
		types = append(types, *rt)
	}
	return types, nil
}
