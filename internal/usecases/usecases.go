// Package usecases is the behavioural core of the knowledge service. Every
// pipeline stage and every synchronous API operation is one method on the
// Service; all side effects go through the port registry.
//
// Stages are idempotent: a duplicate delivery of an already-completed
// stage is a tolerated no-op, so the dispatcher may redeliver freely.
package usecases

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
	"github.com/fyrsmithlabs/knowledged/internal/registry"
)

const serviceName = "knowledged.usecases"

// Service exposes every operation of the knowledge service.
type Service interface {
	// Ingest pipeline stages.
	InitiateProcessing(ctx context.Context, resourceID string) error
	InitialiseResourceGraph(ctx context.Context, resourceID string) error
	ExtractPlainText(ctx context.Context, resourceID string) error
	ChunkResourceText(ctx context.Context, resourceID string) error
	UpdateChunksWithEmbeddings(ctx context.Context, resourceID string) error
	VentilateResourceProcessing(ctx context.Context, resourceID string) error
	NotifyQuarantine(ctx context.Context, resourceID string) error
	NotifyValidationError(ctx context.Context, resourceID string) error

	// Query pipeline stages.
	InitiateSearchRequest(ctx context.Context, searchID string) error
	VectoriseSearchQuery(ctx context.Context, searchID string) error
	IdentifyRelatedContent(ctx context.Context, searchID string) error
	ExecuteRAGPrompt(ctx context.Context, searchID string) error
	IssueCredentials(ctx context.Context, searchID string) error
	VentilateSearchResults(ctx context.Context, searchID string) error

	// Stage routing for the worker runtime.
	RunResourceStage(ctx context.Context, stage ports.Stage, resourceID string) error
	RunSearchStage(ctx context.Context, stage ports.Stage, searchID string) error
	MarkResourceFailed(ctx context.Context, resourceID, reason string) error
	MarkSearchFailed(ctx context.Context, searchID, reason string) error

	// Subscriptions.
	CreateSubscription(ctx context.Context, in NewSubscriptionInput) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*domain.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) (*domain.DeleteResult, error)
	SubscriptionResourceTypes(ctx context.Context, id string) ([]domain.ResourceType, error)
	SubscriptionCollections(ctx context.Context, id string) ([]*domain.Collection, error)

	// Collections.
	CreateCollection(ctx context.Context, subscriptionID string, in NewCollectionInput) (*domain.Collection, error)
	GetCollection(ctx context.Context, id string) (*CollectionDetails, error)
	CollectionResourceTypes(ctx context.Context, id string) ([]domain.ResourceType, error)
	DeleteCollection(ctx context.Context, id string) (*domain.DeleteResult, error)

	// Resources.
	UploadResource(ctx context.Context, in UploadResourceInput) (*domain.Resource, error)
	GetResource(ctx context.Context, id string) (*domain.Resource, error)
	ListResources(ctx context.Context, collectionID string) ([]*domain.Resource, error)
	DeleteResource(ctx context.Context, id string) (*domain.DeleteResult, error)

	// Resource types.
	CreateResourceType(ctx context.Context, name, tooltip string) (*domain.ResourceType, error)
	ListResourceTypes(ctx context.Context) ([]*domain.ResourceType, error)

	// Queries.
	QueryCollection(ctx context.Context, collectionID string, in QueryInput) (*domain.SearchRequest, error)
	QueryResource(ctx context.Context, resourceID string, in QueryInput) (*domain.SearchRequest, error)
	QueryResult(ctx context.Context, searchID string) (*QueryResultView, error)
	QueryMetadata(ctx context.Context, searchID string) (*domain.SearchRequest, error)
}

// Config tunes the service behaviour.
type Config struct {
	// TopKDefault caps search results when a request does not name its own
	// limit.
	TopKDefault int
	// SearchDeadline is the end-to-end budget for a query pipeline.
	SearchDeadline time.Duration
	// QueryType renders search prompts; zero value means the default
	// template.
	QueryType domain.QueryType
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() Config {
	return Config{
		TopKDefault:    16,
		SearchDeadline: 2 * time.Minute,
		QueryType:      domain.DefaultQueryType(),
	}
}

type service struct {
	cfg    Config
	reg    registry.Registry
	logger *zap.Logger
	tracer trace.Tracer

	stageRuns    metric.Int64Counter
	stageErrors  metric.Int64Counter
	searchesDone metric.Int64Counter
}

// New creates the service.
func New(cfg Config, reg registry.Registry, logger *zap.Logger) (Service, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	def := DefaultServiceConfig()
	if cfg.TopKDefault <= 0 {
		cfg.TopKDefault = def.TopKDefault
	}
	if cfg.SearchDeadline <= 0 {
		cfg.SearchDeadline = def.SearchDeadline
	}
	if cfg.QueryType.PromptTemplate == "" {
		cfg.QueryType = def.QueryType
	}

	meter := otel.Meter(serviceName)
	stageRuns, err := meter.Int64Counter("knowledged_stage_runs_total",
		metric.WithDescription("Pipeline stage invocations"))
	if err != nil {
		return nil, err
	}
	stageErrors, err := meter.Int64Counter("knowledged_stage_errors_total",
		metric.WithDescription("Pipeline stage failures"))
	if err != nil {
		return nil, err
	}
	searchesDone, err := meter.Int64Counter("knowledged_searches_completed_total",
		metric.WithDescription("Search requests that reached a terminal state"))
	if err != nil {
		return nil, err
	}

	return &service{
		cfg:          cfg,
		reg:          reg,
		logger:       logger.Named("usecases"),
		tracer:       otel.Tracer(serviceName),
		stageRuns:    stageRuns,
		stageErrors:  stageErrors,
		searchesDone: searchesDone,
	}, nil
}

// RunResourceStage routes a dispatched ingest stage to its use case.
func (s *service) RunResourceStage(ctx context.Context, stage ports.Stage, resourceID string) error {
	err := s.runResourceStage(ctx, stage, resourceID)
	if err != nil {
		s.stageErrors.Add(ctx, 1)
	}
	return err
}

func (s *service) runResourceStage(ctx context.Context, stage ports.Stage, resourceID string) error {
	switch stage {
	case ports.StageInitiateProcessing:
		return s.InitiateProcessing(ctx, resourceID)
	case ports.StageInitialiseResourceGraph:
		return s.InitialiseResourceGraph(ctx, resourceID)
	case ports.StageExtractPlainText:
		return s.ExtractPlainText(ctx, resourceID)
	case ports.StageChunkResourceText:
		return s.ChunkResourceText(ctx, resourceID)
	case ports.StageUpdateChunksWithEmbeddings:
		return s.UpdateChunksWithEmbeddings(ctx, resourceID)
	case ports.StageVentilateResourceProcessing:
		return s.VentilateResourceProcessing(ctx, resourceID)
	case ports.StageQuarantineNotification:
		return s.NotifyQuarantine(ctx, resourceID)
	case ports.StageValidationErrorNotification:
		return s.NotifyValidationError(ctx, resourceID)
	}
	return faults.Internal("run_resource_stage", errors.New("unknown stage "+string(stage)))
}

// RunSearchStage routes a dispatched query stage to its use case.
func (s *service) RunSearchStage(ctx context.Context, stage ports.Stage, searchID string) error {
	err := s.runSearchStage(ctx, stage, searchID)
	if err != nil {
		s.stageErrors.Add(ctx, 1)
	}
	return err
}

func (s *service) runSearchStage(ctx context.Context, stage ports.Stage, searchID string) error {
	switch stage {
	case ports.StageInitiateSearchRequest:
		return s.InitiateSearchRequest(ctx, searchID)
	case ports.StageVectoriseSearchQuery:
		return s.VectoriseSearchQuery(ctx, searchID)
	case ports.StageIdentifyRelatedContent:
		return s.IdentifyRelatedContent(ctx, searchID)
	case ports.StageExecuteRagPrompt:
		return s.ExecuteRAGPrompt(ctx, searchID)
	case ports.StageIssueCredentials:
		return s.IssueCredentials(ctx, searchID)
	case ports.StageVentilateSearchResults:
		return s.VentilateSearchResults(ctx, searchID)
	}
	return faults.Internal("run_search_stage", errors.New("unknown stage "+string(stage)))
}

// MarkResourceFailed records a terminal failure. A resource already in a
// terminal state keeps it; quarantined stays quarantined.
func (s *service) MarkResourceFailed(ctx context.Context, resourceID, reason string) error {
	r, err := s.reg.Resources().Get(ctx, resourceID)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return nil
	}
	r.Status = domain.ResourceFailed
	r.Error = reason
	s.logger.Warn("resource failed",
		zap.String("resource_id", resourceID),
		zap.String("reason", reason))
	return s.reg.Resources().Update(ctx, r)
}

// MarkSearchFailed records a terminal failure on a search request.
func (s *service) MarkSearchFailed(ctx context.Context, searchID, reason string) error {
	sr, err := s.reg.Searches().Get(ctx, searchID)
	if err != nil {
		return err
	}
	if sr.Status.Terminal() {
		return nil
	}
	sr.Status = domain.SearchFailed
	sr.Error = reason
	s.searchesDone.Add(ctx, 1)
	s.logger.Warn("search failed",
		zap.String("search_id", searchID),
		zap.String("reason", reason))
	return s.reg.Searches().Update(ctx, sr)
}

// stageSpan opens a trace span and counts the invocation.
func (s *service) stageSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	s.stageRuns.Add(ctx, 1)
	return s.tracer.Start(ctx, name)
}

// advanceResource writes the next status unless the resource has already
// reached it. Returns true when the write happened.
func (s *service) advanceResource(ctx context.Context, r *domain.Resource, next domain.ResourceStatus) (bool, error) {
	if r.Status.Replay(next) {
		return false, nil
	}
	if !r.Status.CanAdvanceTo(next) {
		return false, faults.Internal("advance_resource",
			errors.New("illegal transition "+string(r.Status)+" -> "+string(next)))
	}
	r.Status = next
	if err := s.reg.Resources().Update(ctx, r); err != nil {
		return false, err
	}
	return true, nil
}

// advanceSearch is advanceResource for the query pipeline.
func (s *service) advanceSearch(ctx context.Context, sr *domain.SearchRequest, next domain.SearchStatus) (bool, error) {
	if sr.Status.Replay(next) {
		return false, nil
	}
	if !sr.Status.CanAdvanceTo(next) {
		return false, faults.Internal("advance_search",
			errors.New("illegal transition "+string(sr.Status)+" -> "+string(next)))
	}
	sr.Status = next
	if err := s.reg.Searches().Update(ctx, sr); err != nil {
		return false, err
	}
	return true, nil
}
