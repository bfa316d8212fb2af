package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/antivirus"
	"github.com/fyrsmithlabs/knowledged/internal/chunker"
	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/dispatch"
	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/filemanager"
	"github.com/fyrsmithlabs/knowledged/internal/llm"
	"github.com/fyrsmithlabs/knowledged/internal/memstore"
	"github.com/fyrsmithlabs/knowledged/internal/neo4j"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
	"github.com/fyrsmithlabs/knowledged/internal/postgres"
	"github.com/fyrsmithlabs/knowledged/internal/registry"
	"github.com/fyrsmithlabs/knowledged/internal/usecases"
	"github.com/fyrsmithlabs/knowledged/internal/vectorindex"
	"github.com/fyrsmithlabs/knowledged/internal/webhook"
)

// app owns every wired dependency and its teardown.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	svc        usecases.Service
	dispatcher *dispatch.Dispatcher

	closers []func(context.Context) error
}

// newApp connects the configured backends and assembles the service.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	a.onClose(func(context.Context) error {
		nc.Close()
		return nil
	})

	dispatcher, err := dispatch.New(dispatch.Config{
		Stream:        cfg.NATS.Stream,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		MaxAttempts:   cfg.Pipeline.RetryMax,
		RetryBase:     cfg.RetryBase(),
		RetryCap:      cfg.RetryCap(),
		StageDeadline: cfg.StageDeadline(),
	}, nc, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.dispatcher = dispatcher

	stores, err := a.buildRelationalStores(ctx)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	graph, err := a.buildGraphStore(ctx)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	reg, err := registry.New(registry.Options{
		Dispatch:      dispatcher,
		Subscriptions: stores.subscriptions,
		Collections:   stores.collections,
		ResourceTypes: stores.resourceTypes,
		Resources:     stores.resources,
		Searches:      stores.searches,
		Graph:         graph,
		FileManager:   filemanager.New(),
		Antivirus:     antivirus.NewScanner(),
		Quarantine:    memstore.NewQuarantine(),
		LanguageModel: a.buildLanguageModel(),
		Chunker:       chunker.New(chunker.Config{}),
		Webhooks:      a.buildWebhookClient(),
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	svc, err := usecases.New(usecases.Config{
		TopKDefault:    cfg.Pipeline.TopKDefault,
		SearchDeadline: cfg.SearchDeadline(),
		QueryType:      a.queryType(),
	}, reg, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.svc = svc
	return a, nil
}

type relationalStores struct {
	subscriptions ports.SubscriptionStore
	collections   ports.CollectionStore
	resourceTypes ports.ResourceTypeStore
	resources     ports.ResourceStore
	searches      ports.SearchStore
}

func (a *app) buildRelationalStores(ctx context.Context) (*relationalStores, error) {
	switch a.cfg.Stores.Relational {
	case "postgres":
		store, err := postgres.Connect(ctx, postgres.Config{
			Host:     a.cfg.Postgres.Host,
			Port:     a.cfg.Postgres.Port,
			Database: a.cfg.Postgres.DB,
			User:     a.cfg.Postgres.User,
			Password: a.cfg.Postgres.Password,
			MaxConns: int32(a.cfg.Postgres.MaxConns),
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error {
			store.Close()
			return nil
		})
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return &relationalStores{
			subscriptions: postgres.NewSubscriptionStore(store),
			collections:   postgres.NewCollectionStore(store),
			resourceTypes: postgres.NewResourceTypeStore(store),
			resources:     postgres.NewResourceStore(store),
			searches:      postgres.NewSearchStore(store),
		}, nil
	default:
		a.logger.Info("using in-memory relational stores")
		return &relationalStores{
			subscriptions: memstore.NewSubscriptionStore(),
			collections:   memstore.NewCollectionStore(),
			resourceTypes: memstore.NewResourceTypeStore(),
			resources:     memstore.NewResourceStore(),
			searches:      memstore.NewSearchStore(),
		}, nil
	}
}

func (a *app) buildGraphStore(ctx context.Context) (ports.GraphStore, error) {
	switch a.cfg.Stores.Graph {
	case "neo4j":
		graph, err := neo4j.Connect(ctx, neo4j.Config{
			URI:      a.cfg.Neo4j.URI,
			User:     a.cfg.Neo4j.User,
			Password: a.cfg.Neo4j.Password,
			Database: a.cfg.Neo4j.Database,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose(graph.Close)
		return graph, nil
	default:
		collection := a.cfg.Chromem.Collection
		if a.cfg.Stores.VectorIndex == "qdrant" {
			collection = a.cfg.Qdrant.Collection
		}
		index, err := vectorindex.New(vectorindex.Config{
			Provider:   a.cfg.Stores.VectorIndex,
			Path:       a.cfg.Chromem.Path,
			QdrantHost: a.cfg.Qdrant.Host,
			QdrantPort: a.cfg.Qdrant.Port,
			Collection: collection,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return index.Close() })
		a.logger.Info("using in-memory graph store",
			zap.String("vector_index", a.cfg.Stores.VectorIndex))
		return memstore.NewGraphStore(index), nil
	}
}

func (a *app) buildLanguageModel() ports.LanguageModel {
	if a.cfg.LLM.APIKey == "" {
		a.logger.Warn("no LLM API key configured, using the deterministic embedded model")
		return memstore.NewStaticLanguageModel()
	}
	model, err := llm.New(llm.Config{
		APIKey:            a.cfg.LLM.APIKey,
		BaseURL:           a.cfg.LLM.BaseURL,
		EmbeddingModel:    a.cfg.LLM.EmbeddingModel,
		ChatModel:         a.cfg.LLM.ChatModel,
		RequestsPerSecond: a.cfg.LLM.RequestsPerSecond,
		WalletBaseURL:     a.cfg.LLM.WalletBaseURL,
	})
	if err != nil {
		a.logger.Warn("language model init failed, using the embedded model", zap.Error(err))
		return memstore.NewStaticLanguageModel()
	}
	return model
}

func (a *app) buildWebhookClient() ports.WebhookClient {
	return webhook.New(webhook.Config{
		MaxParallel:    a.cfg.Fanout.Concurrency,
		RequestTimeout: time.Duration(a.cfg.Fanout.TimeoutSec) * time.Second,
		MaxAttempts:    a.cfg.Fanout.MaxAttempts,
	}, a.logger)
}

func (a *app) queryType() domain.QueryType {
	if a.cfg.Query.PromptTemplate == "" {
		return domain.DefaultQueryType()
	}
	qt := domain.DefaultQueryType()
	qt.PromptTemplate = a.cfg.Query.PromptTemplate
	return qt
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close tears down in reverse construction order.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
}
