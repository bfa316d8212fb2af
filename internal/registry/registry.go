// Package registry assembles the port instances a use case needs into a
// single typed value.
//
// The registry replaces a string-keyed repository map: the set of ports is
// fixed at construction time and unknown lookups are impossible by
// construction (a missing accessor is a compile error). The registry is
// immutable after startup; tests build one from in-memory adapters.
package registry

import (
	"errors"

	"github.com/fyrsmithlabs/knowledged/internal/ports"
)

// Registry provides access to every port the use cases consume.
type Registry interface {
	Dispatch() ports.TaskDispatch
	Subscriptions() ports.SubscriptionStore
	Collections() ports.CollectionStore
	ResourceTypes() ports.ResourceTypeStore
	Resources() ports.ResourceStore
	Searches() ports.SearchStore
	Graph() ports.GraphStore
	FileManager() ports.FileManager
	Antivirus() ports.AntivirusScanner
	Quarantine() ports.Quarantine
	LanguageModel() ports.LanguageModel
	Chunker() ports.Chunker
	Webhooks() ports.WebhookClient
}

// Options carries the port instances for a new registry. Every field is
// required.
type Options struct {
	Dispatch      ports.TaskDispatch
	Subscriptions ports.SubscriptionStore
	Collections   ports.CollectionStore
	ResourceTypes ports.ResourceTypeStore
	Resources     ports.ResourceStore
	Searches      ports.SearchStore
	Graph         ports.GraphStore
	FileManager   ports.FileManager
	Antivirus     ports.AntivirusScanner
	Quarantine    ports.Quarantine
	LanguageModel ports.LanguageModel
	Chunker       ports.Chunker
	Webhooks      ports.WebhookClient
}

type registry struct {
	dispatch      ports.TaskDispatch
	subscriptions ports.SubscriptionStore
	collections   ports.CollectionStore
	resourceTypes ports.ResourceTypeStore
	resources     ports.ResourceStore
	searches      ports.SearchStore
	graph         ports.GraphStore
	fileManager   ports.FileManager
	antivirus     ports.AntivirusScanner
	quarantine    ports.Quarantine
	languageModel ports.LanguageModel
	chunker       ports.Chunker
	webhooks      ports.WebhookClient
}

// New creates a registry, rejecting any missing port.
func New(opts Options) (Registry, error) {
	switch {
	case opts.Dispatch == nil:
		return nil, errors.New("task dispatch port is required")
	case opts.Subscriptions == nil:
		return nil, errors.New("subscription store port is required")
	case opts.Collections == nil:
		return nil, errors.New("collection store port is required")
	case opts.ResourceTypes == nil:
		return nil, errors.New("resource type store port is required")
	case opts.Resources == nil:
		return nil, errors.New("resource store port is required")
	case opts.Searches == nil:
		return nil, errors.New("search store port is required")
	case opts.Graph == nil:
		return nil, errors.New("graph store port is required")
	case opts.FileManager == nil:
		return nil, errors.New("file manager port is required")
	case opts.Antivirus == nil:
		return nil, errors.New("antivirus scanner port is required")
	case opts.Quarantine == nil:
		return nil, errors.New("quarantine port is required")
	case opts.LanguageModel == nil:
		return nil, errors.New("language model port is required")
	case opts.Chunker == nil:
		return nil, errors.New("chunker port is required")
	case opts.Webhooks == nil:
		return nil, errors.New("webhook client port is required")
	}

	return &registry{
		dispatch:      opts.Dispatch,
		subscriptions: opts.Subscriptions,
		collections:   opts.Collections,
		resourceTypes: opts.ResourceTypes,
		resources:     opts.Resources,
		searches:      opts.Searches,
		graph:         opts.Graph,
		fileManager:   opts.FileManager,
		antivirus:     opts.Antivirus,
		quarantine:    opts.Quarantine,
		languageModel: opts.LanguageModel,
		chunker:       opts.Chunker,
		webhooks:      opts.Webhooks,
	}, nil
}

func (r *registry) Dispatch() ports.TaskDispatch            { return r.dispatch }
func (r *registry) Subscriptions() ports.SubscriptionStore  { return r.subscriptions }
func (r *registry) Collections() ports.CollectionStore      { return r.collections }
func (r *registry) ResourceTypes() ports.ResourceTypeStore  { return r.resourceTypes }
func (r *registry) Resources() ports.ResourceStore          { return r.resources }
func (r *registry) Searches() ports.SearchStore             { return r.searches }
func (r *registry) Graph() ports.GraphStore                 { return r.graph }
func (r *registry) FileManager() ports.FileManager          { return r.fileManager }
func (r *registry) Antivirus() ports.AntivirusScanner       { return r.antivirus }
func (r *registry) Quarantine() ports.Quarantine            { return r.quarantine }
func (r *registry) LanguageModel() ports.LanguageModel      { return r.languageModel }
func (r *registry) Chunker() ports.Chunker                  { return r.chunker }
func (r *registry) Webhooks() ports.WebhookClient           { return r.webhooks }
