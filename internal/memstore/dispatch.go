package memstore

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/knowledged/internal/ports"
)

// DispatchedTask is one recorded enqueue.
type DispatchedTask struct {
	Stage  ports.Stage
	ID     string
	Search bool
}

// StageHandler executes one pipeline stage for an id.
type StageHandler func(ctx context.Context, stage ports.Stage, id string) error

// Dispatcher is the in-memory ports.TaskDispatch. By default it only
// records enqueues so tests can assert on what was scheduled. When handlers
// are attached it executes each stage inline, which collapses the
// asynchronous pipelines into synchronous calls for tests and for the
// single-process embedded mode.
type Dispatcher struct {
	mu            sync.Mutex
	tasks         []DispatchedTask
	resourceStage StageHandler
	searchStage   StageHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// OnResourceStage attaches the inline handler for ingest stages.
func (d *Dispatcher) OnResourceStage(h StageHandler) { d.resourceStage = h }

// OnSearchStage attaches the inline handler for query stages.
func (d *Dispatcher) OnSearchStage(h StageHandler) { d.searchStage = h }

func (d *Dispatcher) EnqueueStage(ctx context.Context, stage ports.Stage, resourceID string) error {
	d.mu.Lock()
	d.tasks = append(d.tasks, DispatchedTask{Stage: stage, ID: resourceID})
	h := d.resourceStage
	d.mu.Unlock()

	if h != nil {
		return h(ctx, stage, resourceID)
	}
	return nil
}

func (d *Dispatcher) EnqueueSearchStage(ctx context.Context, stage ports.Stage, searchID string) error {
	d.mu.Lock()
	d.tasks = append(d.tasks, DispatchedTask{Stage: stage, ID: searchID, Search: true})
	h := d.searchStage
	d.mu.Unlock()

	if h != nil {
		return h(ctx, stage, searchID)
	}
	return nil
}

// Tasks returns a copy of everything enqueued so far.
func (d *Dispatcher) Tasks() []DispatchedTask {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DispatchedTask(nil), d.tasks...)
}

// Reset clears the recorded tasks.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = nil
}
