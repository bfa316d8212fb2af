// Package dispatch is the durable task queue between pipeline stages,
// built on NATS JetStream. Each stage has its own subject; delivery is
// at-least-once and the worker enforces bounded redelivery with
// exponential backoff. Poison messages land on a dead-letter subject.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
)

const (
	defaultStream        = "KNOWLEDGED"
	defaultSubjectPrefix = "ks"
)

// Config tunes the queue and the worker retry policy.
type Config struct {
	// Stream is the JetStream stream name.
	Stream string
	// SubjectPrefix is the leading subject token; stage subjects are
	// <prefix>.resource.<stage> and <prefix>.search.<stage>.
	SubjectPrefix string
	// MaxAttempts bounds deliveries per message before dead-lettering.
	MaxAttempts int
	// RetryBase is the first redelivery delay.
	RetryBase time.Duration
	// RetryFactor multiplies the delay per attempt.
	RetryFactor float64
	// RetryCap bounds the redelivery delay.
	RetryCap time.Duration
	// AckWait is how long JetStream waits for an ack before redelivering
	// on its own.
	AckWait time.Duration
	// StageDeadline bounds one stage invocation.
	StageDeadline time.Duration
}

// DefaultConfig returns production queue settings.
func DefaultConfig() Config {
	return Config{
		Stream:        defaultStream,
		SubjectPrefix: defaultSubjectPrefix,
		MaxAttempts:   5,
		RetryBase:     time.Second,
		RetryFactor:   2,
		RetryCap:      60 * time.Second,
		AckWait:       2 * time.Minute,
		StageDeadline: 10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Stream == "" {
		c.Stream = def.Stream
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = def.SubjectPrefix
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = def.RetryBase
	}
	if c.RetryFactor < 1 {
		c.RetryFactor = def.RetryFactor
	}
	if c.RetryCap <= 0 {
		c.RetryCap = def.RetryCap
	}
	if c.AckWait <= 0 {
		c.AckWait = def.AckWait
	}
	if c.StageDeadline <= 0 {
		c.StageDeadline = def.StageDeadline
	}
	return c
}

// task is the wire form of one stage message.
type task struct {
	Stage  ports.Stage `json:"stage"`
	ID     string      `json:"id"`
	Search bool        `json:"search"`
}

// Dispatcher implements ports.TaskDispatch over JetStream.
type Dispatcher struct {
	cfg    Config
	js     nats.JetStreamContext
	logger *zap.Logger
}

// New creates the dispatcher and ensures the stream exists.
func New(cfg Config, nc *nats.Conn, logger *zap.Logger) (*Dispatcher, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.Stream, err)
	}

	return &Dispatcher{cfg: cfg, js: js, logger: logger.Named("dispatch")}, nil
}

func (d *Dispatcher) subject(stage ports.Stage, search bool) string {
	kind := "resource"
	if search {
		kind = "search"
	}
	return fmt.Sprintf("%s.%s.%s", d.cfg.SubjectPrefix, kind, stage)
}

func (d *Dispatcher) dlqSubject(stage ports.Stage, search bool) string {
	kind := "resource"
	if search {
		kind = "search"
	}
	return fmt.Sprintf("%s.dlq.%s.%s", d.cfg.SubjectPrefix, kind, stage)
}

func (d *Dispatcher) publish(ctx context.Context, stage ports.Stage, id string, search bool) error {
	payload, err := json.Marshal(task{Stage: stage, ID: id, Search: search})
	if err != nil {
		return faults.Internal("enqueue_stage", err)
	}
	if _, err := d.js.Publish(d.subject(stage, search), payload, nats.Context(ctx)); err != nil {
		return faults.Transient("enqueue_stage", err)
	}
	d.logger.Debug("stage enqueued",
		zap.String("stage", string(stage)),
		zap.String("id", id),
		zap.Bool("search", search))
	return nil
}

// EnqueueStage places an ingest stage on the queue.
func (d *Dispatcher) EnqueueStage(ctx context.Context, stage ports.Stage, resourceID string) error {
	return d.publish(ctx, stage, resourceID, false)
}

// EnqueueSearchStage places a query stage on the queue.
func (d *Dispatcher) EnqueueSearchStage(ctx context.Context, stage ports.Stage, searchID string) error {
	return d.publish(ctx, stage, searchID, true)
}
