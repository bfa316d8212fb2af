package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
)

// StageRunner is the slice of the use-case service the worker needs.
type StageRunner interface {
	RunResourceStage(ctx context.Context, stage ports.Stage, resourceID string) error
	RunSearchStage(ctx context.Context, stage ports.Stage, searchID string) error
	MarkResourceFailed(ctx context.Context, resourceID, reason string) error
	MarkSearchFailed(ctx context.Context, searchID, reason string) error
}

// Worker consumes stage messages and invokes the named use case. One pull
// consumer per stage subject; any number of workers may run concurrently
// because every stage is idempotent under duplicate delivery.
type Worker struct {
	d      *Dispatcher
	runner StageRunner
	logger *zap.Logger
}

// NewWorker builds a worker over an existing dispatcher.
func NewWorker(d *Dispatcher, runner StageRunner, logger *zap.Logger) (*Worker, error) {
	if d == nil {
		return nil, errors.New("dispatcher is required")
	}
	if runner == nil {
		return nil, errors.New("stage runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{d: d, runner: runner, logger: logger.Named("worker")}, nil
}

// Run consumes all pipeline subjects until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, stage := range ports.ResourceStages() {
		g.Go(func() error { return w.consume(gctx, stage, false) })
	}
	for _, stage := range ports.SearchStages() {
		g.Go(func() error { return w.consume(gctx, stage, true) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) consume(ctx context.Context, stage ports.Stage, search bool) error {
	durable := durableName(stage, search)
	sub, err := w.d.js.PullSubscribe(
		w.d.subject(stage, search),
		durable,
		nats.AckWait(w.d.cfg.AckWait),
		nats.MaxDeliver(w.d.cfg.MaxAttempts),
	)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := sub.Fetch(1, nats.MaxWait(time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		for _, msg := range msgs {
			w.handle(ctx, msg)
		}
	}
}

// handle runs one stage invocation and applies the retry policy.
func (w *Worker) handle(ctx context.Context, msg *nats.Msg) {
	var tk task
	if err := json.Unmarshal(msg.Data, &tk); err != nil {
		w.logger.Error("undecodable task dropped", zap.Error(err))
		_ = msg.Term()
		return
	}

	stageCtx, cancel := context.WithTimeout(ctx, w.d.cfg.StageDeadline)
	defer cancel()

	var err error
	if tk.Search {
		err = w.runner.RunSearchStage(stageCtx, tk.Stage, tk.ID)
	} else {
		err = w.runner.RunResourceStage(stageCtx, tk.Stage, tk.ID)
	}
	if err == nil {
		_ = msg.Ack()
		return
	}

	attempt := 1
	if meta, metaErr := msg.Metadata(); metaErr == nil {
		attempt = int(meta.NumDelivered)
	}

	if faults.Retryable(err) && attempt < w.d.cfg.MaxAttempts {
		delay := w.backoff(attempt)
		w.logger.Warn("stage failed, will retry",
			zap.String("stage", string(tk.Stage)),
			zap.String("id", tk.ID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		_ = msg.NakWithDelay(delay)
		return
	}

	// Quarantine and format rejection are verdicts, not failures: the
	// stage has already marked the entity and scheduled the notification.
	switch faults.KindOf(err) {
	case faults.KindVirusDetected, faults.KindInvalidFormat:
		w.logger.Info("stage finished with a rejection verdict",
			zap.String("stage", string(tk.Stage)),
			zap.String("id", tk.ID),
			zap.String("kind", string(faults.KindOf(err))))
		_ = msg.Ack()
		return
	}

	w.deadLetter(ctx, msg, tk, err, attempt)
}

// deadLetter parks the message and marks the entity failed with the last
// error.
func (w *Worker) deadLetter(ctx context.Context, msg *nats.Msg, tk task, cause error, attempt int) {
	w.logger.Error("stage failed terminally",
		zap.String("stage", string(tk.Stage)),
		zap.String("id", tk.ID),
		zap.Int("attempt", attempt),
		zap.String("kind", string(faults.KindOf(cause))),
		zap.Error(cause))

	if _, err := w.d.js.Publish(w.d.dlqSubject(tk.Stage, tk.Search), msg.Data); err != nil {
		w.logger.Error("dead-letter publish failed", zap.Error(err))
	}

	reason := cause.Error()
	if tk.Search {
		_ = w.runner.MarkSearchFailed(ctx, tk.ID, reason)
	} else {
		_ = w.runner.MarkResourceFailed(ctx, tk.ID, reason)
	}
	_ = msg.Ack()
}

func (w *Worker) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(w.d.cfg.RetryBase) * math.Pow(w.d.cfg.RetryFactor, float64(attempt-1)))
	if delay > w.d.cfg.RetryCap {
		delay = w.d.cfg.RetryCap
	}
	return delay
}

func durableName(stage ports.Stage, search bool) string {
	kind := "resource"
	if search {
		kind = "search"
	}
	return "ks-" + kind + "-" + strings.ReplaceAll(string(stage), ".", "-")
}
