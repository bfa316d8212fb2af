package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
)

func runJetStream(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second))

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

// recordingRunner counts stage invocations and can fail the first n calls.
type recordingRunner struct {
	mu            sync.Mutex
	calls         []string
	failFirst     int
	failWith      error
	resourceFails []string
	searchFails   []string
	done          chan struct{}
}

func newRecordingRunner(failFirst int, failWith error) *recordingRunner {
	return &recordingRunner{failFirst: failFirst, failWith: failWith, done: make(chan struct{}, 16)}
}

func (r *recordingRunner) run(stage ports.Stage, id string) error {
	r.mu.Lock()
	r.calls = append(r.calls, string(stage)+":"+id)
	n := len(r.calls)
	r.mu.Unlock()
	r.done <- struct{}{}
	if n <= r.failFirst {
		return r.failWith
	}
	return nil
}

func (r *recordingRunner) RunResourceStage(_ context.Context, stage ports.Stage, id string) error {
	return r.run(stage, id)
}

func (r *recordingRunner) RunSearchStage(_ context.Context, stage ports.Stage, id string) error {
	return r.run(stage, id)
}

func (r *recordingRunner) MarkResourceFailed(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resourceFails = append(r.resourceFails, id+":"+reason)
	return nil
}

func (r *recordingRunner) MarkSearchFailed(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchFails = append(r.searchFails, id+":"+reason)
	return nil
}

func (r *recordingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func waitCalls(t *testing.T, r *recordingRunner, n int) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-deadline:
			t.Fatalf("timed out waiting for %d stage invocations, got %d", n, r.callCount())
		}
	}
}

func startWorker(t *testing.T, d *Dispatcher, runner StageRunner) {
	t.Helper()
	w, err := NewWorker(d, runner, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
}

func TestDispatcherDeliversToWorker(t *testing.T) {
	nc := runJetStream(t)
	d, err := New(Config{RetryBase: 10 * time.Millisecond}, nc, nil)
	require.NoError(t, err)

	runner := newRecordingRunner(0, nil)
	startWorker(t, d, runner)

	require.NoError(t, d.EnqueueStage(t.Context(), ports.StageInitiateProcessing, "r1"))
	require.NoError(t, d.EnqueueSearchStage(t.Context(), ports.StageVectoriseSearchQuery, "q1"))

	waitCalls(t, runner, 2)
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.ElementsMatch(t,
		[]string{"initiate-processing:r1", "vectorise-search-query:q1"},
		runner.calls)
}

func TestWorkerRetriesTransient(t *testing.T) {
	nc := runJetStream(t)
	d, err := New(Config{RetryBase: 10 * time.Millisecond, MaxAttempts: 5}, nc, nil)
	require.NoError(t, err)

	runner := newRecordingRunner(1, faults.Transient("test", errors.New("flaky")))
	startWorker(t, d, runner)

	require.NoError(t, d.EnqueueStage(t.Context(), ports.StageExtractPlainText, "r1"))

	waitCalls(t, runner, 2)
	assert.Equal(t, 2, runner.callCount(), "one failure, one successful redelivery")
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Empty(t, runner.resourceFails, "transient recovery does not fail the entity")
}

func TestWorkerDeadLettersNonRetryable(t *testing.T) {
	nc := runJetStream(t)
	d, err := New(Config{RetryBase: 10 * time.Millisecond}, nc, nil)
	require.NoError(t, err)

	runner := newRecordingRunner(99, faults.Validation("test", "bad input"))
	startWorker(t, d, runner)

	require.NoError(t, d.EnqueueStage(t.Context(), ports.StageChunkResourceText, "r1"))

	waitCalls(t, runner, 1)
	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.resourceFails) == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, runner.callCount(), "validation errors are not retried")

	// The poison message is parked on the dead-letter subject.
	sub, err := d.js.PullSubscribe(d.dlqSubject(ports.StageChunkResourceText, false), "dlq-reader")
	require.NoError(t, err)
	msgs, err := sub.Fetch(1, nats.MaxWait(5*time.Second))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestWorkerAcksRejectionVerdictWithoutDeadLetter(t *testing.T) {
	nc := runJetStream(t)
	d, err := New(Config{RetryBase: 10 * time.Millisecond}, nc, nil)
	require.NoError(t, err)

	runner := newRecordingRunner(99, faults.VirusDetected("scan", "resource r1 quarantined"))
	startWorker(t, d, runner)

	require.NoError(t, d.EnqueueStage(t.Context(), ports.StageInitiateProcessing, "r1"))

	waitCalls(t, runner, 1)
	assert.Equal(t, 1, runner.callCount(), "rejection verdicts are not retried")

	// The verdict is acked outright: nothing reaches the dead-letter
	// subject and the entity is not re-marked failed.
	sub, err := d.js.PullSubscribe(d.dlqSubject(ports.StageInitiateProcessing, false), "dlq-reader")
	require.NoError(t, err)
	_, err = sub.Fetch(1, nats.MaxWait(500*time.Millisecond))
	assert.ErrorIs(t, err, nats.ErrTimeout)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Empty(t, runner.resourceFails)
}

func TestBackoffCaps(t *testing.T) {
	d := &Dispatcher{cfg: Config{
		RetryBase:   time.Second,
		RetryFactor: 2,
		RetryCap:    5 * time.Second,
	}.withDefaults()}
	w := &Worker{d: d}

	assert.Equal(t, time.Second, w.backoff(1))
	assert.Equal(t, 2*time.Second, w.backoff(2))
	assert.Equal(t, 4*time.Second, w.backoff(3))
	assert.Equal(t, 5*time.Second, w.backoff(4), "delay is capped")
}
