package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ProcessFunc is the caller-supplied routine run by every worker. It receives
// one dequeued item together with the worker's environment and returns zero
// or more output records. A returned error is forwarded on the diagnostic
// channel and does not terminate the worker; only a panic does.
type ProcessFunc[T, R any] func(ctx context.Context, env *Environment, item T) ([]R, error)

// WorkerState is the lifecycle state of a worker.
type WorkerState int32

const (
	// WorkerRunning - consuming the shared queue.
	WorkerRunning WorkerState = iota
	// WorkerCompleted - exited normally after draining the queue.
	WorkerCompleted
	// WorkerFailed - execution terminated abnormally; carries a reason.
	WorkerFailed
	// WorkerStopped - exited after a cooperative stop request.
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerRunning:
		return "running"
	case WorkerCompleted:
		return "completed"
	case WorkerFailed:
		return "failed"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the worker will make no further progress.
func (s WorkerState) Terminal() bool {
	return s != WorkerRunning
}

// worker binds one isolated environment to the shared queue and streams
// output and errors back through buffered channels the dispatcher polls.
type worker[T, R any] struct {
	id      string
	env     *Environment
	queue   *WorkQueue[T]
	process ProcessFunc[T, R]

	out  chan R
	errs chan error
	done chan struct{}

	state  atomic.Int32
	cancel context.CancelFunc

	mu      sync.Mutex
	failure error
}

// newWorker allocates the worker's environment by applying the import set.
// A failure here is an execution-context creation failure for this attempt;
// no goroutine has been started yet.
func newWorker[T, R any](ctx context.Context, imports ImportSet, queue *WorkQueue[T], process ProcessFunc[T, R], buffer int) (*worker[T, R], error) {
	id := uuid.NewString()[:8]
	env, err := newEnvironment(ctx, id, imports)
	if err != nil {
		return nil, fmt.Errorf("create execution context: %w", err)
	}
	return &worker[T, R]{
		id:      id,
		env:     env,
		queue:   queue,
		process: process,
		out:     make(chan R, buffer),
		errs:    make(chan error, buffer),
		done:    make(chan struct{}),
	}, nil
}

// Start begins asynchronous execution. The worker context is detached from
// the parent's cancellation so that teardown stays under the dispatcher's
// control; parent values remain visible to the routine.
func (w *worker[T, R]) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	w.cancel = cancel
	go w.run(ctx)
}

func (w *worker[T, R]) run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if rec := recover(); rec != nil {
			w.fail(fmt.Errorf("worker panicked: %v", rec))
		}
	}()

	for {
		if ctx.Err() != nil {
			w.state.Store(int32(WorkerStopped))
			return
		}
		item, ok := w.queue.TryDequeue()
		if !ok {
			w.state.Store(int32(WorkerCompleted))
			return
		}

		records, err := w.process(ctx, w.env, item)
		if err != nil {
			select {
			case w.errs <- err:
			case <-ctx.Done():
				w.state.Store(int32(WorkerStopped))
				return
			}
			continue
		}
		for _, r := range records {
			select {
			case w.out <- r:
			case <-ctx.Done():
				w.state.Store(int32(WorkerStopped))
				return
			}
		}
	}
}

func (w *worker[T, R]) fail(reason error) {
	w.mu.Lock()
	w.failure = reason
	w.mu.Unlock()
	w.state.Store(int32(WorkerFailed))
}

// Poll drains whatever output and error records are buffered right now. It
// never blocks.
func (w *worker[T, R]) Poll() ([]R, []error) {
	var outs []R
	var errs []error
	for {
		select {
		case v := <-w.out:
			outs = append(outs, v)
		default:
			for {
				select {
				case e := <-w.errs:
					errs = append(errs, e)
				default:
					return outs, errs
				}
			}
		}
	}
}

// State returns the worker's current lifecycle state.
func (w *worker[T, R]) State() WorkerState {
	return WorkerState(w.state.Load())
}

// FailureReason returns the reason recorded by a failed worker.
func (w *worker[T, R]) FailureReason() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failure
}

// Stop requests cooperative cancellation. Best effort: the worker honors it
// at its next queue-poll or stream-send boundary, not inside the caller's
// routine.
func (w *worker[T, R]) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

// drained reports whether all buffered records have been polled. Only
// meaningful once the state is terminal, after which no sends can follow.
func (w *worker[T, R]) drained() bool {
	return len(w.out) == 0 && len(w.errs) == 0
}
