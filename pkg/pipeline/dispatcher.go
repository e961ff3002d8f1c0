package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/creasty/defaults"
	"go.uber.org/zap"
)

// Config is the dispatcher's construction surface. Zero values are replaced
// by the tagged defaults through DefaultConfig.
type Config struct {
	// MaxPipelines is the worker pool size; the effective target is clipped
	// to the input length.
	MaxPipelines int `default:"10"`
	// MaxDuration bounds the whole run. Exceeding it aborts the run and
	// drops the remaining queue. The default is effectively unbounded.
	MaxDuration time.Duration `default:"8760h"`
	// DisplayInterval rate-limits progress emission.
	DisplayInterval time.Duration `default:"1s"`
	// TickInterval is the idle wait between dispatcher ticks.
	TickInterval time.Duration `default:"100ms"`
	// MaxRestarts caps replacement workers started after failures.
	MaxRestarts int `default:"100"`
	// StreamBuffer sizes each worker's output and error channels.
	StreamBuffer int `default:"64"`
	// NoProgress disables progress emission entirely.
	NoProgress bool
	// OnProgress receives rate-limited snapshots; when nil a log line is
	// emitted instead.
	OnProgress ProgressFunc
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	var cfg Config
	_ = defaults.Set(&cfg)
	return cfg
}

// Dispatcher fans a materialized input set out across a bounded pool of
// isolated workers pulling from one shared queue. A single coordinating loop
// creates and retires workers, drains their streams, applies timeout and
// cancellation policy, restarts failed workers and guarantees teardown.
type Dispatcher[T, R any] struct {
	cfg     Config
	imports ImportSet
	process ProcessFunc[T, R]
	log     *zap.SugaredLogger
}

// NewDispatcher builds a dispatcher for the given routine. The import set is
// captured here and applied to every worker the dispatcher creates.
func NewDispatcher[T, R any](cfg Config, imports ImportSet, process ProcessFunc[T, R]) *Dispatcher[T, R] {
	if cfg.MaxPipelines < 1 {
		cfg.MaxPipelines = 1
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.DisplayInterval <= 0 {
		cfg.DisplayInterval = time.Second
	}
	if cfg.StreamBuffer < 1 {
		cfg.StreamBuffer = 64
	}
	log := zap.S().Named("dispatcher")
	if cfg.OnProgress == nil {
		cfg.OnProgress = func(p ProgressSnapshot) {
			log.Infow("progress",
				"completed", p.Completed,
				"total", p.Total,
				"percent", fmt.Sprintf("%.1f", p.Percent),
				"active", p.ActiveWorkers,
				"rate", fmt.Sprintf("%.1f/s", p.Rate),
				"remaining", p.SecondsRemaining,
			)
		}
	}
	return &Dispatcher[T, R]{
		cfg:     cfg,
		imports: imports,
		process: process,
		log:     log,
	}
}

// Run is the handle returned to the caller: a lazily forwarded output stream,
// a separate diagnostic stream, and completion. Both channels close when the
// run ends. Output order across workers is unspecified.
type Run[R any] struct {
	out   chan R
	diags chan Diagnostic
	done  chan struct{}
	err   error
}

// Output streams records as workers produce them.
func (r *Run[R]) Output() <-chan R {
	return r.out
}

// Diagnostics streams non-fatal conditions: per-item errors, worker
// failures, abort warnings.
func (r *Run[R]) Diagnostics() <-chan Diagnostic {
	return r.diags
}

// Done closes when the run has fully terminated.
func (r *Run[R]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run ends and returns the hard error, if any. The
// only hard failure is the very first worker being impossible to create.
func (r *Run[R]) Wait() error {
	<-r.done
	return r.err
}

// runState is the dispatcher-local record for one run. Single writer: only
// the coordinating loop touches it.
type runState[T, R any] struct {
	start      time.Time
	exitSignal bool
	queue      *WorkQueue[T]
	active     []*worker[T, R]

	spawned       int
	restarts      int
	spawnFailures int
	nextSpawn     time.Time
	backoff       *backoff.ExponentialBackOff
}

// Run starts processing the input set and returns immediately. Consumers
// should drain Output and Diagnostics while waiting on Done.
func (d *Dispatcher[T, R]) Run(ctx context.Context, items []T) *Run[R] {
	run := &Run[R]{
		out:   make(chan R, len(items)+d.cfg.StreamBuffer),
		diags: make(chan Diagnostic, len(items)+d.cfg.StreamBuffer),
		done:  make(chan struct{}),
	}
	go d.loop(ctx, items, run)
	return run
}

// loop is one dispatcher tick after another: fill, drain, retire/restart,
// timeout check, cancellation check, forced stop, idle wait. It terminates
// when no worker is active and no input remains to hand out.
func (d *Dispatcher[T, R]) loop(ctx context.Context, items []T, run *Run[R]) {
	st := &runState[T, R]{
		start:   time.Now(),
		queue:   NewWorkQueue(items),
		backoff: backoff.NewExponentialBackOff(),
	}

	defer close(run.done)
	defer close(run.diags)
	defer close(run.out)
	defer d.cleanup(st, run)

	target := d.cfg.MaxPipelines
	if l := st.queue.InitialLen(); target > l {
		target = l
	}
	reporter := newProgressReporter(d.cfg.DisplayInterval, d.cfg.OnProgress)

	for {
		// 1. Fill the pool while there is spare capacity and queued input.
		if !st.exitSignal && !time.Now().Before(st.nextSpawn) {
			for len(st.active) < target && st.queue.Count() > 0 {
				if ok, fatal := d.spawn(ctx, st, run); !ok {
					if fatal {
						return
					}
					break
				}
			}
		}

		// 2. Drain every worker's streams without blocking and forward.
		for _, w := range st.active {
			outs, errs := w.Poll()
			for _, o := range outs {
				run.out <- o
			}
			for _, e := range errs {
				run.diags <- Diagnostic{Kind: DiagnosticTaskError, WorkerID: w.id, Err: e}
			}
		}
		if !d.cfg.NoProgress {
			reporter.tick(time.Now(), takeSnapshot(
				st.queue.InitialLen(), st.queue.Count(), len(st.active), time.Since(st.start)))
		}

		// 3. Retire terminal, fully drained workers; replace failed ones
		// while input remains. The replacement starts before the failed
		// worker is removed.
		keep := st.active[:0]
		for _, w := range st.active {
			state := w.State()
			if !state.Terminal() || !w.drained() {
				keep = append(keep, w)
				continue
			}
			if state == WorkerFailed {
				run.diags <- Diagnostic{Kind: DiagnosticWorkerFailed, WorkerID: w.id, Err: w.FailureReason()}
				if replacement := d.replace(ctx, st, run); replacement != nil {
					keep = append(keep, replacement)
				}
			}
		}
		st.active = keep

		// 4. Timeout check.
		if !st.exitSignal && time.Since(st.start) > d.cfg.MaxDuration {
			st.exitSignal = true
			dropped := st.queue.Clear()
			run.diags <- Diagnostic{
				Kind: DiagnosticTimeout,
				Err:  fmt.Errorf("run exceeded %s; dropping %d unprocessed items", d.cfg.MaxDuration, dropped),
			}
			d.log.Warnw("run timed out", "maxDuration", d.cfg.MaxDuration, "dropped", dropped)
		}

		// 5. Cancellation check, polled once per tick.
		if !st.exitSignal && ctx.Err() != nil {
			st.exitSignal = true
			dropped := st.queue.Clear()
			run.diags <- Diagnostic{
				Kind: DiagnosticCanceled,
				Err:  fmt.Errorf("cancellation requested; dropping %d unprocessed items", dropped),
			}
			d.log.Warnw("run canceled", "dropped", dropped)
		}

		// 6. Forced stop: on abort every active worker is stopped and
		// removed immediately, regardless of drain state. Output already
		// forwarded this tick is kept; anything produced after is lost.
		if st.exitSignal && len(st.active) > 0 {
			for _, w := range st.active {
				w.Stop()
			}
			st.active = st.active[:0]
		}

		// 7. Exit or idle. The run ends when no worker is active and the
		// queue is drained or an abort dropped it. An empty pool with
		// queued input keeps idling so the fill step can retry once
		// nextSpawn passes; only an exhausted retry budget gives up, and
		// then the dropped items are surfaced with a warning.
		if len(st.active) == 0 {
			if st.exitSignal || st.queue.Count() == 0 {
				return
			}
			if st.restarts >= d.cfg.MaxRestarts || st.spawnFailures >= d.cfg.MaxRestarts {
				dropped := st.queue.Clear()
				run.diags <- Diagnostic{
					Kind: DiagnosticCreationFailed,
					Err:  fmt.Errorf("worker retry budget exhausted; dropping %d unprocessed items", dropped),
				}
				d.log.Warnw("worker retry budget exhausted",
					"restarts", st.restarts, "creationFailures", st.spawnFailures, "dropped", dropped)
				return
			}
		}
		time.Sleep(d.cfg.TickInterval)
	}
}

// spawn creates and starts one worker. A creation failure is fatal only when
// no worker has ever been created this run; otherwise it is surfaced as a
// diagnostic and retried after a backoff.
func (d *Dispatcher[T, R]) spawn(ctx context.Context, st *runState[T, R], run *Run[R]) (ok, fatal bool) {
	w, err := newWorker(ctx, d.imports, st.queue, d.process, d.cfg.StreamBuffer)
	if err != nil {
		if st.spawned == 0 {
			run.err = fmt.Errorf("%w: %v", ErrNoExecutionContext, err)
			return false, true
		}
		st.spawnFailures++
		run.diags <- Diagnostic{Kind: DiagnosticCreationFailed, Err: err}
		st.nextSpawn = time.Now().Add(st.backoff.NextBackOff())
		return false, false
	}
	st.backoff.Reset()
	st.spawned++
	w.Start(ctx)
	st.active = append(st.active, w)
	d.log.Debugw("worker started", "worker", w.id, "active", len(st.active))
	return true, false
}

// replace starts a replacement for a failed worker when input remains and
// the restart cap has not been reached.
func (d *Dispatcher[T, R]) replace(ctx context.Context, st *runState[T, R], run *Run[R]) *worker[T, R] {
	if st.queue.Count() == 0 {
		return nil
	}
	if st.restarts >= d.cfg.MaxRestarts {
		d.log.Warnw("worker restart limit reached", "limit", d.cfg.MaxRestarts)
		return nil
	}
	st.restarts++
	w, err := newWorker(ctx, d.imports, st.queue, d.process, d.cfg.StreamBuffer)
	if err != nil {
		st.spawnFailures++
		run.diags <- Diagnostic{Kind: DiagnosticCreationFailed, Err: err}
		st.nextSpawn = time.Now().Add(st.backoff.NextBackOff())
		return nil
	}
	st.spawned++
	w.Start(ctx)
	d.log.Debugw("worker replaced", "worker", w.id, "restarts", st.restarts)
	return w
}

// cleanup is the guaranteed teardown phase. On a normal exit the active set
// is already empty; any worker still present is force-stopped and a warning
// surfaced.
func (d *Dispatcher[T, R]) cleanup(st *runState[T, R], run *Run[R]) {
	for _, w := range st.active {
		w.Stop()
		run.diags <- Diagnostic{
			Kind:     DiagnosticTeardown,
			WorkerID: w.id,
			Err:      fmt.Errorf("worker force-stopped during teardown in state %s", w.State()),
		}
		d.log.Warnw("worker force-stopped during teardown", "worker", w.id)
	}
	st.active = nil
}
