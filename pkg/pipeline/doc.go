// Package pipeline implements a dynamic worker-pool scheduler that fans a
// materialized input set out across a bounded number of isolated workers
// pulling from one shared queue.
//
// # Architecture Overview
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                           Dispatcher                             │
//	│                                                                  │
//	│  ┌──────────────┐      ┌──────────────┐      ┌──────────────┐    │
//	│  │   Worker 1   │      │   Worker 2   │      │   Worker N   │    │
//	│  │ (env + loop) │      │ (env + loop) │      │ (env + loop) │    │
//	│  └──────┬───────┘      └──────┬───────┘      └──────┬───────┘    │
//	│         │ TryDequeue          │                     │            │
//	│  ┌──────┴──────────────────────┴─────────────────────┴───────┐   │
//	│  │                       WorkQueue                           │   │
//	│  │  [item1] [item2] [item3] ...   (built once, shared)       │   │
//	│  └───────────────────────────────────────────────────────────┘   │
//	│                                                                  │
//	│  tick: fill → drain → retire/restart → timeout → cancel →        │
//	│        forced stop → idle wait                                   │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Core Components
//
// WorkQueue:
//   - Thread-safe FIFO holding the fully materialized input set
//   - Each item is claimed by exactly one worker and never requeued
//   - Cleared in bulk on abort; remaining items are dropped
//
// Worker:
//   - One isolated Environment built from the run's ImportSet
//     (bootstrap, variables, functions, modules, init script, in order)
//   - Repeatedly dequeues and feeds items through the caller's routine
//   - Streams output and errors through buffered channels the dispatcher
//     polls without blocking
//   - A routine error is a per-item diagnostic; a panic fails the worker
//
// Dispatcher:
//   - The single coordinating loop; never blocks on a worker
//   - Creates up to min(MaxPipelines, len(input)) workers
//   - Replaces failed workers while input remains, up to MaxRestarts,
//     with exponential backoff after creation failures; an empty pool with
//     queued input idles until the next creation attempt and aborts with a
//     warning once the retry budget is exhausted
//   - Applies timeout and cancellation policy: a sticky exit signal is set
//     at most once per run, the queue is cleared and exactly one warning
//     diagnostic emitted
//   - Guarantees teardown: any worker still active at exit is force-stopped
//
// Run:
//   - Handle returned to the caller: Output and Diagnostics channels plus
//     Done/Wait
//   - Output order is guaranteed within a single worker's stream only
//   - Wait returns an error only when the very first worker cannot be
//     created
//
// # Usage
//
//	cfg := pipeline.DefaultConfig()
//	cfg.MaxPipelines = 4
//
//	d := pipeline.NewDispatcher(cfg, pipeline.ImportSet{},
//	    func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
//	        return []int{n * n}, nil
//	    })
//
//	run := d.Run(ctx, inputs)
//	go func() {
//	    for diag := range run.Diagnostics() {
//	        log.Println(diag)
//	    }
//	}()
//	for v := range run.Output() {
//	    // consume results as they arrive
//	}
//	if err := run.Wait(); err != nil {
//	    // no execution context could be created at all
//	}
//
// # Cancellation
//
// Cancellation is cooperative. The dispatcher polls the caller's context once
// per tick; workers honor Stop at their next queue-poll or stream-send
// boundary, never inside the caller's routine. Worker contexts are detached
// from the parent's cancellation so teardown stays under dispatcher control.
package pipeline
