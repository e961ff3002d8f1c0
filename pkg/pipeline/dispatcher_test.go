package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/netsweep/network-survey-agent/pkg/pipeline"
)

// testConfig returns a config tuned for fast specs.
func testConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.NoProgress = true
	return cfg
}

func intRange(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i + 1
	}
	return items
}

// drain collects everything from a finished run's closed channels.
func drain(run *pipeline.Run[int]) ([]int, []pipeline.Diagnostic) {
	var outs []int
	for v := range run.Output() {
		outs = append(outs, v)
	}
	var diags []pipeline.Diagnostic
	for d := range run.Diagnostics() {
		diags = append(diags, d)
	}
	return outs, diags
}

func countKind(diags []pipeline.Diagnostic, kind pipeline.DiagnosticKind) int {
	n := 0
	for _, d := range diags {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

func lastKind(diags []pipeline.Diagnostic, kind pipeline.DiagnosticKind) pipeline.Diagnostic {
	var last pipeline.Diagnostic
	for _, d := range diags {
		if d.Kind == kind {
			last = d
		}
	}
	return last
}

var _ = Describe("Dispatcher", func() {
	Describe("full run", func() {
		// Given integers 1..20 and a pool of 4 identity workers
		// When the run completes
		// Then every item is emitted exactly once and no worker pool
		// capacity is exceeded
		It("should process every item exactly once with a bounded pool", func() {
			var inFlight, peak atomic.Int32
			cfg := testConfig()
			cfg.MaxPipelines = 4

			d := pipeline.NewDispatcher(cfg, pipeline.ImportSet{},
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					cur := inFlight.Add(1)
					for {
						old := peak.Load()
						if cur <= old || peak.CompareAndSwap(old, cur) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					inFlight.Add(-1)
					return []int{n}, nil
				})

			run := d.Run(context.Background(), intRange(20))
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, diags := drain(run)
			Expect(outs).To(HaveLen(20))
			Expect(outs).To(ConsistOf(intRange(20)))
			Expect(diags).To(BeEmpty())
			Expect(int(peak.Load())).To(BeNumerically("<=", 4))
		})

		It("should clip the pool to the input length", func() {
			var inFlight, peak atomic.Int32
			cfg := testConfig()
			cfg.MaxPipelines = 10

			d := pipeline.NewDispatcher(cfg, pipeline.ImportSet{},
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					cur := inFlight.Add(1)
					for {
						old := peak.Load()
						if cur <= old || peak.CompareAndSwap(old, cur) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					inFlight.Add(-1)
					return []int{n}, nil
				})

			run := d.Run(context.Background(), intRange(3))
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, _ := drain(run)
			Expect(outs).To(HaveLen(3))
			Expect(int(peak.Load())).To(BeNumerically("<=", 3))
		})

		It("should finish immediately on empty input", func() {
			d := pipeline.NewDispatcher(testConfig(), pipeline.ImportSet{},
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					return []int{n}, nil
				})

			run := d.Run(context.Background(), nil)
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, diags := drain(run)
			Expect(outs).To(BeEmpty())
			Expect(diags).To(BeEmpty())
		})

		It("should forward multiple records per item", func() {
			d := pipeline.NewDispatcher(testConfig(), pipeline.ImportSet{},
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					return []int{n, -n}, nil
				})

			run := d.Run(context.Background(), intRange(5))
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, _ := drain(run)
			Expect(outs).To(HaveLen(10))
		})
	})

	Describe("item errors", func() {
		// Routine errors are ordinary diagnostics: no restart, no halt.
		It("should surface routine errors without stopping the run", func() {
			d := pipeline.NewDispatcher(testConfig(), pipeline.ImportSet{},
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					if n%5 == 0 {
						return nil, fmt.Errorf("item %d rejected", n)
					}
					return []int{n}, nil
				})

			run := d.Run(context.Background(), intRange(20))
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, diags := drain(run)
			Expect(outs).To(HaveLen(16))
			Expect(countKind(diags, pipeline.DiagnosticTaskError)).To(Equal(4))
			Expect(countKind(diags, pipeline.DiagnosticWorkerFailed)).To(BeZero())
		})
	})

	Describe("worker failure", func() {
		// Given one crafted item that panics the routine
		// When the run completes
		// Then exactly one worker failure is surfaced, a replacement takes
		// over and every other item is still emitted
		It("should replace a failed worker and process the remaining items", func() {
			cfg := testConfig()
			cfg.MaxPipelines = 4

			d := pipeline.NewDispatcher(cfg, pipeline.ImportSet{},
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					if n == 13 {
						panic("crafted item")
					}
					return []int{n}, nil
				})

			run := d.Run(context.Background(), intRange(20))
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, diags := drain(run)
			Expect(outs).To(HaveLen(19))
			Expect(outs).NotTo(ContainElement(13))
			Expect(countKind(diags, pipeline.DiagnosticWorkerFailed)).To(Equal(1))

			failed := diags[0]
			for _, diag := range diags {
				if diag.Kind == pipeline.DiagnosticWorkerFailed {
					failed = diag
				}
			}
			Expect(failed.Err).To(MatchError(ContainSubstring("crafted item")))
			Expect(failed.WorkerID).NotTo(BeEmpty())
		})

		It("should stop replacing once the restart cap is reached", func() {
			cfg := testConfig()
			cfg.MaxPipelines = 1
			cfg.MaxRestarts = 2

			d := pipeline.NewDispatcher(cfg, pipeline.ImportSet{},
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					panic("always")
				})

			run := d.Run(context.Background(), intRange(20))
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, diags := drain(run)
			Expect(outs).To(BeEmpty())
			// initial worker plus two replacements, each consuming one item
			Expect(countKind(diags, pipeline.DiagnosticWorkerFailed)).To(Equal(3))
			// the 17 unconsumed items are dropped with a warning
			Expect(countKind(diags, pipeline.DiagnosticCreationFailed)).To(Equal(1))
			Expect(lastKind(diags, pipeline.DiagnosticCreationFailed).Err).
				To(MatchError(ContainSubstring("dropping 17 unprocessed items")))
		})

		// A failed replacement creation must not end the run while input
		// remains: the empty pool idles until the next creation attempt.
		It("should retry spawning after a replacement fails to create", func() {
			var creations atomic.Int32
			imports := pipeline.ImportSet{
				InitScript: func(ctx context.Context, env *pipeline.Environment) error {
					if creations.Add(1) == 2 {
						return errors.New("resolver hiccup")
					}
					return nil
				},
			}

			cfg := testConfig()
			cfg.MaxPipelines = 1

			d := pipeline.NewDispatcher(cfg, imports,
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					if n == 1 {
						panic("poisoned item")
					}
					return []int{n}, nil
				})

			run := d.Run(context.Background(), intRange(5))
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, diags := drain(run)
			Expect(outs).To(ConsistOf(2, 3, 4, 5))
			Expect(countKind(diags, pipeline.DiagnosticWorkerFailed)).To(Equal(1))
			Expect(countKind(diags, pipeline.DiagnosticCreationFailed)).To(Equal(1))
			Expect(int(creations.Load())).To(Equal(3))
		})

		It("should drop the queue with a warning when creation keeps failing", func() {
			var creations atomic.Int32
			imports := pipeline.ImportSet{
				InitScript: func(ctx context.Context, env *pipeline.Environment) error {
					if creations.Add(1) > 1 {
						return errors.New("resolver down")
					}
					return nil
				},
			}

			cfg := testConfig()
			cfg.MaxPipelines = 1
			cfg.MaxRestarts = 2

			d := pipeline.NewDispatcher(cfg, imports,
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					panic("poisoned item")
				})

			run := d.Run(context.Background(), intRange(5))
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, diags := drain(run)
			Expect(outs).To(BeEmpty())
			Expect(countKind(diags, pipeline.DiagnosticWorkerFailed)).To(Equal(1))
			Expect(lastKind(diags, pipeline.DiagnosticCreationFailed).Err).
				To(MatchError(ContainSubstring("dropping 4 unprocessed items")))
		})
	})

	Describe("timeout", func() {
		// Given MaxDuration of zero and non-empty input
		// When the run starts
		// Then it aborts almost immediately with exactly one timeout warning
		It("should abort with exactly one timeout warning", func() {
			cfg := testConfig()
			cfg.MaxPipelines = 4
			cfg.MaxDuration = 0

			d := pipeline.NewDispatcher(cfg, pipeline.ImportSet{},
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					time.Sleep(20 * time.Millisecond)
					return []int{n}, nil
				})

			run := d.Run(context.Background(), intRange(20))
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, diags := drain(run)
			Expect(len(outs)).To(BeNumerically("<", 20))
			Expect(countKind(diags, pipeline.DiagnosticTimeout)).To(Equal(1))
			Expect(countKind(diags, pipeline.DiagnosticCanceled)).To(BeZero())
		})
	})

	Describe("cancellation", func() {
		It("should abort with exactly one cancellation warning", func() {
			cfg := testConfig()
			cfg.MaxPipelines = 2

			d := pipeline.NewDispatcher(cfg, pipeline.ImportSet{},
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					time.Sleep(10 * time.Millisecond)
					return []int{n}, nil
				})

			ctx, cancel := context.WithCancel(context.Background())
			run := d.Run(ctx, intRange(100))
			time.AfterFunc(50*time.Millisecond, cancel)

			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, diags := drain(run)
			Expect(len(outs)).To(BeNumerically("<", 100))
			Expect(countKind(diags, pipeline.DiagnosticCanceled)).To(Equal(1))
			Expect(countKind(diags, pipeline.DiagnosticTimeout)).To(BeZero())
		})
	})

	Describe("import set", func() {
		It("should apply variables, functions and init script to every worker", func() {
			var inits atomic.Int32
			imports := pipeline.ImportSet{
				Variables: map[string]any{"offset": 100},
				Functions: map[string]any{
					"shift": func(n, offset int) int { return n + offset },
				},
				InitScript: func(ctx context.Context, env *pipeline.Environment) error {
					inits.Add(1)
					return nil
				},
			}

			cfg := testConfig()
			cfg.MaxPipelines = 3

			d := pipeline.NewDispatcher(cfg, imports,
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					offset, ok := env.Var("offset")
					Expect(ok).To(BeTrue())
					fn, ok := env.Func("shift")
					Expect(ok).To(BeTrue())
					time.Sleep(time.Millisecond)
					return []int{fn.(func(int, int) int)(n, offset.(int))}, nil
				})

			run := d.Run(context.Background(), intRange(9))
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, _ := drain(run)
			Expect(outs).To(HaveLen(9))
			for _, v := range outs {
				Expect(v).To(BeNumerically(">", 100))
			}
			// one init per created worker
			Expect(int(inits.Load())).To(BeNumerically(">=", 1))
			Expect(int(inits.Load())).To(BeNumerically("<=", 3))
		})

		It("should run the bootstrap hook only when the profile is enabled", func() {
			var bootstraps atomic.Int32
			imports := pipeline.ImportSet{
				Bootstrap: func(env *pipeline.Environment) error {
					bootstraps.Add(1)
					return nil
				},
			}

			cfg := testConfig()
			cfg.MaxPipelines = 1
			d := pipeline.NewDispatcher(cfg, imports,
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					return []int{n}, nil
				})
			Expect(d.Run(context.Background(), intRange(3)).Wait()).NotTo(HaveOccurred())
			Expect(int(bootstraps.Load())).To(BeZero())

			imports.UseProfile = true
			d = pipeline.NewDispatcher(cfg, imports,
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					return []int{n}, nil
				})
			Expect(d.Run(context.Background(), intRange(3)).Wait()).NotTo(HaveOccurred())
			Expect(int(bootstraps.Load())).To(Equal(1))
		})
	})

	Describe("execution context creation", func() {
		It("should fail the run when the first worker cannot be created", func() {
			imports := pipeline.ImportSet{
				InitScript: func(ctx context.Context, env *pipeline.Environment) error {
					return errors.New("resolver unavailable")
				},
			}

			d := pipeline.NewDispatcher(testConfig(), imports,
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					return []int{n}, nil
				})

			run := d.Run(context.Background(), intRange(5))
			err := run.Wait()
			Expect(err).To(MatchError(pipeline.ErrNoExecutionContext))

			outs, _ := drain(run)
			Expect(outs).To(BeEmpty())
		})

		It("should continue with fewer workers when a later creation fails", func() {
			var attempts atomic.Int32
			imports := pipeline.ImportSet{
				InitScript: func(ctx context.Context, env *pipeline.Environment) error {
					if attempts.Add(1) > 1 {
						return errors.New("resolver exhausted")
					}
					return nil
				},
			}

			cfg := testConfig()
			cfg.MaxPipelines = 4

			d := pipeline.NewDispatcher(cfg, imports,
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					return []int{n}, nil
				})

			run := d.Run(context.Background(), intRange(8))
			Expect(run.Wait()).NotTo(HaveOccurred())

			outs, diags := drain(run)
			Expect(outs).To(ConsistOf(intRange(8)))
			Expect(countKind(diags, pipeline.DiagnosticCreationFailed)).To(BeNumerically(">=", 1))
		})
	})

	Describe("progress", func() {
		It("should report monotonically non-decreasing completion", func() {
			var mu sync.Mutex
			var snaps []pipeline.ProgressSnapshot

			cfg := testConfig()
			cfg.MaxPipelines = 4
			cfg.NoProgress = false
			cfg.DisplayInterval = time.Millisecond
			cfg.OnProgress = func(p pipeline.ProgressSnapshot) {
				mu.Lock()
				snaps = append(snaps, p)
				mu.Unlock()
			}

			d := pipeline.NewDispatcher(cfg, pipeline.ImportSet{},
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					time.Sleep(3 * time.Millisecond)
					return []int{n}, nil
				})

			run := d.Run(context.Background(), intRange(30))
			Expect(run.Wait()).NotTo(HaveOccurred())

			mu.Lock()
			defer mu.Unlock()
			Expect(snaps).NotTo(BeEmpty())
			last := -1
			for _, snap := range snaps {
				Expect(snap.Total).To(Equal(30))
				Expect(snap.Completed).To(BeNumerically(">=", last))
				Expect(snap.Percent).To(BeNumerically(">=", 0))
				Expect(snap.Percent).To(BeNumerically("<=", 100))
				Expect(snap.ActiveWorkers).To(BeNumerically("<=", 4))
				last = snap.Completed
			}
		})

		It("should stay silent when progress is disabled", func() {
			called := false
			cfg := testConfig()
			cfg.NoProgress = true
			cfg.OnProgress = func(pipeline.ProgressSnapshot) { called = true }

			d := pipeline.NewDispatcher(cfg, pipeline.ImportSet{},
				func(ctx context.Context, env *pipeline.Environment, n int) ([]int, error) {
					return []int{n}, nil
				})

			Expect(d.Run(context.Background(), intRange(10)).Wait()).NotTo(HaveOccurred())
			Expect(called).To(BeFalse())
		})
	})
})
