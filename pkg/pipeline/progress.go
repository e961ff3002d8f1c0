package pipeline

import (
	"math"
	"time"
)

// epsilon substituted for the elapsed time when a snapshot is taken before
// the clock has meaningfully advanced.
const rateEpsilon = 1e-3

// ProgressSnapshot is a derived view of a run's completion statistics. It is
// recomputed from counts at each display tick, advisory only, and never
// influences scheduling.
type ProgressSnapshot struct {
	// Total is the initial queue length.
	Total int
	// Completed approximates finished items: total minus still-queued minus
	// one in-flight item per active worker.
	Completed int
	// ActiveWorkers is the size of the active worker set.
	ActiveWorkers int
	// Percent of the queue consumed so far.
	Percent float64
	// Rate is completed items per second.
	Rate float64
	// SecondsRemaining estimates time to completion at the current rate.
	SecondsRemaining int
	// Elapsed since the run started.
	Elapsed time.Duration
}

// ProgressFunc receives rate-limited progress snapshots during a run.
type ProgressFunc func(ProgressSnapshot)

// progressReporter rate-limits snapshot emission to at most one per interval.
type progressReporter struct {
	interval time.Duration
	emit     ProgressFunc
	last     time.Time
}

func newProgressReporter(interval time.Duration, emit ProgressFunc) *progressReporter {
	return &progressReporter{interval: interval, emit: emit}
}

func (p *progressReporter) tick(now time.Time, snap ProgressSnapshot) {
	if p.emit == nil {
		return
	}
	if !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.emit(snap)
}

// takeSnapshot derives completion statistics from the queue and worker
// counts. remaining may already be stale; that is accepted.
func takeSnapshot(total, remaining, active int, elapsed time.Duration) ProgressSnapshot {
	snap := ProgressSnapshot{
		Total:         total,
		ActiveWorkers: active,
		Elapsed:       elapsed,
	}
	if total == 0 {
		snap.Percent = 100
		return snap
	}

	completed := total - remaining - active
	if completed < 0 {
		completed = 0
	}
	snap.Completed = completed
	snap.Percent = 100 - float64(remaining)/float64(total)*100

	seconds := elapsed.Seconds()
	if seconds < rateEpsilon {
		seconds = rateEpsilon
	}
	snap.Rate = float64(completed) / seconds
	if snap.Rate > 0 {
		snap.SecondsRemaining = int(math.Round(float64(total-completed) / snap.Rate))
	}
	return snap
}
