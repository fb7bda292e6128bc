package stats

import (
	"sync"
	"time"
)

// Counters is the process-wide progress state for one run. All related
// fields for one item update atomically as a unit (via Tracker.Apply), so a
// reader never observes "completed" ahead of "success + failed + skipped".
type Counters struct {
	Total           int
	Completed       int
	Success         int
	Failed          int
	Skipped         int
	ActiveWorkers   int
	BatchesComplete int
	TotalBatches    int
	MultiUnitFound  int
	TotalUnitsFound int
}

// Delta is one atomic adjustment to the counters. Fields are added to the
// current values; negative values decrement (used for ActiveWorkers).
type Delta struct {
	Completed       int
	Success         int
	Failed          int
	Skipped         int
	ActiveWorkers   int
	BatchesComplete int
	MultiUnitFound  int
	TotalUnitsFound int
}

// Tracker aggregates Counters under a single mutex. Derived metrics (rate,
// percent done, ETA) are computed from a Snapshot, never stored, so they can
// not drift from the counters they depend on.
type Tracker struct {
	mu       sync.Mutex
	counters Counters
	started  time.Time
}

// NewTracker initializes a Tracker for a run of the given size.
func NewTracker(total, totalBatches int) *Tracker {
	return &Tracker{
		counters: Counters{Total: total, TotalBatches: totalBatches},
		started:  time.Now(),
	}
}

// Apply adds the delta to the counters as one atomic multi-field update.
func (t *Tracker) Apply(d Delta) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.Completed += d.Completed
	t.counters.Success += d.Success
	t.counters.Failed += d.Failed
	t.counters.Skipped += d.Skipped
	t.counters.ActiveWorkers += d.ActiveWorkers
	t.counters.BatchesComplete += d.BatchesComplete
	t.counters.MultiUnitFound += d.MultiUnitFound
	t.counters.TotalUnitsFound += d.TotalUnitsFound
}

// Snapshot returns a consistent copy of the counters.
func (t *Tracker) Snapshot() Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

// Started returns the run start time.
func (t *Tracker) Started() time.Time {
	return t.started
}

// Progress holds the derived view rendered by the display loop. It is
// computed from an immutable Snapshot so no lock is held while formatting
// or sleeping.
type Progress struct {
	Counters
	Elapsed     time.Duration
	Rate        float64 // completed items per second
	PercentDone float64
	Remaining   time.Duration
}

// Derive computes the display metrics from a snapshot at the given moment.
func Derive(c Counters, started time.Time, now time.Time) Progress {
	p := Progress{Counters: c, Elapsed: now.Sub(started)}
	if p.Elapsed <= 0 {
		p.Elapsed = time.Millisecond
	}
	p.Rate = float64(c.Completed) / p.Elapsed.Seconds()
	if c.Total > 0 {
		p.PercentDone = float64(c.Completed) / float64(c.Total) * 100
	}
	if p.Rate > 0 {
		left := float64(c.Total-c.Completed) / p.Rate
		p.Remaining = time.Duration(left * float64(time.Second))
	}
	return p
}
