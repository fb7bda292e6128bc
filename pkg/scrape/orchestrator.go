package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"rental-scraper/pkg/checkpoint"
	"rental-scraper/pkg/config"
	"rental-scraper/pkg/extract"
	"rental-scraper/pkg/models"
	"rental-scraper/pkg/session"
	"rental-scraper/pkg/stats"
	"rental-scraper/pkg/storage"
	"rental-scraper/pkg/utils"
)

// Orchestrator runs one extraction pass: it partitions the backlog into
// batches, fans them out over a fixed worker pool, accumulates results, and
// checkpoints the accumulation as it grows.
type Orchestrator struct {
	cfg       config.AppConfig
	factory   session.Factory
	extractor *extract.Extractor
	store     storage.ListingStore
	ckpt      *checkpoint.Writer
	force     bool
	log       *logrus.Entry
}

// NewOrchestrator wires an orchestrator from its collaborators. force=true
// re-scrapes refs the status store already marks successful.
func NewOrchestrator(cfg config.AppConfig, factory session.Factory, store storage.ListingStore, ckpt *checkpoint.Writer, force bool, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		factory:   factory,
		extractor: extract.New(cfg.MaxPlausibleCount, log),
		store:     store,
		ckpt:      ckpt,
		force:     force,
		log:       log,
	}
}

// Partition splits refs into at most workers contiguous batches of size
// ceil(len(refs)/workers). The concatenation of the batches is exactly the
// input: no ref duplicated, none dropped, order preserved.
func Partition(refs []models.ListingRef, workers int) [][]models.ListingRef {
	if len(refs) == 0 || workers < 1 {
		return nil
	}
	size := (len(refs) + workers - 1) / workers
	batches := make([][]models.ListingRef, 0, workers)
	for start := 0; start < len(refs); start += size {
		end := min(start+size, len(refs))
		batches = append(batches, refs[start:end])
	}
	return batches
}

// Run executes the pass over refs and returns the final counters. On
// interrupt it waits up to InterruptGrace for in-flight batches, then
// abandons them; everything collected so far is checkpointed either way.
func (o *Orchestrator) Run(ctx context.Context, refs []models.ListingRef) (stats.Counters, error) {
	if len(refs) == 0 {
		return stats.Counters{}, fmt.Errorf("%w: no listing refs to process", utils.ErrEmptyBacklog)
	}

	if o.force {
		backupPath, err := o.ckpt.Backup(time.Now())
		if err != nil {
			return stats.Counters{}, err
		}
		if backupPath != "" {
			o.log.WithField("backup", backupPath).Info("Force re-scrape: previous dataset backed up")
		}
	}

	accumulated, err := o.ckpt.Load()
	if err != nil {
		return stats.Counters{}, err
	}

	batches := Partition(refs, o.cfg.NumWorkers)
	tracker := stats.NewTracker(len(refs), len(batches))

	o.log.WithFields(logrus.Fields{
		"refs":    len(refs),
		"batches": len(batches),
		"workers": o.cfg.NumWorkers,
		"resumed": len(accumulated),
	}).Info("Starting extraction pass")

	// Buffered to batch count so abandoned stragglers can still send their
	// outcome without blocking, even after the collector has stopped reading.
	results := make(chan batchOutcome, len(batches))

	sem := semaphore.NewWeighted(int64(o.cfg.NumWorkers))
	w := &worker{
		cfg:       o.cfg,
		factory:   o.factory,
		extractor: o.extractor,
		store:     o.store,
		tracker:   tracker,
		force:     o.force,
		log:       o.log,
	}

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(batchIndex int, batch []models.ListingRef) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				// Cancelled before a slot opened; the batch never ran.
				results <- batchOutcome{batchIndex: batchIndex}
				return
			}
			defer sem.Release(1)
			results <- w.runBatch(ctx, batchIndex%o.cfg.NumWorkers, batchIndex, batch)
		}(i, batch)
	}

	displayDone := make(chan struct{})
	go o.displayLoop(tracker, displayDone)

	// Collector: single owner of the accumulation. Appends batch results and
	// checkpoints whenever enough new records have piled up.
	abandon := make(chan struct{})
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		sinceCheckpoint := 0
		for received := 0; received < len(batches); received++ {
			select {
			case outcome := <-results:
				accumulated = append(accumulated, outcome.records...)
				sinceCheckpoint += len(outcome.records)
				if sinceCheckpoint >= o.cfg.CheckpointEvery {
					if err := o.ckpt.Save(accumulated); err != nil {
						o.log.Warnf("Checkpoint write failed (continuing): %v", err)
					}
					sinceCheckpoint = 0
				}
			case <-abandon:
				return
			}
		}
	}()

	interrupted := false
	select {
	case <-collectorDone:
	case <-ctx.Done():
		interrupted = true
		o.log.Warnf("Interrupt received; waiting up to %v for in-flight batches", o.cfg.InterruptGrace)
		select {
		case <-collectorDone:
			o.log.Info("In-flight batches drained before grace expired")
		case <-time.After(o.cfg.InterruptGrace):
			o.log.Warn("Grace period expired; abandoning in-flight batches")
			close(abandon)
			<-collectorDone
		}
	}

	close(displayDone)

	// Final snapshot regardless of how the pass ended.
	if err := o.ckpt.Save(accumulated); err != nil {
		o.log.Errorf("Final checkpoint write failed: %v", err)
		return tracker.Snapshot(), err
	}

	counters := tracker.Snapshot()
	o.logSummary(counters, tracker.Started(), len(accumulated), interrupted)

	if interrupted {
		return counters, ctx.Err()
	}
	return counters, nil
}

// displayLoop periodically renders progress until done closes. It only ever
// reads snapshots, so it holds no lock while formatting.
func (o *Orchestrator) displayLoop(tracker *stats.Tracker, done <-chan struct{}) {
	if o.cfg.DisplayRefresh <= 0 {
		return
	}
	ticker := time.NewTicker(o.cfg.DisplayRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p := stats.Derive(tracker.Snapshot(), tracker.Started(), time.Now())
			o.log.WithFields(logrus.Fields{
				"done":       fmt.Sprintf("%d/%d (%.1f%%)", p.Completed, p.Total, p.PercentDone),
				"ok":         p.Success,
				"failed":     p.Failed,
				"skipped":    p.Skipped,
				"workers":    p.ActiveWorkers,
				"batches":    fmt.Sprintf("%d/%d", p.BatchesComplete, p.TotalBatches),
				"rate":       fmt.Sprintf("%.2f/s", p.Rate),
				"eta":        p.Remaining.Round(time.Second).String(),
				"multi_unit": p.MultiUnitFound,
			}).Info("Progress")
		case <-done:
			return
		}
	}
}

func (o *Orchestrator) logSummary(c stats.Counters, started time.Time, datasetSize int, interrupted bool) {
	fields := logrus.Fields{
		"total":        c.Total,
		"success":      c.Success,
		"failed":       c.Failed,
		"skipped":      c.Skipped,
		"multi_unit":   c.MultiUnitFound,
		"units_found":  c.TotalUnitsFound,
		"dataset_size": datasetSize,
		"elapsed":      time.Since(started).Round(time.Second).String(),
	}
	if interrupted {
		o.log.WithFields(fields).Warn("Extraction pass interrupted")
		return
	}
	o.log.WithFields(fields).Info("Extraction pass complete")
}
