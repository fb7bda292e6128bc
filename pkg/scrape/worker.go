package scrape

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"rental-scraper/pkg/config"
	"rental-scraper/pkg/extract"
	"rental-scraper/pkg/models"
	"rental-scraper/pkg/session"
	"rental-scraper/pkg/stats"
	"rental-scraper/pkg/storage"
	"rental-scraper/pkg/utils"
)

// batchOutcome is what one batch worker reports back to the collector:
// every record it produced (enriched, fallback, or fanned-out units).
// Skipped and unprocessed refs emit no records; their prior state already
// lives in the checkpoint or the status store.
type batchOutcome struct {
	batchIndex int
	records    []models.Listing
}

// worker processes whole batches, one browser session per batch.
type worker struct {
	cfg       config.AppConfig
	factory   session.Factory
	extractor *extract.Extractor
	store     storage.ListingStore
	tracker   *stats.Tracker
	force     bool
	log       *logrus.Entry
}

// runBatch processes one batch with a single session. It never returns an
// error: a batch-fatal failure (session won't start, worker panic) degrades
// every remaining item to its unenriched fallback record so no backlog item
// is ever dropped.
func (w *worker) runBatch(ctx context.Context, workerID, batchIndex int, refs []models.ListingRef) (outcome batchOutcome) {
	blog := w.log.WithFields(logrus.Fields{"worker_id": workerID, "batch": batchIndex, "batch_size": len(refs)})

	outcome = batchOutcome{batchIndex: batchIndex}
	w.tracker.Apply(stats.Delta{ActiveWorkers: 1})

	processed := 0
	defer func() {
		if r := recover(); r != nil {
			blog.Errorf("Worker panicked mid-batch: %v. Emitting fallback records for %d remaining items.", r, len(refs)-processed)
			outcome.records = append(outcome.records, w.failRemaining(refs[processed:], "panic")...)
		}
		w.tracker.Apply(stats.Delta{ActiveWorkers: -1, BatchesComplete: 1})
		blog.WithField("records", len(outcome.records)).Debug("Batch finished")
	}()

	sess, err := w.factory(ctx, workerID)
	if err != nil {
		blog.Errorf("Session creation failed, failing whole batch: %v", err)
		outcome.records = w.failRemaining(refs, utils.CategorizeError(err))
		processed = len(refs)
		return outcome
	}
	defer func() {
		if errClose := sess.Close(); errClose != nil {
			blog.Warnf("Error closing session: %v", errClose)
		}
	}()

	for i, ref := range refs {
		select {
		case <-ctx.Done():
			blog.Warnf("Batch interrupted after %d/%d items; remaining refs stay pending", processed, len(refs))
			return outcome
		default:
		}

		if i > 0 {
			if !w.itemDelay(ctx) {
				blog.Warnf("Batch interrupted during politeness delay after %d/%d items", processed, len(refs))
				return outcome
			}
		}

		outcome.records = append(outcome.records, w.processItem(ctx, sess, ref, blog)...)
		processed = i + 1
	}

	return outcome
}

// processItem fetches, extracts, and records one backlog item. Failure keeps
// the item alive as an unenriched fallback record.
func (w *worker) processItem(ctx context.Context, sess session.Session, ref models.ListingRef, blog *logrus.Entry) []models.Listing {
	ilog := blog.WithField("ref_id", ref.RefID)
	now := time.Now()

	if !w.force {
		status, _, err := w.store.CheckListingStatus(ref.RefID)
		if err != nil {
			ilog.Warnf("Status check failed, scraping anyway: %v", err)
		} else if status == models.ScrapeStatusSuccess {
			ilog.Debug("Already scraped, skipping")
			w.tracker.Apply(stats.Delta{Completed: 1, Skipped: 1})
			return nil
		}
	}

	doc, err := sess.Open(ctx, ref.Link)
	if err != nil {
		ilog.Warnf("Fetch failed: %v", err)
		return []models.Listing{w.failItem(ref, err, now)}
	}

	listings := w.extractor.Extract(doc, ref, now)

	delta := stats.Delta{Completed: 1, Success: 1, TotalUnitsFound: len(listings)}
	if len(listings) > 1 {
		delta.MultiUnitFound = 1
		ilog.WithField("units", len(listings)).Info("Multi-unit building fanned out")
	}
	w.tracker.Apply(delta)

	entry := &models.ListingDBEntry{
		Status:      models.ScrapeStatusSuccess,
		ScrapedAt:   now,
		LastAttempt: now,
		UnitCount:   len(listings),
	}
	if err := w.store.UpdateListingStatus(ref.RefID, entry); err != nil {
		ilog.Warnf("Failed to record success in status DB: %v", err)
	}

	return listings
}

// failItem emits the fallback record for one failed item and records the
// failure category in the status store.
func (w *worker) failItem(ref models.ListingRef, cause error, now time.Time) models.Listing {
	w.tracker.Apply(stats.Delta{Completed: 1, Failed: 1})

	entry := &models.ListingDBEntry{
		Status:      models.ScrapeStatusFailure,
		ErrorType:   utils.CategorizeError(cause),
		LastAttempt: now,
	}
	if err := w.store.UpdateListingStatus(ref.RefID, entry); err != nil {
		w.log.WithField("ref_id", ref.RefID).Warnf("Failed to record failure in status DB: %v", err)
	}

	rec := models.FromRef(ref)
	rec.ScrapedAt = models.Timestamp(now)
	return rec
}

// failRemaining emits fallback records for every ref in a batch-fatal
// situation, all sharing one error category.
func (w *worker) failRemaining(refs []models.ListingRef, errorType string) []models.Listing {
	now := time.Now()
	records := make([]models.Listing, 0, len(refs))
	for _, ref := range refs {
		w.tracker.Apply(stats.Delta{Completed: 1, Failed: 1})
		entry := &models.ListingDBEntry{
			Status:      models.ScrapeStatusFailure,
			ErrorType:   errorType,
			LastAttempt: now,
		}
		if err := w.store.UpdateListingStatus(ref.RefID, entry); err != nil {
			w.log.WithField("ref_id", ref.RefID).Warnf("Failed to record failure in status DB: %v", err)
		}
		rec := models.FromRef(ref)
		rec.ScrapedAt = models.Timestamp(now)
		records = append(records, rec)
	}
	return records
}

// itemDelay sleeps a randomized politeness interval between items. Returns
// false if the context was cancelled during the wait.
func (w *worker) itemDelay(ctx context.Context) bool {
	min, max := w.cfg.ItemDelayMin, w.cfg.ItemDelayMax
	if max <= 0 {
		return true
	}
	d := min
	if max > min {
		d = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
