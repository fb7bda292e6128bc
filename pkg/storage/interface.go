package storage

import (
	"context"
	"time"

	"rental-scraper/pkg/models"
)

// ListingStore tracks per-ref scrape outcomes across runs. Workers consult it
// to skip already-scraped refs and record every attempt's outcome.
type ListingStore interface {
	// CheckListingStatus retrieves the status and details recorded for a ref_id.
	// A ref never attempted yields ScrapeStatusNotFound with a nil entry.
	CheckListingStatus(refID string) (status models.ScrapeStatus, entry *models.ListingDBEntry, err error)

	// UpdateListingStatus records the outcome of processing a ref_id,
	// replacing any previous entry.
	UpdateListingStatus(refID string, entry *models.ListingDBEntry) error

	// CountByStatus scans the store and tallies refs per status (summary command).
	CountByStatus(ctx context.Context) (map[models.ScrapeStatus]int, error)

	// TrackedCount returns the number of refs with a recorded outcome.
	TrackedCount() (int, error)

	// RunGC runs periodic value-log garbage collection. Run in a goroutine.
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database.
	Close() error
}
