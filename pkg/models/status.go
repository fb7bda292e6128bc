package models

import "time"

// ScrapeStatus represents the processing status of a listing in the state database
type ScrapeStatus string

const (
	ScrapeStatusUnset    ScrapeStatus = ""          // Zero value = unset/unknown
	ScrapeStatusPending  ScrapeStatus = "pending"   // Listing queued but not processed
	ScrapeStatusSuccess  ScrapeStatus = "success"   // Listing scraped successfully
	ScrapeStatusFailure  ScrapeStatus = "failure"   // Listing scrape failed
	ScrapeStatusNotFound ScrapeStatus = "not_found" // Listing not in database
	ScrapeStatusDBError  ScrapeStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s ScrapeStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s ScrapeStatus) IsValid() bool {
	switch s {
	case ScrapeStatusPending, ScrapeStatusSuccess, ScrapeStatusFailure:
		return true
	}
	return false
}

// ListingDBEntry stores the outcome of processing one ref_id in the state database
type ListingDBEntry struct {
	Status      ScrapeStatus `json:"status"`
	ErrorType   string       `json:"error_type,omitempty"`   // Error category (on failure)
	ScrapedAt   time.Time    `json:"scraped_at,omitempty"`   // Timestamp of successful scrape
	LastAttempt time.Time    `json:"last_attempt"`           // Timestamp of the last attempt
	UnitCount   int          `json:"unit_count,omitempty"`   // >1 for multi-unit fan-outs
}
