package dedupe

import (
	"sort"

	"rental-scraper/pkg/models"
)

// Dedupe keeps exactly one record per ref_id: the one with the greatest
// capture timestamp (ScrapedAt is RFC3339, so lexicographic order is
// temporal order). Ties keep the first-seen record. The result is sorted by
// ref_id, so the same multiset of inputs always yields the same output
// regardless of input order. Returns the canonical set and the number of
// records removed.
func Dedupe(records []models.Listing) ([]models.Listing, int) {
	best := make(map[string]models.Listing, len(records))
	for _, r := range records {
		current, seen := best[r.RefID]
		if !seen || r.ScrapedAt > current.ScrapedAt {
			best[r.RefID] = r
		}
	}

	out := make([]models.Listing, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RefID < out[j].RefID })

	return out, len(records) - len(out)
}

// DuplicateCounts reports, for each ref_id with more than one record, how
// many copies the input holds. Used by the dedupe command's summary output.
func DuplicateCounts(records []models.Listing) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.RefID]++
	}
	for id, n := range counts {
		if n < 2 {
			delete(counts, id)
		}
	}
	return counts
}
