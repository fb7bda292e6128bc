package models

import "time"

// FurnishedUnknown is the sentinel for string fields whose value could not
// be determined from the page. Downstream consumers rely on every field key
// being present, so "not found" is always an explicit value, never an
// omitted key.
const FurnishedUnknown = "Unknown"

// ListingRef identifies one remote listing to process. Produced by the
// discovery step, consumed read-only by a batch worker.
type ListingRef struct {
	RefID string `json:"ref_id"`
	Link  string `json:"link"`
	City  string `json:"city,omitempty"`
}

// Listing is the extracted record for a single listing (or one unit type of
// a multi-unit building), merged with its source ListingRef. Numeric fields
// use pointers so "not present on page" (nil) is distinguishable from a
// legitimate zero (e.g. a studio has Beds = 0).
type Listing struct {
	RefID string `json:"ref_id"`
	Link  string `json:"link"`
	City  string `json:"city,omitempty"`

	Beds              *int     `json:"beds"`
	Baths             *float64 `json:"baths"`
	Sqft              *int     `json:"sqft"`
	Price             *int     `json:"price"`
	ParkingSpots      *int     `json:"parking_spots"`
	Furnished         string   `json:"furnished"`
	UtilitiesIncluded []string `json:"utilities_included"`
	Amenities         []string `json:"amenities"`
	SmokingAllowed    string   `json:"smoking_allowed"`
	FullDescription   string   `json:"full_description"`
	BuildingType      string   `json:"building_type"`
	AvailableDate     string   `json:"available_date"`
	LeaseTerm         string   `json:"lease_term"`

	// Multi-unit fan-out fields. A building page offering several distinct
	// floor-plan types yields one Listing per unit type, each with a
	// composite RefID "<parent>_unit_<n>" and a back-reference to the parent.
	IsMultiUnit     bool   `json:"is_multi_unit"`
	ParentRefID     string `json:"parent_ref_id,omitempty"`
	UnitType        string `json:"unit_type,omitempty"`
	UnitsAvailable  *int   `json:"units_available,omitempty"`
	BuildingAddress string `json:"building_address,omitempty"`

	// ScrapedAt is the capture timestamp in RFC3339 (UTC). Kept as a string
	// because deduplication-by-recency compares it lexicographically.
	ScrapedAt string `json:"scraped_at"`
}

// FromRef returns the unenriched Listing for a ref: identity fields copied,
// every extraction field at its unknown sentinel. This is what a batch
// worker emits when fetch or extraction fails, so no backlog item is ever
// dropped.
func FromRef(ref ListingRef) Listing {
	return Listing{
		RefID:             ref.RefID,
		Link:              ref.Link,
		City:              ref.City,
		Furnished:         FurnishedUnknown,
		SmokingAllowed:    FurnishedUnknown,
		UtilitiesIncluded: []string{},
		Amenities:         []string{},
	}
}

// Timestamp formats a capture time the way ScrapedAt stores it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
