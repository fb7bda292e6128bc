package stats

import "rental-scraper/pkg/models"

// DatasetSummary describes an extracted dataset at rest (the summary
// command), as opposed to Counters which track a run in flight.
type DatasetSummary struct {
	Records        int
	MultiUnit      int
	ByCity         map[string]int
	ByBuildingType map[string]int
	WithPrice      int
	AveragePrice   float64
}

// Summarize tallies a dataset snapshot.
func Summarize(records []models.Listing) DatasetSummary {
	s := DatasetSummary{
		Records:        len(records),
		ByCity:         make(map[string]int),
		ByBuildingType: make(map[string]int),
	}

	priceSum := 0
	for _, r := range records {
		if r.IsMultiUnit {
			s.MultiUnit++
		}
		if r.City != "" {
			s.ByCity[r.City]++
		}
		if r.BuildingType != "" {
			s.ByBuildingType[r.BuildingType]++
		}
		if r.Price != nil {
			s.WithPrice++
			priceSum += *r.Price
		}
	}
	if s.WithPrice > 0 {
		s.AveragePrice = float64(priceSum) / float64(s.WithPrice)
	}
	return s
}

// MultiUnitShare returns the fraction of records that came from multi-unit
// fan-outs, in [0, 1].
func (s DatasetSummary) MultiUnitShare() float64 {
	if s.Records == 0 {
		return 0
	}
	return float64(s.MultiUnit) / float64(s.Records)
}
