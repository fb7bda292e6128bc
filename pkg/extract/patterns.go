package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Pattern sets are ordered most-specific-first: the first accepted match
// wins. A match is accepted only if it passes the plausibility bound, so a
// building-total number rejected by one pattern still lets a later, more
// general pattern try elsewhere in the text.
var (
	// Parking. "2 spots per unit" must outrank a bare "2 parking" so that
	// building-level text does not shadow the per-unit figure.
	parkingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s+spots?\s+per\s+unit`),
		regexp.MustCompile(`parking\s+spots[:\s]+(\d+)\s+spot`),
		regexp.MustCompile(`total\s+property\s+parking\s+spots[:\s]+(\d+)`),
		regexp.MustCompile(`(\d+)\s+parking\s+(?:spot|stall|space)s?`),
		regexp.MustCompile(`(\d+)\s+(?:titled|underground|surface|assigned|reserved)\s+parking`),
		regexp.MustCompile(`parking[:\s]+(\d+)`),
		regexp.MustCompile(`(\d+)\s+stalls?\s+included`),
	}

	bedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)\s*Bedroom`),
		regexp.MustCompile(`(?i)(\d+)\s*Bed\b`),
		regexp.MustCompile(`(?i)(\d+)\s*BR\b`),
	}

	bathPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*Bath`),
		regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*BA\b`),
	}

	sqftPattern  = regexp.MustCompile(`(?i)(\d+(?:,\d+)?)\s*(?:sq\.?\s*)?ft`)
	pricePattern = regexp.MustCompile(`\$\s*(\d+(?:,\d+)?)`)
	unitsPattern = regexp.MustCompile(`(?i)(\d+)\s*unit[s]?\b`)

	descriptionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Description[:\s]+(.+?)(?:Features|Amenities|Contact|$)`),
		regexp.MustCompile(`(?is)About this property[:\s]+(.+?)(?:Features|Amenities|Contact|$)`),
	}

	amenityCountSuffix = regexp.MustCompile(`\(\d+\)$`)
)

// wordNumbers resolves spelled-out quantities; tried only after every
// numeric pattern has failed.
var wordNumbers = []struct {
	word string
	n    int
}{
	{"one", 1}, {"two", 2}, {"three", 3}, {"four", 4},
	{"five", 5}, {"six", 6}, {"seven", 7}, {"eight", 8},
}

var utilityKeywords = []string{"Heat", "Water", "Electricity", "Hydro", "Gas", "Internet", "Cable", "Sewer"}

var amenityKeywords = []string{
	"gym", "fitness", "pool", "laundry", "balcony", "patio",
	"dishwasher", "air conditioning", "elevator", "storage",
	"bike room", "concierge", "security", "guest suite",
}

var buildingKeywords = []string{"apartment", "condo", "townhouse", "house", "duplex", "basement"}

// matchParkingSpots runs the ordered parking pattern set over lowercased
// text. maxPlausible rejects building totals (e.g. "800 parking spots" on a
// tower page is not a per-unit count). Falls back to spelled-out numbers.
// Returns nil when nothing plausible matched.
func matchParkingSpots(text string, maxPlausible int) *int {
	lower := strings.ToLower(text)

	for _, re := range parkingPatterns {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > 0 && n < maxPlausible {
			return &n
		}
		// Implausible match: keep trying less specific patterns.
	}

	for _, wn := range wordNumbers {
		if strings.Contains(lower, wn.word+" parking") || strings.Contains(lower, wn.word+" stall") {
			n := wn.n
			return &n
		}
	}

	return nil
}

// matchBeds applies the bedroom pattern set, with studio/bachelor treated
// as zero bedrooms.
func matchBeds(text string) *int {
	for _, re := range bedPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return &n
			}
		}
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "studio") || strings.Contains(lower, "bachelor") {
		zero := 0
		return &zero
	}
	return nil
}

func matchBaths(text string) *float64 {
	for _, re := range bathPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if f, err := strconv.ParseFloat(m[1], 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func matchSqft(text string) *int {
	if m := sqftPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			return &n
		}
	}
	return nil
}

func matchPrice(text string) *int {
	if m := pricePattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			return &n
		}
	}
	return nil
}

func matchUnitsAvailable(text string) *int {
	if m := unitsPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return &n
		}
	}
	return nil
}

// matchFurnished distinguishes "Unfurnished" before "Furnished" since the
// former contains the latter as a substring.
func matchFurnished(text string) string {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "furnished") {
		return ""
	}
	if strings.Contains(lower, "unfurnished") {
		return "Unfurnished"
	}
	return "Furnished"
}

// matchUtilities returns included utilities found in a section's text.
func matchUtilities(text string) []string {
	found := []string{}
	for _, u := range utilityKeywords {
		if strings.Contains(text, u) || strings.Contains(strings.ToLower(text), strings.ToLower(u)) {
			found = append(found, u)
		}
	}
	return found
}

func matchSmoking(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "no smoking") || strings.Contains(lower, "non-smoking"):
		return "No"
	case strings.Contains(lower, "smoking allowed"):
		return "Yes"
	}
	return ""
}

func matchBuildingType(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range buildingKeywords {
		if strings.Contains(lower, kw) {
			return strings.Title(kw)
		}
	}
	return ""
}
