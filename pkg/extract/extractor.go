package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"rental-scraper/pkg/models"
)

// unitCardSelector marks one floor-plan card on a building page. Two or more
// cards mean the page lists several distinct unit types and extraction fans
// out into one record per card; a single card is an ordinary listing.
const unitCardSelector = ".units-wrap > .card.block"

const maxDescriptionLen = 1000

// Extractor turns the rendered content of one listing page into structured
// records. It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	log *logrus.Entry

	// maxPlausible bounds numeric field matches. A page for a 300-unit tower
	// often mentions "800 parking spots" in building-level copy; anything at
	// or above this bound is treated as a building total and rejected.
	maxPlausible int
}

// New creates an Extractor. maxPlausible <= 0 falls back to 100.
func New(maxPlausible int, log *logrus.Entry) *Extractor {
	if maxPlausible <= 0 {
		maxPlausible = 100
	}
	return &Extractor{log: log, maxPlausible: maxPlausible}
}

// Extract produces one Listing per unit type found on the page. Single-unit
// pages yield exactly one record. Field-level failures degrade to sentinel
// values; Extract never returns an empty slice and never panics past this
// boundary.
func (e *Extractor) Extract(doc *goquery.Document, ref models.ListingRef, now time.Time) (listings []models.Listing) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{"ref_id": ref.RefID, "panic_info": r}).
				Error("PANIC recovered during extraction, returning unenriched record")
			fallback := models.FromRef(ref)
			fallback.ScrapedAt = models.Timestamp(now)
			listings = []models.Listing{fallback}
		}
	}()

	cards := doc.Find(unitCardSelector)
	if cards.Length() >= 2 {
		e.log.WithFields(logrus.Fields{"ref_id": ref.RefID, "unit_cards": cards.Length()}).
			Debug("Multi-unit listing detected")
		return e.extractMultiUnit(doc, cards, ref, now)
	}
	return []models.Listing{e.extractSingle(doc, ref, now)}
}

// extractMultiUnit fans one building page out into one record per unit card.
// Building-level attributes (address) are duplicated into each member and
// every member gets a composite "<parent>_unit_<n>" identifier.
func (e *Extractor) extractMultiUnit(doc *goquery.Document, cards *goquery.Selection, ref models.ListingRef, now time.Time) []models.Listing {
	buildingAddress := strings.TrimSpace(doc.Find("h1").First().Text())
	if buildingAddress == "" {
		buildingAddress = models.FurnishedUnknown
	}

	units := make([]models.Listing, 0, cards.Length())
	cards.Each(func(i int, card *goquery.Selection) {
		cardText := card.Text()

		unit := models.FromRef(ref)
		unit.RefID = fmt.Sprintf("%s_unit_%d", ref.RefID, i+1)
		unit.ParentRefID = ref.RefID
		unit.IsMultiUnit = true
		unit.BuildingAddress = buildingAddress
		unit.BuildingType = "Apartment"
		unit.ScrapedAt = models.Timestamp(now)

		// Unit type label: a heading inside the card, else its first text line.
		unit.UnitType = strings.TrimSpace(card.Find("h3, .unit-type, strong").First().Text())
		if unit.UnitType == "" {
			unit.UnitType = firstLine(cardText)
		}

		unit.UnitsAvailable = matchUnitsAvailable(cardText)
		unit.Beds = matchBeds(cardText)
		unit.Baths = matchBaths(cardText)
		unit.Sqft = matchSqft(cardText)
		unit.Price = matchPrice(cardText)
		unit.UtilitiesIncluded = matchUtilities(cardText)
		unit.ParkingSpots = matchParkingSpots(cardText, e.maxPlausible)
		if f := matchFurnished(cardText); f != "" {
			unit.Furnished = f
		}

		units = append(units, unit)
	})
	return units
}

// extractSingle handles an ordinary listing page: structural locations are
// tried first, whole-page text patterns only on failure. Every field is
// independent; one miss never aborts the others.
func (e *Extractor) extractSingle(doc *goquery.Document, ref models.ListingRef, now time.Time) models.Listing {
	l := models.FromRef(ref)
	l.ScrapedAt = models.Timestamp(now)

	pageText := doc.Find("body").Text()

	// Floor-plan card, if the page has one, is the most reliable source for
	// bedroom count and furnished status.
	planText := doc.Find(".units-wrap .card.block").First().Text()
	if planText != "" {
		l.Beds = matchBeds(planText)
		if f := matchFurnished(planText); f != "" {
			l.Furnished = f
		}
		l.Price = matchPrice(planText)
		l.Sqft = matchSqft(planText)
	}
	if l.Beds == nil {
		l.Beds = matchBeds(pageText)
	}
	if l.Baths == nil {
		l.Baths = matchBaths(pageText)
	}

	// Utilities: the labelled section first, keyword scan as fallback.
	if utilText := sectionText(doc, "Utilities Included"); utilText != "" {
		l.UtilitiesIncluded = matchUtilities(utilText)
	}
	if len(l.UtilitiesIncluded) == 0 {
		lower := strings.ToLower(pageText)
		if strings.Contains(lower, "included") || strings.Contains(lower, "paid") {
			l.UtilitiesIncluded = matchUtilities(pageText)
		}
	}

	// Parking: "Parking Spots" section first, then the ordered whole-page
	// pattern set with the plausibility bound.
	if parkText := sectionText(doc, "Parking Spots"); parkText != "" {
		l.ParkingSpots = matchParkingSpots(parkText, e.maxPlausible)
	}
	if l.ParkingSpots == nil {
		l.ParkingSpots = matchParkingSpots(pageText, e.maxPlausible)
	}

	if l.Furnished == models.FurnishedUnknown {
		if f := matchFurnished(pageText); f != "" {
			l.Furnished = f
		}
	}

	l.FullDescription = e.extractDescription(doc, pageText)
	l.Amenities = e.extractAmenities(doc, pageText)

	if s := matchSmoking(pageText); s != "" {
		l.SmokingAllowed = s
	}
	l.BuildingType = matchBuildingType(pageText)

	return l
}

// descriptionSelectors are structural candidates tried in priority order
// before falling back to text patterns.
var descriptionSelectors = []string{
	".listing-description",
	".description",
	"[class*=\"description\"]",
	".property-description",
	"#description",
}

func (e *Extractor) extractDescription(doc *goquery.Document, pageText string) string {
	for _, sel := range descriptionSelectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if len(text) > 20 {
			return truncate(text, maxDescriptionLen)
		}
	}
	for _, re := range descriptionPatterns {
		if m := re.FindStringSubmatch(pageText); m != nil {
			desc := strings.TrimSpace(m[1])
			if len(desc) > 20 {
				return truncate(desc, maxDescriptionLen)
			}
		}
	}
	return ""
}

func (e *Extractor) extractAmenities(doc *goquery.Document, pageText string) []string {
	amenities := []string{}

	// Lines of the "Features & Amenities" section, skipping group headers and
	// counted headings like "Property (17)".
	if featText := sectionText(doc, "Features & Amenities"); featText != "" {
		for _, line := range strings.Split(featText, "\n") {
			line = strings.TrimSpace(line)
			if len(line) <= 2 || len(line) >= 50 {
				continue
			}
			if line == "Property" || line == "Building" || line == "Neighbourhood" || strings.Contains(line, "Features & Amenities") {
				continue
			}
			if amenityCountSuffix.MatchString(line) {
				continue
			}
			amenities = append(amenities, line)
		}
	}
	if len(amenities) > 0 {
		return amenities
	}

	lower := strings.ToLower(pageText)
	for _, kw := range amenityKeywords {
		if strings.Contains(lower, kw) {
			amenities = append(amenities, strings.Title(kw))
		}
	}
	return amenities
}

// sectionText locates the element whose own text carries the given marker
// and returns the text of its enclosing parent, approximating "the labelled
// section" without depending on any one page layout.
func sectionText(doc *goquery.Document, marker string) string {
	var out string
	doc.Find("h2, h3, h4, strong, dt, span, p, div, li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		if !strings.Contains(s.Text(), marker) {
			return true
		}
		if parent := s.Parent(); parent.Length() > 0 {
			out = parent.Text()
		} else {
			out = s.Text()
		}
		return false
	})
	return out
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return truncate(strings.TrimSpace(text), 50)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
