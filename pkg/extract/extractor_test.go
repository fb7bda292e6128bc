package extract

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-scraper/pkg/models"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(100, logrus.NewEntry(logger))
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

var testRef = models.ListingRef{RefID: "r555", Link: "https://example.com/r555", City: "Calgary"}
var testNow = time.Date(2026, 4, 10, 8, 30, 0, 0, time.UTC)

const multiUnitPage = `<html><body>
<h1>The Grandview Tower</h1>
<div class="units-wrap">
  <div class="card block"><h3>1 Bedroom Apartment</h3>
    1 Bedroom 1 Bath 620 sqft $1,450 3 units available Heat Water included</div>
  <div class="card block"><h3>2 Bedroom Apartment</h3>
    2 Bedroom 1.5 Bath 890 sqft $1,895 2 units Unfurnished</div>
  <div class="card block"><h3>Studio</h3>
    Studio 1 Bath 410 sqft $1,100 1 unit</div>
</div>
</body></html>`

func TestExtract_MultiUnitFanOut(t *testing.T) {
	e := newTestExtractor(t)
	got := e.Extract(mustDoc(t, multiUnitPage), testRef, testNow)

	require.Len(t, got, 3)
	for i, unit := range got {
		assert.Equal(t, "r555_unit_"+string(rune('1'+i)), unit.RefID)
		assert.Equal(t, "r555", unit.ParentRefID)
		assert.True(t, unit.IsMultiUnit)
		assert.Equal(t, "The Grandview Tower", unit.BuildingAddress)
		assert.Equal(t, "Apartment", unit.BuildingType)
		assert.Equal(t, models.Timestamp(testNow), unit.ScrapedAt)
	}

	require.NotNil(t, got[0].Beds)
	assert.Equal(t, 1, *got[0].Beds)
	assert.Equal(t, "1 Bedroom Apartment", got[0].UnitType)
	require.NotNil(t, got[0].UnitsAvailable)
	assert.Equal(t, 3, *got[0].UnitsAvailable)
	require.NotNil(t, got[0].Price)
	assert.Equal(t, 1450, *got[0].Price)
	assert.Contains(t, got[0].UtilitiesIncluded, "Heat")
	assert.Contains(t, got[0].UtilitiesIncluded, "Water")

	require.NotNil(t, got[1].Baths)
	assert.Equal(t, 1.5, *got[1].Baths)
	assert.Equal(t, "Unfurnished", got[1].Furnished)
	require.NotNil(t, got[1].Sqft)
	assert.Equal(t, 890, *got[1].Sqft)

	// "Studio" means zero bedrooms, not unknown.
	require.NotNil(t, got[2].Beds)
	assert.Equal(t, 0, *got[2].Beds)
}

func TestExtract_SingleUnitCardIsNotAGroup(t *testing.T) {
	// Boundary case: exactly one unit card stays on the single-unit path.
	page := `<html><body>
<h1>42 Maple Street</h1>
<div class="units-wrap">
  <div class="card block">2 Bedroom Unfurnished $1,700</div>
</div>
</body></html>`

	e := newTestExtractor(t)
	got := e.Extract(mustDoc(t, page), testRef, testNow)

	require.Len(t, got, 1)
	assert.False(t, got[0].IsMultiUnit)
	assert.Equal(t, "r555", got[0].RefID)
	assert.Empty(t, got[0].ParentRefID)
	require.NotNil(t, got[0].Beds)
	assert.Equal(t, 2, *got[0].Beds)
	assert.Equal(t, "Unfurnished", got[0].Furnished)
}

func TestExtract_SingleUnitStructuralSections(t *testing.T) {
	page := `<html><body>
<h1>Riverside Condo</h1>
<div class="section"><h3>Utilities Included</h3><ul><li>Heat</li><li>Water</li></ul></div>
<div class="section"><h3>Parking Spots</h3><p>Parking Spots: 2 spots</p></div>
<div class="listing-description">Bright corner condo steps from the river pathway system, freshly painted.</div>
<div class="section"><h3>Features &amp; Amenities</h3>
<div>Property (17)
Dishwasher
Balcony
Building
Fitness Centre
</div></div>
<p>This condo is unfurnished. No smoking permitted.</p>
</body></html>`

	e := newTestExtractor(t)
	got := e.Extract(mustDoc(t, page), testRef, testNow)
	require.Len(t, got, 1)
	l := got[0]

	assert.ElementsMatch(t, []string{"Heat", "Water"}, l.UtilitiesIncluded)
	require.NotNil(t, l.ParkingSpots)
	assert.Equal(t, 2, *l.ParkingSpots)
	assert.Contains(t, l.FullDescription, "corner condo")
	assert.Contains(t, l.Amenities, "Dishwasher")
	assert.Contains(t, l.Amenities, "Balcony")
	assert.NotContains(t, l.Amenities, "Property (17)")
	assert.NotContains(t, l.Amenities, "Building")
	assert.Equal(t, "Unfurnished", l.Furnished)
	assert.Equal(t, "No", l.SmokingAllowed)
	assert.Equal(t, "Condo", l.BuildingType)
}

func TestExtract_EmptyPageKeepsSentinels(t *testing.T) {
	e := newTestExtractor(t)
	got := e.Extract(mustDoc(t, "<html><body></body></html>"), testRef, testNow)

	require.Len(t, got, 1)
	l := got[0]
	assert.Equal(t, "r555", l.RefID)
	assert.Nil(t, l.Beds)
	assert.Nil(t, l.ParkingSpots)
	assert.Equal(t, models.FurnishedUnknown, l.Furnished)
	assert.Equal(t, models.FurnishedUnknown, l.SmokingAllowed)
	assert.NotNil(t, l.UtilitiesIncluded)
	assert.NotNil(t, l.Amenities)
	assert.Equal(t, models.Timestamp(testNow), l.ScrapedAt)
}

func TestMatchParkingSpots(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *int
	}{
		{"labelled section", "Parking Spots: 2 spots", intPtr(2)},
		{"building total rejected", "800 Parking spots", nil},
		{"word fallback", "two parking stalls at the rear", intPtr(2)},
		{"per unit outranks bare count", "1 spot per unit, 400 parking stalls total", intPtr(1)},
		{"underground", "comes with 2 underground parking", intPtr(2)},
		{"no mention", "a lovely quiet street", nil},
		{"stalls included", "2 stalls included in rent", intPtr(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchParkingSpots(tt.text, 100)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}

func TestMatchParkingSpots_BoundIsConfigurable(t *testing.T) {
	// A tighter bound rejects what the default would accept.
	assert.Nil(t, matchParkingSpots("12 parking spots", 10))
	require.NotNil(t, matchParkingSpots("12 parking spots", 100))
}

func TestMatchBeds(t *testing.T) {
	tests := []struct {
		text string
		want *int
	}{
		{"3 Bedroom Apartment", intPtr(3)},
		{"2 bed 1 bath", intPtr(2)},
		{"1 BR available now", intPtr(1)},
		{"Cozy studio downtown", intPtr(0)},
		{"Bachelor suite", intPtr(0)},
		{"No bedroom info here", nil},
	}
	for _, tt := range tests {
		got := matchBeds(tt.text)
		if tt.want == nil {
			assert.Nil(t, got, tt.text)
		} else {
			require.NotNil(t, got, tt.text)
			assert.Equal(t, *tt.want, *got, tt.text)
		}
	}
}

func TestMatchFurnished(t *testing.T) {
	assert.Equal(t, "Unfurnished", matchFurnished("This unit is unfurnished"))
	assert.Equal(t, "Furnished", matchFurnished("Fully furnished suite"))
	assert.Equal(t, "", matchFurnished("nothing relevant"))
}

func intPtr(n int) *int { return &n }
