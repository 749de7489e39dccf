// Package synthetic generates plausible historical records used as a prior
// when the store has no coverage for a requested window.
package synthetic

import (
	"math/rand"
	"time"

	"github.com/nimbushealth/wardcast/internal/api"
)

// DefaultFallbackDays is the window generated when the store is empty:
// six months of daily records.
const DefaultFallbackDays = 180

// Baseline operating point the generator perturbs around.
const (
	baseAdmissions = 50
	baseBeds       = 200
	baseStaff      = 30
)

// Generator produces synthetic daily records with weekday/weekend skew, a
// winter seasonal peak, and a 25-35% overload-day fraction. Values are
// randomized per batch; only the statistical shape is guaranteed.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator. seed fixes the random stream for
// reproducible batches; pass time-derived seeds in production wiring.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate produces numDays records starting at start (inclusive), one per
// calendar day.
func (g *Generator) Generate(start time.Time, numDays int) []api.HistoricalRecord {
	records := make([]api.HistoricalRecord, 0, numDays)

	// Overload fraction for this batch, drawn from the 25-35% band.
	overloadFrac := 0.25 + g.rng.Float64()*0.10

	for i := 0; i < numDays; i++ {
		date := start.AddDate(0, 0, i)
		overload := g.rng.Float64() < overloadFrac
		records = append(records, g.generateDay(date, overload))
	}

	return records
}

func (g *Generator) generateDay(date time.Time, overload bool) api.HistoricalRecord {
	weekday := weekdayFactor(date)
	seasonal := seasonalFactor(date.Month())

	admissions := float64(baseAdmissions) * weekday * seasonal * g.uniform(0.85, 1.15)
	beds := (float64(baseBeds) + admissions*0.75) * seasonal * g.uniform(0.9, 1.1)
	staff := float64(baseStaff) * weekday * g.uniform(0.9, 1.1)

	if overload {
		// Overload days run hot: more admissions and occupied beds, thinner
		// staffing.
		admissions *= g.uniform(1.4, 1.8)
		beds *= g.uniform(1.2, 1.4)
		staff *= g.uniform(0.6, 0.8)
	}

	return api.HistoricalRecord{
		Date:         date,
		Admissions:   maxInt(0, int(admissions)),
		BedsOccupied: maxInt(0, int(beds)),
		StaffOnDuty:  maxInt(1, int(staff)),
		OverloadFlag: overload,
	}
}

// weekdayFactor drops weekend volume roughly 20% below the weekday
// baseline.
func weekdayFactor(date time.Time) float64 {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return 0.80
	default:
		return 1.0
	}
}

// seasonalFactor peaks in winter and dips in summer.
func seasonalFactor(month time.Month) float64 {
	switch month {
	case time.December, time.January, time.February:
		return 1.25
	case time.June, time.July, time.August:
		return 0.90
	default:
		return 1.0
	}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
