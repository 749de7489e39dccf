package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/nimbushealth/wardcast/internal/api"
)

// Model is the pluggable forecasting backend. Implementations must be
// deterministic given the same fitted history: the structural invariants
// (forecast length, stress formula, thresholds) are enforced by the
// Forecaster regardless of backend.
type Model interface {
	// Fit trains the model on historical records ordered by date ascending.
	Fit(records []api.HistoricalRecord) error

	// Predict returns predicted occupied beds for the given number of days
	// after the fitted history.
	Predict(daysAhead int) ([]int, error)

	// BaseConfidence reports the model's own confidence [0,100] in its fit,
	// before data-quality and horizon adjustments.
	BaseConfidence() float64

	// Version identifies the model implementation.
	Version() string
}

// SeasonalTrendModel forecasts occupancy from a recent-window average with
// a linear trend, adjusted by day-of-week and month factors fitted from the
// available history.
type SeasonalTrendModel struct {
	recentWindow int

	fitted     bool
	lastDate   time.Time
	level      float64 // recent-window mean occupancy
	slope      float64 // per-day trend over the recent window
	dowFactor  [7]float64
	monFactor  [13]float64 // indexed by time.Month
	fitDays    int
}

// NewSeasonalTrendModel creates the default model with a 14-day recent
// window.
func NewSeasonalTrendModel() *SeasonalTrendModel {
	return &SeasonalTrendModel{recentWindow: 14}
}

func (m *SeasonalTrendModel) Fit(records []api.HistoricalRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("empty training data")
	}

	m.fitDays = len(records)
	m.lastDate = records[len(records)-1].Date

	recent := records
	if len(recent) > m.recentWindow {
		recent = recent[len(recent)-m.recentWindow:]
	}

	var sum float64
	for _, r := range recent {
		sum += float64(r.BedsOccupied)
	}
	m.level = sum / float64(len(recent))

	// Trend: difference of half-window means over the recent window.
	m.slope = 0
	if len(recent) >= 4 {
		half := len(recent) / 2
		var firstSum, lastSum float64
		for _, r := range recent[:half] {
			firstSum += float64(r.BedsOccupied)
		}
		for _, r := range recent[len(recent)-half:] {
			lastSum += float64(r.BedsOccupied)
		}
		m.slope = (lastSum/float64(half) - firstSum/float64(half)) / float64(half)
	}

	m.fitFactors(records)
	m.fitted = true
	return nil
}

// fitFactors derives day-of-week and month multipliers relative to the
// overall occupancy mean. Buckets without enough samples stay at 1.0.
func (m *SeasonalTrendModel) fitFactors(records []api.HistoricalRecord) {
	var total float64
	for _, r := range records {
		total += float64(r.BedsOccupied)
	}
	overall := total / float64(len(records))

	var dowSum [7]float64
	var dowN [7]int
	var monSum [13]float64
	var monN [13]int
	for _, r := range records {
		d := int(r.Date.Weekday())
		dowSum[d] += float64(r.BedsOccupied)
		dowN[d]++
		mo := int(r.Date.Month())
		monSum[mo] += float64(r.BedsOccupied)
		monN[mo]++
	}

	for d := 0; d < 7; d++ {
		m.dowFactor[d] = 1.0
		if dowN[d] >= 2 && overall > 0 {
			m.dowFactor[d] = (dowSum[d] / float64(dowN[d])) / overall
		}
	}
	for mo := 1; mo <= 12; mo++ {
		m.monFactor[mo] = 1.0
		if monN[mo] >= 7 && overall > 0 {
			m.monFactor[mo] = (monSum[mo] / float64(monN[mo])) / overall
		}
	}
}

func (m *SeasonalTrendModel) Predict(daysAhead int) ([]int, error) {
	if !m.fitted {
		return nil, fmt.Errorf("model not fitted")
	}
	if daysAhead < 1 {
		return nil, fmt.Errorf("daysAhead must be positive, got %d", daysAhead)
	}

	out := make([]int, 0, daysAhead)
	for i := 1; i <= daysAhead; i++ {
		date := m.lastDate.AddDate(0, 0, i)
		beds := (m.level + m.slope*float64(i)) *
			m.dowFactor[int(date.Weekday())] *
			m.monFactor[int(date.Month())]
		out = append(out, int(math.Max(0, math.Round(beds))))
	}
	return out, nil
}

// BaseConfidence grows with the amount of fitted history, mirroring the
// completeness tiers used by the quality assessor.
func (m *SeasonalTrendModel) BaseConfidence() float64 {
	switch {
	case m.fitDays >= 180:
		return 95
	case m.fitDays >= 90:
		return 85
	case m.fitDays >= 30:
		return 70
	case m.fitDays >= 7:
		return 55
	default:
		return 40
	}
}

func (m *SeasonalTrendModel) Version() string {
	return "seasonal-trend-v1"
}
