// Package forecast produces the bed-demand forecast and the staff overload
// risk score from historical operational records.
package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nimbushealth/wardcast/internal/api"
	"github.com/nimbushealth/wardcast/internal/metrics"
	"github.com/nimbushealth/wardcast/internal/quality"
	"github.com/nimbushealth/wardcast/internal/synthetic"
)

const (
	// DefaultHorizonDays is the standard forecast horizon.
	DefaultHorizonDays = 7

	// DefaultBedCapacity is the configured total bed capacity used for the
	// bed-stress percentage.
	DefaultBedCapacity = 500

	// horizonDecayPerDay reduces per-day confidence for days farther into
	// the future. Day N confidence is never higher than day N-1.
	horizonDecayPerDay = 0.03

	// minFitDays is the minimum history the model is fitted on before the
	// synthetic prior is blended in for the uncovered leading sub-range.
	minFitDays = 7

	// fallbackConfidence caps per-day confidence when the forecast runs
	// entirely on synthetic priors.
	fallbackConfidence = 30.0

	// modelAttempts bounds retries against the model backend before the
	// failure is surfaced as upstream-unavailable.
	modelAttempts = 3
	modelBackoff  = 500 * time.Millisecond
)

// Forecaster turns historical records into bed forecasts and staff risk
// scores. Stateless across calls: safe for concurrent use.
type Forecaster struct {
	capacity int
	newModel func() Model
	assessor *quality.Assessor
	metrics  *metrics.Metrics
}

// NewForecaster creates a forecaster with the given bed capacity and model
// constructor. A fresh model instance is fitted per call so concurrent
// forecasts never share mutable model state. metrics may be nil.
func NewForecaster(capacity int, newModel func() Model, m *metrics.Metrics) *Forecaster {
	if capacity <= 0 {
		capacity = DefaultBedCapacity
	}
	if newModel == nil {
		newModel = func() Model { return NewSeasonalTrendModel() }
	}
	return &Forecaster{
		capacity: capacity,
		newModel: newModel,
		assessor: quality.NewAssessor(),
		metrics:  m,
	}
}

// Capacity returns the configured total bed capacity.
func (f *Forecaster) Capacity() int {
	return f.capacity
}

// ForecastBeds produces a forecast of exactly daysAhead predictions
// (DefaultHorizonDays when zero) from the given history, ordered by date
// ascending. Sparse or empty history never fails the call: gaps are
// forward-filled and uncovered sub-ranges fall back to synthetic priors,
// with confidence degraded and an advisory attached.
func (f *Forecaster) ForecastBeds(ctx context.Context, records []api.HistoricalRecord, daysAhead int) (*api.BedForecast, error) {
	if daysAhead == 0 {
		daysAhead = DefaultHorizonDays
	}
	if daysAhead < 0 {
		return nil, api.NewValidationError("days_ahead", fmt.Sprintf("must be positive, got %d", daysAhead))
	}

	_, span := otel.Tracer("forecast").Start(ctx, "ForecastBeds")
	defer span.End()
	span.SetAttributes(
		attribute.Int("history_days", len(records)),
		attribute.Int("days_ahead", daysAhead),
	)

	start := time.Now()
	if f.metrics != nil {
		f.metrics.ForecastsTotal.Inc()
		defer func() {
			f.metrics.ForecastLatency.Observe(time.Since(start).Seconds())
		}()
	}

	history, advisory := f.prepareHistory(records)

	q := f.assessor.Assess(history, spanDays(history))
	multiplier := q.ConfidenceMultiplier
	if advisory != "" && len(records) > 0 {
		// Partial synthetic fill: real data present but padded.
		multiplier *= 0.7
	}

	filled := quality.ForwardFill(history)

	predicted, baseConfidence, err := f.runModel(filled, daysAhead)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		// Entirely synthetic: base confidence is capped regardless of how
		// clean the generated series looks.
		baseConfidence = fallbackConfidence
		multiplier = 1.0
	}

	lastDate := filled[len(filled)-1].Date
	predictions := make([]api.DailyPrediction, 0, daysAhead)
	var confidenceSum float64
	for i, beds := range predicted {
		stress := f.bedStress(beds)
		conf := clamp(baseConfidence*multiplier*(1-horizonDecayPerDay*float64(i)), 0, 100)
		confidenceSum += conf
		predictions = append(predictions, api.DailyPrediction{
			Date:          lastDate.AddDate(0, 0, i+1),
			PredictedBeds: beds,
			BedStress:     stress,
			Confidence:    conf,
			IsHighRisk:    stress > api.HighRiskBedStress,
		})
	}

	return &api.BedForecast{
		Predictions:       predictions,
		OverallConfidence: confidenceSum / float64(len(predictions)),
		GeneratedAt:       time.Now(),
		Advisory:          advisory,
	}, nil
}

// prepareHistory returns the series the model is fitted on. An empty store
// window is replaced wholesale with synthetic records; a window that exists
// but does not reach minFitDays gets a synthetic prior generated for the
// uncovered leading sub-range only.
func (f *Forecaster) prepareHistory(records []api.HistoricalRecord) ([]api.HistoricalRecord, string) {
	if len(records) == 0 {
		if f.metrics != nil {
			f.metrics.SyntheticFallbacks.Inc()
		}
		gen := synthetic.NewGenerator(time.Now().UnixNano())
		start := time.Now().AddDate(0, 0, -synthetic.DefaultFallbackDays)
		return gen.Generate(start, synthetic.DefaultFallbackDays),
			"no historical records for the requested window; forecast derived from synthetic priors"
	}

	if len(records) >= minFitDays {
		return records, ""
	}

	if f.metrics != nil {
		f.metrics.SyntheticFallbacks.Inc()
	}
	gen := synthetic.NewGenerator(time.Now().UnixNano())
	padDays := synthetic.DefaultFallbackDays - len(records)
	start := records[0].Date.AddDate(0, 0, -padDays)
	padded := gen.Generate(start, padDays)
	padded = append(padded, records...)
	return padded,
		fmt.Sprintf("only %d day(s) of history available; leading window padded with synthetic priors", len(records))
}

// runModel fits a fresh model and predicts, retrying transient backend
// failures before reporting the backend unavailable.
func (f *Forecaster) runModel(history []api.HistoricalRecord, daysAhead int) ([]int, float64, error) {
	var lastErr error
	for attempt := 1; attempt <= modelAttempts; attempt++ {
		model := f.newModel()
		if err := model.Fit(history); err != nil {
			lastErr = err
		} else {
			predicted, err := model.Predict(daysAhead)
			if err == nil {
				return predicted, model.BaseConfidence(), nil
			}
			lastErr = err
		}
		if attempt < modelAttempts {
			time.Sleep(modelBackoff)
		}
	}
	return nil, 0, fmt.Errorf("%w: %v", api.ErrUpstreamUnavailable, lastErr)
}

// bedStress converts predicted occupancy to percent of capacity, clamped
// to [0,100].
func (f *Forecaster) bedStress(predictedBeds int) float64 {
	if f.capacity <= 0 {
		return 0
	}
	// Multiply before dividing so whole-percent boundaries come out exact.
	return clamp(float64(predictedBeds)*100/float64(f.capacity), 0, 100)
}

// spanDays counts calendar days covered by an ordered series, inclusive.
func spanDays(records []api.HistoricalRecord) int {
	if len(records) == 0 {
		return 0
	}
	first := records[0].Date
	last := records[len(records)-1].Date
	return int(last.Sub(first).Hours()/24) + 1
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
