// Package scenario runs what-if simulations by perturbing the historical
// inputs and re-running the unchanged forecast pipeline on them.
package scenario

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nimbushealth/wardcast/internal/api"
	"github.com/nimbushealth/wardcast/internal/forecast"
	"github.com/nimbushealth/wardcast/internal/metrics"
)

// Parameter domains. Out-of-range values are rejected, not clamped.
const (
	MinSickRate       = 0.0
	MaxSickRate       = 0.5
	MinAdmissionSurge = -0.3
	MaxAdmissionSurge = 1.0
)

// Params describes a what-if scenario. SickRate removes that fraction of
// staff; AdmissionSurge scales admission volume (negative values model a
// lull).
type Params struct {
	SickRate       float64 `json:"sick_rate"`
	AdmissionSurge float64 `json:"admission_surge"`
	DaysAhead      int     `json:"days_ahead,omitempty"`
}

// Validate rejects parameters outside their declared domain.
func (p *Params) Validate() error {
	if p.SickRate < MinSickRate || p.SickRate > MaxSickRate {
		return api.NewValidationError("sick_rate",
			fmt.Sprintf("must be in [%.1f, %.1f], got %.2f", MinSickRate, MaxSickRate, p.SickRate))
	}
	if p.AdmissionSurge < MinAdmissionSurge || p.AdmissionSurge > MaxAdmissionSurge {
		return api.NewValidationError("admission_surge",
			fmt.Sprintf("must be in [%.1f, %.1f], got %.2f", MinAdmissionSurge, MaxAdmissionSurge, p.AdmissionSurge))
	}
	if p.DaysAhead < 0 {
		return api.NewValidationError("days_ahead", fmt.Sprintf("must be positive, got %d", p.DaysAhead))
	}
	return nil
}

// Engine pairs baseline and perturbed runs of the same forecaster. The
// pipeline between the two runs is identical; only the inputs differ.
type Engine struct {
	forecaster *forecast.Forecaster
	metrics    *metrics.Metrics
}

// NewEngine creates a scenario engine. metrics may be nil.
func NewEngine(f *forecast.Forecaster, m *metrics.Metrics) *Engine {
	return &Engine{forecaster: f, metrics: m}
}

// Simulate runs the forecast pipeline twice, once on the records as given
// and once with admissions surged and staffing thinned per params, and
// summarizes the difference.
func (e *Engine) Simulate(ctx context.Context, records []api.HistoricalRecord, params Params) (*api.ScenarioResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("scenario").Start(ctx, "Simulate")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("scenario.sick_rate", params.SickRate),
		attribute.Float64("scenario.admission_surge", params.AdmissionSurge),
	)

	if e.metrics != nil {
		e.metrics.ScenarioTotal.Inc()
	}

	baselineForecast, err := e.forecaster.ForecastBeds(ctx, records, params.DaysAhead)
	if err != nil {
		return nil, fmt.Errorf("baseline forecast: %w", err)
	}

	perturbed := perturbRecords(records, params)
	scenarioForecast, err := e.forecaster.ForecastBeds(ctx, perturbed, params.DaysAhead)
	if err != nil {
		return nil, fmt.Errorf("scenario forecast: %w", err)
	}

	baseAdmissions, baseStaff := recentOperatingPoint(records)
	overloads := overloadRecords(records)

	baselineRisk, err := e.forecaster.CalculateStaffRisk(baseAdmissions, baseStaff, overloads)
	if err != nil {
		return nil, fmt.Errorf("baseline staff risk: %w", err)
	}

	scenarioAdmissions := scaleMinOne(baseAdmissions, 1+params.AdmissionSurge)
	scenarioStaff := scaleMinOne(baseStaff, 1-params.SickRate)
	if scenarioStaff < 1 {
		scenarioStaff = 1
	}
	scenarioRisk, err := e.forecaster.CalculateStaffRisk(scenarioAdmissions, scenarioStaff, overloadRecords(perturbed))
	if err != nil {
		return nil, fmt.Errorf("scenario staff risk: %w", err)
	}

	return &api.ScenarioResult{
		BaselineForecast:  baselineForecast,
		ScenarioForecast:  scenarioForecast,
		BaselineStaffRisk: baselineRisk,
		ScenarioStaffRisk: scenarioRisk,
		ImpactSummary:     summarize(params, baselineForecast, scenarioForecast, baselineRisk, scenarioRisk),
	}, nil
}

// perturbRecords applies the scenario to every historical record: admission
// volume scaled by the surge, staffing thinned by the sick rate, occupancy
// scaled with admissions.
func perturbRecords(records []api.HistoricalRecord, params Params) []api.HistoricalRecord {
	out := make([]api.HistoricalRecord, len(records))
	for i, r := range records {
		r.Admissions = scaleMinOne(r.Admissions, 1+params.AdmissionSurge)
		r.BedsOccupied = scaleMinOne(r.BedsOccupied, 1+params.AdmissionSurge*0.75)
		staff := scaleMinOne(r.StaffOnDuty, 1-params.SickRate)
		if staff < 1 {
			staff = 1
		}
		r.StaffOnDuty = staff
		out[i] = r
	}
	return out
}

// scaleMinOne scales n by factor and rounds, moving at least one unit in
// the factor's direction when rounding would land back on n. Without the
// floor, a tiny non-zero parameter would round every field back to its
// original value and the scenario result would equal the baseline.
func scaleMinOne(n int, factor float64) int {
	if factor == 1 || n == 0 {
		return n
	}
	scaled := int(math.Round(float64(n) * factor))
	if scaled == n {
		if factor > 1 {
			scaled = n + 1
		} else {
			scaled = n - 1
		}
	}
	if scaled < 0 {
		scaled = 0
	}
	return scaled
}

// recentOperatingPoint derives the current admission level and staffing
// from the tail of the history. Falls back to a nominal ward when the
// history is empty.
func recentOperatingPoint(records []api.HistoricalRecord) (admissions, staff int) {
	if len(records) == 0 {
		return 50, 30
	}
	window := records
	if len(window) > 7 {
		window = window[len(window)-7:]
	}
	var admSum int
	for _, r := range window {
		admSum += r.Admissions
	}
	return admSum / len(window), records[len(records)-1].StaffOnDuty
}

func overloadRecords(records []api.HistoricalRecord) []api.HistoricalRecord {
	var out []api.HistoricalRecord
	for _, r := range records {
		if r.OverloadFlag {
			out = append(out, r)
		}
	}
	return out
}

// summarize renders the human-readable impact line: direction and magnitude
// of both metrics plus the change in high-risk day count.
func summarize(params Params, baseFC, scenFC *api.BedForecast, baseRisk, scenRisk *api.StaffRiskScore) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Scenario (admission surge %+.0f%%, sick rate %.0f%%): ",
		params.AdmissionSurge*100, params.SickRate*100)

	stressDelta := meanStress(scenFC) - meanStress(baseFC)
	fmt.Fprintf(&b, "average bed stress %s by %.1f points (%.1f%% to %.1f%%). ",
		direction(stressDelta), math.Abs(stressDelta), meanStress(baseFC), meanStress(scenFC))

	riskDelta := scenRisk.RiskScore - baseRisk.RiskScore
	fmt.Fprintf(&b, "Staff risk %s by %.1f points (%.1f to %.1f). ",
		direction(riskDelta), math.Abs(riskDelta), baseRisk.RiskScore, scenRisk.RiskScore)

	baseHigh := highRiskDays(baseFC)
	scenHigh := highRiskDays(scenFC)
	fmt.Fprintf(&b, "High-risk days: %d to %d of %d.", baseHigh, scenHigh, len(scenFC.Predictions))

	switch {
	case scenRisk.IsCritical && scenHigh > 0:
		b.WriteString(" Overall: severe operational strain expected under this scenario.")
	case scenRisk.IsCritical || scenHigh > baseHigh:
		b.WriteString(" Overall: elevated strain, contingency staffing advised.")
	case stressDelta < 0 && riskDelta < 0:
		b.WriteString(" Overall: conditions ease under this scenario.")
	default:
		b.WriteString(" Overall: impact within normal operating range.")
	}

	return b.String()
}

func meanStress(fc *api.BedForecast) float64 {
	if len(fc.Predictions) == 0 {
		return 0
	}
	var sum float64
	for _, p := range fc.Predictions {
		sum += p.BedStress
	}
	return sum / float64(len(fc.Predictions))
}

func highRiskDays(fc *api.BedForecast) int {
	n := 0
	for _, p := range fc.Predictions {
		if p.IsHighRisk {
			n++
		}
	}
	return n
}

func direction(delta float64) string {
	if delta >= 0 {
		return "rises"
	}
	return "falls"
}
