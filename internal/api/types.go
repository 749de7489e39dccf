package api

import (
	"fmt"
	"time"
)

// Thresholds shared across the prediction core. Bed stress strictly above
// HighRiskBedStress is high risk; staff risk strictly above
// CriticalStaffRisk is critical. The boundary values themselves do not
// trigger.
const (
	HighRiskBedStress = 85.0
	CriticalStaffRisk = 75.0
)

// HistoricalRecord is one day of operational logs. Records are produced by
// the ingestion boundary and are read-only to the core. At most one record
// exists per date in a store; a re-upload for the same date replaces the
// earlier value.
type HistoricalRecord struct {
	Date         time.Time `json:"date"`
	Admissions   int       `json:"admissions"`
	BedsOccupied int       `json:"beds_occupied"`
	StaffOnDuty  int       `json:"staff_on_duty"`
	OverloadFlag bool      `json:"overload_flag"`

	// Interpolated marks records whose numeric fields were forward-filled
	// rather than observed. Counted toward sparsity by the quality assessor.
	Interpolated bool `json:"interpolated,omitempty"`
}

// Validate checks the record against its declared domain.
func (r *HistoricalRecord) Validate() error {
	if r.Date.IsZero() {
		return NewValidationError("date", "must be set")
	}
	if r.Admissions < 0 {
		return NewValidationError("admissions", fmt.Sprintf("must be non-negative, got %d", r.Admissions))
	}
	if r.BedsOccupied < 0 {
		return NewValidationError("beds_occupied", fmt.Sprintf("must be non-negative, got %d", r.BedsOccupied))
	}
	if r.StaffOnDuty < 1 {
		return NewValidationError("staff_on_duty", fmt.Sprintf("must be positive, got %d", r.StaffOnDuty))
	}
	return nil
}

// DayKey returns the calendar-day key used for per-date dedup.
func (r *HistoricalRecord) DayKey() string {
	return r.Date.Format("2006-01-02")
}

// DailyPrediction is a single day of the bed-demand forecast. Immutable
// after creation.
type DailyPrediction struct {
	Date          time.Time `json:"date"`
	PredictedBeds int       `json:"predicted_beds"`
	BedStress     float64   `json:"bed_stress"` // percent of capacity, [0,100]
	Confidence    float64   `json:"confidence"` // [0,100]
	IsHighRisk    bool      `json:"is_high_risk"`
}

// BedForecast is the bed-demand forecast over a fixed horizon. Predictions
// always has exactly the requested number of days (7 by default) regardless
// of how much history was available.
type BedForecast struct {
	Predictions       []DailyPrediction `json:"predictions"`
	OverallConfidence float64           `json:"overall_confidence"`
	GeneratedAt       time.Time         `json:"generated_at"`

	// Advisory carries the degraded-data signal when the forecast fell back
	// to synthetic priors or ran on sparse history. Empty when history was
	// adequate.
	Advisory string `json:"advisory,omitempty"`
}

// StaffRiskScore estimates staff overload risk for a given staffing and
// admission level.
type StaffRiskScore struct {
	RiskScore           float64   `json:"risk_score"` // [0,100]
	Confidence          float64   `json:"confidence"` // [0,100]
	IsCritical          bool      `json:"is_critical"`
	ContributingFactors []string  `json:"contributing_factors"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// Recommendation is one costed, prioritized action. A recommendation set
// always has exactly three members with priorities 1..3 used once each,
// ordered by non-increasing impact-to-cost ratio.
type Recommendation struct {
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	Rationale          string  `json:"rationale"`
	CostEstimate       float64 `json:"cost_estimate"`
	ImpactScore        float64 `json:"impact_score"` // [0,100]
	Priority           int     `json:"priority"`     // 1, 2 or 3
	ImplementationTime string  `json:"implementation_time"`
}

// Validate checks the structural invariants of a single recommendation.
func (rec *Recommendation) Validate() error {
	if rec.Title == "" {
		return NewValidationError("title", "must not be empty")
	}
	if rec.CostEstimate < 0 {
		return NewValidationError("cost_estimate", "must be non-negative")
	}
	if rec.ImpactScore < 0 || rec.ImpactScore > 100 {
		return NewValidationError("impact_score", fmt.Sprintf("must be in [0,100], got %.1f", rec.ImpactScore))
	}
	if rec.Priority < 1 || rec.Priority > 3 {
		return NewValidationError("priority", fmt.Sprintf("must be 1, 2 or 3, got %d", rec.Priority))
	}
	return nil
}

// ScenarioResult pairs a baseline forecast with the same forecast re-run
// under perturbed assumptions.
type ScenarioResult struct {
	BaselineForecast  *BedForecast    `json:"baseline_forecast"`
	ScenarioForecast  *BedForecast    `json:"scenario_forecast"`
	BaselineStaffRisk *StaffRiskScore `json:"baseline_staff_risk"`
	ScenarioStaffRisk *StaffRiskScore `json:"scenario_staff_risk"`
	ImpactSummary     string          `json:"impact_summary"`
}

// AlertType identifies which metric tripped a threshold.
type AlertType string

const (
	AlertBedStress AlertType = "bed_stress"
	AlertStaffRisk AlertType = "staff_risk"
)

// AlertTrigger records one metric strictly exceeding its threshold.
// Ephemeral: produced per evaluation call, not persisted by the core. ID
// correlates a trigger across delivery channels and logs.
type AlertTrigger struct {
	ID           string    `json:"id"`
	AlertType    AlertType `json:"alert_type"`
	CurrentValue float64   `json:"current_value"`
	Threshold    float64   `json:"threshold"`
	TriggeredAt  time.Time `json:"triggered_at"`
}

// AlertThresholds configures the evaluator.
type AlertThresholds struct {
	BedStressThreshold float64 `json:"bed_stress_threshold"`
	StaffRiskThreshold float64 `json:"staff_risk_threshold"`
}

// DefaultAlertThresholds returns the standard 85/75 thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		BedStressThreshold: HighRiskBedStress,
		StaffRiskThreshold: CriticalStaffRisk,
	}
}

// CrisisLesson is a retrieved historical crisis with its resolution, used
// as additive context when generating recommendations.
type CrisisLesson struct {
	CrisisID        string    `json:"crisis_id"`
	Date            time.Time `json:"date"`
	Description     string    `json:"description"`
	BedStress       float64   `json:"bed_stress"`
	StaffRisk       float64   `json:"staff_risk"`
	ActionsTaken    []string  `json:"actions_taken"`
	Outcome         string    `json:"outcome"`
	LessonsLearned  string    `json:"lessons_learned"`
	SimilarityScore float64   `json:"similarity_score,omitempty"`
}

// DataQuality summarizes completeness and sparsity of a historical window.
type DataQuality struct {
	Completeness         float64 `json:"completeness"`          // [0,1]
	Sparsity             float64 `json:"sparsity"`              // [0,1]
	ConfidenceMultiplier float64 `json:"confidence_multiplier"` // [0,1]
}

// DashboardData is the aggregate view served to the dashboard, cached with
// the short dashboard TTL.
type DashboardData struct {
	BedStressCurrent     float64           `json:"bed_stress_current"`
	StaffRiskCurrent     float64           `json:"staff_risk_current"`
	ActiveAlertsCount    int               `json:"active_alerts_count"`
	RecommendationsCount int               `json:"recommendations_count"`
	SevenDayForecast     *BedForecast      `json:"seven_day_forecast"`
	SevenDayStaffRisk    []StaffRiskScore  `json:"seven_day_staff_risk"`
	TrendIndicators      map[string]string `json:"trend_indicators"` // "up", "down", "stable"
}
