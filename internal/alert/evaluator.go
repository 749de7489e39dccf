// Package alert evaluates forecast outputs against operational thresholds
// and delivers notifications for breaches.
package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nimbushealth/wardcast/internal/api"
	"github.com/nimbushealth/wardcast/internal/metrics"
)

// Evaluator checks forecast and risk outputs against configured thresholds.
type Evaluator struct {
	thresholds api.AlertThresholds
	metrics    *metrics.Metrics
}

// NewEvaluator creates an evaluator. Non-positive thresholds fall back to
// the defaults; metrics may be nil.
func NewEvaluator(thresholds api.AlertThresholds, m *metrics.Metrics) *Evaluator {
	defaults := api.DefaultAlertThresholds()
	if thresholds.BedStressThreshold <= 0 {
		thresholds.BedStressThreshold = defaults.BedStressThreshold
	}
	if thresholds.StaffRiskThreshold <= 0 {
		thresholds.StaffRiskThreshold = defaults.StaffRiskThreshold
	}
	return &Evaluator{thresholds: thresholds, metrics: m}
}

// CheckThresholds returns one trigger per metric strictly above its
// threshold. Values exactly at the threshold do not trigger. Either input
// may be nil to skip that metric.
func (e *Evaluator) CheckThresholds(fc *api.BedForecast, risk *api.StaffRiskScore) []api.AlertTrigger {
	var triggers []api.AlertTrigger
	now := time.Now()

	if fc != nil {
		peak := 0.0
		for _, p := range fc.Predictions {
			if p.BedStress > peak {
				peak = p.BedStress
			}
		}
		if peak > e.thresholds.BedStressThreshold {
			triggers = append(triggers, api.AlertTrigger{
				ID:           uuid.NewString(),
				AlertType:    api.AlertBedStress,
				CurrentValue: peak,
				Threshold:    e.thresholds.BedStressThreshold,
				TriggeredAt:  now,
			})
		}
	}

	if risk != nil && risk.RiskScore > e.thresholds.StaffRiskThreshold {
		triggers = append(triggers, api.AlertTrigger{
			ID:           uuid.NewString(),
			AlertType:    api.AlertStaffRisk,
			CurrentValue: risk.RiskScore,
			Threshold:    e.thresholds.StaffRiskThreshold,
			TriggeredAt:  now,
		})
	}

	if e.metrics != nil {
		for _, t := range triggers {
			e.metrics.AlertsTriggeredByType.WithLabelValues(string(t.AlertType)).Inc()
		}
	}
	return triggers
}

// FormatMessage renders the notification body for a trigger. The letterhead
// is part of the wire format for every channel, not a display option. The
// current recommendation set is embedded so the on-call reader gets the
// ranked actions in the same message as the breach.
func FormatMessage(trigger api.AlertTrigger, recs []api.Recommendation) string {
	var metric, unit string
	switch trigger.AlertType {
	case api.AlertBedStress:
		metric = "BED STRESS"
		unit = "%"
	case api.AlertStaffRisk:
		metric = "STAFF OVERLOAD RISK"
		unit = ""
	default:
		metric = strings.ToUpper(string(trigger.AlertType))
	}

	var b strings.Builder
	b.WriteString("╔══════════════════════════════════════════════╗\n")
	b.WriteString("║        WARDCAST OPERATIONAL ALERT            ║\n")
	b.WriteString("╚══════════════════════════════════════════════╝\n")
	fmt.Fprintf(&b, "Alert:     %s THRESHOLD EXCEEDED\n", metric)
	fmt.Fprintf(&b, "Current:   %.1f%s\n", trigger.CurrentValue, unit)
	fmt.Fprintf(&b, "Threshold: %.1f%s\n", trigger.Threshold, unit)
	fmt.Fprintf(&b, "Time:      %s\n", trigger.TriggeredAt.Format(time.RFC3339))

	if len(recs) > 0 {
		b.WriteString("\nRecommended actions:\n")
		for _, rec := range recs {
			fmt.Fprintf(&b, "%d. %s\n", rec.Priority, rec.Title)
			fmt.Fprintf(&b, "   Cost: $%.0f | Impact: %.0f/100 | Timeline: %s\n",
				rec.CostEstimate, rec.ImpactScore, rec.ImplementationTime)
		}
	}

	b.WriteString("\nReview the dashboard and initiate the escalation playbook if conditions persist.")
	return b.String()
}
