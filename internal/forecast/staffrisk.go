package forecast

import (
	"fmt"
	"time"

	"github.com/nimbushealth/wardcast/internal/api"
)

// Staffing ratio bands (staff per predicted admission). Derived from
// typical ward ratios; hospital-specific overrides belong in config.
const (
	optimalStaffRatio  = 0.5 // 1 staff per 2 admissions
	warningStaffRatio  = 0.3
	criticalStaffRatio = 0.2
)

// Weighting between the ratio-based risk and the historical overload
// pattern risk.
const (
	baseRiskWeight    = 0.6
	patternRiskWeight = 0.4
)

// CalculateStaffRisk scores staff overload risk in [0,100] from the
// predicted admission volume, current staffing, and recent overload
// history. Critical strictly above 75.
func (f *Forecaster) CalculateStaffRisk(predictedAdmissions, currentStaff int, historicalOverloads []api.HistoricalRecord) (*api.StaffRiskScore, error) {
	if predictedAdmissions < 0 {
		return nil, api.NewValidationError("predicted_admissions", fmt.Sprintf("must be non-negative, got %d", predictedAdmissions))
	}
	if currentStaff < 1 {
		return nil, api.NewValidationError("current_staff", fmt.Sprintf("must be positive, got %d", currentStaff))
	}

	if f.metrics != nil {
		f.metrics.StaffRiskTotal.Inc()
	}

	baseRisk := ratioRisk(predictedAdmissions, currentStaff)
	patternRisk := overloadPatternRisk(predictedAdmissions, currentStaff, historicalOverloads)

	riskScore := clamp(baseRisk*baseRiskWeight+patternRisk*patternRiskWeight, 0, 100)

	return &api.StaffRiskScore{
		RiskScore:           riskScore,
		Confidence:          staffRiskConfidence(historicalOverloads),
		IsCritical:          riskScore > api.CriticalStaffRisk,
		ContributingFactors: riskFactors(predictedAdmissions, currentStaff, riskScore, historicalOverloads),
		GeneratedAt:         time.Now(),
	}, nil
}

// ratioRisk maps the staff-per-admission ratio onto risk bands: adequate
// staffing scores under 20, the warning band 20-50, the critical band
// 50-80, and severe understaffing 80-100.
func ratioRisk(predictedAdmissions, currentStaff int) float64 {
	admissions := predictedAdmissions
	if admissions < 1 {
		admissions = 1
	}
	ratio := float64(currentStaff) / float64(admissions)

	switch {
	case ratio >= optimalStaffRatio:
		return clamp(20*(1-(ratio-optimalStaffRatio)/optimalStaffRatio), 0, 20)
	case ratio >= warningStaffRatio:
		pos := (optimalStaffRatio - ratio) / (optimalStaffRatio - warningStaffRatio)
		return 20 + pos*30
	case ratio >= criticalStaffRatio:
		pos := (warningStaffRatio - ratio) / (warningStaffRatio - criticalStaffRatio)
		return 50 + pos*30
	default:
		return clamp(80+(criticalStaffRatio-ratio)*100, 80, 100)
	}
}

// overloadPatternRisk scores how closely current conditions resemble past
// overload events. With no history, a moderate default applies.
func overloadPatternRisk(predictedAdmissions, currentStaff int, overloads []api.HistoricalRecord) float64 {
	if len(overloads) == 0 {
		return 50
	}

	const (
		admissionTolerance = 20
		staffTolerance     = 5
	)

	similar := 0
	for _, r := range overloads {
		if abs(r.Admissions-predictedAdmissions) <= admissionTolerance &&
			abs(r.StaffOnDuty-currentStaff) <= staffTolerance {
			similar++
		}
	}

	if similar > 0 {
		frequency := float64(similar) / float64(len(overloads))
		return clamp(frequency*100, 0, 90)
	}

	// No directly comparable events: compare against the average overload
	// conditions instead.
	var admSum, staffSum float64
	for _, r := range overloads {
		admSum += float64(r.Admissions)
		staffSum += float64(r.StaffOnDuty)
	}
	avgAdmissions := admSum / float64(len(overloads))
	avgStaff := staffSum / float64(len(overloads))

	admissionRatio := float64(predictedAdmissions) / maxFloat(1, avgAdmissions)
	staffRatio := float64(currentStaff) / maxFloat(1, avgStaff)

	multiplier := admissionRatio / maxFloat(0.1, staffRatio)
	return clamp(40*minFloat(2.0, multiplier), 0, 90)
}

// riskFactors lists the signals that pushed the score up. Empty when risk
// is low and no signal crosses its significance threshold.
func riskFactors(predictedAdmissions, currentStaff int, riskScore float64, overloads []api.HistoricalRecord) []string {
	factors := []string{}

	admissions := predictedAdmissions
	if admissions < 1 {
		admissions = 1
	}
	ratio := float64(currentStaff) / float64(admissions)

	if ratio < criticalStaffRatio {
		factors = append(factors, "severely understaffed for predicted admission volume")
	} else if ratio < warningStaffRatio {
		factors = append(factors, "below optimal staffing levels")
	}

	if predictedAdmissions > 300 {
		factors = append(factors, "high admission volume predicted")
	}
	if currentStaff < 20 && riskScore > 50 {
		factors = append(factors, "low absolute staff count")
	}

	if len(overloads) > 0 {
		recent := 0
		cutoff := time.Now().AddDate(0, 0, -30)
		var admSum float64
		for _, r := range overloads {
			if r.Date.After(cutoff) {
				recent++
			}
			admSum += float64(r.Admissions)
		}
		if recent > 3 {
			factors = append(factors, "recent history of frequent overload events")
		}
		avgOverloadAdmissions := admSum / float64(len(overloads))
		if float64(predictedAdmissions) > avgOverloadAdmissions*0.9 {
			factors = append(factors, "admission volume approaching historical overload levels")
		}
	}

	if riskScore > 90 {
		factors = append(factors, "critical risk level, immediate action required")
	}

	return factors
}

// staffRiskConfidence grows with the volume and recency of overload
// history available to the pattern analysis.
func staffRiskConfidence(overloads []api.HistoricalRecord) float64 {
	const base = 70.0

	var dataConfidence float64
	switch {
	case len(overloads) >= 50:
		dataConfidence = 100
	case len(overloads) >= 20:
		dataConfidence = 85
	case len(overloads) >= 10:
		dataConfidence = 70
	case len(overloads) >= 5:
		dataConfidence = 55
	default:
		dataConfidence = 40
	}

	cutoff := time.Now().AddDate(0, 0, -90)
	recent := 0
	for _, r := range overloads {
		if r.Date.After(cutoff) {
			recent++
		}
	}
	recencyBonus := minFloat(20, float64(recent)*2)

	return clamp((base+dataConfidence+recencyBonus)/2, 0, 100)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
