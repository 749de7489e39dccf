// Package quality assesses completeness and sparsity of historical windows
// and derives the confidence multiplier applied to forecast confidence.
package quality

import (
	"math"

	"github.com/nimbushealth/wardcast/internal/api"
)

// Assessor computes data-quality metrics over a historical window. Pure:
// no I/O, no retained state.
type Assessor struct{}

// NewAssessor creates an assessor.
func NewAssessor() *Assessor {
	return &Assessor{}
}

// ForwardFill closes gaps in beds_occupied and staff_on_duty by carrying the
// last observed value forward. Records synthesized for gap days are marked
// Interpolated so the assessor can count them toward sparsity. Leading gaps
// (no prior value to carry) are left unfilled.
//
// Input must be ordered by date ascending; output preserves that order.
func ForwardFill(records []api.HistoricalRecord) []api.HistoricalRecord {
	if len(records) < 2 {
		return records
	}

	out := make([]api.HistoricalRecord, 0, len(records))
	out = append(out, records[0])

	for i := 1; i < len(records); i++ {
		prev := out[len(out)-1]
		cur := records[i]

		// Fill each missing day between prev and cur with prev's values.
		for d := prev.Date.AddDate(0, 0, 1); d.Before(cur.Date); d = d.AddDate(0, 0, 1) {
			out = append(out, api.HistoricalRecord{
				Date:         d,
				Admissions:   prev.Admissions,
				BedsOccupied: prev.BedsOccupied,
				StaffOnDuty:  prev.StaffOnDuty,
				OverloadFlag: false,
				Interpolated: true,
			})
		}
		out = append(out, cur)
	}

	return out
}

// Assess computes completeness, sparsity, and the confidence multiplier for
// a window of windowDays. Records are forward-filled first; interpolated
// records count as present for completeness but count toward sparsity.
func (a *Assessor) Assess(records []api.HistoricalRecord, windowDays int) api.DataQuality {
	if windowDays <= 0 || len(records) == 0 {
		return api.DataQuality{Completeness: 0, Sparsity: 0, ConfidenceMultiplier: 0}
	}

	filled := ForwardFill(records)

	present := len(filled)
	if present > windowDays {
		present = windowDays
	}
	completeness := float64(present) / float64(windowDays)

	interpolated := 0
	for _, r := range filled {
		if r.Interpolated {
			interpolated++
		}
	}
	sparsity := float64(interpolated) / float64(len(filled))

	return api.DataQuality{
		Completeness:         completeness,
		Sparsity:             sparsity,
		ConfidenceMultiplier: multiplier(completeness, sparsity),
	}
}

// multiplier maps completeness and sparsity to [0,1]. Monotonically
// non-decreasing in completeness and strictly decreasing in sparsity, so a
// sparsified version of a dataset always scores strictly lower.
func multiplier(completeness, sparsity float64) float64 {
	m := completeness * (1 - 0.5*sparsity)
	return math.Max(0, math.Min(1, m))
}
