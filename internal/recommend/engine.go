// Package recommend turns forecast and risk outputs into a costed,
// prioritized action list.
package recommend

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/nimbushealth/wardcast/internal/api"
	"github.com/nimbushealth/wardcast/internal/metrics"
)

// RecommendationCount is the fixed size of every recommendation set.
const RecommendationCount = 3

// lessonSimilarityFloor gates lesson enrichment: below this the retrieved
// crisis is too dissimilar to cite.
const lessonSimilarityFloor = 0.55

// Engine builds recommendation sets from current conditions. Stateless.
type Engine struct {
	retriever Retriever
	metrics   *metrics.Metrics
}

// NewEngine creates an engine. retriever may be nil to skip lesson
// enrichment; metrics may be nil.
func NewEngine(retriever Retriever, m *metrics.Metrics) *Engine {
	return &Engine{retriever: retriever, metrics: m}
}

// Generate returns exactly three recommendations for the given forecast and
// staff risk, ordered by descending impact-to-cost ratio with priorities
// 1..3 assigned in that order.
func (e *Engine) Generate(ctx context.Context, fc *api.BedForecast, risk *api.StaffRiskScore) ([]api.Recommendation, error) {
	if fc == nil || len(fc.Predictions) == 0 {
		return nil, api.NewValidationError("forecast", "must contain at least one prediction")
	}
	if risk == nil {
		return nil, api.NewValidationError("staff_risk", "must be set")
	}
	if e.metrics != nil {
		e.metrics.RecommendTotal.Inc()
	}

	peak := peakStress(fc)
	candidates := e.candidates(peak, risk)

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := ratio(candidates[i]), ratio(candidates[j])
		if ri != rj {
			return ri > rj
		}
		if candidates[i].ImpactScore != candidates[j].ImpactScore {
			return candidates[i].ImpactScore > candidates[j].ImpactScore
		}
		return candidates[i].Title < candidates[j].Title
	})

	out := candidates[:RecommendationCount]
	for i := range out {
		out[i].Priority = i + 1
	}

	e.enrichFromLessons(ctx, out, peak, risk.RiskScore)

	for i := range out {
		if err := out[i].Validate(); err != nil {
			return nil, fmt.Errorf("generated recommendation %d: %w", i+1, err)
		}
	}
	return out, nil
}

// ratio orders candidates; zero-cost actions rank by impact alone against a
// nominal unit cost.
func ratio(rec api.Recommendation) float64 {
	cost := rec.CostEstimate
	if cost < 1 {
		cost = 1
	}
	return rec.ImpactScore / cost
}

// candidates assembles the condition-dependent pool. The pool always holds
// more than three entries so ranking, not availability, decides the set.
func (e *Engine) candidates(peakStress float64, risk *api.StaffRiskScore) []api.Recommendation {
	var pool []api.Recommendation

	if peakStress > api.HighRiskBedStress {
		pool = append(pool,
			api.Recommendation{
				Title:       "Activate surge capacity protocol",
				Description: "Open the overflow ward and convert day-surgery beds to inpatient use.",
				Rationale: fmt.Sprintf("Peak bed stress is forecast at %.1f%%, above the %.0f%% high-risk line.",
					peakStress, api.HighRiskBedStress),
				CostEstimate:       15000,
				ImpactScore:        90,
				ImplementationTime: "24 hours",
			},
			api.Recommendation{
				Title:       "Defer elective admissions",
				Description: "Postpone non-urgent elective admissions scheduled inside the forecast window.",
				Rationale: fmt.Sprintf("Freeing elective beds directly reduces the %.1f%% forecast peak.",
					peakStress),
				CostEstimate:       5000,
				ImpactScore:        70,
				ImplementationTime: "immediate",
			},
			api.Recommendation{
				Title:       "Accelerate discharge rounds",
				Description: "Run twice-daily discharge rounds with pharmacy on call for discharge medication.",
				Rationale: fmt.Sprintf("Earlier discharges offset forecast stress of %.1f%% at minimal cost.",
					peakStress),
				CostEstimate:       2000,
				ImpactScore:        55,
				ImplementationTime: "same day",
			},
		)
	}

	if risk.IsCritical {
		pool = append(pool,
			api.Recommendation{
				Title:       "Open emergency staffing call",
				Description: "Offer incentive shifts to off-duty staff and engage the agency pool.",
				Rationale: fmt.Sprintf("Staff risk is %.1f, above the %.0f critical line.",
					risk.RiskScore, api.CriticalStaffRisk),
				CostEstimate:       12000,
				ImpactScore:        85,
				ImplementationTime: "12 hours",
			},
			api.Recommendation{
				Title:       "Pool staff across sites",
				Description: "Reassign staff from lower-occupancy sites for the forecast window.",
				Rationale: fmt.Sprintf("Cross-site pooling addresses the %.1f staff risk without agency premiums.",
					risk.RiskScore),
				CostEstimate:       8000,
				ImpactScore:        65,
				ImplementationTime: "24 hours",
			},
		)
	} else if risk.RiskScore > 50 {
		pool = append(pool, api.Recommendation{
			Title:       "Pre-book standby shifts",
			Description: "Place agency staff on paid standby for the highest-risk forecast days.",
			Rationale: fmt.Sprintf("Staff risk of %.1f warrants standby cover before it turns critical.",
				risk.RiskScore),
			CostEstimate:       6000,
			ImpactScore:        50,
			ImplementationTime: "48 hours",
		})
	}

	// Routine actions fill the pool up to the set size in calm conditions.
	// Under active strain the crisis actions alone carry the set, so routine
	// items never displace them.
	if len(pool) >= RecommendationCount {
		return pool
	}
	pool = append(pool,
		api.Recommendation{
			Title:       "Review staffing roster",
			Description: "Align next week's roster with the forecast admission pattern.",
			Rationale: fmt.Sprintf("Current staff risk is %.1f; roster alignment keeps it there.",
				risk.RiskScore),
			CostEstimate:       4000,
			ImpactScore:        30,
			ImplementationTime: "this week",
		},
		api.Recommendation{
			Title:       "Audit bed turnaround times",
			Description: "Measure clean-to-ready time per ward and clear the slowest bottleneck.",
			Rationale: fmt.Sprintf("Peak forecast stress of %.1f%% leaves headroom to invest in throughput.",
				peakStress),
			CostEstimate:       5000,
			ImpactScore:        25,
			ImplementationTime: "two weeks",
		},
		api.Recommendation{
			Title:              "Refresh escalation playbook",
			Description:        "Walk the on-call team through the overload escalation steps.",
			Rationale:          "Keeps escalation response sharp ahead of the next demand peak.",
			CostEstimate:       3000,
			ImpactScore:        15,
			ImplementationTime: "one week",
		},
	)

	return pool
}

// enrichFromLessons appends the closest past-crisis lesson to the top
// recommendation's rationale when a sufficiently similar crisis exists.
func (e *Engine) enrichFromLessons(ctx context.Context, recs []api.Recommendation, peakStress, riskScore float64) {
	if e.retriever == nil || len(recs) == 0 {
		return
	}
	// Lessons are cited only under active strain; routine sets stand alone.
	if peakStress <= api.HighRiskBedStress && riskScore <= api.CriticalStaffRisk {
		return
	}
	lessons, err := e.retriever.Similar(ctx, peakStress, riskScore, 1)
	if err != nil {
		log.Printf("lesson retrieval failed, continuing without enrichment: %v", err)
		return
	}
	if len(lessons) == 0 || lessons[0].SimilarityScore < lessonSimilarityFloor {
		return
	}
	recs[0].Rationale = fmt.Sprintf("%s Past incident %q: %s",
		recs[0].Rationale, lessons[0].CrisisID, lessons[0].LessonsLearned)
}

func peakStress(fc *api.BedForecast) float64 {
	peak := 0.0
	for _, p := range fc.Predictions {
		if p.BedStress > peak {
			peak = p.BedStress
		}
	}
	return peak
}
