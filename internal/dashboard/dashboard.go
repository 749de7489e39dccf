// Package dashboard aggregates the forecast, risk, alert, and
// recommendation outputs into the single view the dashboard polls.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nimbushealth/wardcast/internal/alert"
	"github.com/nimbushealth/wardcast/internal/api"
	"github.com/nimbushealth/wardcast/internal/cache"
	"github.com/nimbushealth/wardcast/internal/forecast"
	"github.com/nimbushealth/wardcast/internal/recommend"
	"github.com/nimbushealth/wardcast/internal/store"
)

// historyWindowDays is how far back the aggregate view reads.
const historyWindowDays = 180

// trendBand is the relative change below which a trend reads "stable".
const trendBand = 0.05

// Service builds the aggregate dashboard view, cached with the short
// dashboard TTL so bursts of polling share one computation.
type Service struct {
	store      store.Store
	forecaster *forecast.Forecaster
	evaluator  *alert.Evaluator
	recommends *recommend.Engine
	cache      *cache.Layer
}

// NewService wires the dashboard aggregator. cache may be nil to compute
// every call.
func NewService(st store.Store, f *forecast.Forecaster, ev *alert.Evaluator, rec *recommend.Engine, c *cache.Layer) *Service {
	return &Service{store: st, forecaster: f, evaluator: ev, recommends: rec, cache: c}
}

// Build returns the aggregate view, served from cache when fresh.
func (s *Service) Build(ctx context.Context) (*api.DashboardData, error) {
	if s.cache == nil {
		return s.compute(ctx)
	}

	raw, err := s.cache.GetOrCompute(ctx, cache.KindDashboard, "aggregate", func(ctx context.Context) ([]byte, error) {
		data, err := s.compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(data)
	})
	if err != nil {
		return nil, err
	}

	var data api.DashboardData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode cached dashboard: %w", err)
	}
	return &data, nil
}

func (s *Service) compute(ctx context.Context) (*api.DashboardData, error) {
	now := time.Now()
	records, err := s.store.Range(ctx, now.AddDate(0, 0, -historyWindowDays), now)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	fc, err := s.forecaster.ForecastBeds(ctx, records, forecast.DefaultHorizonDays)
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	admissions, staff := currentOperatingPoint(records)
	overloads := overloadsOnly(records)

	currentRisk, err := s.forecaster.CalculateStaffRisk(admissions, staff, overloads)
	if err != nil {
		return nil, fmt.Errorf("staff risk: %w", err)
	}

	dailyRisks, err := s.dailyStaffRisks(fc, records, admissions, staff, overloads)
	if err != nil {
		return nil, err
	}

	triggers := s.evaluator.CheckThresholds(fc, currentRisk)

	recs, err := s.recommends.Generate(ctx, fc, currentRisk)
	if err != nil {
		return nil, fmt.Errorf("recommendations: %w", err)
	}

	return &api.DashboardData{
		BedStressCurrent:     currentBedStress(records, s.forecaster.Capacity()),
		StaffRiskCurrent:     currentRisk.RiskScore,
		ActiveAlertsCount:    len(triggers),
		RecommendationsCount: len(recs),
		SevenDayForecast:     fc,
		SevenDayStaffRisk:    dailyRisks,
		TrendIndicators: map[string]string{
			"bed_stress": trend(stressSeries(fc)),
			"staff_risk": trend(riskSeries(dailyRisks)),
		},
	}, nil
}

// dailyStaffRisks projects a staff risk per forecast day by scaling the
// current admission level with each day's predicted load.
func (s *Service) dailyStaffRisks(fc *api.BedForecast, records []api.HistoricalRecord, admissions, staff int, overloads []api.HistoricalRecord) ([]api.StaffRiskScore, error) {
	meanBeds := recentMeanBeds(records)

	out := make([]api.StaffRiskScore, 0, len(fc.Predictions))
	for _, p := range fc.Predictions {
		dayAdmissions := admissions
		if meanBeds > 0 {
			dayAdmissions = int(math.Round(float64(admissions) * float64(p.PredictedBeds) / meanBeds))
		}
		risk, err := s.forecaster.CalculateStaffRisk(dayAdmissions, staff, overloads)
		if err != nil {
			return nil, fmt.Errorf("staff risk for %s: %w", p.Date.Format("2006-01-02"), err)
		}
		out = append(out, *risk)
	}
	return out, nil
}

func currentOperatingPoint(records []api.HistoricalRecord) (admissions, staff int) {
	if len(records) == 0 {
		return 50, 30
	}
	window := records
	if len(window) > 7 {
		window = window[len(window)-7:]
	}
	sum := 0
	for _, r := range window {
		sum += r.Admissions
	}
	return sum / len(window), records[len(records)-1].StaffOnDuty
}

func currentBedStress(records []api.HistoricalRecord, capacity int) float64 {
	if len(records) == 0 || capacity <= 0 {
		return 0
	}
	stress := float64(records[len(records)-1].BedsOccupied) * 100 / float64(capacity)
	return math.Max(0, math.Min(100, stress))
}

func recentMeanBeds(records []api.HistoricalRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	window := records
	if len(window) > 7 {
		window = window[len(window)-7:]
	}
	sum := 0.0
	for _, r := range window {
		sum += float64(r.BedsOccupied)
	}
	return sum / float64(len(window))
}

func overloadsOnly(records []api.HistoricalRecord) []api.HistoricalRecord {
	var out []api.HistoricalRecord
	for _, r := range records {
		if r.OverloadFlag {
			out = append(out, r)
		}
	}
	return out
}

func stressSeries(fc *api.BedForecast) []float64 {
	out := make([]float64, len(fc.Predictions))
	for i, p := range fc.Predictions {
		out[i] = p.BedStress
	}
	return out
}

func riskSeries(risks []api.StaffRiskScore) []float64 {
	out := make([]float64, len(risks))
	for i, r := range risks {
		out[i] = r.RiskScore
	}
	return out
}

// trend compares the mean of the first three points against the last
// three. Changes within the band read "stable".
func trend(series []float64) string {
	if len(series) < 2 {
		return "stable"
	}
	n := 3
	if len(series) < 2*n {
		n = len(series) / 2
	}
	var head, tail float64
	for i := 0; i < n; i++ {
		head += series[i]
		tail += series[len(series)-n+i]
	}
	head /= float64(n)
	tail /= float64(n)

	base := math.Abs(head)
	if base < 1 {
		base = 1
	}
	switch delta := (tail - head) / base; {
	case delta > trendBand:
		return "up"
	case delta < -trendBand:
		return "down"
	default:
		return "stable"
	}
}
