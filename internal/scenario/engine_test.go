package scenario

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nimbushealth/wardcast/internal/api"
	"github.com/nimbushealth/wardcast/internal/forecast"
)

func testHistory(numDays int) []api.HistoricalRecord {
	records := make([]api.HistoricalRecord, 0, numDays)
	end := time.Now().UTC().Truncate(24 * time.Hour)
	for i := numDays; i >= 1; i-- {
		records = append(records, api.HistoricalRecord{
			Date:         end.AddDate(0, 0, -i),
			Admissions:   60,
			BedsOccupied: 350,
			StaffOnDuty:  30,
		})
	}
	return records
}

func newEngine() *Engine {
	return NewEngine(forecast.NewForecaster(500, nil, nil), nil)
}

func TestParams_Validate(t *testing.T) {
	cases := []struct {
		name   string
		params Params
		ok     bool
	}{
		{"zero scenario", Params{}, true},
		{"max values", Params{SickRate: 0.5, AdmissionSurge: 1.0}, true},
		{"min surge", Params{AdmissionSurge: -0.3}, true},
		{"sick rate too high", Params{SickRate: 0.51}, false},
		{"negative sick rate", Params{SickRate: -0.01}, false},
		{"surge too high", Params{AdmissionSurge: 1.01}, false},
		{"surge too low", Params{AdmissionSurge: -0.31}, false},
	}
	for _, tc := range cases {
		err := tc.params.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !api.IsValidationError(err) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestSimulate_RejectsOutOfRangeParams(t *testing.T) {
	e := newEngine()

	_, err := e.Simulate(context.Background(), testHistory(60), Params{SickRate: 0.9})
	if !api.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSimulate_ZeroScenarioMatchesBaseline(t *testing.T) {
	e := newEngine()

	result, err := e.Simulate(context.Background(), testHistory(60), Params{})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	base := result.BaselineForecast.Predictions
	scen := result.ScenarioForecast.Predictions
	if len(base) != len(scen) {
		t.Fatalf("prediction lengths differ: %d vs %d", len(base), len(scen))
	}
	for i := range base {
		if base[i].PredictedBeds != scen[i].PredictedBeds {
			t.Errorf("day %d: zero perturbation changed prediction %d to %d",
				i+1, base[i].PredictedBeds, scen[i].PredictedBeds)
		}
	}
	if result.BaselineStaffRisk.RiskScore != result.ScenarioStaffRisk.RiskScore {
		t.Errorf("zero perturbation changed staff risk %.1f to %.1f",
			result.BaselineStaffRisk.RiskScore, result.ScenarioStaffRisk.RiskScore)
	}
}

func TestSimulate_SurgeRaisesStressAndSicknessRaisesRisk(t *testing.T) {
	e := newEngine()

	result, err := e.Simulate(context.Background(), testHistory(60), Params{
		SickRate:       0.3,
		AdmissionSurge: 0.5,
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	baseStress := meanStress(result.BaselineForecast)
	scenStress := meanStress(result.ScenarioForecast)
	if scenStress <= baseStress {
		t.Errorf("admission surge should raise mean stress: %.1f vs baseline %.1f", scenStress, baseStress)
	}

	if result.ScenarioStaffRisk.RiskScore <= result.BaselineStaffRisk.RiskScore {
		t.Errorf("sick rate should raise staff risk: %.1f vs baseline %.1f",
			result.ScenarioStaffRisk.RiskScore, result.BaselineStaffRisk.RiskScore)
	}

	if result.ImpactSummary == "" {
		t.Error("expected non-empty impact summary")
	}
	if !strings.Contains(result.ImpactSummary, "bed stress") {
		t.Errorf("summary should mention bed stress: %q", result.ImpactSummary)
	}
}

func TestSimulate_LullLowersStress(t *testing.T) {
	e := newEngine()

	result, err := e.Simulate(context.Background(), testHistory(60), Params{AdmissionSurge: -0.3})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	if meanStress(result.ScenarioForecast) >= meanStress(result.BaselineForecast) {
		t.Errorf("admission lull should lower mean stress: %.1f vs baseline %.1f",
			meanStress(result.ScenarioForecast), meanStress(result.BaselineForecast))
	}
}

func TestPerturbRecords_TinyParametersStillPerturb(t *testing.T) {
	records := []api.HistoricalRecord{{
		Date:         time.Now(),
		Admissions:   50,
		BedsOccupied: 200,
		StaffOnDuty:  30,
	}}

	out := perturbRecords(records, Params{SickRate: 0.01, AdmissionSurge: 0.001})
	if out[0].StaffOnDuty >= 30 {
		t.Errorf("staff = %d, want below 30: a non-zero sick rate must thin staffing", out[0].StaffOnDuty)
	}
	if out[0].Admissions <= 50 {
		t.Errorf("admissions = %d, want above 50 for a positive surge", out[0].Admissions)
	}
	if out[0].BedsOccupied <= 200 {
		t.Errorf("beds = %d, want above 200 for a positive surge", out[0].BedsOccupied)
	}

	lull := perturbRecords(records, Params{AdmissionSurge: -0.001})
	if lull[0].Admissions >= 50 {
		t.Errorf("admissions = %d, want below 50 for a lull", lull[0].Admissions)
	}
}

func TestPerturbRecords_StaffNeverBelowOne(t *testing.T) {
	records := []api.HistoricalRecord{{
		Date:         time.Now(),
		Admissions:   10,
		BedsOccupied: 50,
		StaffOnDuty:  1,
	}}
	out := perturbRecords(records, Params{SickRate: 0.5})
	if out[0].StaffOnDuty < 1 {
		t.Errorf("perturbed staff %d, want at least 1", out[0].StaffOnDuty)
	}
	if records[0].StaffOnDuty != 1 {
		t.Error("perturbation must not mutate the input slice")
	}
}
