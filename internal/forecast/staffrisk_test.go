package forecast

import (
	"strings"
	"testing"
	"time"

	"github.com/nimbushealth/wardcast/internal/api"
)

func overloadHistory(n int, admissions, staff int, daysAgo int) []api.HistoricalRecord {
	records := make([]api.HistoricalRecord, 0, n)
	base := time.Now().AddDate(0, 0, -daysAgo)
	for i := 0; i < n; i++ {
		records = append(records, api.HistoricalRecord{
			Date:         base.AddDate(0, 0, i),
			Admissions:   admissions,
			BedsOccupied: 450,
			StaffOnDuty:  staff,
			OverloadFlag: true,
		})
	}
	return records
}

func TestCalculateStaffRisk_RejectsInvalidInput(t *testing.T) {
	f := NewForecaster(500, nil, nil)

	if _, err := f.CalculateStaffRisk(100, 0, nil); !api.IsValidationError(err) {
		t.Errorf("zero staff: expected validation error, got %v", err)
	}
	if _, err := f.CalculateStaffRisk(-1, 20, nil); !api.IsValidationError(err) {
		t.Errorf("negative admissions: expected validation error, got %v", err)
	}
}

func TestCalculateStaffRisk_Bounds(t *testing.T) {
	f := NewForecaster(500, nil, nil)

	cases := []struct {
		admissions, staff int
	}{
		{0, 1},
		{10, 50},
		{100, 50},
		{500, 5},
		{1000, 1},
	}
	for _, tc := range cases {
		score, err := f.CalculateStaffRisk(tc.admissions, tc.staff, nil)
		if err != nil {
			t.Fatalf("CalculateStaffRisk(%d, %d): %v", tc.admissions, tc.staff, err)
		}
		if score.RiskScore < 0 || score.RiskScore > 100 {
			t.Errorf("admissions=%d staff=%d: score %.1f out of [0,100]", tc.admissions, tc.staff, score.RiskScore)
		}
		if score.IsCritical != (score.RiskScore > api.CriticalStaffRisk) {
			t.Errorf("admissions=%d staff=%d: IsCritical=%v inconsistent with score %.1f",
				tc.admissions, tc.staff, score.IsCritical, score.RiskScore)
		}
	}
}

func TestCalculateStaffRisk_MonotoneInStaffing(t *testing.T) {
	f := NewForecaster(500, nil, nil)

	prev := -1.0
	// More staff for the same load never raises risk.
	for _, staff := range []int{60, 50, 40, 30, 20, 10, 5} {
		score, err := f.CalculateStaffRisk(100, staff, nil)
		if err != nil {
			t.Fatalf("CalculateStaffRisk: %v", err)
		}
		if prev >= 0 && score.RiskScore < prev {
			t.Errorf("staff=%d: risk %.1f dropped below %.1f at higher staffing", staff, score.RiskScore, prev)
		}
		prev = score.RiskScore
	}
}

func TestCalculateStaffRisk_SevereUnderstaffingIsCritical(t *testing.T) {
	f := NewForecaster(500, nil, nil)

	score, err := f.CalculateStaffRisk(300, 10, nil)
	if err != nil {
		t.Fatalf("CalculateStaffRisk: %v", err)
	}
	if !score.IsCritical {
		t.Errorf("300 admissions on 10 staff should be critical, score %.1f", score.RiskScore)
	}
	if !containsFactor(score.ContributingFactors, "severely understaffed") {
		t.Errorf("expected understaffing factor, got %v", score.ContributingFactors)
	}
}

func TestCalculateStaffRisk_NoFactorsAtLowRisk(t *testing.T) {
	f := NewForecaster(500, nil, nil)

	score, err := f.CalculateStaffRisk(10, 10, nil)
	if err != nil {
		t.Fatalf("CalculateStaffRisk: %v", err)
	}
	if score.IsCritical {
		t.Errorf("well-staffed ward scored critical: %.1f", score.RiskScore)
	}
	if len(score.ContributingFactors) != 0 {
		t.Errorf("expected no contributing factors at low risk, got %v", score.ContributingFactors)
	}
}

func TestCalculateStaffRisk_SimilarOverloadsRaiseRisk(t *testing.T) {
	f := NewForecaster(500, nil, nil)

	baseline, err := f.CalculateStaffRisk(100, 25, nil)
	if err != nil {
		t.Fatalf("CalculateStaffRisk: %v", err)
	}

	// Past overloads under near-identical conditions.
	similar := overloadHistory(10, 105, 24, 60)
	withHistory, err := f.CalculateStaffRisk(100, 25, similar)
	if err != nil {
		t.Fatalf("CalculateStaffRisk: %v", err)
	}

	if withHistory.RiskScore <= baseline.RiskScore {
		t.Errorf("matching overload history should raise risk: %.1f vs baseline %.1f",
			withHistory.RiskScore, baseline.RiskScore)
	}
}

func TestCalculateStaffRisk_ConfidenceGrowsWithHistory(t *testing.T) {
	f := NewForecaster(500, nil, nil)

	sparse, err := f.CalculateStaffRisk(100, 25, overloadHistory(2, 100, 25, 10))
	if err != nil {
		t.Fatalf("CalculateStaffRisk: %v", err)
	}
	rich, err := f.CalculateStaffRisk(100, 25, overloadHistory(50, 100, 25, 50))
	if err != nil {
		t.Fatalf("CalculateStaffRisk: %v", err)
	}

	if rich.Confidence <= sparse.Confidence {
		t.Errorf("confidence with 50 overload records (%.1f) should exceed 2 records (%.1f)",
			rich.Confidence, sparse.Confidence)
	}
	if sparse.Confidence < 0 || rich.Confidence > 100 {
		t.Errorf("confidence out of range: %.1f, %.1f", sparse.Confidence, rich.Confidence)
	}
}

func containsFactor(factors []string, substr string) bool {
	for _, f := range factors {
		if strings.Contains(f, substr) {
			return true
		}
	}
	return false
}
