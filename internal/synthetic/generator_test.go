package synthetic

import (
	"testing"
	"time"
)

func TestGenerate_CountAndSpan(t *testing.T) {
	g := NewGenerator(1)
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	records := g.Generate(start, DefaultFallbackDays)
	if len(records) != DefaultFallbackDays {
		t.Fatalf("expected %d records, got %d", DefaultFallbackDays, len(records))
	}
	if !records[0].Date.Equal(start) {
		t.Errorf("first record date = %v, want %v", records[0].Date, start)
	}
	last := start.AddDate(0, 0, DefaultFallbackDays-1)
	if !records[len(records)-1].Date.Equal(last) {
		t.Errorf("last record date = %v, want %v", records[len(records)-1].Date, last)
	}

	for _, r := range records {
		if r.Admissions < 0 || r.BedsOccupied < 0 || r.StaffOnDuty < 1 {
			t.Fatalf("record out of domain: %+v", r)
		}
	}
}

func TestGenerate_WeekendSkew(t *testing.T) {
	g := NewGenerator(7)
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	records := g.Generate(start, 364) // whole non-winter-heavy year span

	var weekdaySum, weekendSum float64
	var weekdayN, weekendN int
	for _, r := range records {
		// Overload days are deliberately elevated; exclude them from the
		// baseline skew measurement.
		if r.OverloadFlag {
			continue
		}
		switch r.Date.Weekday() {
		case time.Saturday, time.Sunday:
			weekendSum += float64(r.Admissions)
			weekendN++
		default:
			weekdaySum += float64(r.Admissions)
			weekdayN++
		}
	}

	if weekdayN == 0 || weekendN == 0 {
		t.Fatal("expected both weekday and weekend samples")
	}
	weekdayAvg := weekdaySum / float64(weekdayN)
	weekendAvg := weekendSum / float64(weekendN)

	ratio := weekendAvg / weekdayAvg
	if ratio < 0.70 || ratio > 0.90 {
		t.Errorf("weekend/weekday admission ratio = %.3f, want roughly 0.75-0.85", ratio)
	}
}

func TestGenerate_WinterPeak(t *testing.T) {
	g := NewGenerator(21)
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	records := g.Generate(start, 365)

	var winterSum, summerSum float64
	var winterN, summerN int
	for _, r := range records {
		if r.OverloadFlag {
			continue
		}
		switch r.Date.Month() {
		case time.December, time.January, time.February:
			winterSum += float64(r.Admissions)
			winterN++
		case time.June, time.July, time.August:
			summerSum += float64(r.Admissions)
			summerN++
		}
	}

	winterAvg := winterSum / float64(winterN)
	summerAvg := summerSum / float64(summerN)
	if winterAvg <= summerAvg {
		t.Errorf("winter average admissions (%.1f) should exceed summer (%.1f)", winterAvg, summerAvg)
	}
}

func TestGenerate_OverloadFractionInBand(t *testing.T) {
	for seed := int64(0); seed < 5; seed++ {
		g := NewGenerator(seed)
		records := g.Generate(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), 365)

		overloads := 0
		for _, r := range records {
			if r.OverloadFlag {
				overloads++
			}
		}
		frac := float64(overloads) / float64(len(records))
		// Band plus sampling slack.
		if frac < 0.18 || frac > 0.42 {
			t.Errorf("seed %d: overload fraction %.3f outside expected band", seed, frac)
		}
	}
}
