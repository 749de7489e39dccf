package alert

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nimbushealth/wardcast/internal/api"
)

func forecastPeaking(peak float64) *api.BedForecast {
	return &api.BedForecast{
		Predictions: []api.DailyPrediction{
			{Date: time.Now().AddDate(0, 0, 1), BedStress: 60},
			{Date: time.Now().AddDate(0, 0, 2), BedStress: peak},
			{Date: time.Now().AddDate(0, 0, 3), BedStress: 55},
		},
		GeneratedAt: time.Now(),
	}
}

func TestCheckThresholds_StrictlyAbove(t *testing.T) {
	e := NewEvaluator(api.DefaultAlertThresholds(), nil)

	cases := []struct {
		peak      float64
		risk      float64
		wantTypes []api.AlertType
	}{
		{80, 50, nil},
		{85, 75, nil}, // boundary values do not trigger
		{85.1, 75, []api.AlertType{api.AlertBedStress}},
		{85, 75.1, []api.AlertType{api.AlertStaffRisk}},
		{95, 90, []api.AlertType{api.AlertBedStress, api.AlertStaffRisk}},
	}
	for _, tc := range cases {
		triggers := e.CheckThresholds(forecastPeaking(tc.peak), &api.StaffRiskScore{RiskScore: tc.risk})
		if len(triggers) != len(tc.wantTypes) {
			t.Errorf("peak=%.1f risk=%.1f: got %d triggers, want %d", tc.peak, tc.risk, len(triggers), len(tc.wantTypes))
			continue
		}
		for i, want := range tc.wantTypes {
			if triggers[i].AlertType != want {
				t.Errorf("peak=%.1f risk=%.1f: trigger %d type %s, want %s", tc.peak, tc.risk, i, triggers[i].AlertType, want)
			}
		}
	}
}

func TestCheckThresholds_ReportsValueAndThreshold(t *testing.T) {
	e := NewEvaluator(api.AlertThresholds{BedStressThreshold: 70, StaffRiskThreshold: 60}, nil)

	triggers := e.CheckThresholds(forecastPeaking(88), &api.StaffRiskScore{RiskScore: 65})
	if len(triggers) != 2 {
		t.Fatalf("got %d triggers, want 2", len(triggers))
	}
	if triggers[0].CurrentValue != 88 || triggers[0].Threshold != 70 {
		t.Errorf("bed trigger = %+v", triggers[0])
	}
	if triggers[1].CurrentValue != 65 || triggers[1].Threshold != 60 {
		t.Errorf("risk trigger = %+v", triggers[1])
	}
}

func TestCheckThresholds_NilInputsSkipped(t *testing.T) {
	e := NewEvaluator(api.DefaultAlertThresholds(), nil)

	if got := e.CheckThresholds(nil, nil); len(got) != 0 {
		t.Errorf("nil inputs produced %d triggers", len(got))
	}
}

func sampleRecommendations() []api.Recommendation {
	return []api.Recommendation{
		{Title: "Activate surge capacity protocol", CostEstimate: 15000, ImpactScore: 90, Priority: 1, ImplementationTime: "24 hours"},
		{Title: "Defer elective admissions", CostEstimate: 5000, ImpactScore: 70, Priority: 2, ImplementationTime: "immediate"},
		{Title: "Accelerate discharge rounds", CostEstimate: 2000, ImpactScore: 55, Priority: 3, ImplementationTime: "same day"},
	}
}

func TestFormatMessage_CarriesLetterhead(t *testing.T) {
	msg := FormatMessage(api.AlertTrigger{
		AlertType:    api.AlertBedStress,
		CurrentValue: 91.2,
		Threshold:    85,
		TriggeredAt:  time.Date(2026, time.January, 5, 9, 30, 0, 0, time.UTC),
	}, nil)

	for _, want := range []string{"╔", "╝", "WARDCAST OPERATIONAL ALERT", "BED STRESS", "91.2%", "85.0%", "2026-01-05T09:30:00Z"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatMessage_EmbedsRecommendations(t *testing.T) {
	msg := FormatMessage(api.AlertTrigger{
		AlertType:    api.AlertBedStress,
		CurrentValue: 92.5,
		Threshold:    85,
		TriggeredAt:  time.Now(),
	}, sampleRecommendations())

	wants := []string{
		"Recommended actions:",
		"1. Activate surge capacity protocol",
		"Cost: $15000 | Impact: 90/100 | Timeline: 24 hours",
		"2. Defer elective admissions",
		"Cost: $5000 | Impact: 70/100 | Timeline: immediate",
		"3. Accelerate discharge rounds",
		"Cost: $2000 | Impact: 55/100 | Timeline: same day",
	}
	for _, want := range wants {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

type flakyChannel struct {
	name     string
	failures int
	calls    int
}

func (c *flakyChannel) Name() string { return c.name }

func (c *flakyChannel) Send(context.Context, string) error {
	c.calls++
	if c.calls <= c.failures {
		return fmt.Errorf("transient failure %d", c.calls)
	}
	return nil
}

func newTestNotifier(channels ...Channel) *Notifier {
	n := NewNotifier(channels, nil)
	n.sleep = func(time.Duration) {}
	return n
}

func TestNotify_RetriesThenSucceeds(t *testing.T) {
	ch := &flakyChannel{name: "slack", failures: 2}
	n := newTestNotifier(ch)

	results := n.Notify(context.Background(), api.AlertTrigger{AlertType: api.AlertBedStress}, nil)
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("expected recovery within retry budget, got %v", results[0].Err)
	}
	if results[0].Attempts != 3 {
		t.Errorf("attempts = %d, want 3", results[0].Attempts)
	}
}

func TestNotify_FailureReportedAfterRetriesExhausted(t *testing.T) {
	ch := &flakyChannel{name: "slack", failures: 10}
	n := newTestNotifier(ch)

	results := n.Notify(context.Background(), api.AlertTrigger{AlertType: api.AlertStaffRisk}, nil)
	if results[0].Err == nil {
		t.Fatal("expected delivery error after exhausted retries")
	}
	if ch.calls != deliveryAttempts {
		t.Errorf("channel called %d times, want %d", ch.calls, deliveryAttempts)
	}
}

func TestNotify_OneChannelFailureDoesNotBlockOthers(t *testing.T) {
	bad := &flakyChannel{name: "slack", failures: 10}
	good := &flakyChannel{name: "email", failures: 0}
	n := newTestNotifier(bad, good)

	results := n.Notify(context.Background(), api.AlertTrigger{AlertType: api.AlertBedStress}, nil)
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Err == nil {
		t.Error("failing channel should report its error")
	}
	if results[1].Err != nil {
		t.Errorf("healthy channel affected by failing one: %v", results[1].Err)
	}
}

type captureChannel struct {
	name string
	last string
}

func (c *captureChannel) Name() string { return c.name }

func (c *captureChannel) Send(_ context.Context, msg string) error {
	c.last = msg
	return nil
}

func TestNotify_DeliveredMessageEmbedsRecommendations(t *testing.T) {
	ch := &captureChannel{name: "slack"}
	n := newTestNotifier(ch)

	n.Notify(context.Background(), api.AlertTrigger{
		AlertType:    api.AlertBedStress,
		CurrentValue: 92.5,
		Threshold:    85,
		TriggeredAt:  time.Now(),
	}, sampleRecommendations())

	for _, want := range []string{"92.5%", "Activate surge capacity protocol", "Defer elective admissions", "Accelerate discharge rounds"} {
		if !strings.Contains(ch.last, want) {
			t.Errorf("delivered message missing %q:\n%s", want, ch.last)
		}
	}
}

type captureSender struct {
	to      []string
	subject string
	body    string
}

func (s *captureSender) SendMail(_ context.Context, to []string, subject, body string) error {
	s.to = to
	s.subject = subject
	s.body = body
	return nil
}

func TestEmailChannel_DeliversToRecipients(t *testing.T) {
	sender := &captureSender{}
	ch := NewEmailChannel(sender, []string{"ops@example.org", "charge-nurse@example.org"})

	msg := FormatMessage(api.AlertTrigger{AlertType: api.AlertStaffRisk, CurrentValue: 80, Threshold: 75, TriggeredAt: time.Now()}, sampleRecommendations())
	if err := ch.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.to) != 2 {
		t.Errorf("sent to %d recipients, want 2", len(sender.to))
	}
	if sender.body != msg {
		t.Error("email body should carry the formatted message unchanged")
	}
}

func TestEmailChannel_NoRecipientsIsAnError(t *testing.T) {
	ch := NewEmailChannel(&captureSender{}, nil)
	if err := ch.Send(context.Background(), "msg"); err == nil {
		t.Fatal("expected error for empty recipient list")
	}
}

func TestSplitRecipients(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"ops@example.org", 1},
		{" ops@example.org , charge-nurse@example.org ,,", 2},
	}
	for _, tc := range cases {
		if got := SplitRecipients(tc.in); len(got) != tc.want {
			t.Errorf("SplitRecipients(%q) = %v, want %d entries", tc.in, got, tc.want)
		}
	}
}
