package alert

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nimbushealth/wardcast/internal/api"
	"github.com/nimbushealth/wardcast/internal/metrics"
)

const (
	deliveryAttempts = 3
	deliveryBackoff  = 1 * time.Second
)

// Channel delivers one alert message.
type Channel interface {
	Name() string
	Send(ctx context.Context, message string) error
}

// Notifier fans an alert out to every configured channel with per-channel
// retries. A channel failing after all attempts is reported in the result,
// never swallowed, and does not block the other channels.
type Notifier struct {
	channels []Channel
	metrics  *metrics.Metrics
	sleep    func(time.Duration)
}

// DeliveryResult is the outcome for one channel.
type DeliveryResult struct {
	Channel  string
	Attempts int
	Err      error
}

// NewNotifier creates a notifier over the given channels. metrics may be
// nil.
func NewNotifier(channels []Channel, m *metrics.Metrics) *Notifier {
	return &Notifier{channels: channels, metrics: m, sleep: time.Sleep}
}

// Notify formats the trigger together with the current recommendation set
// and delivers it on every channel, returning one result per channel in
// configuration order.
func (n *Notifier) Notify(ctx context.Context, trigger api.AlertTrigger, recs []api.Recommendation) []DeliveryResult {
	message := FormatMessage(trigger, recs)
	results := make([]DeliveryResult, 0, len(n.channels))
	for _, ch := range n.channels {
		results = append(results, n.deliver(ctx, ch, message))
	}
	return results
}

func (n *Notifier) deliver(ctx context.Context, ch Channel, message string) DeliveryResult {
	var lastErr error
	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		if err := ch.Send(ctx, message); err != nil {
			lastErr = err
			log.Printf("alert delivery via %s failed (attempt %d/%d): %v", ch.Name(), attempt, deliveryAttempts, err)
			if attempt < deliveryAttempts {
				n.sleep(deliveryBackoff)
			}
			continue
		}
		return DeliveryResult{Channel: ch.Name(), Attempts: attempt}
	}
	if n.metrics != nil {
		n.metrics.AlertDeliveryErrors.WithLabelValues(ch.Name()).Inc()
	}
	return DeliveryResult{
		Channel:  ch.Name(),
		Attempts: deliveryAttempts,
		Err:      fmt.Errorf("delivery via %s failed after %d attempts: %w", ch.Name(), deliveryAttempts, lastErr),
	}
}

// ShouldNotifySlack reports whether Slack delivery is configured. Slack is
// additive to the other channels, never a replacement.
func ShouldNotifySlack(webhookURL string) bool {
	return webhookURL != ""
}

// SlackChannel posts alerts to a Slack incoming webhook. Construct only
// when a webhook URL is configured.
type SlackChannel struct {
	client  *resty.Client
	webhook string
}

// NewSlackChannel creates a Slack channel for the given webhook URL.
func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		client:  resty.New().SetTimeout(10 * time.Second),
		webhook: webhookURL,
	}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, message string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"text": message}).
		Post(s.webhook)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("slack webhook: status %d", resp.StatusCode())
	}
	return nil
}

// EmailSender abstracts the outbound mail transport.
type EmailSender interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
}

// LogEmailSender records outbound mail in the process log. Stands in for a
// real mail transport when none is configured, so the email channel stays
// observable alongside Slack.
type LogEmailSender struct{}

func (LogEmailSender) SendMail(_ context.Context, to []string, subject, body string) error {
	log.Printf("email alert to %s: %s\n%s", strings.Join(to, ", "), subject, body)
	return nil
}

// SplitRecipients parses a comma-separated recipient list, dropping empty
// entries.
func SplitRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// EmailChannel delivers alerts by mail to a fixed recipient list.
type EmailChannel struct {
	sender     EmailSender
	recipients []string
}

// NewEmailChannel creates an email channel.
func NewEmailChannel(sender EmailSender, recipients []string) *EmailChannel {
	return &EmailChannel{sender: sender, recipients: recipients}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, message string) error {
	if len(e.recipients) == 0 {
		return fmt.Errorf("email channel has no recipients")
	}
	return e.sender.SendMail(ctx, e.recipients, "Wardcast operational alert", message)
}
