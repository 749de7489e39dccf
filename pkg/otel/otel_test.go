package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("test-service")

	if config.ServiceName != "test-service" {
		t.Errorf("Expected service name 'test-service', got '%s'", config.ServiceName)
	}

	if config.ServiceVersion == "" {
		t.Error("Service version should not be empty")
	}

	if config.CollectorEndpoint == "" {
		t.Error("Collector endpoint should not be empty")
	}

	if config.SamplingRate < 0.0 || config.SamplingRate > 1.0 {
		t.Errorf("Sampling rate out of bounds: %.2f", config.SamplingRate)
	}
}

func TestForecastAttributes(t *testing.T) {
	attrs := ForecastAttributes(180, 7, 2, 85.5, false)

	if len(attrs) != 5 {
		t.Errorf("Expected 5 attributes, got %d", len(attrs))
	}

	// Verify key attribute exists
	found := false
	for _, attr := range attrs {
		if attr.Key == AttrDaysAhead && attr.Value.AsInt64() == 7 {
			found = true
			break
		}
	}
	if !found {
		t.Error("days-ahead attribute not found")
	}
}

func TestStaffRiskAttributes(t *testing.T) {
	attrs := StaffRiskAttributes(82.3, true)

	if len(attrs) != 2 {
		t.Errorf("Expected 2 attributes, got %d", len(attrs))
	}
}

func TestScenarioAttributes(t *testing.T) {
	attrs := ScenarioAttributes(0.2, 0.5)

	if len(attrs) != 2 {
		t.Errorf("Expected 2 attributes, got %d", len(attrs))
	}
}

func TestAlertAttributes(t *testing.T) {
	attrs := AlertAttributes("bed_stress", 91.2)

	if len(attrs) != 2 {
		t.Errorf("Expected 2 attributes, got %d", len(attrs))
	}
}

func TestPerformanceAttributes(t *testing.T) {
	attrs := PerformanceAttributes(true, 25.5)

	if len(attrs) != 2 {
		t.Errorf("Expected 2 attributes, got %d", len(attrs))
	}
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// This will use the global no-op tracer since we haven't initialized OTel
	ctx, span := StartSpan(ctx, "test-tracer", "test-span",
		attribute.String("test.key", "test.value"),
	)

	if ctx == nil {
		t.Error("Context should not be nil")
	}

	if span == nil {
		t.Error("Span should not be nil")
	}

	span.End()
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()
	_, span := StartSpan(ctx, "test-tracer", "test-span")

	// Should not panic
	RecordError(span, nil, "")
	RecordError(span, nil, "test message")

	span.End()
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()
	_, span := StartSpan(ctx, "test-tracer", "test-span")

	// Should not panic
	AddEvent(span, "test-event")
	AddEvent(span, "test-event-with-attrs",
		attribute.String("key", "value"),
	)

	span.End()
}
