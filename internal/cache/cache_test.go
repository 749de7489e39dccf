package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimbushealth/wardcast/internal/api"
)

func newTestLayer(t *testing.T) *Layer {
	t.Helper()
	backend, err := NewMemoryBackend(128)
	if err != nil {
		t.Fatalf("NewMemoryBackend: %v", err)
	}
	return NewLayer(backend, nil)
}

func TestGetOrCompute_ComputesOncePerKey(t *testing.T) {
	layer := newTestLayer(t)
	ctx := context.Background()

	var calls int32
	compute := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("result"), nil
	}

	for i := 0; i < 5; i++ {
		got, err := layer.GetOrCompute(ctx, KindForecast, "fp1", compute)
		if err != nil {
			t.Fatalf("GetOrCompute: %v", err)
		}
		if string(got) != "result" {
			t.Fatalf("got %q", got)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("compute ran %d times for one key, want 1", n)
	}
}

func TestGetOrCompute_DistinctKeysDistinctValues(t *testing.T) {
	layer := newTestLayer(t)
	ctx := context.Background()

	for _, fp := range []string{"a", "b"} {
		fp := fp
		got, err := layer.GetOrCompute(ctx, KindForecast, fp, func(context.Context) ([]byte, error) {
			return []byte("value-" + fp), nil
		})
		if err != nil {
			t.Fatalf("GetOrCompute(%q): %v", fp, err)
		}
		if string(got) != "value-"+fp {
			t.Errorf("key %q returned %q", fp, got)
		}
	}
}

func TestGetOrCompute_ConcurrentCallersShareOneFlight(t *testing.T) {
	layer := newTestLayer(t)
	ctx := context.Background()

	var calls int32
	compute := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return []byte("shared"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := layer.GetOrCompute(ctx, KindStaffRisk, "same", compute)
			if err != nil {
				t.Errorf("GetOrCompute: %v", err)
				return
			}
			if string(got) != "shared" {
				t.Errorf("got %q", got)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("compute ran %d times under concurrency, want 1", n)
	}
}

func TestGetOrCompute_StaleServedWhenUpstreamDown(t *testing.T) {
	backend, err := NewMemoryBackend(128)
	if err != nil {
		t.Fatalf("NewMemoryBackend: %v", err)
	}
	layer := NewLayer(backend, nil)
	ctx := context.Background()

	// Seed an already-expired entry directly.
	if err := backend.Set(ctx, string(KindForecast)+":fp", []byte("stale"), -time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := layer.GetOrCompute(ctx, KindForecast, "fp", func(context.Context) ([]byte, error) {
		return nil, fmt.Errorf("%w: model backend timeout", api.ErrUpstreamUnavailable)
	})
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if string(got) != "stale" {
		t.Errorf("got %q, want stale value", got)
	}
}

func TestGetOrCompute_OtherErrorsPropagate(t *testing.T) {
	layer := newTestLayer(t)

	_, err := layer.GetOrCompute(context.Background(), KindForecast, "fp", func(context.Context) ([]byte, error) {
		return nil, api.NewValidationError("days_ahead", "must be positive")
	})
	if !api.IsValidationError(err) {
		t.Fatalf("expected validation error to propagate, got %v", err)
	}
}

func TestInvalidate_DropsOnlyMatchingKind(t *testing.T) {
	layer := newTestLayer(t)
	ctx := context.Background()

	var forecastCalls, riskCalls int32
	forecastFn := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&forecastCalls, 1)
		return []byte("f"), nil
	}
	riskFn := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&riskCalls, 1)
		return []byte("r"), nil
	}

	if _, err := layer.GetOrCompute(ctx, KindForecast, "x", forecastFn); err != nil {
		t.Fatal(err)
	}
	if _, err := layer.GetOrCompute(ctx, KindStaffRisk, "x", riskFn); err != nil {
		t.Fatal(err)
	}

	if err := layer.Invalidate(ctx, KindForecast); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if _, err := layer.GetOrCompute(ctx, KindForecast, "x", forecastFn); err != nil {
		t.Fatal(err)
	}
	if _, err := layer.GetOrCompute(ctx, KindStaffRisk, "x", riskFn); err != nil {
		t.Fatal(err)
	}

	if forecastCalls != 2 {
		t.Errorf("forecast recomputed %d times, want 2", forecastCalls)
	}
	if riskCalls != 1 {
		t.Errorf("staff risk recomputed %d times, want 1", riskCalls)
	}
}

func TestFingerprint_StableAndSeparatorSafe(t *testing.T) {
	if Fingerprint("a", "bc") == Fingerprint("ab", "c") {
		t.Error("fingerprints should distinguish part boundaries")
	}
	if Fingerprint("a", "b") != Fingerprint("a", "b") {
		t.Error("fingerprints should be deterministic")
	}
}

func TestKindTTLs(t *testing.T) {
	if KindForecast.TTL() != 15*time.Minute {
		t.Errorf("forecast TTL = %v", KindForecast.TTL())
	}
	if KindDashboard.TTL() != 30*time.Second {
		t.Errorf("dashboard TTL = %v", KindDashboard.TTL())
	}
	if KindStaffRisk.TTL() != 10*time.Minute {
		t.Errorf("staff risk TTL = %v", KindStaffRisk.TTL())
	}
}
