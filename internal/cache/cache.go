// Package cache provides the TTL read-through cache in front of the
// expensive forecast, risk, and dashboard computations.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nimbushealth/wardcast/internal/api"
	"github.com/nimbushealth/wardcast/internal/metrics"
)

// Kind identifies a cached computation class. Each kind carries its own
// freshness window.
type Kind string

const (
	KindForecast  Kind = "forecast"
	KindDashboard Kind = "dashboard"
	KindStaffRisk Kind = "staff_risk"
)

// TTL returns the freshness window for the kind. Dashboard aggregates turn
// over fast; forecasts and risk scores are stable for minutes.
func (k Kind) TTL() time.Duration {
	switch k {
	case KindForecast:
		return 15 * time.Minute
	case KindDashboard:
		return 30 * time.Second
	case KindStaffRisk:
		return 10 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// Backend is the storage behind the cache layer. Implementations keep
// expired entries retrievable (found with fresh=false) for as long as their
// eviction policy allows, so the layer can serve stale values when the
// computation backend is down.
type Backend interface {
	// Get returns the stored value, whether it is still fresh, and whether
	// it was present at all.
	Get(ctx context.Context, key string) (value []byte, fresh bool, found bool, err error)

	// Set stores a value with the given freshness window.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeleteByPrefix drops every entry whose key starts with prefix. An
	// empty prefix drops everything.
	DeleteByPrefix(ctx context.Context, prefix string) error

	Close() error
}

// Layer is the read-through cache. Concurrent requests for the same key
// share one computation; a fresh hit never recomputes.
type Layer struct {
	backend Backend
	group   singleflight.Group
	metrics *metrics.Metrics
}

// NewLayer wraps a backend. metrics may be nil.
func NewLayer(backend Backend, m *metrics.Metrics) *Layer {
	return &Layer{backend: backend, metrics: m}
}

// GetOrCompute returns the cached value for (kind, fingerprint), computing
// and storing it on a miss. When compute fails because the upstream model
// is unavailable and an expired entry is still present, the stale value is
// served instead of the error.
func (l *Layer) GetOrCompute(ctx context.Context, kind Kind, fingerprint string, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	key := string(kind) + ":" + fingerprint

	value, fresh, found, err := l.backend.Get(ctx, key)
	if err == nil && found && fresh {
		l.countHit(kind)
		return value, nil
	}
	l.countMiss(kind)

	result, err, _ := l.group.Do(key, func() (interface{}, error) {
		// A concurrent flight may have filled the entry while this caller
		// waited on the group.
		if v, fr, ok, gerr := l.backend.Get(ctx, key); gerr == nil && ok && fr {
			return v, nil
		}

		out, cerr := compute(ctx)
		if cerr != nil {
			if errors.Is(cerr, api.ErrUpstreamUnavailable) && found {
				l.countStale(kind)
				return value, nil
			}
			return nil, cerr
		}

		if serr := l.backend.Set(ctx, key, out, kind.TTL()); serr != nil {
			return nil, fmt.Errorf("cache set: %w", serr)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Invalidate drops every entry of the given kind.
func (l *Layer) Invalidate(ctx context.Context, kind Kind) error {
	return l.backend.DeleteByPrefix(ctx, string(kind)+":")
}

// InvalidateAll drops every cached entry. Called after new historical data
// lands, since any derived result may have changed.
func (l *Layer) InvalidateAll(ctx context.Context) error {
	return l.backend.DeleteByPrefix(ctx, "")
}

func (l *Layer) Close() error {
	return l.backend.Close()
}

func (l *Layer) countHit(kind Kind) {
	if l.metrics != nil {
		l.metrics.CacheHitsByKind.WithLabelValues(string(kind)).Inc()
	}
}

func (l *Layer) countMiss(kind Kind) {
	if l.metrics != nil {
		l.metrics.CacheMissesByKind.WithLabelValues(string(kind)).Inc()
	}
}

func (l *Layer) countStale(kind Kind) {
	if l.metrics != nil {
		l.metrics.CacheStaleServed.WithLabelValues(string(kind)).Inc()
	}
}
