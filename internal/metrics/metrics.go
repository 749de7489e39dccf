package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus instruments for the system
type Metrics struct {
	// Forecast pipeline
	ForecastsTotal     prometheus.Counter
	SyntheticFallbacks prometheus.Counter
	ForecastLatency    prometheus.Histogram
	StaffRiskTotal     prometheus.Counter
	ScenarioTotal      prometheus.Counter
	RecommendTotal     prometheus.Counter

	// Cache layer, labeled by cache kind (forecast, dashboard, staff_risk)
	CacheHitsByKind   *prometheus.CounterVec
	CacheMissesByKind *prometheus.CounterVec
	CacheStaleServed  *prometheus.CounterVec

	// Alerting, labeled by alert type
	AlertsTriggeredByType *prometheus.CounterVec
	AlertDeliveryErrors   *prometheus.CounterVec

	// Data ingestion
	RecordsUpserted prometheus.Counter
	UploadErrors    prometheus.Counter
}

// New creates and registers all metrics
func New() *Metrics {
	return &Metrics{
		ForecastsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wardcast_forecasts_total",
			Help: "Total number of bed forecasts produced",
		}),
		SyntheticFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wardcast_synthetic_fallbacks_total",
			Help: "Number of forecasts that fell back to synthetic priors",
		}),
		ForecastLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wardcast_forecast_duration_seconds",
			Help:    "Latency of bed forecast computation",
			Buckets: prometheus.DefBuckets,
		}),
		StaffRiskTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wardcast_staff_risk_total",
			Help: "Total number of staff risk scores computed",
		}),
		ScenarioTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wardcast_scenarios_total",
			Help: "Total number of scenario simulations run",
		}),
		RecommendTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wardcast_recommendations_total",
			Help: "Total number of recommendation sets generated",
		}),

		CacheHitsByKind: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wardcast_cache_hits_total",
				Help: "Cache hits per cache kind",
			},
			[]string{"kind"},
		),
		CacheMissesByKind: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wardcast_cache_misses_total",
				Help: "Cache misses per cache kind",
			},
			[]string{"kind"},
		),
		CacheStaleServed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wardcast_cache_stale_served_total",
				Help: "Expired cache entries served because recomputation failed",
			},
			[]string{"kind"},
		),

		AlertsTriggeredByType: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wardcast_alerts_triggered_total",
				Help: "Threshold alerts triggered per alert type",
			},
			[]string{"type"},
		),
		AlertDeliveryErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wardcast_alert_delivery_errors_total",
				Help: "Alert delivery failures per channel after retries",
			},
			[]string{"channel"},
		),

		RecordsUpserted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wardcast_records_upserted_total",
			Help: "Historical records written through the upload path",
		}),
		UploadErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wardcast_upload_errors_total",
			Help: "Upload requests rejected by validation",
		}),
	}
}
