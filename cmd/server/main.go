package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nimbushealth/wardcast/internal/alert"
	"github.com/nimbushealth/wardcast/internal/api"
	"github.com/nimbushealth/wardcast/internal/cache"
	"github.com/nimbushealth/wardcast/internal/dashboard"
	"github.com/nimbushealth/wardcast/internal/forecast"
	"github.com/nimbushealth/wardcast/internal/metrics"
	"github.com/nimbushealth/wardcast/internal/recommend"
	"github.com/nimbushealth/wardcast/internal/scenario"
	"github.com/nimbushealth/wardcast/internal/store"
	"github.com/nimbushealth/wardcast/internal/wal"
	wcotel "github.com/nimbushealth/wardcast/pkg/otel"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// historyWindowDays is how much history the request handlers feed into the
// prediction core.
const historyWindowDays = 180

type Server struct {
	store       store.Store
	forecaster  *forecast.Forecaster
	scenarios   *scenario.Engine
	recommends  *recommend.Engine
	evaluator   *alert.Evaluator
	notifier    *alert.Notifier
	dashboard   *dashboard.Service
	journal     *wal.UploadJournal
	cache       *cache.Layer
	metrics     *metrics.Metrics
	limiter     *rate.Limiter
	metricsAuth struct {
		enabled  bool
		user     string
		password string
	}
}

func main() {
	ctx := context.Background()

	// Tracing
	var tracerShutdown func()
	if getEnv("OTEL_ENABLED", "") == "true" {
		cfg := wcotel.DefaultConfig("wardcast")
		cfg.CollectorEndpoint = getEnv("OTEL_COLLECTOR", cfg.CollectorEndpoint)
		cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
		tp, err := wcotel.InitTracer(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to init tracer: %v", err)
		}
		tracerShutdown = func() {
			if err := wcotel.Shutdown(context.Background(), tp); err != nil {
				log.Printf("Tracer shutdown error: %v", err)
			}
		}
	}

	// Setup record store
	storeBackend := getEnv("STORE_BACKEND", "memory")
	var recordStore store.Store
	var err error

	switch storeBackend {
	case "memory":
		recordStore = store.NewMemoryStore()
	case "postgres":
		connStr := getEnv("POSTGRES_CONN", "")
		recordStore, err = store.NewPostgresStore(ctx, connStr)
		if err != nil {
			log.Fatalf("Failed to create Postgres store: %v", err)
		}
	default:
		log.Fatalf("Unknown STORE_BACKEND: %s", storeBackend)
	}

	// Setup metrics
	m := metrics.New()

	// Setup cache
	cacheBackend := getEnv("CACHE_BACKEND", "memory")
	var backend cache.Backend

	switch cacheBackend {
	case "memory":
		backend, err = cache.NewMemoryBackend(getEnvInt("CACHE_MAX_ENTRIES", 0))
		if err != nil {
			log.Fatalf("Failed to create memory cache: %v", err)
		}
	case "redis":
		redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
		backend, err = cache.NewRedisBackend(ctx, redisAddr, getEnv("REDIS_PASSWORD", ""), getEnvInt("REDIS_DB", 0))
		if err != nil {
			log.Fatalf("Failed to create Redis cache: %v", err)
		}
	default:
		log.Fatalf("Unknown CACHE_BACKEND: %s", cacheBackend)
	}
	cacheLayer := cache.NewLayer(backend, m)

	// Prediction core
	capacity := getEnvInt("BED_CAPACITY", forecast.DefaultBedCapacity)
	forecaster := forecast.NewForecaster(capacity, nil, m)
	scenarios := scenario.NewEngine(forecaster, m)
	recommends := recommend.NewEngine(recommend.NewHashRetriever(recommend.DefaultLessons()), m)

	// Alerting
	thresholds := api.AlertThresholds{
		BedStressThreshold: getEnvFloat("ALERT_BED_STRESS_THRESHOLD", api.HighRiskBedStress),
		StaffRiskThreshold: getEnvFloat("ALERT_STAFF_RISK_THRESHOLD", api.CriticalStaffRisk),
	}
	evaluator := alert.NewEvaluator(thresholds, m)

	var channels []alert.Channel
	if recipients := alert.SplitRecipients(getEnv("ALERT_EMAIL_RECIPIENTS", "")); len(recipients) > 0 {
		channels = append(channels, alert.NewEmailChannel(alert.LogEmailSender{}, recipients))
	}
	// Slack is additive to email, never a replacement.
	if webhook := getEnv("SLACK_WEBHOOK_URL", ""); alert.ShouldNotifySlack(webhook) {
		channels = append(channels, alert.NewSlackChannel(webhook))
	}
	notifier := alert.NewNotifier(channels, m)

	// Upload journal
	journalDir := getEnv("UPLOAD_JOURNAL_DIR", "data/journal")
	journal, err := wal.NewUploadJournal(journalDir)
	if err != nil {
		log.Fatalf("Failed to create upload journal: %v", err)
	}

	// Rate limiter
	tokenRate := getEnvInt("TOKEN_RATE", 100)
	limiter := rate.NewLimiter(rate.Limit(tokenRate), tokenRate*2)

	srv := &Server{
		store:      recordStore,
		forecaster: forecaster,
		scenarios:  scenarios,
		recommends: recommends,
		evaluator:  evaluator,
		notifier:   notifier,
		dashboard:  dashboard.NewService(recordStore, forecaster, evaluator, recommends, cacheLayer),
		journal:    journal,
		cache:      cacheLayer,
		metrics:    m,
		limiter:    limiter,
	}

	// Metrics auth
	srv.metricsAuth.enabled = getEnv("METRICS_USER", "") != ""
	srv.metricsAuth.user = getEnv("METRICS_USER", "")
	srv.metricsAuth.password = getEnv("METRICS_PASS", "")

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/forecast/beds", srv.handleForecastBeds)
	mux.HandleFunc("/v1/risk/staff", srv.handleStaffRisk)
	mux.HandleFunc("/v1/scenario/simulate", srv.handleScenario)
	mux.HandleFunc("/v1/recommendations", srv.handleRecommendations)
	mux.HandleFunc("/v1/dashboard", srv.handleDashboard)
	mux.HandleFunc("/v1/alerts/evaluate", srv.handleAlerts)
	mux.HandleFunc("/v1/data/upload", srv.handleUpload)
	mux.Handle("/metrics", srv.metricsHandler())
	mux.HandleFunc("/health", handleHealth)

	// HTTP server
	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s (store=%s cache=%s capacity=%d)", port, storeBackend, cacheBackend, capacity)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdown
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if err := journal.Close(); err != nil {
		log.Printf("Error closing upload journal: %v", err)
	}
	if err := srv.cache.Close(); err != nil {
		log.Printf("Error closing cache: %v", err)
	}
	if err := recordStore.Close(); err != nil {
		log.Printf("Error closing store: %v", err)
	}
	if tracerShutdown != nil {
		tracerShutdown()
	}

	log.Println("Server stopped")
}

type forecastRequest struct {
	DaysAhead int `json:"days_ahead"`
}

func (s *Server) handleForecastBeds(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, http.MethodPost) {
		return
	}

	var req forecastRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	raw, err := s.cache.GetOrCompute(ctx, cache.KindForecast, cache.Fingerprint("beds", strconv.Itoa(req.DaysAhead)),
		func(ctx context.Context) ([]byte, error) {
			records, err := s.loadHistory(ctx)
			if err != nil {
				return nil, err
			}
			fc, err := s.forecaster.ForecastBeds(ctx, records, req.DaysAhead)
			if err != nil {
				return nil, err
			}
			return json.Marshal(fc)
		})
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondRaw(w, raw)
}

type staffRiskRequest struct {
	PredictedAdmissions int `json:"predicted_admissions"`
	CurrentStaff        int `json:"current_staff"`
}

func (s *Server) handleStaffRisk(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, http.MethodPost) {
		return
	}

	var req staffRiskRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	fingerprint := cache.Fingerprint("staff", strconv.Itoa(req.PredictedAdmissions), strconv.Itoa(req.CurrentStaff))
	raw, err := s.cache.GetOrCompute(ctx, cache.KindStaffRisk, fingerprint,
		func(ctx context.Context) ([]byte, error) {
			overloads, err := s.store.Overloads(ctx, time.Now().AddDate(0, 0, -historyWindowDays))
			if err != nil {
				return nil, err
			}
			risk, err := s.forecaster.CalculateStaffRisk(req.PredictedAdmissions, req.CurrentStaff, overloads)
			if err != nil {
				return nil, err
			}
			return json.Marshal(risk)
		})
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondRaw(w, raw)
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, http.MethodPost) {
		return
	}

	var params scenario.Params
	if err := decodeBody(r, &params); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	records, err := s.loadHistory(ctx)
	if err != nil {
		s.respondError(w, err)
		return
	}
	result, err := s.scenarios.Simulate(ctx, records, params)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, result)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, http.MethodGet) {
		return
	}

	ctx := r.Context()
	records, err := s.loadHistory(ctx)
	if err != nil {
		s.respondError(w, err)
		return
	}

	fc, risk, err := s.currentConditions(ctx, records)
	if err != nil {
		s.respondError(w, err)
		return
	}

	recs, err := s.recommends.Generate(ctx, fc, risk)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, recs)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, http.MethodGet) {
		return
	}

	data, err := s.dashboard.Build(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, data)
}

type alertResponse struct {
	Triggers   []api.AlertTrigger `json:"triggers"`
	Deliveries []deliveryStatus   `json:"deliveries,omitempty"`
}

type deliveryStatus struct {
	Channel  string `json:"channel"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, http.MethodPost) {
		return
	}

	ctx := r.Context()
	records, err := s.loadHistory(ctx)
	if err != nil {
		s.respondError(w, err)
		return
	}

	fc, risk, err := s.currentConditions(ctx, records)
	if err != nil {
		s.respondError(w, err)
		return
	}

	triggers := s.evaluator.CheckThresholds(fc, risk)

	resp := alertResponse{Triggers: triggers}
	if len(triggers) == 0 {
		respondJSON(w, resp)
		return
	}

	recs, err := s.recommends.Generate(ctx, fc, risk)
	if err != nil {
		s.respondError(w, err)
		return
	}

	for _, trigger := range triggers {
		for _, result := range s.notifier.Notify(ctx, trigger, recs) {
			status := deliveryStatus{Channel: result.Channel, Attempts: result.Attempts}
			if result.Err != nil {
				status.Error = result.Err.Error()
			}
			resp.Deliveries = append(resp.Deliveries, status)
		}
	}
	respondJSON(w, resp)
}

type uploadResponse struct {
	Accepted int `json:"accepted"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	// Journal BEFORE parsing (fault tolerance)
	if err := s.journal.Append(body); err != nil {
		log.Printf("Upload journal append error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var records []api.HistoricalRecord
	if err := json.Unmarshal(body, &records); err != nil {
		s.metrics.UploadErrors.Inc()
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(records) == 0 {
		http.Error(w, "Empty upload", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := s.store.Upsert(ctx, records); err != nil {
		s.metrics.UploadErrors.Inc()
		s.respondError(w, err)
		return
	}
	s.metrics.RecordsUpserted.Add(float64(len(records)))

	// Any derived result may have changed.
	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Printf("Cache invalidation after upload failed: %v", err)
	}

	respondJSON(w, uploadResponse{Accepted: len(records)})
}

// loadHistory reads the standard history window.
func (s *Server) loadHistory(ctx context.Context) ([]api.HistoricalRecord, error) {
	now := time.Now()
	return s.store.Range(ctx, now.AddDate(0, 0, -historyWindowDays), now)
}

// currentConditions derives the forecast and staff risk the alert and
// recommendation endpoints evaluate.
func (s *Server) currentConditions(ctx context.Context, records []api.HistoricalRecord) (*api.BedForecast, *api.StaffRiskScore, error) {
	fc, err := s.forecaster.ForecastBeds(ctx, records, forecast.DefaultHorizonDays)
	if err != nil {
		return nil, nil, err
	}

	admissions, staff := 50, 30
	if len(records) > 0 {
		window := records
		if len(window) > 7 {
			window = window[len(window)-7:]
		}
		sum := 0
		for _, rec := range window {
			sum += rec.Admissions
		}
		admissions = sum / len(window)
		staff = records[len(records)-1].StaffOnDuty
	}

	var overloads []api.HistoricalRecord
	for _, rec := range records {
		if rec.OverloadFlag {
			overloads = append(overloads, rec)
		}
	}

	risk, err := s.forecaster.CalculateStaffRisk(admissions, staff, overloads)
	if err != nil {
		return nil, nil, err
	}
	return fc, risk, nil
}

// gate applies the method check and rate limit shared by every endpoint.
func (s *Server) gate(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "10")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return false
	}
	return true
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case api.IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, api.ErrUpstreamUnavailable):
		http.Error(w, "Forecast backend unavailable", http.StatusServiceUnavailable)
	default:
		log.Printf("Internal error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) metricsHandler() http.Handler {
	handler := promhttp.Handler()

	if !s.metricsAuth.enabled {
		return handler
	}

	// Wrap with Basic Auth
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.metricsAuth.user || pass != s.metricsAuth.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func respondRaw(w http.ResponseWriter, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
