package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Исходы конвейера приёма для IntakeEventsTotal.
const (
	IntakeOutcomePassThrough = "pass_through"
	IntakeOutcomeSuppressed  = "suppressed"
	IntakeOutcomeAllowed     = "allowed"
	IntakeOutcomeBlocked     = "blocked"
	IntakeOutcomeDuplicate   = "duplicate"
	IntakeOutcomeError       = "error"
)

var (
	IntakeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_events_total",
		Help: "События нотификаций по исходу конвейера",
	}, []string{"outcome"})

	ClassifierFailClosed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "classifier_fail_closed_total",
		Help: "Сбои классификатора, разрешённые в Block",
	})

	ClassifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "classify_duration_seconds",
		Help:    "Время принятия решения по нотификации",
		Buckets: prometheus.DefBuckets,
	})

	SummaryBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "summary_build_seconds",
		Help:    "Время построения дайджеста сессии",
		Buckets: prometheus.DefBuckets,
	})

	RetentionDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retention_deleted_total",
		Help: "Записи, удалённые ретеншен-свипом",
	}, []string{"store"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		IntakeEventsTotal,
		ClassifierFailClosed,
		ClassifyDuration,
		SummaryBuildSeconds,
		RetentionDeletedTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// IncIntakeOutcome увеличивает счётчик событий по исходу конвейера.
func IncIntakeOutcome(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	IntakeEventsTotal.WithLabelValues(outcome).Inc()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// AddRetentionDeleted учитывает записи, удалённые свипом.
func AddRetentionDeleted(store string, count int64) {
	if count <= 0 {
		return
	}
	RetentionDeletedTotal.WithLabelValues(store).Add(float64(count))
}
