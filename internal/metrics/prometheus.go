// Package metrics собирает метрики Prometheus для HTTP API и бизнес-операций конвейера.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "conveyor"

// Metrics реализует usecase.MetricsRecorder поверх собственного реестра.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	feedTotal      *prometheus.CounterVec
	feedDuration   prometheus.Histogram
	feedOffers     prometheus.Gauge
	providerTotal  *prometheus.CounterVec
	moderationDone prometheus.Counter
	stagesTotal    *prometheus.CounterVec
	jobsTotal      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Histogram of HTTP request durations.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "endpoint", "status"},
		),
		feedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_generations_total",
				Help:      "Feed requests by outcome (generated, cached, failed).",
			},
			[]string{"outcome"},
		),
		feedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_generation_duration_seconds",
			Help:      "Duration of feed generation including base catalog fetch and ERP scan.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120},
		}),
		feedOffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_offers",
			Help:      "Number of offers in the last generated feed.",
		}),
		providerTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suggestion_provider_attempts_total",
				Help:      "Fix suggestion provider attempts by provider and result.",
			},
			[]string{"provider", "result"},
		),
		moderationDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_closed_total",
			Help:      "Records closed after reaching the moderation retry limit.",
		}),
		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_total",
				Help:      "Conveyor stage executions by stage and result.",
			},
			[]string{"stage", "result"},
		),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_finished_total",
				Help:      "Finished discovery jobs by final status.",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.feedTotal,
		m.feedDuration,
		m.feedOffers,
		m.providerTotal,
		m.moderationDone,
		m.stagesTotal,
		m.jobsTotal,
	)

	return m
}

// Handler возвращает HTTP-обработчик для экспорта метрик Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware записывает метрики HTTP-запроса. В endpoint пишется шаблон маршрута chi, а не сырой путь.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		m.RecordRequest(r.Method, endpoint, ww.Status(), time.Since(start))
	})
}

// RecordRequest записывает метрики для HTTP-запроса.
func (m *Metrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

func (m *Metrics) ObserveFeed(duration time.Duration, offers int, cached bool, err error) {
	switch {
	case err != nil:
		m.feedTotal.WithLabelValues("failed").Inc()
	case cached:
		m.feedTotal.WithLabelValues("cached").Inc()
	default:
		m.feedTotal.WithLabelValues("generated").Inc()
		m.feedDuration.Observe(duration.Seconds())
		m.feedOffers.Set(float64(offers))
	}
}

func (m *Metrics) ProviderAttempt(provider string, ok bool) {
	m.providerTotal.WithLabelValues(provider, result(ok)).Inc()
}

func (m *Metrics) ModerationClosed() {
	m.moderationDone.Inc()
}

func (m *Metrics) StageFinished(stage domain.ConveyorStage, ok bool) {
	m.stagesTotal.WithLabelValues(string(stage), result(ok)).Inc()
}

func (m *Metrics) JobFinished(status domain.JobStatus) {
	m.jobsTotal.WithLabelValues(string(status)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// classifyStatus классифицирует HTTP-статус код в строку.
func classifyStatus(statusCode int) string {
	if statusCode >= 100 && statusCode < 600 {
		return strconv.Itoa(statusCode/100) + "xx"
	}
	return "unknown"
}
