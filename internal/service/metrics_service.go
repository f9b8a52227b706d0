package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/grade-flow-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the workflow.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	retakesTotal     *prometheus.CounterVec
	promotionsTotal  prometheus.Counter
	conflictsTotal   prometheus.Counter
}

// NewMetricsService registers the workflow collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grade_transitions_total",
		Help: "Grade record state transitions by kind and edge",
	}, []string{"kind", "from", "to"})

	retakesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retake_attempts_created_total",
		Help: "Retake attempts created by kind",
	}, []string{"kind"})

	promotionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "retake_promotions_total",
		Help: "Passing retake attempts promoted to the primary record",
	})

	conflictsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grade_version_conflicts_total",
		Help: "Mutations aborted by an expected-version mismatch",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionsTotal, retakesTotal, promotionsTotal, conflictsTotal, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		transitionsTotal: transitionsTotal,
		retakesTotal:     retakesTotal,
		promotionsTotal:  promotionsTotal,
		conflictsTotal:   conflictsTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveTransition counts a successful state movement.
func (m *MetricsService) ObserveTransition(kind models.EventKind, from, to models.GradeState) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(kind), string(from), string(to)).Inc()
}

// ObserveRetakeCreated counts a created retake attempt.
func (m *MetricsService) ObserveRetakeCreated(kind models.RetakeKind) {
	if m == nil {
		return
	}
	m.retakesTotal.WithLabelValues(string(kind)).Inc()
}

// ObservePromotion counts a promoted attempt.
func (m *MetricsService) ObservePromotion() {
	if m == nil {
		return
	}
	m.promotionsTotal.Inc()
}

// ObserveVersionConflict counts an optimistic-concurrency abort.
func (m *MetricsService) ObserveVersionConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}
