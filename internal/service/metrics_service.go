package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the booking
// core and the HTTP surface.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	reservations      *prometheus.CounterVec
	bookingsConfirmed prometheus.Counter
	sessionsCompleted prometheus.Counter
	sessionsCancelled *prometheus.CounterVec
	holdsExpired      prometheus.Counter
	reviewsSubmitted  prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
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

	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slot_reservations_total",
		Help: "Slot reservation attempts by outcome",
	}, []string{"outcome"})

	bookingsConfirmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookings_confirmed_total",
		Help: "Holds successfully confirmed into sessions",
	})

	sessionsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_completed_total",
		Help: "Sessions transitioned to completed",
	})

	sessionsCancelled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_cancelled_total",
		Help: "Sessions cancelled, by actor role",
	}, []string{"role"})

	holdsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "holds_expired_total",
		Help: "Holds reclaimed by the expiry sweeper",
	})

	reviewsSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviews_submitted_total",
		Help: "Reviews accepted for completed sessions",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, reservations, bookingsConfirmed, sessionsCompleted, sessionsCancelled, holdsExpired, reviewsSubmitted, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		reservations:      reservations,
		bookingsConfirmed: bookingsConfirmed,
		sessionsCompleted: sessionsCompleted,
		sessionsCancelled: sessionsCancelled,
		holdsExpired:      holdsExpired,
		reviewsSubmitted:  reviewsSubmitted,
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

// RecordReservation counts a reservation attempt by outcome
// (success, conflict, unavailable).
func (m *MetricsService) RecordReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

// RecordBookingConfirmed counts a hold turned into a session.
func (m *MetricsService) RecordBookingConfirmed() {
	if m == nil {
		return
	}
	m.bookingsConfirmed.Inc()
}

// RecordSessionCompleted counts a completed session.
func (m *MetricsService) RecordSessionCompleted() {
	if m == nil {
		return
	}
	m.sessionsCompleted.Inc()
}

// RecordSessionCancelled counts a cancellation by actor role.
func (m *MetricsService) RecordSessionCancelled(role string) {
	if m == nil {
		return
	}
	m.sessionsCancelled.WithLabelValues(role).Inc()
}

// RecordHoldsExpired counts holds reclaimed by the sweeper.
func (m *MetricsService) RecordHoldsExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.holdsExpired.Add(float64(n))
}

// RecordReviewSubmitted counts an accepted review.
func (m *MetricsService) RecordReviewSubmitted() {
	if m == nil {
		return
	}
	m.reviewsSubmitted.Inc()
}
