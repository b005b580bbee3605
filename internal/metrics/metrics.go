// Package metrics exposes the reminder engine's Prometheus series.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reminder kinds and outcomes used as label values.
const (
	KindAssignment = "assignment"
	KindSchedule   = "schedule"

	OutcomeSent      = "sent"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeStale     = "stale"
	OutcomeAbandoned = "abandoned"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studymate_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studymate_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studymate_reminder_cycles_total",
			Help: "Dispatcher cycles by trigger",
		},
		[]string{"trigger"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studymate_reminder_cycle_duration_seconds",
			Help:    "Wall time of one dispatcher cycle",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60},
		},
	)

	remindersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studymate_reminders_total",
			Help: "Reminder items handled by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studymate_send_duration_seconds",
			Help:    "Transport call latency by channel",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"channel"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCycle counts a finished cycle. trigger is "tick" or "manual".
func RecordCycle(trigger string, duration time.Duration) {
	cyclesTotal.WithLabelValues(trigger).Inc()
	cycleDuration.Observe(duration.Seconds())
}

func RecordReminder(kind, outcome string) {
	remindersTotal.WithLabelValues(kind, outcome).Inc()
}

func RecordSend(channel string, latency time.Duration) {
	sendDuration.WithLabelValues(channel).Observe(latency.Seconds())
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request metrics labelled by chi route pattern, so ids
// in paths do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		RecordRequest(r.Method, route, wrapped.status, time.Since(start))
	})
}
