package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/azariacindy/MyStudyMate/internal/circuitbreaker"
	"github.com/azariacindy/MyStudyMate/internal/metrics"
	"github.com/azariacindy/MyStudyMate/internal/service"
)

// TriggerManual labels cycles started through the HTTP surface.
const TriggerManual = "manual"

// CycleRunner runs one reminder cycle on demand.
type CycleRunner interface {
	Run(ctx context.Context, trigger string) (service.CycleReport, error)
}

// BreakerStats lists circuit breaker state per transport.
type BreakerStats interface {
	Stats() []circuitbreaker.Stats
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for the ops endpoints
type Handler struct {
	logger   *zap.Logger
	runner   CycleRunner
	breakers BreakerStats
}

func NewHandler(logger *zap.Logger, runner CycleRunner, breakers BreakerStats) *Handler {
	return &Handler{
		logger:   logger,
		runner:   runner,
		breakers: breakers,
	}
}

// Router wires the ops endpoints with request logging and metrics.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(h.logRequests)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/breakers", h.ListBreakers)
	r.Post("/reminders/run", h.RunReminders)

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ListBreakers handles GET /breakers
func (h *Handler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	stats := h.breakers.Stats()
	if stats == nil {
		stats = []circuitbreaker.Stats{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"breakers": stats})
}

// RunReminders handles POST /reminders/run. The cycle runs on the request
// context, so a client that disconnects abandons the items not yet started.
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.Run(r.Context(), TriggerManual)
	if err != nil {
		h.logger.Error("manual reminder cycle failed",
			zap.Error(err),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
		h.writeError(w, http.StatusInternalServerError, "cycle_failed", "Reminder cycle failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
