package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/azariacindy/MyStudyMate/internal/circuitbreaker"
	"github.com/azariacindy/MyStudyMate/internal/clock"
	"github.com/azariacindy/MyStudyMate/internal/service"
)

type mockRunner struct {
	report   service.CycleReport
	err      error
	triggers []string
}

func (m *mockRunner) Run(ctx context.Context, trigger string) (service.CycleReport, error) {
	m.triggers = append(m.triggers, trigger)
	return m.report, m.err
}

func newTestHandler(runner CycleRunner) (*Handler, *circuitbreaker.Registry) {
	reg := circuitbreaker.NewRegistry()
	clk := clock.NewMock(time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC))
	reg.Add(circuitbreaker.New(circuitbreaker.DefaultConfig("fcm"), zap.NewNop(), clk.Now))
	reg.Add(circuitbreaker.New(circuitbreaker.DefaultConfig("telegram"), zap.NewNop(), clk.Now))
	return NewHandler(zap.NewNop(), runner, reg), reg
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(&mockRunner{})
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRunReminders(t *testing.T) {
	runner := &mockRunner{report: service.CycleReport{
		ID:          "c1",
		Trigger:     TriggerManual,
		Assignments: service.Counts{Due: 2, Sent: 1, Failed: 1},
		Schedules:   service.Counts{Due: 1, Sent: 1},
	}}
	h, _ := newTestHandler(runner)
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reminders/run", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{TriggerManual}, runner.triggers)

	var got service.CycleReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, 1, got.Assignments.Failed)
	assert.Equal(t, 1, got.Schedules.Sent)
}

func TestRunRemindersFailure(t *testing.T) {
	h, _ := newTestHandler(&mockRunner{err: errors.New("load pending events: db down")})
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reminders/run", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, http.StatusInternalServerError, errResp.Status)
	assert.Equal(t, "cycle_failed", errResp.Type)
	assert.Contains(t, errResp.Detail, "db down")
}

func TestRunRemindersRequiresPost(t *testing.T) {
	runner := &mockRunner{}
	h, _ := newTestHandler(runner)
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reminders/run", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, runner.triggers)
}

func TestListBreakers(t *testing.T) {
	h, reg := newTestHandler(&mockRunner{})
	cb, ok := reg.Get("telegram")
	require.True(t, ok)
	for i := 0; i < circuitbreaker.DefaultConfig("telegram").MaxFailures; i++ {
		cb.RecordFailure()
	}

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/breakers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Breakers []circuitbreaker.Stats `json:"breakers"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Breakers, 2)
	assert.Equal(t, "fcm", body.Breakers[0].Name)
	assert.Equal(t, "closed", body.Breakers[0].State)
	assert.Equal(t, "telegram", body.Breakers[1].Name)
	assert.Equal(t, "open", body.Breakers[1].State)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(&mockRunner{})
	router := h.Router()

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "studymate_http_requests_total")
}
