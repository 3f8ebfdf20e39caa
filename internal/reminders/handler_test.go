package reminders

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gynoconnect/clinic-scheduler/internal/appointments"
	"github.com/gynoconnect/clinic-scheduler/internal/notify"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

func newReminderRouter(t *testing.T) (chi.Router, *rig) {
	t.Helper()
	s, r := newScheduler(t, time.Date(2025, 6, 9, 18, 0, 0, 0, time.UTC), notify.Toggles{Email: true, SMS: true})
	router := chi.NewRouter()
	NewHandler(s, r.history, r.reg, nil).RegisterRoutes(router)
	return router, r
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestTriggerThenHistoryAndStats(t *testing.T) {
	router, r := newReminderRouter(t)
	r.book(t, "p-1", tuesday, schedule.Clock(9, 0), appointments.StatusConfirmed)

	rec := serve(router, http.MethodPost, "/notifications/trigger-reminders", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var trigger struct {
		Passes []PassSummary `json:"passes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trigger))
	require.Len(t, trigger.Passes, 2)
	assert.Equal(t, 2, trigger.Passes[0].Sent)

	rec = serve(router, http.MethodGet, "/notifications/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Records []notify.Record `json:"records"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Equal(t, 2, history.Count)

	rec = serve(router, http.MethodGet, "/notifications/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Total    float64            `json:"total"`
		ByStatus map[string]float64 `json:"by_status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, float64(2), stats.Total)
	assert.Equal(t, float64(2), stats.ByStatus["sent"])
}

func TestPostTestValidation(t *testing.T) {
	router, r := newReminderRouter(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown kind", `{"kind":"birthday","channel":"email","to":"a@example.com"}`, http.StatusBadRequest},
		{"unknown channel", `{"kind":"confirmation","channel":"fax","to":"a@example.com"}`, http.StatusBadRequest},
		{"missing to", `{"kind":"confirmation","channel":"sms"}`, http.StatusBadRequest},
		{"bad email", `{"kind":"confirmation","channel":"email","to":"nope"}`, http.StatusBadRequest},
		{"bad appointment id", `{"kind":"confirmation","channel":"email","to":"a@example.com","appointment_id":"x"}`, http.StatusBadRequest},
		{"missing appointment", `{"kind":"confirmation","channel":"email","to":"a@example.com","appointment_id":"0b9d2a3e-4f6a-4f1c-9a55-3cbe3e1d2f10"}`, http.StatusNotFound},
		{"ok", `{"kind":"reminder_24h","channel":"email","to":"a@example.com"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, http.MethodPost, "/notifications/test", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
	assert.Len(t, r.email.Sent(), 1)
}

func TestPostTestReportsSkippedNumber(t *testing.T) {
	router, _ := newReminderRouter(t)

	rec := serve(router, http.MethodPost, "/notifications/test", `{"kind":"confirmation","channel":"sms","to":"12"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "skipped", body["status"])
	assert.NotEmpty(t, body["error"])
}
