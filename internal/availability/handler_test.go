package availability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gynoconnect/clinic-scheduler/internal/auth"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

func newTestRouter(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc, _, _ := newTestService(t)
	h := NewHandler(svc, nil)
	r := chi.NewRouter()
	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		h.RegisterReadRoutes(r)
		h.RegisterWriteRoutes(r)
	})
	return r, svc
}

func asPrincipal(req *http.Request, p auth.Principal) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

func TestHandlerSlots(t *testing.T) {
	router, svc := newTestRouter(t)
	require.NoError(t, svc.SetWindow(context.Background(), schedule.Window{
		DoctorID: "7", DayOfWeek: schedule.Weekday(time.Tuesday),
		StartTime: schedule.Clock(9, 0), EndTime: schedule.Clock(10, 0), IsAvailable: true,
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doctors/7/slots?date=2025-06-10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Date      string   `json:"date"`
		Slots     []string `json:"slots"`
		Available bool     `json:"available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2025-06-10", body.Date)
	assert.Equal(t, []string{"09:00", "09:30"}, body.Slots)
	assert.True(t, body.Available)
}

func TestHandlerSlotsBadDate(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doctors/7/slots?date=tomorrow", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerPutAvailabilityAndBlock(t *testing.T) {
	router, svc := newTestRouter(t)
	doctor := auth.Principal{UserID: "7", Role: auth.RoleDoctor}

	req := httptest.NewRequest(http.MethodPut, "/doctors/7/availability",
		strings.NewReader(`{"day_of_week":"tuesday","start_time":"09:00","end_time":"12:00"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asPrincipal(req, doctor))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/doctors/7/blocked",
		strings.NewReader(`{"date":"2025-06-10","start_time":"09:00","end_time":"11:00","reason":"surgery"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asPrincipal(req, doctor))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var block schedule.Block
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &block))
	assert.NotEmpty(t, block.ID)

	slots, err := svc.Slots(context.Background(), "7", tuesday)
	require.NoError(t, err)
	assert.Equal(t, []schedule.TimeOfDay{schedule.Clock(11, 0), schedule.Clock(11, 30)}, slots.Slots)

	req = httptest.NewRequest(http.MethodDelete, "/doctors/7/blocked/"+block.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asPrincipal(req, doctor))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asPrincipal(httptest.NewRequest(http.MethodDelete, "/doctors/7/blocked/"+block.ID, nil), doctor))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerDoctorCannotEditOtherSchedule(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPut, "/doctors/8/availability",
		strings.NewReader(`{"day_of_week":"monday","start_time":"09:00","end_time":"12:00"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asPrincipal(req, auth.Principal{UserID: "7", Role: auth.RoleDoctor}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerRejectsInvertedWindow(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPut, "/doctors/7/availability",
		strings.NewReader(`{"day_of_week":"monday","start_time":"12:00","end_time":"09:00"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asPrincipal(req, auth.Principal{UserID: "1", Role: auth.RoleAdmin}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
