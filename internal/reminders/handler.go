package reminders

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gynoconnect/clinic-scheduler/internal/appointments"
	"github.com/gynoconnect/clinic-scheduler/internal/notify"
	"github.com/gynoconnect/clinic-scheduler/internal/observability/metrics"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

// Handler serves the notification admin endpoints. Callers gate them to admins.
type Handler struct {
	scheduler *Scheduler
	history   notify.History
	gatherer  prometheus.Gatherer
	logger    *logging.Logger
}

func NewHandler(scheduler *Scheduler, history notify.History, gatherer prometheus.Gatherer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{scheduler: scheduler, history: history, gatherer: gatherer, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/history", h.getHistory)
		r.Get("/stats", h.getStats)
		r.Post("/trigger-reminders", h.postTrigger)
		r.Post("/test", h.postTest)
	})
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"records": []notify.Record{}, "count": 0})
		return
	}
	recs, err := h.history.Recent(r.Context(), notify.HistoryLimit)
	if err != nil {
		h.logger.Error("reminders handler: history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if recs == nil {
		recs = []notify.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs, "count": len(recs)})
}

func (h *Handler) getStats(w http.ResponseWriter, _ *http.Request) {
	if h.gatherer == nil {
		writeJSON(w, http.StatusOK, metrics.DeliveryStats{ByStatus: map[string]float64{}, ByKind: map[string]map[string]float64{}})
		return
	}
	writeJSON(w, http.StatusOK, metrics.SnapshotDeliveries(h.gatherer))
}

func (h *Handler) postTrigger(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.scheduler.TriggerNow(r.Context())
	if err != nil {
		h.logger.Error("reminders handler: trigger", "error", err)
		writeError(w, http.StatusInternalServerError, "reminder pass failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"passes": summaries})
}

type testBody struct {
	Kind          string  `json:"kind"`
	Channel       string  `json:"channel"`
	To            string  `json:"to"`
	AppointmentID *string `json:"appointment_id"`
}

func (h *Handler) postTest(w http.ResponseWriter, r *http.Request) {
	var body testBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, msg := parseTestBody(body)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	status, err := h.scheduler.SendTest(r.Context(), req)
	if errors.Is(err, appointments.ErrNotFound) {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	resp := map[string]any{"status": status, "kind": req.Kind, "channel": req.Channel}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseTestBody(body testBody) (TestRequest, string) {
	kind, err := notify.ParseKind(body.Kind)
	if err != nil {
		return TestRequest{}, "unknown notification kind"
	}
	channel, err := notify.ParseChannel(body.Channel)
	if err != nil {
		return TestRequest{}, "channel must be email or sms"
	}
	if body.To == "" {
		return TestRequest{}, "to is required"
	}
	if channel == notify.ChannelEmail {
		if _, err := mail.ParseAddress(body.To); err != nil {
			return TestRequest{}, "to must be an email address"
		}
	}
	req := TestRequest{Kind: kind, Channel: channel, To: body.To}
	if body.AppointmentID != nil && *body.AppointmentID != "" {
		id, err := uuid.Parse(*body.AppointmentID)
		if err != nil {
			return TestRequest{}, "invalid appointment id"
		}
		req.AppointmentID = &id
	}
	return req, ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
