package availability

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gynoconnect/clinic-scheduler/internal/auth"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

// Handler exposes doctor availability over HTTP.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterReadRoutes mounts the public endpoints under /doctors/{doctorID}.
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/slots", h.getSlots)
	r.Get("/schedule", h.getSchedule)
}

// RegisterWriteRoutes mounts schedule edits; callers gate them to staff.
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Put("/availability", h.putAvailability)
	r.Post("/blocked", h.postBlock)
	r.Delete("/blocked/{blockID}", h.deleteBlock)
}

func (h *Handler) getSlots(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	date, err := schedule.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	result, err := h.svc.Slots(r.Context(), doctorID, date)
	if err != nil {
		h.logger.Error("availability handler: slots", "error", err, "doctor_id", doctorID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	sched, err := h.svc.Schedule(r.Context(), doctorID)
	if err != nil {
		h.logger.Error("availability handler: schedule", "error", err, "doctor_id", doctorID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

type windowRequest struct {
	DayOfWeek   schedule.Weekday   `json:"day_of_week"`
	StartTime   schedule.TimeOfDay `json:"start_time"`
	EndTime     schedule.TimeOfDay `json:"end_time"`
	IsAvailable *bool              `json:"is_available"`
}

func (h *Handler) putAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.ownedDoctor(w, r)
	if !ok {
		return
	}
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	window := schedule.Window{
		DoctorID:    doctorID,
		DayOfWeek:   req.DayOfWeek,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsAvailable: req.IsAvailable == nil || *req.IsAvailable,
	}
	if err := h.svc.SetWindow(r.Context(), window); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

type blockRequest struct {
	Date      schedule.Date      `json:"date"`
	StartTime schedule.TimeOfDay `json:"start_time"`
	EndTime   schedule.TimeOfDay `json:"end_time"`
	Reason    string             `json:"reason"`
}

func (h *Handler) postBlock(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.ownedDoctor(w, r)
	if !ok {
		return
	}
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	block := &schedule.Block{
		DoctorID:  doctorID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
	}
	if err := h.svc.AddBlock(r.Context(), block); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func (h *Handler) deleteBlock(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.ownedDoctor(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveBlock(r.Context(), doctorID, chi.URLParam(r, "blockID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Blocked slot removed"})
}

// ownedDoctor rejects doctors editing someone else's schedule.
func (h *Handler) ownedDoctor(w http.ResponseWriter, r *http.Request) (string, bool) {
	doctorID := chi.URLParam(r, "doctorID")
	if p, ok := auth.FromContext(r.Context()); ok && p.Role == auth.RoleDoctor && p.UserID != doctorID {
		writeError(w, http.StatusForbidden, "doctors may only edit their own schedule")
		return "", false
	}
	return doctorID, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrBlockNotFound):
		writeError(w, http.StatusNotFound, "blocked slot not found")
	default:
		h.logger.Error("availability handler: store failure", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
