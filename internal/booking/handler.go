package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gynoconnect/clinic-scheduler/internal/appointments"
	"github.com/gynoconnect/clinic-scheduler/internal/auth"
	"github.com/gynoconnect/clinic-scheduler/internal/identity"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

// Handler exposes the booking engine over HTTP.
type Handler struct {
	engine    *Engine
	slots     SlotFinder
	directory identity.Directory
	logger    *logging.Logger
}

func NewHandler(engine *Engine, slots SlotFinder, directory identity.Directory, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, slots: slots, directory: directory, logger: logger}
}

// RegisterRoutes mounts the appointment endpoints. Expected under /api/v1
// behind the authentication middleware; deleteGuard wraps only hard delete.
func (h *Handler) RegisterRoutes(r chi.Router, deleteGuard ...func(http.Handler) http.Handler) {
	r.Get("/slots", h.getSlots)
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{appointmentID}", h.get)
		r.Patch("/{appointmentID}", h.update)
		r.Put("/{appointmentID}/cancel", h.cancel)
		r.Put("/{appointmentID}/reschedule", h.reschedule)
		r.Put("/{appointmentID}/accept", h.accept)
		r.Put("/{appointmentID}/decline", h.decline)
		r.With(deleteGuard...).Delete("/{appointmentID}", h.delete)
	})
}

// AppointmentView is an appointment with resolved participant names.
type AppointmentView struct {
	appointments.Appointment
	PatientEmail string `json:"patient_email,omitempty"`
	DoctorName   string `json:"doctor_name,omitempty"`
}

func (h *Handler) getSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := schedule.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	doctorID := strings.TrimSpace(q.Get("doctor_id"))
	if doctorID == "" {
		if doctorID, err = h.engine.AssignDoctor(r.Context()); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}
	result, err := h.slots.Slots(r.Context(), doctorID, date)
	if err != nil {
		h.logger.Error("booking handler: slots", "error", err, "doctor_id", doctorID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doctor_id": doctorID,
		"date":      result.Date,
		"slots":     result.Slots,
		"available": result.Available,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := appointments.Filter{DoctorID: q.Get("doctor_id"), PatientID: q.Get("patient_id")}
	switch p.Role {
	case auth.RolePatient:
		filter.PatientID = p.UserID
	case auth.RoleDoctor:
		filter.DoctorID = p.UserID
	}
	if raw := q.Get("date"); raw != "" {
		d, err := schedule.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		filter.Date = &d
	}
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s, err := appointments.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			filter.Statuses = append(filter.Statuses, s)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	appts, err := h.engine.List(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	views := h.views(r.Context(), appts)
	writeJSON(w, http.StatusOK, map[string]any{"appointments": views, "count": len(views)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if !canSee(p, appt) {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	h.writeAppointment(r.Context(), w, http.StatusOK, appt)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	switch p.Role {
	case auth.RolePatient:
		req.PatientID, req.PatientEmail = p.UserID, ""
		req.Status = appointments.StatusPending
		if req.Source == "" {
			req.Source = appointments.SourceOnline
		}
	case auth.RoleDoctor:
		if req.DoctorID == "" {
			req.DoctorID = p.UserID
		}
		if req.Status == "" {
			req.Status = appointments.StatusConfirmed
		}
		if req.Source == "" {
			req.Source = appointments.SourceStaff
		}
	default:
		if req.Source == "" {
			req.Source = appointments.SourceStaff
		}
	}

	appt, err := h.engine.Create(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeAppointment(r.Context(), w, http.StatusCreated, appt)
}

type updateRequest struct {
	Status   *appointments.Status `json:"status"`
	Notes    *string              `json:"notes"`
	Reason   *string              `json:"reason"`
	Symptoms *string              `json:"symptoms"`
	Date     *schedule.Date       `json:"date"`
	Time     *schedule.TimeOfDay  `json:"time"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if !p.IsStaff() {
		writeError(w, http.StatusForbidden, "only clinic staff may edit appointments")
		return
	}
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	appt, err := h.engine.Update(r.Context(), id, appointments.Patch{
		Status:   req.Status,
		Notes:    req.Notes,
		Reason:   req.Reason,
		Symptoms: req.Symptoms,
		Date:     req.Date,
		Time:     req.Time,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeAppointment(r.Context(), w, http.StatusOK, appt)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Cancel)
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Accept)
}

func (h *Handler) decline(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Decline)
}

type rescheduleRequest struct {
	Date *schedule.Date      `json:"date"`
	Time *schedule.TimeOfDay `json:"time"`
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Date == nil || req.Time == nil {
		writeError(w, http.StatusBadRequest, "date and time are required")
		return
	}
	h.lifecycle(w, r, func(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
		return h.engine.Reschedule(ctx, id, *req.Date, *req.Time)
	})
}

// lifecycle loads the appointment for the ownership check, then runs op.
func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (*appointments.Appointment, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	current, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if !canSee(p, current) {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	appt, err := op(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeAppointment(r.Context(), w, http.StatusOK, appt)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	if err := h.engine.Delete(r.Context(), p, id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Appointment deleted"})
}

func (h *Handler) writeAppointment(ctx context.Context, w http.ResponseWriter, status int, appt *appointments.Appointment) {
	views := h.views(ctx, []appointments.Appointment{*appt})
	writeJSON(w, status, views[0])
}

// views resolves names with a single directory lookup. Lookup failures fall
// back to the appointment's own fields.
func (h *Handler) views(ctx context.Context, appts []appointments.Appointment) []AppointmentView {
	out := make([]AppointmentView, len(appts))
	for i := range appts {
		out[i] = AppointmentView{Appointment: appts[i]}
	}
	if h.directory == nil || len(appts) == 0 {
		return out
	}

	seen := map[string]bool{}
	var ids []string
	for _, a := range appts {
		for _, id := range []string{a.DoctorID, deref(a.PatientID)} {
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	people, err := h.directory.Lookup(ctx, ids...)
	if err != nil {
		h.logger.Warn("booking handler: name lookup failed", "error", err)
		return out
	}
	for i := range out {
		if doc, ok := people[out[i].DoctorID]; ok {
			out[i].DoctorName = doc.Name
		}
		if pat, ok := people[deref(out[i].PatientID)]; ok {
			if pat.Name != "" {
				out[i].PatientName = pat.Name
			}
			if pat.Phone != "" {
				out[i].PatientPhone = pat.Phone
			}
			out[i].PatientEmail = pat.Email
		}
	}
	return out
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, identity.ErrNoDoctor):
		writeError(w, http.StatusNotFound, "no doctor available")
	case errors.Is(err, appointments.ErrSlotConflict):
		writeError(w, http.StatusConflict, "time slot is already booked")
	case errors.Is(err, ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		h.logger.Error("booking handler: internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return p, ok
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return uuid.Nil, false
	}
	return id, true
}

// canSee hides other people's appointments from patients and doctors.
func canSee(p auth.Principal, a *appointments.Appointment) bool {
	switch p.Role {
	case auth.RolePatient:
		return a.PatientID != nil && *a.PatientID == p.UserID
	case auth.RoleDoctor:
		return a.DoctorID == p.UserID
	}
	return p.IsStaff()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
