package appointment

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the appointment module
type Handler struct {
	svc   *Service
	perms auth.PermissionTable
}

// NewHandler creates a new appointment handler
func NewHandler(svc *Service, perms auth.PermissionTable) *Handler {
	return &Handler{svc: svc, perms: perms}
}

// Routes registers the appointment routes. Each route is gated by the
// permission table; the service applies the finer per-resource checks.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(auth.RequirePermission(h.perms, auth.PermAppointmentCreate)).
		Post("/", h.Create)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePermission(h.perms, auth.PermAppointmentRead))
		r.Get("/", h.List)
		r.Get("/{appointmentID}", h.Get)
		r.Get("/{appointmentID}/history", h.History)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePermission(h.perms, auth.PermAppointmentUpdate))
		r.Patch("/{appointmentID}", h.Update)
		r.Post("/{appointmentID}/reschedule", h.Reschedule)
		r.Post("/{appointmentID}/complete", h.Complete)
		r.Post("/{appointmentID}/no-show", h.NoShow)
		r.Post("/{appointmentID}/consultation-notes", h.ConsultationNotes)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePermission(h.perms, auth.PermAppointmentCancel))
		r.Delete("/{appointmentID}", h.Cancel)
		r.Post("/{appointmentID}/cancel", h.Cancel)
	})

	r.With(auth.RequirePermission(h.perms, auth.PermAppointmentConfirm)).
		Post("/{appointmentID}/confirm", h.AdminConfirm)

	return r
}

// Create books a new appointment
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, err := h.svc.Create(r.Context(), user, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// List returns the caller's appointments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	filter := ListFilter{}
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		status := Status(s)
		filter.Status = &status
	}
	if d := q.Get("doctorId"); d != "" {
		id, err := types.ParseID(d)
		if err != nil {
			writeError(w, errors.BadRequest("invalid doctor ID"))
			return
		}
		filter.DoctorID = &id
	}
	if p := q.Get("patientId"); p != "" {
		id, err := types.ParseID(p)
		if err != nil {
			writeError(w, errors.BadRequest("invalid patient ID"))
			return
		}
		filter.PatientID = &id
	}
	if f := q.Get("from"); f != "" {
		from, err := time.Parse(time.RFC3339, f)
		if err != nil {
			writeError(w, errors.BadRequest("invalid from timestamp"))
			return
		}
		filter.From = &from
	}
	if t := q.Get("to"); t != "" {
		to, err := time.Parse(time.RFC3339, t)
		if err != nil {
			writeError(w, errors.BadRequest("invalid to timestamp"))
			return
		}
		filter.To = &to
	}

	appts, err := h.svc.List(r.Context(), user, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": appts})
}

// Get returns a single appointment
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.Get(r.Context(), user, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

// Update applies partial changes to an appointment
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	appt, err := h.svc.Update(r.Context(), user, id, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

// Cancel cancels an appointment
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	var req CancelRequest
	if r.Body != nil {
		// The body is optional on cancel.
		json.NewDecoder(r.Body).Decode(&req)
	}

	appt, err := h.svc.Cancel(r.Context(), user, id, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

// Reschedule moves an appointment to a new time window
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), user, id, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, appt)
}

// Complete marks an appointment completed
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.Complete(r.Context(), user, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

// NoShow marks an appointment as a patient no-show
func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.NoShow(r.Context(), user, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

// ConsultationNotes attaches the doctor's notes to an appointment
func (h *Handler) ConsultationNotes(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	var req ConsultationNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	appt, err := h.svc.AddConsultationNotes(r.Context(), user, id, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

// AdminConfirm confirms a pending appointment
func (h *Handler) AdminConfirm(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.AdminConfirm(r.Context(), user, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

// History lists an appointment's transition log
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	entries, err := h.svc.History(r.Context(), user, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) userAndID(w http.ResponseWriter, r *http.Request) (*auth.User, types.ID, bool) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return nil, "", false
	}

	id, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return nil, "", false
	}

	return user, id, true
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
