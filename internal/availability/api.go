package availability

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the availability module
type Handler struct {
	svc         *Service
	granularity time.Duration
	perms       auth.PermissionTable
}

// NewHandler creates a new availability handler
func NewHandler(svc *Service, granularity time.Duration, perms auth.PermissionTable) *Handler {
	return &Handler{svc: svc, granularity: granularity, perms: perms}
}

// Routes registers the availability routes. Slot browsing is public so
// patients can search before authenticating; schedule management sits
// behind the given authentication middleware.
func (h *Handler) Routes(authn func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/doctors/{doctorID}", h.ListDoctorSlots)
	r.Get("/slots/available", h.SearchOpenWindows)

	r.Group(func(r chi.Router) {
		r.Use(authn)

		r.Get("/my-schedule", h.MySchedule)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermission(h.perms, auth.PermAvailabilityManage))
			r.Post("/", h.CreateSlot)
			r.Put("/{slotID}", h.UpdateSlot)
			r.Delete("/{slotID}", h.DeleteSlot)
		})
	})

	return r
}

// ListDoctorSlots lists a doctor's active slots, optionally filtered by
// date or day of week
func (h *Handler) ListDoctorSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := types.ParseID(chi.URLParam(r, "doctorID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid doctor ID"))
		return
	}

	filter := ListSlotsFilter{}
	if d := r.URL.Query().Get("date"); d != "" {
		date, err := time.Parse("2006-01-02", d)
		if err != nil {
			writeError(w, errors.BadRequest("invalid date, want YYYY-MM-DD"))
			return
		}
		filter.Date = &date
	}
	if d := r.URL.Query().Get("dayOfWeek"); d != "" {
		weekday, err := ParseWeekday(d)
		if err != nil {
			writeError(w, errors.BadRequest(err.Error()))
			return
		}
		filter.DayOfWeek = &weekday
	}

	slots, err := h.svc.ListSlots(r.Context(), doctorID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": slots})
}

// SearchOpenWindows returns doctors with open booking windows for a day
func (h *Handler) SearchOpenWindows(w http.ResponseWriter, r *http.Request) {
	d := r.URL.Query().Get("date")
	if d == "" {
		writeError(w, errors.BadRequest("date is required"))
		return
	}
	day, err := time.Parse("2006-01-02", d)
	if err != nil {
		writeError(w, errors.BadRequest("invalid date, want YYYY-MM-DD"))
		return
	}

	var departmentID, doctorID *types.ID
	if v := r.URL.Query().Get("departmentId"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid department ID"))
			return
		}
		departmentID = &id
	}
	if v := r.URL.Query().Get("doctorId"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid doctor ID"))
			return
		}
		doctorID = &id
	}

	windows, err := h.svc.OpenWindows(r.Context(), day, departmentID, doctorID, h.granularity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"date": d, "data": windows})
}

// MySchedule lists the calling doctor's own slots
func (h *Handler) MySchedule(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}
	if user.Role != auth.RoleDoctor {
		writeError(w, errors.Forbidden("only doctors have a schedule"))
		return
	}

	slots, err := h.svc.ListSlots(r.Context(), user.ID, ListSlotsFilter{})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": slots})
}

// CreateSlot creates an availability slot
func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	var req CreateSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	slot, err := h.svc.CreateSlot(r.Context(), user, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, slot)
}

// UpdateSlot updates an availability slot
func (h *Handler) UpdateSlot(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "slotID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid slot ID"))
		return
	}

	var req UpdateSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	slot, err := h.svc.UpdateSlot(r.Context(), user, id, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, slot)
}

// DeleteSlot deletes an availability slot
func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "slotID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid slot ID"))
		return
	}

	if err := h.svc.DeleteSlot(r.Context(), user, id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
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
