package directory

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the directory module
type Handler struct {
	repo *Repository
}

// NewHandler creates a new directory handler
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes registers the directory routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/departments", func(r chi.Router) {
		r.Get("/", h.ListDepartments)
		r.Get("/{departmentID}", h.GetDepartment)
	})

	r.Route("/services", func(r chi.Router) {
		r.Get("/", h.ListServices)
		r.Get("/{serviceID}", h.GetService)
	})

	r.Get("/doctors", h.ListDoctors)

	return r
}

// ListDepartments lists active departments
func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.repo.ListDepartments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": departments})
}

// GetDepartment gets a department by ID
func (h *Handler) GetDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "departmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid department ID"))
		return
	}

	dept, err := h.repo.GetDepartment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dept)
}

// ListServices lists active services, filtered by department if given
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	var departmentID *types.ID
	if d := r.URL.Query().Get("departmentId"); d != "" {
		id, err := types.ParseID(d)
		if err != nil {
			writeError(w, errors.BadRequest("invalid department ID"))
			return
		}
		departmentID = &id
	}

	services, err := h.repo.ListServices(r.Context(), departmentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": services})
}

// GetService gets a service by ID
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "serviceID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid service ID"))
		return
	}

	svc, err := h.repo.GetService(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, svc)
}

// ListDoctors lists doctors, filtered by department and seniority if given
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	filter := ListDoctorsFilter{ActiveOnly: true}

	if d := r.URL.Query().Get("departmentId"); d != "" {
		id, err := types.ParseID(d)
		if err != nil {
			writeError(w, errors.BadRequest("invalid department ID"))
			return
		}
		filter.DepartmentID = &id
	}

	if s := r.URL.Query().Get("seniority"); s != "" {
		seniority := auth.Seniority(s)
		filter.Seniority = &seniority
	}

	doctors, err := h.repo.ListDoctors(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": doctors})
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
