package report

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meridian-health/platform/internal/access"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Handler provides HTTP handlers for reports. Listing is mounted under
// /patients/{patientID}/reports behind the access-policy middleware; the
// single-report and create routes check the policy against the report's
// patient themselves.
type Handler struct {
	repo   *Repository
	engine *access.Engine
	perms  auth.PermissionTable
}

// NewHandler creates a new report handler
func NewHandler(repo *Repository, engine *access.Engine, perms auth.PermissionTable) *Handler {
	return &Handler{repo: repo, engine: engine, perms: perms}
}

// PatientRoutes registers the per-patient listing, to be mounted behind
// the access middleware.
func (h *Handler) PatientRoutes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequirePermission(h.perms, auth.PermReportRead)).
		Get("/", h.ListForPatient)
	return r
}

// Routes registers the report routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(auth.RequirePermission(h.perms, auth.PermReportRead)).
		Get("/{reportID}", h.Get)
	r.With(auth.RequirePermission(h.perms, auth.PermReportCreate)).
		Post("/", h.Create)

	return r
}

// ListForPatient returns a patient's reports
func (h *Handler) ListForPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	reps, err := h.repo.ListForPatient(r.Context(), patientID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": reps})
}

// Get returns a single report after re-checking the policy against the
// report's patient
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid report ID"))
		return
	}

	rep, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := access.Check(r.Context(), h.engine, user, rep.PatientID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// Create writes a new report for the patient named in the body
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
	if req.PatientID.IsZero() {
		writeError(w, errors.BadRequest("patient_id is required"))
		return
	}
	if req.Title == "" {
		writeError(w, errors.BadRequest("title is required"))
		return
	}

	if err := access.Check(r.Context(), h.engine, user, req.PatientID); err != nil {
		writeError(w, err)
		return
	}

	rep := &Report{
		ID:            types.NewID(),
		PatientID:     req.PatientID,
		DoctorID:      user.ID,
		AppointmentID: req.AppointmentID,
		Title:         req.Title,
		Body:          req.Body,
	}

	if err := h.repo.Create(r.Context(), rep); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rep)
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
