package referral

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meridian-health/platform/internal/directory"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/events"
	"github.com/meridian-health/platform/internal/shared/types"
)

// DepartmentDirectory validates the referral target
type DepartmentDirectory interface {
	GetDepartment(ctx context.Context, id types.ID) (*directory.Department, error)
}

// Handler provides HTTP handlers for referrals. Mounted under
// /patients/{patientID}/referrals behind the access-policy middleware.
type Handler struct {
	repo        *Repository
	departments DepartmentDirectory
	bus         events.Publisher
	perms       auth.PermissionTable
}

// NewHandler creates a new referral handler
func NewHandler(repo *Repository, departments DepartmentDirectory, bus events.Publisher, perms auth.PermissionTable) *Handler {
	return &Handler{repo: repo, departments: departments, bus: bus, perms: perms}
}

// Routes registers the referral routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.With(auth.RequirePermission(h.perms, auth.PermReferralCreate)).
		Post("/", h.Create)
	r.With(auth.RequireRoles(auth.RoleDoctor)).
		Post("/doctor", h.CreateByDoctor)

	return r
}

// Create registers a referral on behalf of the hospital administration.
// A doctor using this route is still recorded as the referrer.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var referredBy *types.ID
	if user := auth.GetUser(r.Context()); user != nil && user.Role == auth.RoleDoctor {
		referredBy = &user.ID
	}
	h.create(w, r, referredBy)
}

// CreateByDoctor registers a referral initiated by the treating doctor
func (h *Handler) CreateByDoctor(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}
	h.create(w, r, &user.ID)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, referredBy *types.ID) {
	patientID, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.DepartmentID.IsZero() {
		writeError(w, errors.BadRequest("department_id is required"))
		return
	}

	if _, err := h.departments.GetDepartment(r.Context(), req.DepartmentID); err != nil {
		writeError(w, err)
		return
	}

	ref := &Referral{
		ID:           types.NewID(),
		PatientID:    patientID,
		DepartmentID: req.DepartmentID,
		ReferredBy:   referredBy,
		Reason:       req.Reason,
	}

	if err := h.repo.Create(r.Context(), ref); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), ref)

	writeJSON(w, http.StatusCreated, ref)
}

// List returns a patient's referrals
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	patientID, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	refs, err := h.repo.ListForPatient(r.Context(), patientID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": refs})
}

func (h *Handler) publish(ctx context.Context, ref *Referral) {
	if h.bus == nil {
		return
	}

	data := map[string]any{
		"referral_id":   ref.ID.String(),
		"patient_id":    ref.PatientID.String(),
		"department_id": ref.DepartmentID.String(),
	}

	event := events.NewEvent("referral.created", "referral-service", data)
	if user := auth.GetUser(ctx); user != nil {
		event = event.WithActor(user.ID, string(user.Role))
	}

	if err := h.bus.Publish(ctx, event); err != nil {
		log.Printf("failed to publish referral.created event: %v", err)
	}
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
