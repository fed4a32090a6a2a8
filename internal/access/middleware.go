package access

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

// RequirePatientAccess guards routes carrying a {patientID} URL
// parameter. Admins and super-admins bypass the policy entirely;
// patients may reach their own records; doctors are evaluated by the
// engine. A denial responds 403, a missing patient id 400.
func RequirePatientAccess(engine *Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.GetUser(r.Context())
			if user == nil {
				writeError(w, errors.Unauthorized("authentication required"))
				return
			}

			raw := chi.URLParam(r, "patientID")
			if raw == "" {
				writeError(w, errors.BadRequest("patient ID is required"))
				return
			}
			patientID, err := types.ParseID(raw)
			if err != nil {
				writeError(w, errors.BadRequest("invalid patient ID"))
				return
			}

			if err := Check(r.Context(), engine, user, patientID); err != nil {
				writeError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Check applies the policy for one (caller, patient) pair. Used by the
// middleware and by handlers whose patient id arrives in the body.
func Check(ctx context.Context, engine *Engine, user *auth.User, patientID types.ID) error {
	if user.IsAdmin() {
		return nil
	}
	if user.Role == auth.RolePatient {
		if user.ID == patientID {
			return nil
		}
		return errors.Forbidden("patients may only access their own records")
	}

	allowed, _, err := engine.CanDoctorAccessPatient(ctx, user.ID, patientID)
	if err != nil {
		return err
	}
	if !allowed {
		return errors.Forbidden("access to this patient's records violates the department access policy")
	}

	return nil
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
