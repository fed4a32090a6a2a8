package availability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/config"
	"github.com/meridian-health/platform/internal/shared/types"
)

// injectUser stands in for the JWT middleware in handler tests.
func injectUser(user *auth.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}

func TestSlotBrowsingIsPublic(t *testing.T) {
	doctorID := types.NewID()
	svc, _ := newTestService(doctorID)
	handler := NewHandler(svc, 30*time.Minute, auth.DefaultPermissions())
	router := handler.Routes(auth.Middleware(config.AuthConfig{JWTSecret: "test-secret"}))

	// No Authorization header on either browse route.
	for _, path := range []string{
		"/doctors/" + doctorID.String(),
		"/slots/available?date=2025-03-03",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200 without a token", path, rec.Code)
		}
	}

	// Schedule management still demands a token.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("POST / = %d, want 401 without a token", rec.Code)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/my-schedule", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /my-schedule = %d, want 401 without a token", rec.Code)
	}
}

func TestSlotManagementPermission(t *testing.T) {
	doctorID := types.NewID()
	svc, _ := newTestService(doctorID)
	perms := auth.DefaultPermissions()
	body := `{"day_of_week":"monday","start_time":"09:00","end_time":"12:00"}`

	// Patients hold no manage permission.
	patient := &auth.User{ID: types.NewID(), Role: auth.RolePatient}
	router := NewHandler(svc, 30*time.Minute, perms).Routes(injectUser(patient))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("patient POST / = %d, want 403", rec.Code)
	}

	// Doctors manage their own schedule.
	router = NewHandler(svc, 30*time.Minute, perms).Routes(injectUser(doctorUser(doctorID)))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Errorf("doctor POST / = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}
