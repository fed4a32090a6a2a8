package appointment

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meridian-health/platform/internal/shared/auth"
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

func serveAs(env *testEnv, user *auth.User, method, path, body string) *httptest.ResponseRecorder {
	router := injectUser(user)(NewHandler(env.svc, auth.DefaultPermissions()).Routes())
	rec := httptest.NewRecorder()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func TestRoutePermissions(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)

	// Confirmation is reserved for front desk and administration.
	pending := &Appointment{
		ID: types.NewID(), PatientID: env.patient, DoctorID: &env.doctor,
		ServiceID: env.service, StartTime: start, EndTime: start.Add(30 * time.Minute),
		Status: StatusPending,
	}
	env.store.appts[pending.ID] = pending

	rec := serveAs(env, env.patientUser(), http.MethodPost, "/"+pending.ID.String()+"/confirm", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("patient confirm = %d, want 403", rec.Code)
	}

	receptionist := &auth.User{ID: types.NewID(), Role: auth.RoleReceptionist}
	rec = serveAs(env, receptionist, http.MethodPost, "/"+pending.ID.String()+"/confirm", "")
	if rec.Code != http.StatusOK {
		t.Errorf("receptionist confirm = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	// Doctors do not book; patients and front desk do.
	rec = serveAs(env, env.doctorUser(), http.MethodPost, "/", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("doctor create = %d, want 403", rec.Code)
	}

	// Doctors still read and update their appointments.
	appt := env.book(t, start.Add(time.Hour), start.Add(90*time.Minute))
	rec = serveAs(env, env.doctorUser(), http.MethodGet, "/"+appt.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Errorf("doctor get = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRoutesRequireUser(t *testing.T) {
	env := newTestEnv()
	router := NewHandler(env.svc, auth.DefaultPermissions()).Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated list = %d, want 401", rec.Code)
	}
}
