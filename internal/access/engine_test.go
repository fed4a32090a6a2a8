package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/meridian-health/platform/internal/directory"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

type fakeUsers struct {
	users map[types.ID]*directory.User
}

func (f *fakeUsers) GetUser(_ context.Context, id types.ID) (*directory.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, errors.NotFound("user", id.String())
	}
	return user, nil
}

type fakeReferrals struct {
	grants map[[2]types.ID]bool
}

func (f *fakeReferrals) Exists(_ context.Context, patientID, departmentID types.ID) (bool, error) {
	return f.grants[[2]types.ID{patientID, departmentID}], nil
}

type fakeTreatment struct {
	pairs map[[2]types.ID]bool
}

func (f *fakeTreatment) HasAppointmentBetween(_ context.Context, doctorID, patientID types.ID) (bool, error) {
	return f.pairs[[2]types.ID{doctorID, patientID}], nil
}

type engineEnv struct {
	engine    *Engine
	users     *fakeUsers
	referrals *fakeReferrals
	treatment *fakeTreatment

	cardiology types.ID
	neurology  types.ID
	doctor     types.ID
	patient    types.ID
}

func newEngineEnv() *engineEnv {
	env := &engineEnv{
		users:      &fakeUsers{users: make(map[types.ID]*directory.User)},
		referrals:  &fakeReferrals{grants: make(map[[2]types.ID]bool)},
		treatment:  &fakeTreatment{pairs: make(map[[2]types.ID]bool)},
		cardiology: types.NewID(),
		neurology:  types.NewID(),
		doctor:     types.NewID(),
		patient:    types.NewID(),
	}

	env.users.users[env.doctor] = &directory.User{
		ID: env.doctor, Role: auth.RoleDoctor, DepartmentID: &env.cardiology, IsActive: true,
	}
	env.users.users[env.patient] = &directory.User{
		ID: env.patient, Role: auth.RolePatient, PrimaryDepartmentID: &env.cardiology, IsActive: true,
	}

	env.engine = NewEngine(env.users, env.referrals, env.treatment)
	return env
}

func (e *engineEnv) check(t *testing.T) (bool, string) {
	t.Helper()
	allowed, basis, err := e.engine.CanDoctorAccessPatient(context.Background(), e.doctor, e.patient)
	if err != nil {
		t.Fatalf("CanDoctorAccessPatient: %v", err)
	}
	return allowed, basis
}

func TestAccessDepartmentMatch(t *testing.T) {
	env := newEngineEnv()

	allowed, basis := env.check(t)
	if !allowed || basis != BasisDepartment {
		t.Errorf("same department should grant, got allowed=%v basis=%s", allowed, basis)
	}
}

func TestAccessFlipsWithDepartmentAndReferral(t *testing.T) {
	env := newEngineEnv()

	// Moving the patient to another department removes the grant.
	env.users.users[env.patient].PrimaryDepartmentID = &env.neurology
	if allowed, _ := env.check(t); allowed {
		t.Error("different department without referral should deny")
	}

	// A referral to the doctor's department restores it.
	env.referrals.grants[[2]types.ID{env.patient, env.cardiology}] = true
	allowed, basis := env.check(t)
	if !allowed || basis != BasisReferral {
		t.Errorf("referral should grant, got allowed=%v basis=%s", allowed, basis)
	}
}

func TestAccessTreatedPatientException(t *testing.T) {
	env := newEngineEnv()
	env.users.users[env.patient].PrimaryDepartmentID = &env.neurology

	env.treatment.pairs[[2]types.ID{env.doctor, env.patient}] = true

	allowed, basis := env.check(t)
	if !allowed || basis != BasisTreatment {
		t.Errorf("prior appointment should grant, got allowed=%v basis=%s", allowed, basis)
	}
}

func TestAccessFailsClosed(t *testing.T) {
	env := newEngineEnv()

	t.Run("missing doctor", func(t *testing.T) {
		allowed, _, err := env.engine.CanDoctorAccessPatient(context.Background(), types.NewID(), env.patient)
		if err != nil || allowed {
			t.Errorf("missing doctor should deny without error, got allowed=%v err=%v", allowed, err)
		}
	})

	t.Run("missing patient", func(t *testing.T) {
		allowed, _, err := env.engine.CanDoctorAccessPatient(context.Background(), env.doctor, types.NewID())
		if err != nil || allowed {
			t.Errorf("missing patient should deny without error, got allowed=%v err=%v", allowed, err)
		}
	})

	t.Run("caller is not a doctor", func(t *testing.T) {
		impostor := types.NewID()
		env.users.users[impostor] = &directory.User{
			ID: impostor, Role: auth.RolePatient, PrimaryDepartmentID: &env.cardiology,
		}
		allowed, _, err := env.engine.CanDoctorAccessPatient(context.Background(), impostor, env.patient)
		if err != nil || allowed {
			t.Errorf("non-doctor caller should deny, got allowed=%v err=%v", allowed, err)
		}
	})

	t.Run("doctor without department", func(t *testing.T) {
		unassigned := types.NewID()
		env.users.users[unassigned] = &directory.User{ID: unassigned, Role: auth.RoleDoctor}
		allowed, _, err := env.engine.CanDoctorAccessPatient(context.Background(), unassigned, env.patient)
		if err != nil || allowed {
			t.Errorf("doctor without department should deny, got allowed=%v err=%v", allowed, err)
		}
	})
}

func middlewareStatus(t *testing.T, env *engineEnv, user *auth.User, patientID string) int {
	t.Helper()

	router := chi.NewRouter()
	router.With(RequirePatientAccess(env.engine)).
		Get("/patients/{patientID}/reports", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	req := httptest.NewRequest(http.MethodGet, "/patients/"+patientID+"/reports", nil)
	if user != nil {
		req = req.WithContext(auth.WithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequirePatientAccess(t *testing.T) {
	env := newEngineEnv()
	stranger := types.NewID()
	env.users.users[stranger] = &directory.User{
		ID: stranger, Role: auth.RoleDoctor, DepartmentID: &env.neurology, IsActive: true,
	}

	tests := []struct {
		name    string
		user    *auth.User
		patient string
		want    int
	}{
		{"admin bypass", &auth.User{ID: types.NewID(), Role: auth.RoleAdmin}, env.patient.String(), http.StatusOK},
		{"super admin bypass", &auth.User{ID: types.NewID(), Role: auth.RoleSuperAdmin}, env.patient.String(), http.StatusOK},
		{"doctor in department", &auth.User{ID: env.doctor, Role: auth.RoleDoctor}, env.patient.String(), http.StatusOK},
		{"doctor outside department", &auth.User{ID: stranger, Role: auth.RoleDoctor}, env.patient.String(), http.StatusForbidden},
		{"patient own records", &auth.User{ID: env.patient, Role: auth.RolePatient}, env.patient.String(), http.StatusOK},
		{"patient other records", &auth.User{ID: types.NewID(), Role: auth.RolePatient}, env.patient.String(), http.StatusForbidden},
		{"invalid patient id", &auth.User{ID: env.doctor, Role: auth.RoleDoctor}, "not-a-uuid", http.StatusBadRequest},
		{"unauthenticated", nil, env.patient.String(), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := middlewareStatus(t, env, tt.user, tt.patient); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}
