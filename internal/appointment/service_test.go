package appointment

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/meridian-health/platform/internal/availability"
	"github.com/meridian-health/platform/internal/directory"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/lock"
	"github.com/meridian-health/platform/internal/shared/types"
)

type testEnv struct {
	svc    *Service
	store  *fakeStore
	dir    *fakeDirectory
	avail  *fakeAvailability
	doctor types.ID
	// patient and service are pre-registered for convenience
	patient types.ID
	service types.ID
}

func newTestEnv() *testEnv {
	dir := newFakeDirectory()
	avail := &fakeAvailability{slots: make(map[types.ID][]availability.Slot)}
	store := newFakeStore()

	doctorID := addDoctor(dir, avail, auth.SenioritySenior, nil)

	patientID := types.NewID()
	dir.users[patientID] = &directory.User{
		ID: patientID, Role: auth.RolePatient, FirstName: "Ana", LastName: "Novak", IsActive: true,
	}

	serviceID := types.NewID()
	dir.services[serviceID] = &directory.Service{
		ID: serviceID, DepartmentID: types.NewID(), Name: "General consultation", DurationMinutes: 30, IsActive: true,
	}

	assigner := NewAssigner(dir, avail, store, 14)
	svc := NewService(store, dir, assigner, lock.NoopLocker{}, nil, nil)

	return &testEnv{
		svc: svc, store: store, dir: dir, avail: avail,
		doctor: doctorID, patient: patientID, service: serviceID,
	}
}

func (e *testEnv) patientUser() *auth.User {
	return &auth.User{ID: e.patient, Role: auth.RolePatient}
}

func (e *testEnv) doctorUser() *auth.User {
	return &auth.User{ID: e.doctor, Role: auth.RoleDoctor}
}

func adminUser() *auth.User {
	return &auth.User{ID: types.NewID(), Role: auth.RoleAdmin}
}

func (e *testEnv) book(t *testing.T, start, end time.Time) *Appointment {
	t.Helper()
	result, err := e.svc.Create(context.Background(), e.patientUser(), CreateRequest{
		ServiceID: e.service,
		DoctorID:  e.doctor,
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return result.Appointment
}

func assertAppCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	appErr, ok := err.(*errors.AppError)
	if !ok || appErr.Code != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestCreateConfirmsWithExplicitDoctor(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)

	appt := env.book(t, start, start.Add(30*time.Minute))

	if appt.Status != StatusConfirmed {
		t.Errorf("status = %s, want confirmed", appt.Status)
	}
	if appt.DoctorID == nil || *appt.DoctorID != env.doctor {
		t.Error("doctor not bound")
	}

	history, _ := env.store.ListHistory(context.Background(), appt.ID)
	if len(history) != 1 || history[0].Action != ActionCreated {
		t.Errorf("expected one created history entry, got %+v", history)
	}
}

func TestCreateRejectsDoctorConflict(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	env.book(t, start, start.Add(30*time.Minute))

	other := types.NewID()
	env.dir.users[other] = &directory.User{ID: other, Role: auth.RolePatient, IsActive: true}

	_, err := env.svc.Create(context.Background(), &auth.User{ID: other, Role: auth.RolePatient}, CreateRequest{
		ServiceID: env.service,
		DoctorID:  env.doctor,
		StartTime: start.Add(15 * time.Minute),
		EndTime:   start.Add(45 * time.Minute),
	})
	assertAppCode(t, err, "CONFLICT")
}

func TestCreateRejectsPatientConflict(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	env.book(t, start, start.Add(30*time.Minute))

	// Same patient, different doctor, overlapping window.
	second := addDoctor(env.dir, env.avail, auth.SeniorityConsultant, nil)
	_, err := env.svc.Create(context.Background(), env.patientUser(), CreateRequest{
		ServiceID: env.service,
		DoctorID:  second,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	})
	assertAppCode(t, err, "CONFLICT")
}

func TestCreateBackToBackIsNotAConflict(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	env.book(t, start, start.Add(30*time.Minute))

	appt := env.book(t, start.Add(30*time.Minute), start.Add(60*time.Minute))
	if appt.Status != StatusConfirmed {
		t.Errorf("adjacent booking should confirm, got %s", appt.Status)
	}
}

func TestCreateAutoAssigns(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)

	result, err := env.svc.Create(context.Background(), env.patientUser(), CreateRequest{
		ServiceID: env.service,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	appt := result.Appointment
	if appt.Status != StatusConfirmed {
		t.Errorf("status = %s, want confirmed", appt.Status)
	}
	if appt.DoctorID == nil || *appt.DoctorID != env.doctor {
		t.Error("auto-assignment did not bind the only doctor")
	}
}

func TestCreatePendingWithSuggestionWhenDoctorBusy(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	env.book(t, start, start.Add(30*time.Minute))

	other := types.NewID()
	env.dir.users[other] = &directory.User{ID: other, Role: auth.RolePatient, IsActive: true}

	result, err := env.svc.Create(context.Background(), &auth.User{ID: other, Role: auth.RolePatient}, CreateRequest{
		ServiceID: env.service,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	appt := result.Appointment
	if appt.Status != StatusPending {
		t.Errorf("status = %s, want pending", appt.Status)
	}
	if appt.DoctorID != nil {
		t.Error("no doctor should be bound")
	}
	if result.Suggestion == nil {
		t.Fatal("expected a nearest-future suggestion")
	}
	if result.Suggestion.DoctorID != env.doctor {
		t.Errorf("suggestion names the wrong doctor: %s", result.Suggestion.DoctorID)
	}
}

func TestCreateUnknownServiceIs404(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)

	_, err := env.svc.Create(context.Background(), env.patientUser(), CreateRequest{
		ServiceID: types.NewID(),
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	})
	assertAppCode(t, err, "NOT_FOUND")
}

func TestReschedule(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	old := env.book(t, start, start.Add(30*time.Minute))

	newStart := start.Add(2 * time.Hour)
	replacement, err := env.svc.Reschedule(context.Background(), env.patientUser(), old.ID, RescheduleRequest{
		StartTime: newStart,
		EndTime:   newStart.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	if replacement.Status != StatusPending {
		t.Errorf("replacement status = %s, want pending", replacement.Status)
	}
	if replacement.PatientID != old.PatientID || replacement.ServiceID != old.ServiceID {
		t.Error("replacement must carry the same patient and service")
	}
	if replacement.RescheduledFrom == nil || *replacement.RescheduledFrom != old.ID {
		t.Error("replacement missing back-link")
	}

	stored, err := env.store.Get(context.Background(), old.ID)
	if err != nil {
		t.Fatalf("Get old: %v", err)
	}
	if stored.Status != StatusCancelled {
		t.Errorf("old status = %s, want cancelled", stored.Status)
	}
	if stored.RescheduledTo == nil || *stored.RescheduledTo != replacement.ID {
		t.Error("old row missing forward link")
	}
	if stored.CancellationReason == nil || !strings.HasPrefix(*stored.CancellationReason, "Rescheduled:") {
		t.Errorf("cancellation reason = %v, want Rescheduled prefix", stored.CancellationReason)
	}
}

func TestRescheduleFreesOldWindow(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	old := env.book(t, start, start.Add(30*time.Minute))

	// Rescheduling into the same window must not conflict with the row
	// being replaced.
	replacement, err := env.svc.Reschedule(context.Background(), env.patientUser(), old.ID, RescheduleRequest{
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Reschedule into same window: %v", err)
	}
	if replacement.StartTime != start {
		t.Errorf("unexpected start %s", replacement.StartTime)
	}
}

func TestRescheduleRollsBackWhenReplacementFails(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	old := env.book(t, start, start.Add(30*time.Minute))

	env.store.failCreate = errors.Conflict("doctor already has an appointment in this time window")

	newStart := start.Add(2 * time.Hour)
	_, err := env.svc.Reschedule(context.Background(), env.patientUser(), old.ID, RescheduleRequest{
		StartTime: newStart,
		EndTime:   newStart.Add(30 * time.Minute),
	})
	assertAppCode(t, err, "CONFLICT")

	// The failed insert must not leave the old row cancelled and
	// pointing at an appointment that never made it in.
	stored, err := env.store.Get(context.Background(), old.ID)
	if err != nil {
		t.Fatalf("Get old: %v", err)
	}
	if stored.Status != StatusConfirmed {
		t.Errorf("old status = %s, want confirmed after rollback", stored.Status)
	}
	if stored.RescheduledTo != nil {
		t.Errorf("old row links to %s, want no forward link", *stored.RescheduledTo)
	}
	if stored.CancellationReason != nil {
		t.Errorf("cancellation reason = %q, want none", *stored.CancellationReason)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	appt := env.book(t, start, start.Add(30*time.Minute))

	cancelled, err := env.svc.Cancel(context.Background(), env.patientUser(), appt.ID, CancelRequest{Reason: "cannot make it"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if cancelled.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancellationReason == nil || *cancelled.CancellationReason != "cannot make it" {
		t.Error("cancellation reason not recorded")
	}
	if cancelled.CancelledBy == nil || *cancelled.CancelledBy != env.patient {
		t.Error("cancelling actor not recorded")
	}
	if cancelled.CancelledAt == nil {
		t.Error("cancellation timestamp not recorded")
	}

	// A cancelled row no longer blocks the window.
	appt2 := env.book(t, start, start.Add(30*time.Minute))
	if appt2.Status != StatusConfirmed {
		t.Errorf("window should be free after cancellation, got %s", appt2.Status)
	}

	// Terminal rows cannot be cancelled again.
	_, err = env.svc.Cancel(context.Background(), env.patientUser(), appt.ID, CancelRequest{})
	assertAppCode(t, err, "BAD_REQUEST")
}

func TestCancelByStrangerIs404(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	appt := env.book(t, start, start.Add(30*time.Minute))

	stranger := &auth.User{ID: types.NewID(), Role: auth.RolePatient}
	_, err := env.svc.Cancel(context.Background(), stranger, appt.ID, CancelRequest{})
	assertAppCode(t, err, "NOT_FOUND")
}

func TestCompleteAndNoShowAreDoctorOnly(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	appt := env.book(t, start, start.Add(30*time.Minute))

	// The patient cannot complete their own appointment.
	_, err := env.svc.Complete(context.Background(), env.patientUser(), appt.ID)
	assertAppCode(t, err, "NOT_FOUND")

	// Another doctor cannot either.
	other := &auth.User{ID: types.NewID(), Role: auth.RoleDoctor}
	_, err = env.svc.Complete(context.Background(), other, appt.ID)
	assertAppCode(t, err, "NOT_FOUND")

	completed, err := env.svc.Complete(context.Background(), env.doctorUser(), appt.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completed.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", completed.Status)
	}

	// Completed is terminal.
	_, err = env.svc.NoShow(context.Background(), env.doctorUser(), appt.ID)
	assertAppCode(t, err, "BAD_REQUEST")
}

func TestNoShow(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	appt := env.book(t, start, start.Add(30*time.Minute))

	marked, err := env.svc.NoShow(context.Background(), env.doctorUser(), appt.ID)
	if err != nil {
		t.Fatalf("NoShow: %v", err)
	}
	if marked.Status != StatusNoShow {
		t.Errorf("status = %s, want no_show", marked.Status)
	}
}

func TestConsultationNotes(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	appt := env.book(t, start, start.Add(30*time.Minute))

	updated, err := env.svc.AddConsultationNotes(context.Background(), env.doctorUser(), appt.ID, ConsultationNotesRequest{
		ConsultationNotes: "prescribed rest",
	})
	if err != nil {
		t.Fatalf("AddConsultationNotes: %v", err)
	}
	if updated.ConsultationNotes != "prescribed rest" {
		t.Error("consultation notes not stored")
	}

	_, err = env.svc.AddConsultationNotes(context.Background(), env.doctorUser(), appt.ID, ConsultationNotesRequest{})
	assertAppCode(t, err, "BAD_REQUEST")
}

func TestAdminConfirm(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)

	// Seed a pending appointment with a bound doctor.
	pending := &Appointment{
		ID: types.NewID(), PatientID: env.patient, DoctorID: &env.doctor,
		ServiceID: env.service, StartTime: start, EndTime: start.Add(30 * time.Minute),
		Status: StatusPending,
	}
	env.store.Create(context.Background(), pending)

	confirmed, err := env.svc.AdminConfirm(context.Background(), adminUser(), pending.ID)
	if err != nil {
		t.Fatalf("AdminConfirm: %v", err)
	}
	if confirmed.Status != StatusConfirmed {
		t.Errorf("status = %s, want confirmed", confirmed.Status)
	}
}

func TestAdminConfirmRevalidatesConflicts(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	env.book(t, start, start.Add(30*time.Minute))

	pending := &Appointment{
		ID: types.NewID(), PatientID: types.NewID(), DoctorID: &env.doctor,
		ServiceID: env.service, StartTime: start.Add(15 * time.Minute), EndTime: start.Add(45 * time.Minute),
		Status: StatusPending,
	}
	env.store.Create(context.Background(), pending)

	_, err := env.svc.AdminConfirm(context.Background(), adminUser(), pending.ID)
	assertAppCode(t, err, "CONFLICT")
}

func TestAdminConfirmRequiresDoctor(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)

	pending := &Appointment{
		ID: types.NewID(), PatientID: env.patient,
		ServiceID: env.service, StartTime: start, EndTime: start.Add(30 * time.Minute),
		Status: StatusPending,
	}
	env.store.Create(context.Background(), pending)

	_, err := env.svc.AdminConfirm(context.Background(), adminUser(), pending.ID)
	assertAppCode(t, err, "BAD_REQUEST")
}

func TestUpdateHistoryTracksChangedFieldsOnly(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	appt := env.book(t, start, start.Add(30*time.Minute))

	notes := "please run blood work first"
	if _, err := env.svc.Update(context.Background(), env.patientUser(), appt.ID, UpdateRequest{Notes: &notes}); err != nil {
		t.Fatalf("Update notes: %v", err)
	}

	newStart := start.Add(time.Hour)
	newEnd := newStart.Add(30 * time.Minute)
	if _, err := env.svc.Update(context.Background(), env.patientUser(), appt.ID, UpdateRequest{
		StartTime: &newStart, EndTime: &newEnd,
	}); err != nil {
		t.Fatalf("Update time: %v", err)
	}

	// A no-op update produces no history.
	if _, err := env.svc.Update(context.Background(), env.patientUser(), appt.ID, UpdateRequest{Notes: &notes}); err != nil {
		t.Fatalf("no-op update: %v", err)
	}

	history, _ := env.store.ListHistory(context.Background(), appt.ID)
	var actions []string
	for _, entry := range history {
		actions = append(actions, entry.Action)
	}

	want := []string{ActionCreated, ActionNotesUpdated, ActionRescheduled}
	if len(actions) != len(want) {
		t.Fatalf("history = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("history = %v, want %v", actions, want)
		}
	}
}

func TestHistoryVisibility(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	appt := env.book(t, start, start.Add(30*time.Minute))

	for _, viewer := range []*auth.User{env.patientUser(), env.doctorUser(), adminUser()} {
		if _, err := env.svc.History(context.Background(), viewer, appt.ID); err != nil {
			t.Errorf("%s should see history: %v", viewer.Role, err)
		}
	}

	// Unauthorized callers get 404, not 403, so the appointment's
	// existence is not confirmed.
	stranger := &auth.User{ID: types.NewID(), Role: auth.RolePatient}
	_, err := env.svc.History(context.Background(), stranger, appt.ID)
	assertAppCode(t, err, "NOT_FOUND")
}

func TestHistoryIsAppendOnlyInOrder(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	appt := env.book(t, start, start.Add(30*time.Minute))

	if _, err := env.svc.Cancel(context.Background(), env.patientUser(), appt.ID, CancelRequest{Reason: "sick"}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	history, err := env.svc.History(context.Background(), env.patientUser(), appt.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Action != ActionCreated || history[1].Action != ActionCancelled {
		t.Errorf("unexpected order: %s, %s", history[0].Action, history[1].Action)
	}
}

func TestListScopesByRole(t *testing.T) {
	env := newTestEnv()
	start := testMonday.Add(10 * time.Hour)
	env.book(t, start, start.Add(30*time.Minute))

	// Another patient's booking with a second doctor.
	other := types.NewID()
	env.dir.users[other] = &directory.User{ID: other, Role: auth.RolePatient, IsActive: true}
	second := addDoctor(env.dir, env.avail, auth.SeniorityConsultant, nil)
	if _, err := env.svc.Create(context.Background(), &auth.User{ID: other, Role: auth.RolePatient}, CreateRequest{
		ServiceID: env.service, DoctorID: second,
		StartTime: start, EndTime: start.Add(30 * time.Minute),
	}); err != nil {
		t.Fatalf("second booking: %v", err)
	}

	mine, err := env.svc.List(context.Background(), env.patientUser(), ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(mine) != 1 || mine[0].PatientID != env.patient {
		t.Errorf("patient should only see own appointments, got %d", len(mine))
	}

	all, err := env.svc.List(context.Background(), adminUser(), ListFilter{})
	if err != nil {
		t.Fatalf("List admin: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("admin should see all appointments, got %d", len(all))
	}
}
