package notification

import (
	"context"
	"testing"
	"time"

	"github.com/meridian-health/platform/internal/appointment"
	"github.com/meridian-health/platform/internal/directory"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/config"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

type staticUsers struct {
	users map[types.ID]*directory.User
}

func (s *staticUsers) GetUser(_ context.Context, id types.ID) (*directory.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, errors.NotFound("user", id.String())
	}
	return user, nil
}

func testConfig() config.NotificationConfig {
	return config.NotificationConfig{Workers: 2, BufferSize: 16}
}

func waitForSent(t *testing.T, provider *MockProvider, want int) []*Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sent := provider.Sent(); len(sent) >= want {
			return sent
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent messages, got %d", want, len(provider.Sent()))
	return nil
}

func TestAppointmentBookedSendsConfirmation(t *testing.T) {
	patientID := types.NewID()
	users := &staticUsers{users: map[types.ID]*directory.User{
		patientID: {ID: patientID, Role: auth.RolePatient, FirstName: "Ana", LastName: "Novak", Email: "ana@example.com"},
	}}

	email := NewMockProvider()
	inApp := NewMockProvider()
	svc := NewService(testConfig(), users, map[Channel]Provider{
		ChannelEmail: email,
		ChannelInApp: inApp,
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop()

	appt := &appointment.Appointment{
		ID:        types.NewID(),
		PatientID: patientID,
		StartTime: time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, time.March, 3, 10, 30, 0, 0, time.UTC),
		Status:    appointment.StatusConfirmed,
	}

	if err := svc.AppointmentBooked(context.Background(), appt); err != nil {
		t.Fatalf("AppointmentBooked: %v", err)
	}

	sent := waitForSent(t, email, 1)
	if sent[0].Email != "ana@example.com" {
		t.Errorf("recipient = %s, want ana@example.com", sent[0].Email)
	}
	if sent[0].Subject != "Appointment confirmation" {
		t.Errorf("subject = %q", sent[0].Subject)
	}
	waitForSent(t, inApp, 1)
}

func TestAppointmentBookedUnknownPatient(t *testing.T) {
	svc := NewService(testConfig(), &staticUsers{users: map[types.ID]*directory.User{}}, nil)

	appt := &appointment.Appointment{ID: types.NewID(), PatientID: types.NewID()}
	if err := svc.AppointmentBooked(context.Background(), appt); err == nil {
		t.Error("expected error for unknown patient")
	}
}

func TestDeliveryFailureDoesNotPanicOrBlock(t *testing.T) {
	patientID := types.NewID()
	users := &staticUsers{users: map[types.ID]*directory.User{
		patientID: {ID: patientID, Role: auth.RolePatient, Email: "p@example.com"},
	}}

	email := NewMockProvider()
	email.SetFailOnSend(true)
	svc := NewService(testConfig(), users, map[Channel]Provider{ChannelEmail: email})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	svc.Enqueue(&Message{Channel: ChannelEmail, RecipientID: patientID, Subject: "x"})
	svc.Stop()

	if len(email.Sent()) != 0 {
		t.Error("failing provider should record nothing")
	}
}
