package appointment

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/meridian-health/platform/internal/directory"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/events"
	"github.com/meridian-health/platform/internal/shared/lock"
	"github.com/meridian-health/platform/internal/shared/metrics"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Store is the persistence surface the orchestrator needs
type Store interface {
	Create(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, id types.ID) (*Appointment, error)
	Update(ctx context.Context, appt *Appointment) error
	List(ctx context.Context, filter ListFilter) ([]Appointment, error)
	FindConflict(ctx context.Context, entity EntityType, entityID types.ID, start, end time.Time, excludeID types.ID) (*Appointment, error)
	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	ListHistory(ctx context.Context, appointmentID types.ID) ([]HistoryEntry, error)
	Transact(ctx context.Context, fn func(Store) error) error
}

// Directory resolves the users and services a booking references
type Directory interface {
	GetUser(ctx context.Context, id types.ID) (*directory.User, error)
	GetDoctor(ctx context.Context, id types.ID) (*directory.User, error)
	GetService(ctx context.Context, id types.ID) (*directory.Service, error)
}

// Notifier delivers booking confirmations. Best-effort: failures are
// logged and never fail the booking.
type Notifier interface {
	AppointmentBooked(ctx context.Context, appt *Appointment) error
}

// Service orchestrates the appointment lifecycle
type Service struct {
	store     Store
	directory Directory
	assigner  *Assigner
	locker    lock.Locker
	bus       events.Publisher
	notifier  Notifier
}

// NewService creates a new booking service
func NewService(store Store, dir Directory, assigner *Assigner, locker lock.Locker, bus events.Publisher, notifier Notifier) *Service {
	return &Service{
		store:     store,
		directory: dir,
		assigner:  assigner,
		locker:    locker,
		bus:       bus,
		notifier:  notifier,
	}
}

// Create books an appointment. When no doctor is named, the assignment
// engine picks one; if it cannot find a conflict-free doctor the booking
// is stored PENDING with a nearest-future suggestion attached.
func (s *Service) Create(ctx context.Context, user *auth.User, req CreateRequest) (*BookingResult, error) {
	patientID := req.PatientID
	if user.Role == auth.RolePatient {
		patientID = user.ID
	}
	if patientID.IsZero() {
		return nil, errors.BadRequest("patient_id is required")
	}

	if err := validateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	patient, err := s.directory.GetUser(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Role != auth.RolePatient {
		return nil, errors.BadRequest("patient_id does not reference a patient")
	}

	svc, err := s.directory.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:        types.NewID(),
		PatientID: patientID,
		ServiceID: svc.ID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    StatusPending,
		Notes:     req.Notes,
		Reason:    req.Reason,
	}

	assignment := "unassigned"
	var suggestion *Suggestion

	if !req.DoctorID.IsZero() {
		doctor, err := s.directory.GetDoctor(ctx, req.DoctorID)
		if err != nil {
			return nil, err
		}
		appt.DoctorID = &doctor.ID
		assignment = "explicit"
	} else {
		areq := assignRequest{service: svc, start: req.StartTime, end: req.EndTime}
		if req.Preferences != nil {
			areq.seniority = auth.Seniority(req.Preferences.Seniority)
			areq.urgent = req.Preferences.Urgency == "urgent"
		}

		doctor, sugg, err := s.assigner.Assign(ctx, areq)
		if err != nil {
			return nil, err
		}
		if doctor != nil {
			appt.DoctorID = &doctor.ID
			assignment = "auto"
		}
		suggestion = sugg
	}

	if conflict, err := s.store.FindConflict(ctx, EntityPatient, patientID, appt.StartTime, appt.EndTime, ""); err != nil {
		return nil, err
	} else if conflict != nil {
		metrics.RecordBookingConflict("patient")
		return nil, errors.Conflict("patient already has an appointment in this time window")
	}

	if appt.DoctorID != nil {
		// Conflict re-check and insert run under the per-doctor lock so
		// two concurrent bookings cannot both pass the check. The
		// database exclusion constraint backstops the lock.
		err = s.locker.WithDoctorLock(ctx, *appt.DoctorID, func(ctx context.Context) error {
			conflict, err := s.store.FindConflict(ctx, EntityDoctor, *appt.DoctorID, appt.StartTime, appt.EndTime, "")
			if err != nil {
				return err
			}
			if conflict != nil {
				metrics.RecordBookingConflict("doctor")
				return errors.Conflict("doctor already has an appointment in this time window")
			}
			appt.Status = StatusConfirmed
			return s.store.Create(ctx, appt)
		})
		if err == lock.ErrNotAcquired {
			return nil, errors.Conflict("doctor is being booked by another request, please retry")
		}
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.store.Create(ctx, appt); err != nil {
			return nil, err
		}
	}

	s.appendHistory(ctx, appt.ID, ActionCreated, fmt.Sprintf("appointment created with status %s", appt.Status), user)
	s.publish(ctx, "appointment.created", appt, user)
	metrics.RecordAppointmentCreated(string(appt.Status), assignment)

	if s.notifier != nil {
		if err := s.notifier.AppointmentBooked(ctx, appt); err != nil {
			log.Printf("booking notification failed for appointment %s: %v", appt.ID, err)
		}
	}

	return &BookingResult{Appointment: appt, Suggestion: suggestion}, nil
}

// Get retrieves an appointment. Callers outside the patient, the assigned
// doctor and admins get NotFound rather than Forbidden, so the row's
// existence is not confirmed.
func (s *Service) Get(ctx context.Context, user *auth.User, id types.ID) (*Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(user, appt) {
		return nil, errors.NotFound("appointment", id.String())
	}
	return appt, nil
}

// List returns the caller's appointments. Patients and doctors are pinned
// to their own rows; admins and receptionists may filter freely.
func (s *Service) List(ctx context.Context, user *auth.User, filter ListFilter) ([]Appointment, error) {
	switch user.Role {
	case auth.RolePatient:
		filter.PatientID = &user.ID
	case auth.RoleDoctor:
		filter.DoctorID = &user.ID
	}
	return s.store.List(ctx, filter)
}

// Update applies patient-owned changes: doctor, window, notes, reason.
// Conflicts against the new interval exclude the appointment itself.
func (s *Service) Update(ctx context.Context, user *auth.User, id types.ID, req UpdateRequest) (*Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() && user.ID != appt.PatientID {
		return nil, errors.NotFound("appointment", id.String())
	}
	if appt.Status.Terminal() {
		return nil, errors.BadRequest(fmt.Sprintf("appointment is %s and can no longer be changed", appt.Status))
	}

	timeChanged := false
	notesChanged := false

	if req.StartTime != nil {
		appt.StartTime = *req.StartTime
		timeChanged = true
	}
	if req.EndTime != nil {
		appt.EndTime = *req.EndTime
		timeChanged = true
	}
	if timeChanged {
		if err := validateWindow(appt.StartTime, appt.EndTime); err != nil {
			return nil, err
		}
	}

	if req.DoctorID != nil && (appt.DoctorID == nil || *req.DoctorID != *appt.DoctorID) {
		doctor, err := s.directory.GetDoctor(ctx, *req.DoctorID)
		if err != nil {
			return nil, err
		}
		appt.DoctorID = &doctor.ID
		timeChanged = true
	}

	if req.Notes != nil && *req.Notes != appt.Notes {
		appt.Notes = *req.Notes
		notesChanged = true
	}
	if req.Reason != nil && *req.Reason != appt.Reason {
		appt.Reason = *req.Reason
		notesChanged = true
	}

	if !timeChanged && !notesChanged {
		return appt, nil
	}

	persist := func(ctx context.Context) error {
		if timeChanged {
			if conflict, err := s.store.FindConflict(ctx, EntityPatient, appt.PatientID, appt.StartTime, appt.EndTime, appt.ID); err != nil {
				return err
			} else if conflict != nil {
				metrics.RecordBookingConflict("patient")
				return errors.Conflict("patient already has an appointment in this time window")
			}
			if appt.DoctorID != nil {
				if conflict, err := s.store.FindConflict(ctx, EntityDoctor, *appt.DoctorID, appt.StartTime, appt.EndTime, appt.ID); err != nil {
					return err
				} else if conflict != nil {
					metrics.RecordBookingConflict("doctor")
					return errors.Conflict("doctor already has an appointment in this time window")
				}
			}
		}
		return s.store.Update(ctx, appt)
	}

	if timeChanged && appt.DoctorID != nil {
		err = s.locker.WithDoctorLock(ctx, *appt.DoctorID, persist)
		if err == lock.ErrNotAcquired {
			return nil, errors.Conflict("doctor is being booked by another request, please retry")
		}
	} else {
		err = persist(ctx)
	}
	if err != nil {
		return nil, err
	}

	// Only the fields that actually changed produce history entries.
	if timeChanged {
		s.appendHistory(ctx, appt.ID, ActionRescheduled,
			fmt.Sprintf("moved to %s - %s", appt.StartTime.Format(time.RFC3339), appt.EndTime.Format(time.RFC3339)), user)
	}
	if notesChanged {
		s.appendHistory(ctx, appt.ID, ActionNotesUpdated, "notes or reason updated", user)
	}
	s.publish(ctx, "appointment.updated", appt, user)

	return appt, nil
}

// Cancel marks the appointment cancelled with reason, actor and timestamp
func (s *Service) Cancel(ctx context.Context, user *auth.User, id types.ID, req CancelRequest) (*Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() && user.ID != appt.PatientID {
		return nil, errors.NotFound("appointment", id.String())
	}
	if !appt.Status.Blocking() {
		return nil, errors.BadRequest(fmt.Sprintf("appointment is %s and cannot be cancelled", appt.Status))
	}

	prev := appt.Status
	now := time.Now().UTC()
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by " + string(user.Role)
	}

	appt.Status = StatusCancelled
	appt.CancellationReason = &reason
	appt.CancelledAt = &now
	appt.CancelledBy = &user.ID

	if err := s.store.Update(ctx, appt); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, appt.ID, ActionCancelled, reason, user)
	s.publish(ctx, "appointment.cancelled", appt, user)
	metrics.RecordStatusChange(string(prev), string(StatusCancelled))

	return appt, nil
}

// Reschedule cancels the appointment and books a new PENDING one in the
// given window, cross-linking the two rows.
func (s *Service) Reschedule(ctx context.Context, user *auth.User, id types.ID, req RescheduleRequest) (*Appointment, error) {
	old, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(user, old) {
		return nil, errors.NotFound("appointment", id.String())
	}
	if !old.Status.Blocking() {
		return nil, errors.BadRequest(fmt.Sprintf("appointment is %s and cannot be rescheduled", old.Status))
	}
	if err := validateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	prev := old.Status
	replacement := &Appointment{
		ID:              types.NewID(),
		PatientID:       old.PatientID,
		DoctorID:        old.DoctorID,
		ServiceID:       old.ServiceID,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Status:          StatusPending,
		Notes:           old.Notes,
		Reason:          old.Reason,
		RescheduledFrom: &old.ID,
	}

	persist := func(ctx context.Context) error {
		// The old row is excluded from conflict checks: it is about to
		// be cancelled.
		if conflict, err := s.store.FindConflict(ctx, EntityPatient, old.PatientID, req.StartTime, req.EndTime, old.ID); err != nil {
			return err
		} else if conflict != nil {
			metrics.RecordBookingConflict("patient")
			return errors.Conflict("patient already has an appointment in this time window")
		}
		if old.DoctorID != nil {
			if conflict, err := s.store.FindConflict(ctx, EntityDoctor, *old.DoctorID, req.StartTime, req.EndTime, old.ID); err != nil {
				return err
			} else if conflict != nil {
				metrics.RecordBookingConflict("doctor")
				return errors.Conflict("doctor already has an appointment in this time window")
			}
		}

		reason := fmt.Sprintf("Rescheduled: moved to %s", req.StartTime.Format(time.RFC3339))
		now := time.Now().UTC()
		old.Status = StatusCancelled
		old.CancellationReason = &reason
		old.CancelledAt = &now
		old.CancelledBy = &user.ID
		old.RescheduledTo = &replacement.ID

		// Cancelling the old row and inserting the replacement commit
		// together, so a rejected insert never strands a cancelled row
		// pointing at an appointment that was never created.
		return s.store.Transact(ctx, func(store Store) error {
			if err := store.Update(ctx, old); err != nil {
				return err
			}
			return store.Create(ctx, replacement)
		})
	}

	if old.DoctorID != nil {
		err = s.locker.WithDoctorLock(ctx, *old.DoctorID, persist)
		if err == lock.ErrNotAcquired {
			return nil, errors.Conflict("doctor is being booked by another request, please retry")
		}
	} else {
		err = persist(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.appendHistory(ctx, old.ID, ActionRescheduled, fmt.Sprintf("superseded by appointment %s", replacement.ID), user)
	s.appendHistory(ctx, replacement.ID, ActionCreated, fmt.Sprintf("created by reschedule of %s", old.ID), user)
	s.publish(ctx, "appointment.rescheduled", replacement, user)
	metrics.RecordStatusChange(string(prev), string(StatusCancelled))

	return replacement, nil
}

// Complete marks a confirmed appointment completed. Assigned doctor only.
func (s *Service) Complete(ctx context.Context, user *auth.User, id types.ID) (*Appointment, error) {
	return s.doctorTransition(ctx, user, id, StatusConfirmed, StatusCompleted, ActionCompleted, "appointment completed")
}

// NoShow marks a confirmed appointment as a patient no-show. Assigned
// doctor only.
func (s *Service) NoShow(ctx context.Context, user *auth.User, id types.ID) (*Appointment, error) {
	return s.doctorTransition(ctx, user, id, StatusConfirmed, StatusNoShow, ActionNoShow, "patient did not show up")
}

func (s *Service) doctorTransition(ctx context.Context, user *auth.User, id types.ID, from, to Status, action, details string) (*Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role != auth.RoleDoctor || appt.DoctorID == nil || *appt.DoctorID != user.ID {
		return nil, errors.NotFound("appointment", id.String())
	}
	if appt.Status != from {
		return nil, errors.BadRequest(fmt.Sprintf("appointment is %s, expected %s", appt.Status, from))
	}

	appt.Status = to
	if err := s.store.Update(ctx, appt); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, appt.ID, action, details, user)
	s.publish(ctx, "appointment."+action, appt, user)
	metrics.RecordStatusChange(string(from), string(to))

	return appt, nil
}

// AddConsultationNotes attaches the doctor's notes after the visit.
// Assigned doctor only.
func (s *Service) AddConsultationNotes(ctx context.Context, user *auth.User, id types.ID, req ConsultationNotesRequest) (*Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role != auth.RoleDoctor || appt.DoctorID == nil || *appt.DoctorID != user.ID {
		return nil, errors.NotFound("appointment", id.String())
	}
	if req.ConsultationNotes == "" {
		return nil, errors.BadRequest("consultation_notes is required")
	}

	appt.ConsultationNotes = req.ConsultationNotes
	if err := s.store.Update(ctx, appt); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, appt.ID, ActionNotesUpdated, "consultation notes added", user)

	return appt, nil
}

// AdminConfirm flips a pending appointment to confirmed after
// re-validating that doctor and patient are still conflict-free.
func (s *Service) AdminConfirm(ctx context.Context, user *auth.User, id types.ID) (*Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusPending {
		return nil, errors.BadRequest(fmt.Sprintf("appointment is %s, only pending appointments can be confirmed", appt.Status))
	}
	if appt.DoctorID == nil {
		return nil, errors.BadRequest("appointment has no assigned doctor")
	}

	confirm := func(ctx context.Context) error {
		if conflict, err := s.store.FindConflict(ctx, EntityDoctor, *appt.DoctorID, appt.StartTime, appt.EndTime, appt.ID); err != nil {
			return err
		} else if conflict != nil {
			metrics.RecordBookingConflict("doctor")
			return errors.Conflict("doctor already has an appointment in this time window")
		}
		if conflict, err := s.store.FindConflict(ctx, EntityPatient, appt.PatientID, appt.StartTime, appt.EndTime, appt.ID); err != nil {
			return err
		} else if conflict != nil {
			metrics.RecordBookingConflict("patient")
			return errors.Conflict("patient already has an appointment in this time window")
		}
		appt.Status = StatusConfirmed
		return s.store.Update(ctx, appt)
	}

	err = s.locker.WithDoctorLock(ctx, *appt.DoctorID, confirm)
	if err == lock.ErrNotAcquired {
		return nil, errors.Conflict("doctor is being booked by another request, please retry")
	}
	if err != nil {
		return nil, err
	}

	s.appendHistory(ctx, appt.ID, ActionConfirmed, "confirmed by admin", user)
	s.publish(ctx, "appointment.confirmed", appt, user)
	metrics.RecordStatusChange(string(StatusPending), string(StatusConfirmed))

	return appt, nil
}

// History lists an appointment's transitions in creation order. Callers
// outside the patient, the assigned doctor and admins get NotFound.
func (s *Service) History(ctx context.Context, user *auth.User, id types.ID) ([]HistoryEntry, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(user, appt) {
		return nil, errors.NotFound("appointment", id.String())
	}
	return s.store.ListHistory(ctx, id)
}

// appendHistory writes one history record. Best-effort: a failed append
// never blocks the primary operation.
func (s *Service) appendHistory(ctx context.Context, appointmentID types.ID, action, details string, actor *auth.User) {
	entry := &HistoryEntry{
		ID:            types.NewID(),
		AppointmentID: appointmentID,
		Action:        action,
		Details:       details,
	}
	if actor != nil {
		entry.ActorID = &actor.ID
	}

	if err := s.store.AppendHistory(ctx, entry); err != nil {
		log.Printf("failed to append %s history for appointment %s: %v", action, appointmentID, err)
	}
}

// publish emits a lifecycle event, logging failures
func (s *Service) publish(ctx context.Context, eventType string, appt *Appointment, actor *auth.User) {
	if s.bus == nil {
		return
	}

	data := map[string]any{
		"appointment_id": appt.ID.String(),
		"patient_id":     appt.PatientID.String(),
		"service_id":     appt.ServiceID.String(),
		"status":         string(appt.Status),
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime.Format(time.RFC3339),
	}
	if appt.DoctorID != nil {
		data["doctor_id"] = appt.DoctorID.String()
	}

	event := events.NewEvent(eventType, "appointment-service", data)
	if actor != nil {
		event = event.WithActor(actor.ID, string(actor.Role))
	}

	if err := s.bus.Publish(ctx, event); err != nil {
		log.Printf("failed to publish %s event: %v", eventType, err)
	}
}

func canView(user *auth.User, appt *Appointment) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	if user.ID == appt.PatientID {
		return true
	}
	return appt.DoctorID != nil && *appt.DoctorID == user.ID
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return errors.BadRequest("start_time and end_time are required")
	}
	if !end.After(start) {
		return errors.BadRequest("end_time must be after start_time")
	}
	return nil
}
