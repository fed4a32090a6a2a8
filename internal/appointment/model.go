// Package appointment implements booking: conflict detection,
// auto-assignment of doctors, the appointment state machine and its
// append-only history.
package appointment

import (
	"time"

	"github.com/meridian-health/platform/internal/shared/types"
)

// Status is the appointment lifecycle state
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// Terminal reports whether the row can no longer transition
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// Blocking reports whether the appointment occupies its time window for
// conflict purposes.
func (s Status) Blocking() bool {
	return s == StatusPending || s == StatusConfirmed
}

// History action tags
const (
	ActionCreated         = "created"
	ActionRescheduled     = "rescheduled"
	ActionCancelled       = "cancelled"
	ActionConfirmed       = "confirmed"
	ActionNotesUpdated    = "notes_updated"
	ActionServiceAssigned = "service_assigned"
	ActionFollowUpCreated = "follow_up_created"
	ActionCompleted       = "completed"
	ActionNoShow          = "no_show"
)

// EntityType selects which side of an appointment a conflict scan keys on
type EntityType string

const (
	EntityDoctor  EntityType = "doctor"
	EntityPatient EntityType = "patient"
)

// Appointment represents a booked or requested visit
type Appointment struct {
	ID        types.ID  `json:"id"`
	PatientID types.ID  `json:"patient_id"`
	DoctorID  *types.ID `json:"doctor_id,omitempty"`
	ServiceID types.ID  `json:"service_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    Status    `json:"status"`

	Notes             string `json:"notes,omitempty"`
	Reason            string `json:"reason,omitempty"`
	ConsultationNotes string `json:"consultation_notes,omitempty"`

	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *types.ID  `json:"cancelled_by,omitempty"`

	// One-hop supersedes / superseded-by pair set on reschedule.
	RescheduledFrom *types.ID `json:"rescheduled_from,omitempty"`
	RescheduledTo   *types.ID `json:"rescheduled_to,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry is one append-only record of an appointment transition
type HistoryEntry struct {
	ID            types.ID  `json:"id"`
	AppointmentID types.ID  `json:"appointment_id"`
	Action        string    `json:"action"`
	Details       string    `json:"details,omitempty"`
	ActorID       *types.ID `json:"actor_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Preferences steer auto-assignment when no doctor is requested
type Preferences struct {
	// Seniority is chief, senior, consultant, practitioner or any
	Seniority string `json:"seniority,omitempty"`
	// Urgency "urgent" biases assignment toward chief/senior doctors
	Urgency string `json:"urgency,omitempty"`
}

// Suggestion is a non-binding nearest-future opening returned when no
// conflict-free doctor could be assigned.
type Suggestion struct {
	DoctorID   types.ID  `json:"doctor_id"`
	DoctorName string    `json:"doctor_name"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// BookingResult is the create response: the appointment plus an optional
// suggestion when it was left PENDING without a doctor.
type BookingResult struct {
	Appointment *Appointment `json:"appointment"`
	Suggestion  *Suggestion  `json:"suggestion,omitempty"`
}

// CreateRequest is the booking request body
type CreateRequest struct {
	PatientID   types.ID     `json:"patient_id,omitempty"`
	ServiceID   types.ID     `json:"service_id"`
	DoctorID    types.ID     `json:"doctor_id,omitempty"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time"`
	Notes       string       `json:"notes,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// UpdateRequest carries partial changes to a booked appointment
type UpdateRequest struct {
	DoctorID  *types.ID  `json:"doctor_id,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
	Reason    *string    `json:"reason,omitempty"`
}

// CancelRequest carries the cancellation reason
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RescheduleRequest moves an appointment to a new window
type RescheduleRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// ConsultationNotesRequest attaches the doctor's consultation notes
type ConsultationNotesRequest struct {
	ConsultationNotes string `json:"consultation_notes"`
}

// ListFilter narrows an appointment listing
type ListFilter struct {
	PatientID *types.ID
	DoctorID  *types.ID
	Status    *Status
	From      *time.Time
	To        *time.Time
}
