// Package report holds medical reports, the records the access policy
// exists to protect.
package report

import (
	"time"

	"github.com/meridian-health/platform/internal/shared/types"
)

// Report is a medical report written by a doctor about a patient
type Report struct {
	ID            types.ID  `json:"id"`
	PatientID     types.ID  `json:"patient_id"`
	DoctorID      types.ID  `json:"doctor_id"`
	AppointmentID *types.ID `json:"appointment_id,omitempty"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateRequest is the request to create a report
type CreateRequest struct {
	PatientID     types.ID  `json:"patient_id"`
	AppointmentID *types.ID `json:"appointment_id,omitempty"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
}
