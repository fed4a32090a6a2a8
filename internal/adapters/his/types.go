// Package his imports patient demographics from a legacy hospital
// information system. The legacy side is a MSSQL database that we can
// only poll; admissions discovered there are surfaced on a channel and
// folded into the local patient projection.
package his

import (
	"context"
	"time"
)

// PatientRecord is a patient row as the legacy system stores it
type PatientRecord struct {
	MRN         string     `json:"mrn"` // medical record number, the legacy key
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth time.Time  `json:"date_of_birth"`
	Gender      string     `json:"gender"`
	Phone       string     `json:"phone,omitempty"`
	Email       string     `json:"email,omitempty"`
	Deceased    bool       `json:"deceased"`
	DeceasedAt  *time.Time `json:"deceased_at,omitempty"`

	LastModified time.Time `json:"last_modified"`
	SourceSystem string    `json:"source_system"`
}

// AdmissionEvent is emitted when the legacy system records an admission
type AdmissionEvent struct {
	Patient        PatientRecord `json:"patient"`
	AdmissionID    string        `json:"admission_id"`
	DepartmentCode string        `json:"department_code"`
	AdmittedAt     time.Time     `json:"admitted_at"`
	AdmissionType  string        `json:"admission_type,omitempty"`
}

// AdmissionHandler processes admission events
type AdmissionHandler func(ctx context.Context, event AdmissionEvent) error
