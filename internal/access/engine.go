// Package access implements the department and referral based policy
// gating doctor access to patient records.
package access

import (
	"context"

	"github.com/meridian-health/platform/internal/directory"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/metrics"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Decision bases reported by the engine
const (
	BasisDepartment = "department"
	BasisReferral   = "referral"
	BasisTreatment  = "treatment"
	BasisDenied     = "denied"
)

// UserSource resolves doctors and patients
type UserSource interface {
	GetUser(ctx context.Context, id types.ID) (*directory.User, error)
}

// ReferralSource answers whether a (patient, department) grant exists
type ReferralSource interface {
	Exists(ctx context.Context, patientID, departmentID types.ID) (bool, error)
}

// TreatmentSource answers whether any appointment links doctor and patient
type TreatmentSource interface {
	HasAppointmentBetween(ctx context.Context, doctorID, patientID types.ID) (bool, error)
}

// Engine evaluates the access policy. All dependencies are injected; no
// ambient state is consulted at check time.
type Engine struct {
	users     UserSource
	referrals ReferralSource
	treatment TreatmentSource
}

// NewEngine creates a new access policy engine
func NewEngine(users UserSource, referrals ReferralSource, treatment TreatmentSource) *Engine {
	return &Engine{users: users, referrals: referrals, treatment: treatment}
}

// CanDoctorAccessPatient decides whether the doctor may view or create
// records for the patient, and reports the basis of the grant. The check
// fails closed: missing users, a non-doctor id, or a lookup error all
// deny.
func (e *Engine) CanDoctorAccessPatient(ctx context.Context, doctorID, patientID types.ID) (bool, string, error) {
	doctor, err := e.users.GetUser(ctx, doctorID)
	if err != nil {
		return e.deny(err)
	}
	if !doctor.IsDoctor() || doctor.DepartmentID == nil {
		return e.decide(false, BasisDenied, nil)
	}

	patient, err := e.users.GetUser(ctx, patientID)
	if err != nil {
		return e.deny(err)
	}

	// Home department match.
	if patient.PrimaryDepartmentID != nil && *patient.PrimaryDepartmentID == *doctor.DepartmentID {
		return e.decide(true, BasisDepartment, nil)
	}

	// Referral grant to the doctor's department.
	referred, err := e.referrals.Exists(ctx, patientID, *doctor.DepartmentID)
	if err != nil {
		return e.deny(err)
	}
	if referred {
		return e.decide(true, BasisReferral, nil)
	}

	// Treated-patient exception: a prior clinical relationship overrides
	// department boundaries.
	treated, err := e.treatment.HasAppointmentBetween(ctx, doctorID, patientID)
	if err != nil {
		return e.deny(err)
	}
	if treated {
		return e.decide(true, BasisTreatment, nil)
	}

	return e.decide(false, BasisDenied, nil)
}

func (e *Engine) deny(err error) (bool, string, error) {
	// A missing doctor or patient is a plain denial, not an error.
	if errors.IsNotFound(err) {
		return e.decide(false, BasisDenied, nil)
	}
	return e.decide(false, BasisDenied, err)
}

func (e *Engine) decide(allowed bool, basis string, err error) (bool, string, error) {
	if err == nil {
		metrics.RecordAccessDecision(basis, allowed)
	}
	return allowed, basis, err
}
