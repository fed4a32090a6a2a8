// Package referral manages department referrals: a referral grants every
// doctor of the target department access to the referred patient.
package referral

import (
	"time"

	"github.com/meridian-health/platform/internal/shared/types"
)

// Referral is a (patient, department) access grant
type Referral struct {
	ID           types.ID  `json:"id"`
	PatientID    types.ID  `json:"patient_id"`
	DepartmentID types.ID  `json:"department_id"`
	ReferredBy   *types.ID `json:"referred_by,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateRequest is the request to create a referral
type CreateRequest struct {
	DepartmentID types.ID `json:"department_id"`
	Reason       string   `json:"reason,omitempty"`
}
