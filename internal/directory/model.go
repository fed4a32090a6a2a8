// Package directory holds the read-side projections of users, departments
// and medical services that scheduling and access control decide against.
package directory

import (
	"time"

	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Department represents a clinical department
type Department struct {
	ID        types.ID  `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is the projection of a platform account. Doctors carry DepartmentID
// and Seniority; patients carry PrimaryDepartmentID.
type User struct {
	ID                  types.ID       `json:"id"`
	Role                auth.Role      `json:"role"`
	FirstName           string         `json:"first_name"`
	LastName            string         `json:"last_name"`
	Email               string         `json:"email"`
	DepartmentID        *types.ID      `json:"department_id,omitempty"`
	PrimaryDepartmentID *types.ID      `json:"primary_department_id,omitempty"`
	Seniority           auth.Seniority `json:"seniority,omitempty"`
	IsActive            bool           `json:"is_active"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// FullName returns the user's full name
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// IsDoctor reports whether the account actually holds the doctor role
func (u User) IsDoctor() bool {
	return u.Role == auth.RoleDoctor
}

// Service represents a bookable medical service offered by a department
type Service struct {
	ID              types.ID  `json:"id"`
	DepartmentID    types.ID  `json:"department_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListDoctorsFilter defines filters for listing doctors
type ListDoctorsFilter struct {
	DepartmentID *types.ID       `json:"department_id,omitempty"`
	Seniority    *auth.Seniority `json:"seniority,omitempty"`
	ActiveOnly   bool            `json:"active_only"`
}
