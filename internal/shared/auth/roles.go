// Package auth provides authentication middleware and the role and
// permission model shared by all modules.
package auth

// Role represents a user role in the system.
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"  // Full platform access
	RoleAdmin        Role = "admin"        // Hospital administration
	RoleDoctor       Role = "doctor"       // Clinical staff
	RolePatient      Role = "patient"      // Registered patient
	RoleReceptionist Role = "receptionist" // Front desk, booking on behalf of patients
)

// Seniority represents a doctor's seniority grade. Lower rank is more senior.
type Seniority string

const (
	SeniorityChief        Seniority = "chief"
	SenioritySenior       Seniority = "senior"
	SeniorityConsultant   Seniority = "consultant"
	SeniorityPractitioner Seniority = "practitioner"
	SeniorityAny          Seniority = "any"
)

// Rank returns the ordering used by the assignment tie-break:
// chief=1 .. practitioner=4. Unknown grades sort last.
func (s Seniority) Rank() int {
	switch s {
	case SeniorityChief:
		return 1
	case SenioritySenior:
		return 2
	case SeniorityConsultant:
		return 3
	case SeniorityPractitioner:
		return 4
	default:
		return 5
	}
}

// Permission represents a specific action on a resource.
type Permission string

const (
	PermAppointmentCreate  Permission = "appointment.create"
	PermAppointmentRead    Permission = "appointment.read"
	PermAppointmentUpdate  Permission = "appointment.update"
	PermAppointmentCancel  Permission = "appointment.cancel"
	PermAppointmentConfirm Permission = "appointment.confirm"

	PermAvailabilityManage Permission = "availability.manage"
	PermAvailabilityRead   Permission = "availability.read"

	PermReportCreate Permission = "report.create"
	PermReportRead   Permission = "report.read"

	PermReferralCreate Permission = "referral.create"
	PermReferralRead   Permission = "referral.read"

	PermAuditRead Permission = "audit.read"
)

// PermissionTable is an immutable role-to-permission mapping built once at
// startup and injected where authorization decisions are made, instead of
// being consulted as ambient global state.
type PermissionTable map[Role][]Permission

// DefaultPermissions returns the standard table.
func DefaultPermissions() PermissionTable {
	return PermissionTable{
		RoleSuperAdmin: {
			PermAppointmentCreate, PermAppointmentRead, PermAppointmentUpdate,
			PermAppointmentCancel, PermAppointmentConfirm,
			PermAvailabilityManage, PermAvailabilityRead,
			PermReportCreate, PermReportRead,
			PermReferralCreate, PermReferralRead,
			PermAuditRead,
		},
		RoleAdmin: {
			PermAppointmentCreate, PermAppointmentRead, PermAppointmentUpdate,
			PermAppointmentCancel, PermAppointmentConfirm,
			PermAvailabilityManage, PermAvailabilityRead,
			PermReportCreate, PermReportRead,
			PermReferralCreate, PermReferralRead,
			PermAuditRead,
		},
		RoleDoctor: {
			PermAppointmentRead, PermAppointmentUpdate,
			PermAvailabilityManage, PermAvailabilityRead,
			PermReportCreate, PermReportRead,
			PermReferralCreate, PermReferralRead,
		},
		RolePatient: {
			PermAppointmentCreate, PermAppointmentRead, PermAppointmentUpdate,
			PermAppointmentCancel,
			PermAvailabilityRead, PermReportRead,
		},
		RoleReceptionist: {
			PermAppointmentCreate, PermAppointmentRead, PermAppointmentConfirm,
			PermAvailabilityRead,
			PermReferralCreate,
		},
	}
}

// Has checks whether a role carries a permission.
func (t PermissionTable) Has(role Role, perm Permission) bool {
	for _, p := range t[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// IsAdminRole reports whether the role bypasses patient-access policy checks.
func IsAdminRole(role Role) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}
