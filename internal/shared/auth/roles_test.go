package auth

import "testing"

func TestSeniorityRank(t *testing.T) {
	tests := []struct {
		seniority Seniority
		rank      int
	}{
		{SeniorityChief, 1},
		{SenioritySenior, 2},
		{SeniorityConsultant, 3},
		{SeniorityPractitioner, 4},
		{Seniority("intern"), 5},
		{SeniorityAny, 5},
	}

	for _, tt := range tests {
		t.Run(string(tt.seniority), func(t *testing.T) {
			if got := tt.seniority.Rank(); got != tt.rank {
				t.Errorf("Rank() = %d, want %d", got, tt.rank)
			}
		})
	}
}

func TestSeniorityOrdering(t *testing.T) {
	if SeniorityChief.Rank() >= SenioritySenior.Rank() {
		t.Error("chief should outrank senior")
	}
	if SenioritySenior.Rank() >= SeniorityConsultant.Rank() {
		t.Error("senior should outrank consultant")
	}
	if SeniorityConsultant.Rank() >= SeniorityPractitioner.Rank() {
		t.Error("consultant should outrank practitioner")
	}
}

func TestDefaultPermissions(t *testing.T) {
	table := DefaultPermissions()

	tests := []struct {
		name    string
		role    Role
		perm    Permission
		allowed bool
	}{
		{"patient books", RolePatient, PermAppointmentCreate, true},
		{"patient cannot confirm", RolePatient, PermAppointmentConfirm, false},
		{"doctor manages availability", RoleDoctor, PermAvailabilityManage, true},
		{"doctor writes reports", RoleDoctor, PermReportCreate, true},
		{"doctor cannot read audit", RoleDoctor, PermAuditRead, false},
		{"admin confirms", RoleAdmin, PermAppointmentConfirm, true},
		{"admin writes reports", RoleAdmin, PermReportCreate, true},
		{"receptionist books", RoleReceptionist, PermAppointmentCreate, true},
		{"receptionist confirms", RoleReceptionist, PermAppointmentConfirm, true},
		{"receptionist refers", RoleReceptionist, PermReferralCreate, true},
		{"receptionist cannot cancel", RoleReceptionist, PermAppointmentCancel, false},
		{"doctor cannot book", RoleDoctor, PermAppointmentCreate, false},
		{"unknown role denied", Role("visitor"), PermAppointmentRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.Has(tt.role, tt.perm); got != tt.allowed {
				t.Errorf("Has(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.allowed)
			}
		})
	}
}

func TestIsAdminRole(t *testing.T) {
	if !IsAdminRole(RoleAdmin) || !IsAdminRole(RoleSuperAdmin) {
		t.Error("admin and super_admin should be admin roles")
	}
	if IsAdminRole(RoleDoctor) || IsAdminRole(RolePatient) {
		t.Error("doctor and patient are not admin roles")
	}
}
