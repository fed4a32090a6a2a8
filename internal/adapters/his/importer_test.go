package his

import (
	"context"
	"testing"
	"time"

	"github.com/meridian-health/platform/internal/shared/types"
)

type fakeStore struct {
	upserts []struct {
		record         PatientRecord
		departmentCode string
	}
}

func (f *fakeStore) UpsertPatient(_ context.Context, record PatientRecord, departmentCode string) (types.ID, error) {
	f.upserts = append(f.upserts, struct {
		record         PatientRecord
		departmentCode string
	}{record, departmentCode})
	return types.NewID(), nil
}

func admission(mrn string) AdmissionEvent {
	return AdmissionEvent{
		AdmissionID:    "ADM-1",
		DepartmentCode: "CARD",
		AdmittedAt:     time.Now(),
		Patient: PatientRecord{
			MRN:       mrn,
			FirstName: "Mira",
			LastName:  "Petrova",
			Email:     "Mira.Petrova@example.com",
		},
	}
}

func TestHandleAdmissionUpserts(t *testing.T) {
	store := &fakeStore{}
	imp := NewImporter(store)

	if err := imp.HandleAdmission(context.Background(), admission("MRN-42")); err != nil {
		t.Fatalf("HandleAdmission: %v", err)
	}

	if len(store.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(store.upserts))
	}
	if store.upserts[0].record.MRN != "MRN-42" {
		t.Errorf("unexpected MRN %s", store.upserts[0].record.MRN)
	}
	if store.upserts[0].departmentCode != "CARD" {
		t.Errorf("unexpected department code %s", store.upserts[0].departmentCode)
	}
}

func TestHandleAdmissionSkipsDeceased(t *testing.T) {
	store := &fakeStore{}
	imp := NewImporter(store)

	event := admission("MRN-43")
	event.Patient.Deceased = true

	if err := imp.HandleAdmission(context.Background(), event); err != nil {
		t.Fatalf("HandleAdmission: %v", err)
	}
	if len(store.upserts) != 0 {
		t.Errorf("deceased patient should not be imported")
	}
}

func TestHandleAdmissionRequiresMRN(t *testing.T) {
	imp := NewImporter(&fakeStore{})

	event := admission("")
	if err := imp.HandleAdmission(context.Background(), event); err == nil {
		t.Error("expected error for missing MRN")
	}
}

func TestImportEmail(t *testing.T) {
	tests := []struct {
		name   string
		record PatientRecord
		want   string
	}{
		{"lowercases source email", PatientRecord{MRN: "MRN-1", Email: "Ana@Example.Com"}, "ana@example.com"},
		{"synthesizes from MRN", PatientRecord{MRN: "MRN-7"}, "mrn-7@his.import.local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ImportEmail(tt.record); got != tt.want {
				t.Errorf("ImportEmail() = %s, want %s", got, tt.want)
			}
		})
	}
}
