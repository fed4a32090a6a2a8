package his

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-health/platform/internal/shared/types"
)

// PatientStore persists imported patients into the local projection
type PatientStore interface {
	UpsertPatient(ctx context.Context, record PatientRecord, departmentCode string) (types.ID, error)
}

// Importer folds admission events into the local patient projection
type Importer struct {
	store PatientStore
}

// NewImporter creates an importer on top of a patient store
func NewImporter(store PatientStore) *Importer {
	return &Importer{store: store}
}

// Run attaches the importer to the adapter's admission stream
func (i *Importer) Run(ctx context.Context, adapter *Adapter) {
	adapter.SubscribeAdmissions(ctx, i.HandleAdmission)
}

// HandleAdmission upserts the admitted patient. Deceased patients are
// skipped; only demographics cross the boundary, never clinical data.
func (i *Importer) HandleAdmission(ctx context.Context, event AdmissionEvent) error {
	if event.Patient.Deceased {
		return nil
	}
	if event.Patient.MRN == "" {
		return fmt.Errorf("admission %s has no patient MRN", event.AdmissionID)
	}

	id, err := i.store.UpsertPatient(ctx, event.Patient, event.DepartmentCode)
	if err != nil {
		return fmt.Errorf("failed to upsert patient %s: %w", event.Patient.MRN, err)
	}

	log.Printf("his: imported patient %s (admission %s) as %s",
		event.Patient.MRN, event.AdmissionID, id)
	return nil
}

// ImportEmail returns the email the local account is keyed on. The legacy
// system often has none, so a synthetic address derived from the MRN keeps
// the unique constraint satisfied.
func ImportEmail(record PatientRecord) string {
	if record.Email != "" {
		return strings.ToLower(record.Email)
	}
	return strings.ToLower(record.MRN) + "@his.import.local"
}

// PgStore writes imported patients into the users projection table
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a Postgres-backed patient store
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// UpsertPatient inserts or refreshes a patient account keyed by email.
// The department code from the admission becomes the patient's primary
// department when it resolves locally; an unknown code leaves it unset.
func (s *PgStore) UpsertPatient(ctx context.Context, record PatientRecord, departmentCode string) (types.ID, error) {
	var departmentID *types.ID
	if departmentCode != "" {
		var id types.ID
		err := s.pool.QueryRow(ctx,
			`SELECT id FROM departments WHERE code = $1 AND is_active = TRUE`,
			departmentCode).Scan(&id)
		switch {
		case err == nil:
			departmentID = &id
		case err != pgx.ErrNoRows:
			return "", fmt.Errorf("failed to resolve department %s: %w", departmentCode, err)
		}
	}

	var id types.ID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, role, first_name, last_name, email, primary_department_id, is_active)
		VALUES ($1, 'patient', $2, $3, $4, $5, TRUE)
		ON CONFLICT (email) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			primary_department_id = COALESCE(EXCLUDED.primary_department_id, users.primary_department_id),
			updated_at = NOW()
		RETURNING id`,
		types.NewID(), record.FirstName, record.LastName, ImportEmail(record), departmentID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert patient: %w", err)
	}

	return id, nil
}
