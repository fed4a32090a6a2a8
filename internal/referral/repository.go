package referral

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Repository provides database operations for referrals
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new referral repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new referral. Uniqueness per (patient, department) is
// checked at write time rather than enforced by the storage layer.
func (r *Repository) Create(ctx context.Context, ref *Referral) error {
	exists, err := r.Exists(ctx, ref.PatientID, ref.DepartmentID)
	if err != nil {
		return err
	}
	if exists {
		return errors.Conflict("patient is already referred to this department")
	}

	query := `
		INSERT INTO referrals (id, patient_id, department_id, referred_by, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err = r.pool.QueryRow(ctx, query,
		ref.ID, ref.PatientID, ref.DepartmentID, ref.ReferredBy, ref.Reason,
	).Scan(&ref.CreatedAt)

	if err != nil {
		return errors.Wrap(err, "failed to create referral")
	}

	return nil
}

// Exists reports whether the (patient, department) grant is present
func (r *Repository) Exists(ctx context.Context, patientID, departmentID types.ID) (bool, error) {
	query := `SELECT 1 FROM referrals WHERE patient_id = $1 AND department_id = $2 LIMIT 1`

	var one int
	err := r.pool.QueryRow(ctx, query, patientID, departmentID).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to check referral")
	}

	return true, nil
}

// ListForPatient returns a patient's referrals, newest first
func (r *Repository) ListForPatient(ctx context.Context, patientID types.ID) ([]Referral, error) {
	query := `
		SELECT id, patient_id, department_id, referred_by, reason, created_at
		FROM referrals
		WHERE patient_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list referrals")
	}
	defer rows.Close()

	var refs []Referral
	for rows.Next() {
		var ref Referral
		if err := rows.Scan(&ref.ID, &ref.PatientID, &ref.DepartmentID,
			&ref.ReferredBy, &ref.Reason, &ref.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan referral")
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}
