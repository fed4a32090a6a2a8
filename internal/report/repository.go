package report

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Repository provides database operations for reports
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new report repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new report
func (r *Repository) Create(ctx context.Context, rep *Report) error {
	query := `
		INSERT INTO reports (id, patient_id, doctor_id, appointment_id, title, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		rep.ID, rep.PatientID, rep.DoctorID, rep.AppointmentID, rep.Title, rep.Body,
	).Scan(&rep.CreatedAt, &rep.UpdatedAt)

	if err != nil {
		return errors.Wrap(err, "failed to create report")
	}

	return nil
}

// Get retrieves a report by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*Report, error) {
	query := `
		SELECT id, patient_id, doctor_id, appointment_id, title, body, created_at, updated_at
		FROM reports
		WHERE id = $1`

	rep := &Report{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rep.ID, &rep.PatientID, &rep.DoctorID, &rep.AppointmentID,
		&rep.Title, &rep.Body, &rep.CreatedAt, &rep.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("report", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get report")
	}

	return rep, nil
}

// ListForPatient returns a patient's reports, newest first
func (r *Repository) ListForPatient(ctx context.Context, patientID types.ID) ([]Report, error) {
	query := `
		SELECT id, patient_id, doctor_id, appointment_id, title, body, created_at, updated_at
		FROM reports
		WHERE patient_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reports")
	}
	defer rows.Close()

	var reps []Report
	for rows.Next() {
		var rep Report
		if err := rows.Scan(&rep.ID, &rep.PatientID, &rep.DoctorID, &rep.AppointmentID,
			&rep.Title, &rep.Body, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan report")
		}
		reps = append(reps, rep)
	}

	return reps, rows.Err()
}
