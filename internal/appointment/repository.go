package appointment

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-health/platform/internal/availability"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same repository methods run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides database operations for appointments and their history
type Repository struct {
	db   querier
	pool *pgxpool.Pool
}

// NewRepository creates a new appointment repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// Transact runs fn against a store bound to a single transaction,
// committing on success and rolling back on error or panic.
func (r *Repository) Transact(ctx context.Context, fn func(Store) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(&Repository{db: tx, pool: r.pool}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

const appointmentColumns = `id, patient_id, doctor_id, service_id, start_time, end_time,
	status, notes, reason, consultation_notes,
	cancellation_reason, cancelled_at, cancelled_by,
	rescheduled_from, rescheduled_to, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	appt := &Appointment{}
	err := row.Scan(
		&appt.ID, &appt.PatientID, &appt.DoctorID, &appt.ServiceID,
		&appt.StartTime, &appt.EndTime, &appt.Status,
		&appt.Notes, &appt.Reason, &appt.ConsultationNotes,
		&appt.CancellationReason, &appt.CancelledAt, &appt.CancelledBy,
		&appt.RescheduledFrom, &appt.RescheduledTo,
		&appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// isOverlapViolation reports whether the error is the exclusion constraint
// rejecting an overlapping doctor booking. SQLSTATE 23P01 is
// exclusion_violation.
func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23P01"
}

// Create inserts a new appointment. An overlap rejected by the database
// constraint surfaces as Conflict, so the second of two racing bookings
// fails here even if it passed the application-level check.
func (r *Repository) Create(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, service_id, start_time, end_time,
			status, notes, reason, consultation_notes,
			rescheduled_from
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		appt.ID, appt.PatientID, appt.DoctorID, appt.ServiceID,
		appt.StartTime, appt.EndTime, appt.Status,
		appt.Notes, appt.Reason, appt.ConsultationNotes,
		appt.RescheduledFrom,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)

	if isOverlapViolation(err) {
		return errors.Conflict("doctor already has an appointment in this time window")
	}
	if err != nil {
		return errors.Wrap(err, "failed to create appointment")
	}

	return nil
}

// Get retrieves an appointment by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("appointment", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get appointment")
	}

	return appt, nil
}

// Update persists the mutable fields of an appointment
func (r *Repository) Update(ctx context.Context, appt *Appointment) error {
	query := `
		UPDATE appointments SET
			doctor_id = $2, start_time = $3, end_time = $4, status = $5,
			notes = $6, reason = $7, consultation_notes = $8,
			cancellation_reason = $9, cancelled_at = $10, cancelled_by = $11,
			rescheduled_to = $12, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		appt.ID, appt.DoctorID, appt.StartTime, appt.EndTime, appt.Status,
		appt.Notes, appt.Reason, appt.ConsultationNotes,
		appt.CancellationReason, appt.CancelledAt, appt.CancelledBy,
		appt.RescheduledTo,
	)

	if isOverlapViolation(err) {
		return errors.Conflict("doctor already has an appointment in this time window")
	}
	if err != nil {
		return errors.Wrap(err, "failed to update appointment")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("appointment", appt.ID.String())
	}

	return nil
}

// List returns appointments ordered by start time
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []any{}
	argN := 0

	addArg := func(clause string, value any) {
		argN++
		query += fmt.Sprintf(" AND "+clause, argN)
		args = append(args, value)
	}

	if filter.PatientID != nil {
		addArg("patient_id = $%d", *filter.PatientID)
	}
	if filter.DoctorID != nil {
		addArg("doctor_id = $%d", *filter.DoctorID)
	}
	if filter.Status != nil {
		addArg("status = $%d", *filter.Status)
	}
	if filter.From != nil {
		addArg("start_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		addArg("start_time < $%d", *filter.To)
	}

	query += " ORDER BY start_time"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list appointments")
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan appointment")
		}
		appts = append(appts, *appt)
	}

	return appts, rows.Err()
}

// FindConflict returns a pending/confirmed appointment of the given doctor
// or patient overlapping [start, end), or nil when the window is free.
// excludeID skips the appointment being modified.
func (r *Repository) FindConflict(ctx context.Context, entity EntityType, entityID types.ID, start, end time.Time, excludeID types.ID) (*Appointment, error) {
	column := "doctor_id"
	if entity == EntityPatient {
		column = "patient_id"
	}

	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + column + ` = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $3 AND end_time > $2`
	args := []any{entityID, start, end}

	if !excludeID.IsZero() {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}

	query += " ORDER BY start_time LIMIT 1"

	appt, err := scanAppointment(r.db.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to check for conflicts")
	}

	return appt, nil
}

// CountConflicts counts pending/confirmed appointments of a doctor
// overlapping [start, end). Used by the assignment engine's conflict
// scoring stage.
func (r *Repository) CountConflicts(ctx context.Context, doctorID types.ID, start, end time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $3 AND end_time > $2`

	var count int
	if err := r.db.QueryRow(ctx, query, doctorID, start, end).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count conflicts")
	}

	return count, nil
}

// ListBusyIntervals reports a doctor's occupied windows in [from, to).
// Implements the availability package's BusyLookup.
func (r *Repository) ListBusyIntervals(ctx context.Context, doctorID types.ID, from, to time.Time) ([]availability.BusyInterval, error) {
	query := `
		SELECT start_time, end_time
		FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $3 AND end_time > $2
		ORDER BY start_time`

	rows, err := r.db.Query(ctx, query, doctorID, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list busy intervals")
	}
	defer rows.Close()

	var busy []availability.BusyInterval
	for rows.Next() {
		var b availability.BusyInterval
		if err := rows.Scan(&b.Start, &b.End); err != nil {
			return nil, errors.Wrap(err, "failed to scan busy interval")
		}
		busy = append(busy, b)
	}

	return busy, rows.Err()
}

// HasAppointmentBetween reports whether any appointment row links the
// doctor and the patient, in any status. Backs the treated-patient
// exception of the access policy.
func (r *Repository) HasAppointmentBetween(ctx context.Context, doctorID, patientID types.ID) (bool, error) {
	query := `SELECT 1 FROM appointments WHERE doctor_id = $1 AND patient_id = $2 LIMIT 1`

	var one int
	err := r.db.QueryRow(ctx, query, doctorID, patientID).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to check treatment relationship")
	}

	return true, nil
}

// AppendHistory writes one history record. The table is append-only; a
// database trigger rejects updates and deletes.
func (r *Repository) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	query := `
		INSERT INTO appointment_history (id, appointment_id, action, details, actor_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		entry.ID, entry.AppointmentID, entry.Action, entry.Details, entry.ActorID,
	).Scan(&entry.CreatedAt)

	if err != nil {
		return errors.Wrap(err, "failed to append history")
	}

	return nil
}

// ListHistory returns an appointment's history in creation order
func (r *Repository) ListHistory(ctx context.Context, appointmentID types.ID) ([]HistoryEntry, error) {
	query := `
		SELECT id, appointment_id, action, details, actor_id, created_at
		FROM appointment_history
		WHERE appointment_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, appointmentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list history")
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.AppointmentID, &entry.Action,
			&entry.Details, &entry.ActorID, &entry.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan history entry")
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
