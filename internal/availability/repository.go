package availability

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Repository provides database operations for availability slots
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new availability repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const slotColumns = `id, doctor_id, day_of_week, slot_date, start_time, end_time,
	is_active, notes, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	slot := &Slot{}
	var day *string
	err := row.Scan(
		&slot.ID, &slot.DoctorID, &day, &slot.Date, &slot.StartTime, &slot.EndTime,
		&slot.IsActive, &slot.Notes, &slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if day != nil {
		w := Weekday(*day)
		slot.DayOfWeek = &w
	}
	return slot, nil
}

// Create inserts a slot
func (r *Repository) Create(ctx context.Context, slot *Slot) error {
	query := `
		INSERT INTO availability_slots (
			id, doctor_id, day_of_week, slot_date, start_time, end_time, is_active, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var day *string
	if slot.DayOfWeek != nil {
		s := string(*slot.DayOfWeek)
		day = &s
	}

	_, err := r.pool.Exec(ctx, query,
		slot.ID, slot.DoctorID, day, slot.Date, slot.StartTime, slot.EndTime,
		slot.IsActive, slot.Notes,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create availability slot")
	}

	return nil
}

// Get retrieves a slot by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*Slot, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_slots WHERE id = $1`, slotColumns)

	slot, err := scanSlot(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("availability slot", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get availability slot")
	}

	return slot, nil
}

// Update rewrites a slot
func (r *Repository) Update(ctx context.Context, slot *Slot) error {
	query := `
		UPDATE availability_slots SET
			day_of_week = $2, slot_date = $3, start_time = $4, end_time = $5,
			is_active = $6, notes = $7, updated_at = NOW()
		WHERE id = $1`

	var day *string
	if slot.DayOfWeek != nil {
		s := string(*slot.DayOfWeek)
		day = &s
	}

	result, err := r.pool.Exec(ctx, query,
		slot.ID, day, slot.Date, slot.StartTime, slot.EndTime, slot.IsActive, slot.Notes,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update availability slot")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("availability slot", slot.ID.String())
	}

	return nil
}

// Delete removes a slot
func (r *Repository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM availability_slots WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete availability slot")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("availability slot", id.String())
	}

	return nil
}

// ListForDoctor lists a doctor's slots ordered by start time
func (r *Repository) ListForDoctor(ctx context.Context, doctorID types.ID, filter ListSlotsFilter) ([]Slot, error) {
	conditions := []string{"doctor_id = $1"}
	args := []interface{}{doctorID}
	argNum := 2

	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = TRUE")
	}

	if filter.Date != nil {
		// A date filter matches both the override for that date and the
		// recurring slots on its weekday.
		conditions = append(conditions, fmt.Sprintf("(slot_date = $%d OR day_of_week = $%d)", argNum, argNum+1))
		args = append(args, *filter.Date, string(WeekdayOf(*filter.Date)))
		argNum += 2
	} else if filter.DayOfWeek != nil {
		// A weekday filter matches the recurring slots on that day and any
		// date override falling on it, so weekly and one-off slots are
		// checked against each other in both directions.
		conditions = append(conditions, fmt.Sprintf("(day_of_week = $%d OR EXTRACT(ISODOW FROM slot_date) = $%d)", argNum, argNum+1))
		args = append(args, string(*filter.DayOfWeek), filter.DayOfWeek.ISODow())
		argNum += 2
	}

	query := fmt.Sprintf(`
		SELECT %s FROM availability_slots
		WHERE %s
		ORDER BY start_time`, slotColumns, strings.Join(conditions, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list availability slots")
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan availability slot")
		}
		slots = append(slots, *slot)
	}

	return slots, nil
}
