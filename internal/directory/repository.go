package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Repository provides database operations for the directory
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new directory repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, role, first_name, last_name, email, department_id,
	primary_department_id, seniority, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	var seniority *string
	err := row.Scan(
		&user.ID, &user.Role, &user.FirstName, &user.LastName, &user.Email,
		&user.DepartmentID, &user.PrimaryDepartmentID, &seniority,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if seniority != nil {
		user.Seniority = auth.Seniority(*seniority)
	}
	return user, nil
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, id types.ID) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}

	return user, nil
}

// GetDoctor retrieves a user and verifies it holds the doctor role
func (r *Repository) GetDoctor(ctx context.Context, id types.ID) (*User, error) {
	user, err := r.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsDoctor() {
		return nil, errors.NotFound("doctor", id.String())
	}
	return user, nil
}

// ListDoctors lists doctors with optional filters, most senior first
func (r *Repository) ListDoctors(ctx context.Context, filter ListDoctorsFilter) ([]User, error) {
	conditions := []string{"role = 'doctor'"}
	var args []interface{}
	argNum := 1

	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = TRUE")
	}

	if filter.DepartmentID != nil {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", argNum))
		args = append(args, *filter.DepartmentID)
		argNum++
	}

	if filter.Seniority != nil && *filter.Seniority != auth.SeniorityAny {
		conditions = append(conditions, fmt.Sprintf("seniority = $%d", argNum))
		args = append(args, *filter.Seniority)
		argNum++
	}

	query := fmt.Sprintf(`
		SELECT %s FROM users
		WHERE %s
		ORDER BY last_name, first_name`, userColumns, strings.Join(conditions, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list doctors")
	}
	defer rows.Close()

	var doctors []User
	for rows.Next() {
		doctor, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan doctor")
		}
		doctors = append(doctors, *doctor)
	}

	return doctors, nil
}

// GetDepartment retrieves a department by ID
func (r *Repository) GetDepartment(ctx context.Context, id types.ID) (*Department, error) {
	query := `
		SELECT id, code, name, is_active, created_at, updated_at
		FROM departments
		WHERE id = $1`

	dept := &Department{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&dept.ID, &dept.Code, &dept.Name, &dept.IsActive, &dept.CreatedAt, &dept.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("department", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get department")
	}

	return dept, nil
}

// ListDepartments lists active departments ordered by name
func (r *Repository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, is_active, created_at, updated_at
		FROM departments
		WHERE is_active = TRUE
		ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list departments")
	}
	defer rows.Close()

	var departments []Department
	for rows.Next() {
		var dept Department
		if err := rows.Scan(&dept.ID, &dept.Code, &dept.Name, &dept.IsActive, &dept.CreatedAt, &dept.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan department")
		}
		departments = append(departments, dept)
	}

	return departments, nil
}

// GetService retrieves a service by ID
func (r *Repository) GetService(ctx context.Context, id types.ID) (*Service, error) {
	query := `
		SELECT id, department_id, name, duration_minutes, is_active, created_at, updated_at
		FROM services
		WHERE id = $1`

	svc := &Service{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&svc.ID, &svc.DepartmentID, &svc.Name, &svc.DurationMinutes,
		&svc.IsActive, &svc.CreatedAt, &svc.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("service", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get service")
	}

	return svc, nil
}

// ListServices lists active services, optionally for one department
func (r *Repository) ListServices(ctx context.Context, departmentID *types.ID) ([]Service, error) {
	query := `
		SELECT id, department_id, name, duration_minutes, is_active, created_at, updated_at
		FROM services
		WHERE is_active = TRUE`
	var args []interface{}

	if departmentID != nil {
		query += ` AND department_id = $1`
		args = append(args, *departmentID)
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list services")
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var svc Service
		err := rows.Scan(
			&svc.ID, &svc.DepartmentID, &svc.Name, &svc.DurationMinutes,
			&svc.IsActive, &svc.CreatedAt, &svc.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan service")
		}
		services = append(services, svc)
	}

	return services, nil
}
