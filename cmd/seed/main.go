// Command seed fills the database with a demo dataset: departments,
// doctors with seniority grades, patients, bookable services and weekly
// availability slots.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/config"
	"github.com/meridian-health/platform/internal/shared/database"
	"github.com/meridian-health/platform/internal/shared/types"
)

var departments = []struct {
	code string
	name string
}{
	{"CARD", "Cardiology"},
	{"NEUR", "Neurology"},
	{"ORTH", "Orthopedics"},
	{"PEDS", "Pediatrics"},
	{"DERM", "Dermatology"},
	{"GENM", "General Medicine"},
}

var seniorities = []auth.Seniority{
	auth.SeniorityChief,
	auth.SenioritySenior,
	auth.SeniorityConsultant,
	auth.SeniorityPractitioner,
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	deptIDs, err := seedDepartments(ctx, db.Pool)
	if err != nil {
		log.Fatalf("seed departments: %v", err)
	}
	if err := seedServices(ctx, db.Pool, deptIDs); err != nil {
		log.Fatalf("seed services: %v", err)
	}

	doctorIDs, err := seedDoctors(ctx, db.Pool, deptIDs, 4)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(ctx, db.Pool, deptIDs, 200); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAdmins(ctx, db.Pool); err != nil {
		log.Fatalf("seed admins: %v", err)
	}
	if err := seedSlots(ctx, db.Pool, doctorIDs); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedDepartments(ctx context.Context, pool *pgxpool.Pool) (map[string]types.ID, error) {
	log.Printf("seeding %d departments", len(departments))

	ids := make(map[string]types.ID, len(departments))
	for _, dept := range departments {
		id := types.NewID()
		_, err := pool.Exec(ctx, `
			INSERT INTO departments (id, code, name)
			VALUES ($1, $2, $3)
			ON CONFLICT (code) DO NOTHING
		`, id, dept.code, dept.name)
		if err != nil {
			return nil, err
		}

		// Re-read in case the department already existed
		if err := pool.QueryRow(ctx,
			`SELECT id FROM departments WHERE code = $1`, dept.code).Scan(&id); err != nil {
			return nil, err
		}
		ids[dept.code] = id
	}

	return ids, nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool, deptIDs map[string]types.ID) error {
	services := []struct {
		dept     string
		name     string
		duration int
	}{
		{"CARD", "Cardiology Consultation", 30},
		{"CARD", "ECG with Interpretation", 20},
		{"NEUR", "Neurology Consultation", 45},
		{"ORTH", "Orthopedic Examination", 30},
		{"PEDS", "Pediatric Checkup", 20},
		{"DERM", "Skin Examination", 15},
		{"GENM", "General Consultation", 30},
		{"GENM", "Annual Physical", 60},
	}

	log.Printf("seeding %d services", len(services))

	for _, svc := range services {
		_, err := pool.Exec(ctx, `
			INSERT INTO services (id, department_id, name, duration_minutes)
			SELECT $1, $2, $3, $4
			WHERE NOT EXISTS (SELECT 1 FROM services WHERE name = $3)
		`, types.NewID(), deptIDs[svc.dept], svc.name, svc.duration)
		if err != nil {
			return err
		}
	}

	return nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, deptIDs map[string]types.ID, perDept int) ([]types.ID, error) {
	log.Printf("seeding %d doctors per department", perDept)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var doctorIDs []types.ID
	for _, dept := range departments {
		for i := 0; i < perDept; i++ {
			var id types.ID
			seniority := seniorities[i%len(seniorities)]

			// Upsert keyed on the deterministic email so re-runs keep
			// the existing account and its slots.
			err := tx.QueryRow(ctx, `
				INSERT INTO users (id, role, first_name, last_name, email, department_id, seniority)
				VALUES ($1, 'doctor', $2, $3, $4, $5, $6)
				ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
				RETURNING id
			`, types.NewID(), gofakeit.FirstName(), gofakeit.LastName(),
				fmt.Sprintf("doctor.%s.%d@meridian.example", dept.code, i), deptIDs[dept.code], seniority,
			).Scan(&id)
			if err != nil {
				return nil, err
			}
			doctorIDs = append(doctorIDs, id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Printf("doctors seeded: %d", len(doctorIDs))
	return doctorIDs, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, deptIDs map[string]types.ID, count int) error {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		dept := departments[gofakeit.Number(0, len(departments)-1)]
		primary := deptIDs[dept.code]

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, role, first_name, last_name, email, primary_department_id)
			VALUES ($1, 'patient', $2, $3, $4, $5)
			ON CONFLICT (email) DO NOTHING
		`, types.NewID(), gofakeit.FirstName(), gofakeit.LastName(),
			fmt.Sprintf("patient.%d@meridian.example", i), primary)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedAdmins(ctx context.Context, pool *pgxpool.Pool) error {
	admins := []struct {
		role  auth.Role
		email string
	}{
		{auth.RoleSuperAdmin, "superadmin@meridian.example"},
		{auth.RoleAdmin, "admin@meridian.example"},
		{auth.RoleReceptionist, "reception@meridian.example"},
	}

	for _, a := range admins {
		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, role, first_name, last_name, email)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (email) DO NOTHING
		`, types.NewID(), a.role, gofakeit.FirstName(), gofakeit.LastName(), a.email)
		if err != nil {
			return err
		}
	}

	return nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctorIDs []types.ID) error {
	log.Printf("seeding weekly slots for %d doctors", len(doctorIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctorIDs {
		var hasSlots bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM availability_slots WHERE doctor_id = $1)`,
			doctorID).Scan(&hasSlots); err != nil {
			return err
		}
		if hasSlots {
			continue
		}

		// Three working days per doctor, morning and afternoon blocks
		for _, day := range []string{weekdays[0], weekdays[2], weekdays[4]} {

			for _, block := range []struct{ start, end string }{
				{"09:00", "12:00"},
				{"13:00", "17:00"},
			} {
				_, err := tx.Exec(ctx, `
					INSERT INTO availability_slots (id, doctor_id, day_of_week, start_time, end_time)
					VALUES ($1, $2, $3, $4, $5)
				`, types.NewID(), doctorID, day, block.start, block.end)
				if err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}
