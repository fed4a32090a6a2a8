package his

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/meridian-health/platform/internal/shared/config"
)

const eventBufferSize = 100

// Adapter polls the legacy MSSQL database for patients and admissions.
// The legacy schema is read-only for us; there is no change feed, so the
// adapter keeps a poll cursor on the LastModified / AdmittedAt columns.
type Adapter struct {
	cfg config.HISConfig
	db  *sql.DB

	admissions chan AdmissionEvent

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	lastPoll time.Time
	wg       sync.WaitGroup
}

// New creates a HIS adapter from configuration
func New(cfg config.HISConfig) *Adapter {
	return &Adapter{
		cfg:        cfg,
		admissions: make(chan AdmissionEvent, eventBufferSize),
	}
}

// Start opens the MSSQL connection and begins polling
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("his adapter already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s;encrypt=disable",
		a.cfg.Host, a.cfg.Port, a.cfg.Database, a.cfg.User, a.cfg.Password)

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open HIS database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping HIS database: %w", err)
	}

	a.db = db
	a.running = true
	a.lastPoll = time.Now().Add(-a.cfg.PollInterval)

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	return nil
}

// Stop halts polling, waits for in-flight work and closes the connection
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(a.admissions)
	if a.db != nil {
		a.db.Close()
	}
	a.running = false
	return nil
}

// Health checks legacy database connectivity
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.running {
		return fmt.Errorf("his adapter not running")
	}
	return a.db.PingContext(ctx)
}

// Admissions exposes the admission event stream. The channel closes when
// the adapter stops.
func (a *Adapter) Admissions() <-chan AdmissionEvent {
	return a.admissions
}

// SubscribeAdmissions runs the handler for every admission until ctx ends
func (a *Adapter) SubscribeAdmissions(ctx context.Context, handler AdmissionHandler) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-a.admissions:
				if !ok {
					return
				}
				if err := handler(ctx, event); err != nil {
					log.Printf("his: admission handler failed for %s: %v", event.AdmissionID, err)
				}
			}
		}
	}()
}

// FetchPatient retrieves one patient by medical record number
func (a *Adapter) FetchPatient(ctx context.Context, mrn string) (*PatientRecord, error) {
	if !a.isConnected() {
		return nil, fmt.Errorf("his adapter not connected")
	}

	const query = `
		SELECT MRN, FirstName, LastName, DateOfBirth, Gender,
		       Phone, Email, IsDeceased, DeceasedDate, LastModified
		FROM dbo.Patients
		WHERE MRN = @mrn`

	record, err := scanPatient(a.db.QueryRowContext(ctx, query, sql.Named("mrn", mrn)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("patient not found: %s", mrn)
		}
		return nil, fmt.Errorf("failed to fetch patient: %w", err)
	}
	return record, nil
}

func (a *Adapter) isConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running && a.db != nil
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			since := a.lastPoll
			a.lastPoll = time.Now()
			a.mu.Unlock()

			if err := a.pollAdmissions(ctx, since); err != nil {
				log.Printf("his: admission poll failed: %v", err)
			}
		}
	}
}

func (a *Adapter) pollAdmissions(ctx context.Context, since time.Time) error {
	const query = `
		SELECT adm.AdmissionID, adm.DepartmentCode, adm.AdmittedAt, adm.AdmissionType,
		       p.MRN, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
		       p.Phone, p.Email, p.IsDeceased, p.DeceasedDate, p.LastModified
		FROM dbo.Admissions adm
		JOIN dbo.Patients p ON p.PatientID = adm.PatientID
		WHERE adm.AdmittedAt > @since
		ORDER BY adm.AdmittedAt`

	rows, err := a.db.QueryContext(ctx, query, sql.Named("since", since))
	if err != nil {
		return fmt.Errorf("failed to query admissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var event AdmissionEvent
		var admType, phone, email sql.NullString
		var deceased sql.NullBool
		var deceasedAt sql.NullTime

		err := rows.Scan(
			&event.AdmissionID,
			&event.DepartmentCode,
			&event.AdmittedAt,
			&admType,
			&event.Patient.MRN,
			&event.Patient.FirstName,
			&event.Patient.LastName,
			&event.Patient.DateOfBirth,
			&event.Patient.Gender,
			&phone,
			&email,
			&deceased,
			&deceasedAt,
			&event.Patient.LastModified,
		)
		if err != nil {
			return fmt.Errorf("failed to scan admission: %w", err)
		}

		event.AdmissionType = admType.String
		event.Patient.Phone = phone.String
		event.Patient.Email = email.String
		event.Patient.Deceased = deceased.Valid && deceased.Bool
		if deceasedAt.Valid {
			event.Patient.DeceasedAt = &deceasedAt.Time
		}
		event.Patient.SourceSystem = "his"

		select {
		case a.admissions <- event:
		default:
			// Slow consumer; drop rather than stall the poll
			log.Printf("his: admission buffer full, dropping event %s", event.AdmissionID)
		}
	}

	return rows.Err()
}

func scanPatient(row *sql.Row) (*PatientRecord, error) {
	var record PatientRecord
	var phone, email sql.NullString
	var deceased sql.NullBool
	var deceasedAt sql.NullTime

	err := row.Scan(
		&record.MRN,
		&record.FirstName,
		&record.LastName,
		&record.DateOfBirth,
		&record.Gender,
		&phone,
		&email,
		&deceased,
		&deceasedAt,
		&record.LastModified,
	)
	if err != nil {
		return nil, err
	}

	record.Phone = phone.String
	record.Email = email.String
	record.Deceased = deceased.Valid && deceased.Bool
	if deceasedAt.Valid {
		record.DeceasedAt = &deceasedAt.Time
	}
	record.SourceSystem = "his"
	return &record, nil
}
