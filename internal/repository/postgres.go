package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"patientmon/internal/models"
)

// uniqueViolation is the Postgres SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id                 TEXT PRIMARY KEY,
	first_name         TEXT NOT NULL,
	last_name          TEXT NOT NULL,
	birth_date         DATE NOT NULL,
	normal_temperature NUMERIC(4,1) NOT NULL,
	bp_high            INTEGER NOT NULL,
	bp_low             INTEGER NOT NULL
)`

// Postgres is a Store backed by a patients table.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to dsn with the lib/pq driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgres(db), nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the patients table if needed.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create patients table: %w", err)
	}
	return nil
}

func (p *Postgres) GetByID(ctx context.Context, id string) (models.PatientInfo, error) {
	query := `
		SELECT id, first_name, last_name, birth_date, normal_temperature, bp_high, bp_low
		FROM patients
		WHERE id = $1
	`

	var patient models.PatientInfo
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&patient.ID,
		&patient.FirstName,
		&patient.LastName,
		&patient.BirthDate,
		&patient.HealthInfo.NormalTemperature,
		&patient.HealthInfo.BloodPressure.High,
		&patient.HealthInfo.BloodPressure.Low,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PatientInfo{}, ErrNotFound
	}
	if err != nil {
		return models.PatientInfo{}, fmt.Errorf("query patient: %w", err)
	}
	return patient, nil
}

func (p *Postgres) Add(ctx context.Context, patient models.PatientInfo) (string, error) {
	if err := patient.Validate(); err != nil {
		return "", err
	}
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}

	query := `
		INSERT INTO patients (id, first_name, last_name, birth_date, normal_temperature, bp_high, bp_low)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.db.ExecContext(ctx, query,
		patient.ID,
		patient.FirstName,
		patient.LastName,
		patient.BirthDate,
		patient.HealthInfo.NormalTemperature,
		patient.HealthInfo.BloodPressure.High,
		patient.HealthInfo.BloodPressure.Low,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return "", ErrAlreadyExists
		}
		return "", fmt.Errorf("insert patient: %w", err)
	}
	return patient.ID, nil
}

func (p *Postgres) Update(ctx context.Context, patient models.PatientInfo) error {
	if err := patient.Validate(); err != nil {
		return err
	}
	query := `
		UPDATE patients
		SET first_name = $2, last_name = $3, birth_date = $4,
		    normal_temperature = $5, bp_high = $6, bp_low = $7
		WHERE id = $1
	`

	res, err := p.db.ExecContext(ctx, query,
		patient.ID,
		patient.FirstName,
		patient.LastName,
		patient.BirthDate,
		patient.HealthInfo.NormalTemperature,
		patient.HealthInfo.BloodPressure.High,
		patient.HealthInfo.BloodPressure.Low,
	)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}
