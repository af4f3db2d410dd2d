package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patientmon/internal/models"
)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *Postgres) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewPostgres(db)
}

var patientColumns = []string{
	"id", "first_name", "last_name", "birth_date", "normal_temperature", "bp_high", "bp_low",
}

func TestPostgres_GetByID(t *testing.T) {
	mock, repo := setupMockDB(t)

	birth := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(patientColumns).
		AddRow("1", "Ivan", "Ivanov", birth, "36.6", 120, 80)

	mock.ExpectQuery(`SELECT (.+) FROM patients`).
		WithArgs("1").
		WillReturnRows(rows)

	p, err := repo.GetByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "1", p.ID)
	assert.Equal(t, "Ivan", p.FirstName)
	assert.Equal(t, birth, p.BirthDate)
	assert.Equal(t, "36.6", p.HealthInfo.NormalTemperature.String())
	assert.Equal(t, 120, p.HealthInfo.BloodPressure.High)
	assert.Equal(t, 80, p.HealthInfo.BloodPressure.Low)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetByID_NotFound(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectQuery(`SELECT (.+) FROM patients`).
		WithArgs("404").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "404")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetByID_QueryError(t *testing.T) {
	mock, repo := setupMockDB(t)

	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT (.+) FROM patients`).
		WithArgs("1").
		WillReturnError(boom)

	_, err := repo.GetByID(context.Background(), "1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPostgres_Add(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectExec(`INSERT INTO patients`).
		WithArgs("1", "Ivan", "Ivanov", sqlmock.AnyArg(), sqlmock.AnyArg(), 120, 80).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.Add(context.Background(), testPatient("1"))
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Add_GeneratesID(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectExec(`INSERT INTO patients`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.Add(context.Background(), testPatient(""))
	require.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestPostgres_Add_Duplicate(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectExec(`INSERT INTO patients`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	_, err := repo.Add(context.Background(), testPatient("1"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestPostgres_RejectsUnstorableBaseline(t *testing.T) {
	mock, repo := setupMockDB(t)

	// NUMERIC(4,1) would round 36.65; nothing must reach the database
	p := testPatient("1")
	p.HealthInfo.NormalTemperature = decimal.RequireFromString("36.65")
	_, err := repo.Add(context.Background(), p)
	assert.ErrorIs(t, err, models.ErrTemperatureScale)

	p.HealthInfo.NormalTemperature = decimal.RequireFromString("1000")
	assert.ErrorIs(t, repo.Update(context.Background(), p), models.ErrTemperatureRange)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Update(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectExec(`UPDATE patients`).
		WithArgs("1", "Ivan", "Ivanov", sqlmock.AnyArg(), sqlmock.AnyArg(), 120, 80).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), testPatient("1")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Update_NotFound(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectExec(`UPDATE patients`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Update(context.Background(), testPatient("1")), ErrNotFound)
}

func TestPostgres_EnsureSchema(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS patients`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
