package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// BloodPressure is a systolic/diastolic pair.
type BloodPressure struct {
	High int `json:"high"`
	Low  int `json:"low"`
}

// Equal reports whether both components match.
func (bp BloodPressure) Equal(other BloodPressure) bool {
	return bp.High == other.High && bp.Low == other.Low
}

// HealthInfo is a patient's normal (baseline) reading.
type HealthInfo struct {
	NormalTemperature decimal.Decimal `json:"normal_temperature"`
	BloodPressure     BloodPressure   `json:"blood_pressure"`
}

// PatientInfo is a stored patient record.
type PatientInfo struct {
	ID         string     `json:"id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	BirthDate  time.Time  `json:"birth_date"`
	HealthInfo HealthInfo `json:"health_info"`
}

// Patient validation errors
var (
	ErrEmptyFirstName     = errors.New("first name cannot be empty")
	ErrEmptyLastName      = errors.New("last name cannot be empty")
	ErrZeroBirthDate      = errors.New("birth date cannot be zero")
	ErrFutureBirthDate    = errors.New("birth date cannot be in the future")
	ErrInvalidTemperature = errors.New("temperature must be positive")
	ErrTemperatureScale   = errors.New("normal temperature allows at most one decimal place")
	ErrTemperatureRange   = errors.New("normal temperature must be below 1000")
	ErrInvalidPressure    = errors.New("blood pressure components must be positive")
	ErrInvertedPressure   = errors.New("systolic pressure must exceed diastolic pressure")
)

var maxNormalTemperature = decimal.NewFromInt(1000)

// Validate checks a patient record before it is stored.
func (p *PatientInfo) Validate() error {
	if p.FirstName == "" {
		return ErrEmptyFirstName
	}

	if p.LastName == "" {
		return ErrEmptyLastName
	}

	if p.BirthDate.IsZero() {
		return ErrZeroBirthDate
	}

	if p.BirthDate.After(time.Now()) {
		return ErrFutureBirthDate
	}

	normal := p.HealthInfo.NormalTemperature
	if !normal.IsPositive() {
		return ErrInvalidTemperature
	}

	// Baselines are stored as NUMERIC(4,1)
	if !normal.Truncate(1).Equal(normal) {
		return ErrTemperatureScale
	}
	if normal.GreaterThanOrEqual(maxNormalTemperature) {
		return ErrTemperatureRange
	}

	return p.HealthInfo.BloodPressure.Validate()
}

// Validate checks that a blood pressure pair is physiologically ordered.
func (bp BloodPressure) Validate() error {
	if bp.High <= 0 || bp.Low <= 0 {
		return ErrInvalidPressure
	}
	if bp.High <= bp.Low {
		return ErrInvertedPressure
	}
	return nil
}

// IsValidationError reports whether err is one of the model validation errors.
func IsValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var validationErrors = []error{
	ErrEmptyFirstName,
	ErrEmptyLastName,
	ErrZeroBirthDate,
	ErrFutureBirthDate,
	ErrInvalidTemperature,
	ErrTemperatureScale,
	ErrTemperatureRange,
	ErrInvalidPressure,
	ErrInvertedPressure,
	ErrEmptyPatientID,
	ErrInvalidKind,
	ErrMissingTemperature,
	ErrMissingPressure,
	ErrZeroTimestamp,
	ErrFutureTimestamp,
	ErrInvalidTimestamp,
}
