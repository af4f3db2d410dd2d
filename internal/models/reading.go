package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ReadingKind identifies which measurement a Reading carries
type ReadingKind string

const (
	ReadingTemperature   ReadingKind = "temperature"
	ReadingBloodPressure ReadingKind = "blood_pressure"
)

// Reading is a single measurement submitted for a patient
type Reading struct {
	// Optional client-side identifier
	ID string `json:"id,omitempty"`

	PatientID string      `json:"patient_id"`
	Kind      ReadingKind `json:"kind"`

	// Set when Kind is temperature
	Temperature *decimal.Decimal `json:"temperature,omitempty"`

	// Set when Kind is blood_pressure
	BloodPressure *BloodPressure `json:"blood_pressure,omitempty"`

	// When the measurement was taken
	TakenAt time.Time `json:"taken_at"`
}

// Validation errors
var (
	ErrEmptyPatientID     = errors.New("patient ID cannot be empty")
	ErrInvalidKind        = errors.New("invalid reading kind")
	ErrMissingTemperature = errors.New("temperature reading requires a temperature")
	ErrMissingPressure    = errors.New("blood pressure reading requires a blood pressure")
	ErrZeroTimestamp      = errors.New("timestamp cannot be zero")
	ErrFutureTimestamp    = errors.New("timestamp cannot be in the future")
	ErrInvalidTimestamp   = errors.New("invalid timestamp format")
)

// Validate checks if the Reading has all required fields and valid values
func (r *Reading) Validate() error {
	if r.PatientID == "" {
		return ErrEmptyPatientID
	}

	if !r.Kind.IsValid() {
		return ErrInvalidKind
	}

	switch r.Kind {
	case ReadingTemperature:
		if r.Temperature == nil {
			return ErrMissingTemperature
		}
	case ReadingBloodPressure:
		if r.BloodPressure == nil {
			return ErrMissingPressure
		}
	}

	if r.TakenAt.IsZero() {
		return ErrZeroTimestamp
	}

	if r.TakenAt.After(time.Now().Add(time.Minute)) {
		return ErrFutureTimestamp
	}

	return nil
}

// IsValid checks if the reading kind is known
func (k ReadingKind) IsValid() bool {
	switch k {
	case ReadingTemperature, ReadingBloodPressure:
		return true
	default:
		return false
	}
}
