// Package repository stores patient records.
package repository

import (
	"context"
	"errors"

	"patientmon/internal/models"
)

// Repository errors
var (
	ErrNotFound      = errors.New("patient not found")
	ErrAlreadyExists = errors.New("patient already exists")
)

// Store persists patient records.
// Add and Update reject records that fail PatientInfo.Validate.
type Store interface {
	GetByID(ctx context.Context, id string) (models.PatientInfo, error)
	Add(ctx context.Context, patient models.PatientInfo) (string, error)
	Update(ctx context.Context, patient models.PatientInfo) error
	Close() error
}
