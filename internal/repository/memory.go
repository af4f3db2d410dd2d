package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"patientmon/internal/models"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	patients map[string]models.PatientInfo
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{patients: make(map[string]models.PatientInfo)}
}

func (m *Memory) GetByID(ctx context.Context, id string) (models.PatientInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patients[id]
	if !ok {
		return models.PatientInfo{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) Add(ctx context.Context, patient models.PatientInfo) (string, error) {
	if err := patient.Validate(); err != nil {
		return "", err
	}
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.patients[patient.ID]; ok {
		return "", ErrAlreadyExists
	}
	m.patients[patient.ID] = patient
	return patient.ID, nil
}

func (m *Memory) Update(ctx context.Context, patient models.PatientInfo) error {
	if err := patient.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.patients[patient.ID]; !ok {
		return ErrNotFound
	}
	m.patients[patient.ID] = patient
	return nil
}

func (m *Memory) Close() error { return nil }
