package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"patientmon/internal/logger"
	"patientmon/internal/models"
)

// File is a Store backed by a JSON-lines file, one patient per line.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a store using path. The file is created on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) GetByID(ctx context.Context, id string) (models.PatientInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	patients, err := f.readAll()
	if err != nil {
		return models.PatientInfo{}, err
	}
	for _, p := range patients {
		if p.ID == id {
			return p, nil
		}
	}
	return models.PatientInfo{}, ErrNotFound
}

func (f *File) Add(ctx context.Context, patient models.PatientInfo) (string, error) {
	if err := patient.Validate(); err != nil {
		return "", err
	}
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	patients, err := f.readAll()
	if err != nil {
		return "", err
	}
	for _, p := range patients {
		if p.ID == patient.ID {
			return "", ErrAlreadyExists
		}
	}

	line, err := json.Marshal(patient)
	if err != nil {
		return "", fmt.Errorf("encode patient: %w", err)
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open patients file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("append patient: %w", err)
	}
	return patient.ID, nil
}

func (f *File) Update(ctx context.Context, patient models.PatientInfo) error {
	if err := patient.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	patients, err := f.readAll()
	if err != nil {
		return err
	}

	found := false
	for i := range patients {
		if patients[i].ID == patient.ID {
			patients[i] = patient
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}
	return f.writeAll(patients)
}

func (f *File) Close() error { return nil }

// readAll loads every record; a missing file is an empty store.
func (f *File) readAll() ([]models.PatientInfo, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read patients file: %w", err)
	}

	log := logger.WithComponent("file_repository")
	var patients []models.PatientInfo
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var p models.PatientInfo
		if err := json.Unmarshal(line, &p); err != nil {
			log.Warn().Err(err).Int("line", n).Str("path", f.path).Msg("skipping malformed patient record")
			continue
		}
		patients = append(patients, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan patients file: %w", err)
	}
	return patients, nil
}

// writeAll replaces the file contents atomically via a temp file.
func (f *File) writeAll(patients []models.PatientInfo) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range patients {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("encode patient: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".patients-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace patients file: %w", err)
	}
	return nil
}
