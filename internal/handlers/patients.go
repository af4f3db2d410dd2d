package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"patientmon/internal/alerts"
	"patientmon/internal/logger"
	"patientmon/internal/models"
	"patientmon/internal/repository"
)

// ReadingChecker runs the baseline checks.
type ReadingChecker interface {
	CheckTemperature(ctx context.Context, patientID string, current decimal.Decimal) error
	CheckBloodPressure(ctx context.Context, patientID string, current models.BloodPressure) error
}

// PatientHandler serves patient records and synchronous checks.
type PatientHandler struct {
	store   repository.Store
	checker ReadingChecker
}

// NewPatientHandler creates a PatientHandler.
func NewPatientHandler(store repository.Store, checker ReadingChecker) *PatientHandler {
	return &PatientHandler{store: store, checker: checker}
}

// Register mounts the patient routes on mux.
func (h *PatientHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /patients", h.create)
	mux.HandleFunc("GET /patients/{id}", h.get)
	mux.HandleFunc("PUT /patients/{id}", h.update)
	mux.HandleFunc("POST /patients/{id}/temperature", h.checkTemperature)
	mux.HandleFunc("POST /patients/{id}/blood-pressure", h.checkBloodPressure)
}

// PatientInput is the wire format of a patient record.
type PatientInput struct {
	ID                string               `json:"id,omitempty"`
	FirstName         string               `json:"first_name"`
	LastName          string               `json:"last_name"`
	BirthDate         string               `json:"birth_date"`
	NormalTemperature decimal.Decimal      `json:"normal_temperature"`
	BloodPressure     models.BloodPressure `json:"blood_pressure"`
}

// ToPatient converts and validates the input.
func (in PatientInput) ToPatient() (models.PatientInfo, error) {
	var birth time.Time
	if in.BirthDate != "" {
		parsed, err := models.ParseBirthDate(in.BirthDate)
		if err != nil {
			return models.PatientInfo{}, fmt.Errorf("birth_date: %w", models.ErrInvalidTimestamp)
		}
		birth = parsed
	}

	p := models.PatientInfo{
		ID:        in.ID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		BirthDate: birth,
		HealthInfo: models.HealthInfo{
			NormalTemperature: in.NormalTemperature,
			BloodPressure:     in.BloodPressure,
		},
	}
	if err := p.Validate(); err != nil {
		return models.PatientInfo{}, err
	}
	return p, nil
}

// CheckResponse reports a completed check.
type CheckResponse struct {
	PatientID string `json:"patient_id"`
	Checked   string `json:"checked"`
}

func (h *PatientHandler) create(w http.ResponseWriter, r *http.Request) {
	var in PatientInput
	if !decodeBody(w, r, &in) {
		return
	}

	patient, err := in.ToPatient()
	if err != nil {
		writeServiceError(w, err)
		return
	}

	id, err := h.store.Add(r.Context(), patient)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *PatientHandler) get(w http.ResponseWriter, r *http.Request) {
	patient, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *PatientHandler) update(w http.ResponseWriter, r *http.Request) {
	var in PatientInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.ID = r.PathValue("id")

	patient, err := in.ToPatient()
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.store.Update(r.Context(), patient); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *PatientHandler) checkTemperature(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Temperature *decimal.Decimal `json:"temperature"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Temperature == nil {
		writeError(w, http.StatusBadRequest, models.ErrMissingTemperature.Error())
		return
	}

	id := r.PathValue("id")
	if err := h.checker.CheckTemperature(r.Context(), id, *in.Temperature); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{PatientID: id, Checked: string(models.ReadingTemperature)})
}

func (h *PatientHandler) checkBloodPressure(w http.ResponseWriter, r *http.Request) {
	var in models.BloodPressure
	if !decodeBody(w, r, &in) {
		return
	}

	id := r.PathValue("id")
	if err := h.checker.CheckBloodPressure(r.Context(), id, in); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{PatientID: id, Checked: string(models.ReadingBloodPressure)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case models.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, alerts.ErrDeliveryFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log := logger.WithComponent("http")
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
