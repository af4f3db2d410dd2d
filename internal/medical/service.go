// Package medical checks patient readings against the patient's stored
// baseline and raises an alert when a reading is abnormal.
package medical

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"patientmon/internal/logger"
	"patientmon/internal/metrics"
	"patientmon/internal/models"
)

// TemperatureThreshold is the largest deviation from the normal temperature
// that does not raise an alert.
var TemperatureThreshold = decimal.RequireFromString("1.5")

// ErrUnknownReading is returned by Check for readings it cannot dispatch.
var ErrUnknownReading = errors.New("unknown reading kind")

// PatientInfoRepository looks up stored patient records.
type PatientInfoRepository interface {
	GetByID(ctx context.Context, id string) (models.PatientInfo, error)
}

// AlertSender delivers an alert message.
type AlertSender interface {
	Send(ctx context.Context, message string) error
}

// Service evaluates readings against a patient's baseline.
type Service struct {
	repo   PatientInfoRepository
	sender AlertSender
}

// NewService creates a Service using the given collaborators.
func NewService(repo PatientInfoRepository, sender AlertSender) *Service {
	return &Service{
		repo:   repo,
		sender: sender,
	}
}

// AlertMessage returns the alert text for a patient.
func AlertMessage(patientID string) string {
	return fmt.Sprintf("Warning, patient with id: %s, need help", patientID)
}

// TemperatureAbnormal reports whether current deviates from normal by more
// than TemperatureThreshold in either direction.
func TemperatureAbnormal(normal, current decimal.Decimal) bool {
	return current.Sub(normal).Abs().GreaterThan(TemperatureThreshold)
}

// PressureAbnormal reports whether either component differs from normal.
func PressureAbnormal(normal, current models.BloodPressure) bool {
	return !normal.Equal(current)
}

// CheckTemperature sends one alert when the temperature is abnormal for the patient.
// Repository and sender errors are returned as is.
func (s *Service) CheckTemperature(ctx context.Context, patientID string, current decimal.Decimal) error {
	const kind = string(models.ReadingTemperature)
	log := logger.WithPatient("medical", patientID)

	patient, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		s.lookupFailed(log, kind, err)
		return err
	}

	normal := patient.HealthInfo.NormalTemperature
	if !TemperatureAbnormal(normal, current) {
		log.Debug().
			Str("normal", normal.String()).
			Str("current", current.String()).
			Msg("temperature within range")
		metrics.ChecksTotal.WithLabelValues(kind, "normal").Inc()
		return nil
	}

	log.Info().
		Str("normal", normal.String()).
		Str("current", current.String()).
		Msg("abnormal temperature")
	return s.alert(ctx, log, kind, patientID)
}

// CheckBloodPressure sends one alert when either pressure component differs
// from the patient's baseline.
func (s *Service) CheckBloodPressure(ctx context.Context, patientID string, current models.BloodPressure) error {
	const kind = string(models.ReadingBloodPressure)
	log := logger.WithPatient("medical", patientID)

	patient, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		s.lookupFailed(log, kind, err)
		return err
	}

	normal := patient.HealthInfo.BloodPressure
	if !PressureAbnormal(normal, current) {
		log.Debug().
			Int("high", current.High).
			Int("low", current.Low).
			Msg("blood pressure normal")
		metrics.ChecksTotal.WithLabelValues(kind, "normal").Inc()
		return nil
	}

	log.Info().
		Int("normal_high", normal.High).
		Int("normal_low", normal.Low).
		Int("high", current.High).
		Int("low", current.Low).
		Msg("abnormal blood pressure")
	return s.alert(ctx, log, kind, patientID)
}

// Check dispatches a reading to the matching check.
func (s *Service) Check(ctx context.Context, r *models.Reading) error {
	switch {
	case r.Kind == models.ReadingTemperature && r.Temperature != nil:
		return s.CheckTemperature(ctx, r.PatientID, *r.Temperature)
	case r.Kind == models.ReadingBloodPressure && r.BloodPressure != nil:
		return s.CheckBloodPressure(ctx, r.PatientID, *r.BloodPressure)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReading, r.Kind)
	}
}

func (s *Service) alert(ctx context.Context, log zerolog.Logger, kind, patientID string) error {
	if err := s.sender.Send(ctx, AlertMessage(patientID)); err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("alert delivery failed")
		metrics.ChecksTotal.WithLabelValues(kind, "error").Inc()
		metrics.AlertFailuresTotal.WithLabelValues(kind).Inc()
		return err
	}

	metrics.ChecksTotal.WithLabelValues(kind, "alert").Inc()
	metrics.AlertsSentTotal.WithLabelValues(kind).Inc()
	return nil
}

func (s *Service) lookupFailed(log zerolog.Logger, kind string, err error) {
	log.Warn().Err(err).Str("kind", kind).Msg("patient lookup failed")
	metrics.ChecksTotal.WithLabelValues(kind, "error").Inc()
}
