package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SupportedTimestampFormats lists formats we attempt to parse
var SupportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.UnixDate,
}

// Normalize applies field normalization to a Reading
// - trims identifiers
// - lower-cases Kind and maps "blood-pressure" to "blood_pressure"
// - stores TakenAt in UTC
func (r *Reading) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.PatientID = strings.TrimSpace(r.PatientID)

	kind := strings.ToLower(strings.TrimSpace(string(r.Kind)))
	r.Kind = ReadingKind(strings.ReplaceAll(kind, "-", "_"))

	if !r.TakenAt.IsZero() {
		r.TakenAt = r.TakenAt.UTC()
	}
}

// ParseTimestamp attempts to parse a timestamp string into time.Time
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)

	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}

// ParseBirthDate parses a calendar date (YYYY-MM-DD) or any supported timestamp
func ParseBirthDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return ParseTimestamp(s)
}

// ReadingInput is the wire format of a reading (with string timestamp).
// Both HTTP and Kafka intake decode into it.
type ReadingInput struct {
	ID            string           `json:"id,omitempty"`
	PatientID     string           `json:"patient_id"`
	Kind          string           `json:"kind"`
	Temperature   *decimal.Decimal `json:"temperature,omitempty"`
	BloodPressure *BloodPressure   `json:"blood_pressure,omitempty"`
	TakenAt       string           `json:"taken_at,omitempty"` // defaults to receive time
}

// ToReading converts the input into a normalized Reading.
// An empty TakenAt becomes receivedAt and an empty ID gets a UUID.
func (in ReadingInput) ToReading(receivedAt time.Time) (*Reading, error) {
	takenAt := receivedAt.UTC()
	if strings.TrimSpace(in.TakenAt) != "" {
		ts, err := ParseTimestamp(in.TakenAt)
		if err != nil {
			return nil, fmt.Errorf("taken_at: %w", err)
		}
		takenAt = ts
	}

	r := &Reading{
		ID:            in.ID,
		PatientID:     in.PatientID,
		Kind:          ReadingKind(in.Kind),
		Temperature:   in.Temperature,
		BloodPressure: in.BloodPressure,
		TakenAt:       takenAt,
	}
	r.Normalize()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return r, nil
}
