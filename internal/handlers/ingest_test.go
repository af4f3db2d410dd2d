package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"patientmon/internal/handlers"
	"patientmon/internal/models"
)

func postIngest(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, handlers.IngestResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/readings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	var resp handlers.IngestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v (%s)", err, w.Body.String())
	}
	return w, resp
}

func TestIngestHandler_SingleReading(t *testing.T) {
	ch := make(chan *models.Reading, 10)
	handler := handlers.NewIngestHandler(handlers.IngestConfig{ReadingChan: ch})

	body := `{
        "id": " r-1 ",
        "patient_id": " p-1 ",
        "kind": "Temperature",
        "temperature": "38.4",
        "taken_at": "2024-01-15T10:30:00Z"
    }`

	w, resp := postIngest(t, handler, body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	if !resp.Success || resp.Accepted != 1 || resp.Rejected != 0 {
		t.Errorf("unexpected response: %+v", resp)
	}

	select {
	case r := <-ch:
		if r.ID != "r-1" || r.PatientID != "p-1" {
			t.Errorf("identifiers not trimmed: %q %q", r.ID, r.PatientID)
		}
		if r.Kind != models.ReadingTemperature {
			t.Errorf("kind not normalized: got %s", r.Kind)
		}
		if r.Temperature == nil || r.Temperature.String() != "38.4" {
			t.Errorf("unexpected temperature: %v", r.Temperature)
		}
	case <-time.After(time.Second):
		t.Fatal("no reading received")
	}
}

func TestIngestHandler_BatchReadings(t *testing.T) {
	ch := make(chan *models.Reading, 10)
	handler := handlers.NewIngestHandler(handlers.IngestConfig{ReadingChan: ch})

	body := `{
        "readings": [
            {"patient_id": "p-1", "kind": "temperature", "temperature": "36.6"},
            {"patient_id": "p-2", "kind": "blood-pressure", "blood_pressure": {"high": 140, "low": 90}}
        ]
    }`

	w, resp := postIngest(t, handler, body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", w.Code)
	}
	if resp.Accepted != 2 {
		t.Fatalf("expected 2 accepted, got %+v", resp)
	}

	first, second := <-ch, <-ch
	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Errorf("expected generated unique ids, got %q and %q", first.ID, second.ID)
	}
	if first.TakenAt.IsZero() {
		t.Error("expected receive time to be used for missing taken_at")
	}
	if second.Kind != models.ReadingBloodPressure || second.BloodPressure.High != 140 {
		t.Errorf("unexpected second reading: %+v", second)
	}
}

func TestIngestHandler_ArrayPayload(t *testing.T) {
	ch := make(chan *models.Reading, 10)
	handler := handlers.NewIngestHandler(handlers.IngestConfig{ReadingChan: ch})

	body := `[{"patient_id": "p-1", "kind": "temperature", "temperature": "36.6"}]`

	_, resp := postIngest(t, handler, body)
	if resp.Accepted != 1 {
		t.Fatalf("expected 1 accepted, got %+v", resp)
	}
}

func TestIngestHandler_PartialRejection(t *testing.T) {
	ch := make(chan *models.Reading, 10)
	handler := handlers.NewIngestHandler(handlers.IngestConfig{ReadingChan: ch})

	body := `{
        "readings": [
            {"patient_id": "p-1", "kind": "temperature", "temperature": "36.6"},
            {"patient_id": "p-1", "kind": "temperature"},
            {"patient_id": "", "kind": "temperature", "temperature": "36.6"},
            {"patient_id": "p-1", "kind": "pulse"},
            {"patient_id": "p-1", "kind": "temperature", "temperature": "36.6", "taken_at": "yesterday"}
        ]
    }`

	w, resp := postIngest(t, handler, body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 for partial success, got %d", w.Code)
	}
	if resp.Success || resp.Accepted != 1 || resp.Rejected != 4 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Errors[0].Index != 1 || resp.Errors[0].Error != models.ErrMissingTemperature.Error() {
		t.Errorf("unexpected first error: %+v", resp.Errors[0])
	}
}

func TestIngestHandler_AllRejected(t *testing.T) {
	ch := make(chan *models.Reading, 10)
	handler := handlers.NewIngestHandler(handlers.IngestConfig{ReadingChan: ch})

	w, resp := postIngest(t, handler, `{"patient_id": "p-1", "kind": "blood_pressure"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if resp.Rejected != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestIngestHandler_QueueFull(t *testing.T) {
	ch := make(chan *models.Reading) // unbuffered and never read
	handler := handlers.NewIngestHandler(handlers.IngestConfig{ReadingChan: ch})

	w, resp := postIngest(t, handler, `{"patient_id": "p-1", "kind": "temperature", "temperature": "36.6"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if resp.Rejected != 1 || resp.Errors[0].Error != "internal queue full, try again later" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestIngestHandler_BadRequests(t *testing.T) {
	ch := make(chan *models.Reading, 1)
	handler := handlers.NewIngestHandler(handlers.IngestConfig{ReadingChan: ch, MaxBodySize: 64})

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		status      int
	}{
		{"wrong method", http.MethodGet, "application/json", "", http.StatusMethodNotAllowed},
		{"wrong content type", http.MethodPost, "text/plain", "{}", http.StatusUnsupportedMediaType},
		{"invalid json", http.MethodPost, "application/json", "{", http.StatusBadRequest},
		{"empty batch", http.MethodPost, "application/json", `{"readings": []}`, http.StatusBadRequest},
		{"too large", http.MethodPost, "application/json", string(bytes.Repeat([]byte("a"), 128)), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/readings", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestIngestHandler_TimestampLayouts(t *testing.T) {
	ch := make(chan *models.Reading, 10)
	handler := handlers.NewIngestHandler(handlers.IngestConfig{ReadingChan: ch})

	body := `[
        {"patient_id": "p-1", "kind": "temperature", "temperature": "36.6", "taken_at": "2024-01-15 10:30:00"},
        {"patient_id": "p-1", "kind": "temperature", "temperature": "36.6", "taken_at": "2024-01-15T10:30:00"}
    ]`

	_, resp := postIngest(t, handler, body)
	if resp.Accepted != 2 {
		t.Fatalf("expected 2 accepted, got %+v", resp)
	}

	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if r := <-ch; !r.TakenAt.Equal(want) {
			t.Errorf("reading %d: expected %s, got %s", i, want, r.TakenAt)
		}
	}
}
