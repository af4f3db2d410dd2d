package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"patientmon/internal/metrics"
	"patientmon/internal/models"
)

// IngestHandler accepts readings over HTTP for asynchronous checking
type IngestHandler struct {
	// Channel feeding the worker pool
	readingChan chan<- *models.Reading

	// Max body size (default 1MB)
	maxBodySize int64

	now func() time.Time
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	ReadingChan chan<- *models.Reading
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 1024 * 1024
	}

	return &IngestHandler{
		readingChan: cfg.ReadingChan,
		maxBodySize: maxBodySize,
		now:         time.Now,
	}
}

// IngestRequest represents the incoming JSON payload (single or batch)
type IngestRequest struct {
	Reading  *models.ReadingInput  `json:"reading,omitempty"`
	Readings []models.ReadingInput `json:"readings,omitempty"`
}

// IngestResponse is the response returned to clients
type IngestResponse struct {
	Success  bool          `json:"success"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Errors   []IngestError `json:"errors,omitempty"`
}

// IngestError describes a validation error for a specific reading
type IngestError struct {
	Index     int    `json:"index"`
	ReadingID string `json:"reading_id,omitempty"`
	Error     string `json:"error"`
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "" {
		writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	inputs, err := parseReadings(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(inputs) == 0 {
		writeError(w, http.StatusBadRequest, "no readings provided")
		return
	}

	response := h.processReadings(inputs)

	status := http.StatusAccepted
	if response.Rejected > 0 && response.Accepted == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, response)
}

// parseReadings accepts {"readings":[...]}, {"reading":{...}}, an array, or a bare reading
func parseReadings(body []byte) ([]models.ReadingInput, error) {
	var req IngestRequest
	if err := json.Unmarshal(body, &req); err == nil {
		if len(req.Readings) > 0 {
			return req.Readings, nil
		}
		if req.Reading != nil {
			return []models.ReadingInput{*req.Reading}, nil
		}
	}

	var readings []models.ReadingInput
	if err := json.Unmarshal(body, &readings); err == nil && len(readings) > 0 {
		return readings, nil
	}

	var single models.ReadingInput
	if err := json.Unmarshal(body, &single); err == nil && single.PatientID != "" {
		return []models.ReadingInput{single}, nil
	}

	return nil, fmt.Errorf("invalid JSON format: expected reading object or array of readings")
}

// processReadings validates, normalizes, and queues readings
func (h *IngestHandler) processReadings(inputs []models.ReadingInput) IngestResponse {
	response := IngestResponse{
		Success: true,
		Errors:  make([]IngestError, 0),
	}

	reject := func(i int, id string, err error) {
		response.Errors = append(response.Errors, IngestError{Index: i, ReadingID: id, Error: err.Error()})
		response.Rejected++
		metrics.IngestReadingsTotal.WithLabelValues("http", "rejected").Inc()
	}

	for i, input := range inputs {
		reading, err := input.ToReading(h.now())
		if err != nil {
			reject(i, input.ID, err)
			continue
		}

		if err := reading.Validate(); err != nil {
			reject(i, reading.ID, err)
			continue
		}

		// Non-blocking send
		select {
		case h.readingChan <- reading:
			response.Accepted++
			metrics.IngestReadingsTotal.WithLabelValues("http", "accepted").Inc()
		default:
			reject(i, reading.ID, fmt.Errorf("internal queue full, try again later"))
		}
	}

	response.Success = response.Rejected == 0
	return response
}
