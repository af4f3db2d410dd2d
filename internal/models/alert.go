package models

import (
	"time"

	"github.com/google/uuid"
)

// Alert wraps an alert message with delivery metadata for transport sinks
type Alert struct {
	ID       string    `json:"id"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
	Node     string    `json:"node"`
}

// NewAlert creates a new alert envelope for a message
func NewAlert(message, node string) *Alert {
	return &Alert{
		ID:       uuid.NewString(),
		Message:  message,
		RaisedAt: time.Now().UTC(),
		Node:     node,
	}
}
