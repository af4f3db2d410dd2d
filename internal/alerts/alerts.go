package alerts

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrDeliveryFailed marks errors raised while delivering an alert.
var ErrDeliveryFailed = errors.New("alert delivery failed")

// Sender delivers an alert message through some channel.
type Sender interface {
	Send(ctx context.Context, message string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, message string) error

func (f SenderFunc) Send(ctx context.Context, message string) error { return f(ctx, message) }

// LogSender writes alerts to a logger.
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender returns a sender that logs each alert at warn level.
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, message string) error {
	s.log.Warn().Str("alert", message).Msg(message)
	return nil
}

// MultiSender delivers each alert to every sink.
type MultiSender []Sender

// Send tries all sinks and returns their joined errors.
func (m MultiSender) Send(ctx context.Context, message string) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
