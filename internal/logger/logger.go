package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance. It discards everything until Init is called.
	Logger = zerolog.Nop()
)

// Init initializes the global logger on stdout.
// pretty selects the human-readable console writer (development mode).
func Init(level string, pretty bool) {
	InitWithWriter(level, newOutput(os.Stdout, pretty))
}

// newOutput wraps out in a console writer when pretty is set
func newOutput(out io.Writer, pretty bool) io.Writer {
	if !pretty {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
}

// InitWithWriter initializes the global logger writing JSON to w.
// A nil writer selects stdout.
func InitWithWriter(level string, w io.Writer) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	output := w
	if output == nil {
		output = os.Stdout
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	Logger.Info().
		Str("level", logLevel.String()).
		Msg("logger initialized")
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithPatient returns a logger scoped to a patient id
func WithPatient(component, patientID string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("patient_id", patientID).
		Logger()
}
