package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"patientmon/internal/logger"
	"patientmon/internal/metrics"
	"patientmon/internal/models"
)

// Consumer is a lightweight interface representing a Kafka consumer.
type Consumer interface {
	Start(ctx context.Context) error
	Stop() error
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReadingConsumer feeds readings from a topic into the reading channel.
type ReadingConsumer struct {
	reader      messageReader
	readingChan chan<- *models.Reading
}

// NewReadingConsumer creates a consumer-group reader for the readings topic.
func NewReadingConsumer(brokers []string, topic, groupID string, readingChan chan<- *models.Reading) (*ReadingConsumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newReadingConsumer(reader, readingChan), nil
}

func newReadingConsumer(reader messageReader, readingChan chan<- *models.Reading) *ReadingConsumer {
	return &ReadingConsumer{reader: reader, readingChan: readingChan}
}

// Start reads until ctx is cancelled. Each message is committed once its
// reading is queued or rejected.
func (c *ReadingConsumer) Start(ctx context.Context) error {
	log := logger.WithComponent("kafka_consumer")
	log.Info().Msg("reading consumer started")
	defer log.Info().Msg("reading consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		receivedAt := msg.Time
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}

		reading, err := decodeReading(msg.Value, receivedAt)
		if err != nil {
			log.Warn().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("skipping invalid reading")
			metrics.IngestReadingsTotal.WithLabelValues("kafka", "rejected").Inc()
		} else {
			select {
			case c.readingChan <- reading:
				metrics.IngestReadingsTotal.WithLabelValues("kafka", "accepted").Inc()
			case <-ctx.Done():
				return nil
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("commit failed")
		}
	}
}

// Stop closes the underlying reader.
func (c *ReadingConsumer) Stop() error {
	return c.reader.Close()
}

// decodeReading parses, normalizes and validates a reading payload.
// A missing taken_at falls back to receivedAt.
func decodeReading(data []byte, receivedAt time.Time) (*models.Reading, error) {
	var in models.ReadingInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode reading: %w", err)
	}

	r, err := in.ToReading(receivedAt)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
