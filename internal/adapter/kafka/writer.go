// Package kafka publishes quality-event summaries to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/weather-pipeline/internal/config"
	"github.com/couchcryptid/weather-pipeline/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer emits quality events keyed by batch ID so all events for a batch
// land on the same partition.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka writer from config. The caller must Close it.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	return &Writer{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.KafkaQualityTopic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireAll,
		},
		logger: logger,
	}
}

// Emit publishes one quality event.
func (w *Writer) Emit(ctx context.Context, event domain.QualityEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write quality event: %w", err)
	}
	w.logger.Debug("quality event published",
		"batch_id", event.BatchID, "passed", event.Passed)
	return nil
}

// Close flushes and closes the underlying writer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(event domain.QualityEvent) (kafkago.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("marshal quality event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.BatchID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "passed", Value: []byte(strconv.FormatBool(event.Passed))},
			{Key: "emitted_at", Value: []byte(event.EmittedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
