package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/pyroguard-risk-service/internal/config"
	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes scored readings to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured readings topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaReadingsTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes every reading of the window in a single WriteMessages call. Readings
// are keyed by sensor ID so one sensor's readings stay ordered within a partition.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.ReadingBatch) error {
	if len(batch.Readings) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(batch.Readings))
	for i := range batch.Readings {
		msg, err := serializeToMessage(batch.WindowID, batch.Readings[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write readings: %w", err)
	}
	w.logger.Debug("readings published", "topic", w.writer.Topic, "count", len(msgs), "window_id", batch.WindowID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a reading into a Kafka message.
func serializeToMessage(windowID string, r domain.SensorReading) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize reading: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.SensorID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "risk_label", Value: []byte(r.RiskLabel)},
			{Key: "timestamp", Value: []byte(r.Timestamp.Format(domain.TimestampLayout))},
			{Key: "window_id", Value: []byte(windowID)},
		},
	}, nil
}
