package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/pyroguard-risk-service/internal/config"
	"github.com/couchcryptid/pyroguard-risk-service/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

// messageReader is the part of *kafkago.Reader the source uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// Source consumes raw telemetry lines from a Kafka topic, for devices whose gateway
// forwards serial output to a broker. The consumer group persists across windows.
// It implements pipeline.Source.
type Source struct {
	reader      messageReader
	topic       string
	readTimeout time.Duration
	logger      *slog.Logger

	// pending holds lines of an already committed message that a window did not consume.
	mu      sync.Mutex
	pending []string
}

// NewSource creates a consumer for the configured telemetry topic.
func NewSource(cfg *config.Config, logger *slog.Logger) *Source {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTelemetryTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        cfg.TelemetryReadTimeout,
	})
	return &Source{
		reader:      r,
		topic:       cfg.KafkaTelemetryTopic,
		readTimeout: cfg.TelemetryReadTimeout,
		logger:      logger,
	}
}

// Name identifies the source in logs and status.
func (s *Source) Name() string { return "kafka:" + s.topic }

// Open returns a line reader over the shared consumer. Closing it leaves the consumer open.
func (s *Source) Open(_ context.Context) (pipeline.LineReader, error) {
	return &lineReader{src: s}, nil
}

// Close shuts down the consumer.
func (s *Source) Close() error {
	return s.reader.Close()
}

// nextPending pops the oldest line left over from a split message.
func (s *Source) nextPending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return "", false
	}
	line := s.pending[0]
	s.pending = s.pending[1:]
	return line, true
}

func (s *Source) keepPending(lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, lines...)
}

type lineReader struct {
	src *Source
}

// ReadLine returns the next line. A message carrying several newline-separated lines is
// handed out one line at a time; lines left over when a window ends are returned first by
// the next window.
func (r *lineReader) ReadLine(ctx context.Context) (string, error) {
	if line, ok := r.src.nextPending(); ok {
		return line, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, r.src.readTimeout)
	defer cancel()

	msg, err := r.src.reader.ReadMessage(readCtx)
	if err != nil {
		return "", readError(ctx, err)
	}

	lines := splitMessage(msg)
	if len(lines) == 0 {
		return "", nil
	}
	r.src.keepPending(lines[1:])
	return lines[0], nil
}

func (r *lineReader) Close() error { return nil }

// readError maps a fetch failure: cancellation of the window context wins, an expired
// per-read deadline is a read timeout, anything else is wrapped.
func readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pipeline.ErrReadTimeout
	}
	return fmt.Errorf("read telemetry message: %w", err)
}

// splitMessage breaks a message value into lines.
func splitMessage(msg kafkago.Message) []string {
	return strings.FieldsFunc(string(msg.Value), func(c rune) bool {
		return c == '\n' || c == '\r'
	})
}
