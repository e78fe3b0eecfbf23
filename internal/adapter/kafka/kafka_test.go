package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	"github.com/couchcryptid/pyroguard-risk-service/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessage(t *testing.T) {
	msg := kafkago.Message{Value: []byte("T:25.4 H:60\r\nT:26\n\nT:27 SM:3")}
	assert.Equal(t, []string{"T:25.4 H:60", "T:26", "T:27 SM:3"}, splitMessage(msg))

	assert.Empty(t, splitMessage(kafkago.Message{Value: []byte("\n")}))
}

func TestSerializeToMessage(t *testing.T) {
	ts := time.Date(2025, time.August, 1, 14, 30, 5, 0, time.Local)
	r := domain.SensorReading{
		SensorID:  domain.LiveSensorID,
		Timestamp: ts,
		TempC:     domain.Float(40),
		SmokePPM:  domain.Float(500),
		RiskScore: 1,
		RiskLabel: domain.RiskHigh,
	}
	r.SetPosition(domain.Geo{Lat: 25.4, Lon: -100.9})

	msg, err := serializeToMessage("win-1", r)
	require.NoError(t, err)

	assert.Equal(t, []byte("Arduino-Live"), msg.Key)
	assert.Contains(t, string(msg.Value), `"risk_label":"High"`)
	assert.Contains(t, string(msg.Value), `"humidity_pct":null`)
	assert.NotContains(t, string(msg.Value), "HasPosition")
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "risk_label", msg.Headers[0].Key)
	assert.Equal(t, []byte("High"), msg.Headers[0].Value)
	assert.Equal(t, "timestamp", msg.Headers[1].Key)
	assert.Equal(t, []byte("2025-08-01T14:30:05"), msg.Headers[1].Value)
	assert.Equal(t, "window_id", msg.Headers[2].Key)
	assert.Equal(t, []byte("win-1"), msg.Headers[2].Value)
}

// fakeMessageReader returns queued messages, then blocks until the read context ends.
type fakeMessageReader struct {
	msgs  []kafkago.Message
	err   error
	reads int
}

func (f *fakeMessageReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	f.reads++
	if f.err != nil {
		return kafkago.Message{}, f.err
	}
	if len(f.msgs) > 0 {
		msg := f.msgs[0]
		f.msgs = f.msgs[1:]
		return msg, nil
	}
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (f *fakeMessageReader) Close() error { return nil }

func newTestSource(r messageReader) *Source {
	return &Source{
		reader:      r,
		topic:       "telemetry",
		readTimeout: 20 * time.Millisecond,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSource_SplitMessageSurvivesWindowBoundary(t *testing.T) {
	fake := &fakeMessageReader{msgs: []kafkago.Message{{Value: []byte("T:20\nT:21\nT:22")}}}
	src := newTestSource(fake)
	ctx := context.Background()

	first, err := src.Open(ctx)
	require.NoError(t, err)
	line, err := first.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T:20", line)
	require.NoError(t, first.Close())

	second, err := src.Open(ctx)
	require.NoError(t, err)
	for _, want := range []string{"T:21", "T:22"} {
		line, err := second.ReadLine(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
	assert.Equal(t, 1, fake.reads, "leftover lines are served without fetching")

	_, err = second.ReadLine(ctx)
	assert.ErrorIs(t, err, pipeline.ErrReadTimeout)
}

func TestSource_ReadLineTimeout(t *testing.T) {
	src := newTestSource(&fakeMessageReader{})
	r, err := src.Open(context.Background())
	require.NoError(t, err)

	_, err = r.ReadLine(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrReadTimeout)
}

func TestSource_ReadLineBrokerError(t *testing.T) {
	src := newTestSource(&fakeMessageReader{err: errors.New("broker down")})
	r, err := src.Open(context.Background())
	require.NoError(t, err)

	_, err = r.ReadLine(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, pipeline.ErrReadTimeout)
	assert.Contains(t, err.Error(), "read telemetry message: broker down")
}

func TestReadError(t *testing.T) {
	live := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, readError(live, context.DeadlineExceeded), pipeline.ErrReadTimeout)
	assert.ErrorIs(t, readError(live, fmt.Errorf("fetch: %w", context.DeadlineExceeded)), pipeline.ErrReadTimeout)
	assert.ErrorIs(t, readError(cancelled, context.DeadlineExceeded), context.Canceled)

	err := readError(live, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, pipeline.ErrReadTimeout)
}
