package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	"github.com/couchcryptid/pyroguard-risk-service/internal/observability"
	"github.com/google/uuid"
)

var (
	// ErrSourceUnavailable is returned when the telemetry source could not be opened within
	// the configured number of attempts.
	ErrSourceUnavailable = errors.New("telemetry source unavailable")

	// ErrReadTimeout is returned by a LineReader when no line arrived within its read timeout.
	ErrReadTimeout = errors.New("telemetry read timeout")
)

// LineReader yields raw telemetry lines. ReadLine must return within the reader's read
// timeout, with ErrReadTimeout when nothing arrived, and io.EOF once the stream has ended.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// Source opens a line reader for one polling window.
type Source interface {
	Open(ctx context.Context) (LineReader, error)
	Name() string
}

// OverrideLoader returns the current position override snapshot.
type OverrideLoader interface {
	Load(ctx context.Context) (map[string]domain.Geo, error)
}

// ReadingAppender merges readings into the persisted reading table and returns the row count.
type ReadingAppender interface {
	Append(ctx context.Context, readings []domain.SensorReading) (int, error)
}

// BatchLoader publishes the readings persisted by a window to a downstream sink.
type BatchLoader interface {
	LoadBatch(ctx context.Context, batch domain.ReadingBatch) error
}

// Config controls polling window timing.
type Config struct {
	Window      time.Duration // how long a window reads from the source
	Refresh     time.Duration // wait after a window that produced lines
	IdleWait    time.Duration // wait after a window that produced nothing
	OpenRetries int
	RetryDelay  time.Duration
}

// DefaultConfig returns the timing of the live dashboard.
func DefaultConfig() Config {
	return Config{
		Window:      6 * time.Second,
		Refresh:     6 * time.Second,
		IdleWait:    time.Second,
		OpenRetries: 3,
		RetryDelay:  600 * time.Millisecond,
	}
}

// recentLinesCap is how many raw lines the status keeps.
const recentLinesCap = 12

// WindowResult describes one completed polling window.
type WindowResult struct {
	WindowID  string        `json:"window_id"`
	Lines     int           `json:"lines"`
	Parsed    int           `json:"parsed"`
	Rejected  int           `json:"rejected"`
	TableRows int           `json:"table_rows"`
	Duration  time.Duration `json:"duration_ns"`
}

type sink struct {
	name   string
	loader BatchLoader
}

// Pipeline reads telemetry in bounded polling windows, turns lines into scored readings,
// persists them, and publishes each persisted batch to the registered sinks.
type Pipeline struct {
	source    Source
	parser    domain.LineParser
	overrides OverrideLoader
	table     ReadingAppender
	sinks     []sink
	cfg       Config
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu     sync.Mutex
	recent []string
	latest *domain.SensorReading
	last   *WindowResult
}

// New creates a Pipeline reading from source and persisting to table.
func New(source Source, parser domain.LineParser, overrides OverrideLoader, table ReadingAppender, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		source:    source,
		parser:    parser,
		overrides: overrides,
		table:     table,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// AddSink registers a best-effort publisher. Must be called before Run.
func (p *Pipeline) AddSink(name string, loader BatchLoader) {
	p.sinks = append(p.sinks, sink{name: name, loader: loader})
}

// SourceName returns the name of the configured telemetry source.
func (p *Pipeline) SourceName() string {
	return p.source.Name()
}

// Run executes polling windows until the context is cancelled or the source cannot be
// opened. Cancellation is observed between windows; an in-flight window is bounded by the
// window length plus the source's read timeout.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("telemetry ingestion started",
		"source", p.source.Name(),
		"window", p.cfg.Window,
		"refresh", p.cfg.Refresh,
	)
	p.metrics.IngestionRunning.Set(1)
	defer p.metrics.IngestionRunning.Set(0)

	// Consecutive failing windows back off from the idle wait up to maxBackoff.
	backoff := p.cfg.IdleWait
	maxBackoff := 30 * time.Second

	for {
		if ctx.Err() != nil {
			p.logger.Info("telemetry ingestion stopping", "reason", ctx.Err())
			return nil
		}

		res, err := p.RunWindow(ctx)
		var wait time.Duration
		switch {
		case errors.Is(err, ErrSourceUnavailable):
			return err
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("polling window failed", "error", err)
			p.metrics.WindowErrors.Inc()
			wait = backoff
			backoff = nextBackoff(backoff, maxBackoff)
		case res.Lines == 0:
			wait = p.cfg.IdleWait
			backoff = p.cfg.IdleWait
		default:
			wait = p.cfg.Refresh
			backoff = p.cfg.IdleWait
		}

		if !sleepWithContext(ctx, wait) {
			p.logger.Info("telemetry ingestion stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunWindow executes one polling window: open the source, read lines until the window
// elapses, then parse, persist and publish. A window without lines is not an error.
func (p *Pipeline) RunWindow(ctx context.Context) (WindowResult, error) {
	start := time.Now()
	res := WindowResult{WindowID: uuid.NewString()}

	reader, err := p.open(ctx)
	if err != nil {
		return res, err
	}
	lines := p.readWindow(ctx, reader)
	if err := reader.Close(); err != nil {
		p.logger.Warn("close telemetry source failed", "source", p.source.Name(), "error", err)
	}

	res.Lines = len(lines)
	p.metrics.LinesPerWindow.Observe(float64(len(lines)))
	if len(lines) == 0 {
		p.finish(&res, start)
		return res, nil
	}

	overrides, err := p.overrides.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load overrides: %w", err)
	}

	readings := make([]domain.SensorReading, 0, len(lines))
	for _, line := range lines {
		r, ok := p.parser.ParseLine(line, overrides)
		if !ok {
			res.Rejected++
			p.metrics.LinesRejected.Inc()
			continue
		}
		readings = append(readings, r)
		p.metrics.ReadingsParsed.Inc()
		p.metrics.RiskScore.Observe(r.RiskScore)
	}
	res.Parsed = len(readings)

	if len(readings) == 0 {
		p.finish(&res, start)
		return res, nil
	}
	p.setLatest(readings[len(readings)-1])

	rows, err := p.table.Append(ctx, readings)
	if err != nil {
		return res, fmt.Errorf("persist readings: %w", err)
	}
	res.TableRows = rows
	p.metrics.ReadingsPersisted.Add(float64(len(readings)))

	p.publish(ctx, domain.ReadingBatch{WindowID: res.WindowID, Readings: readings})
	p.finish(&res, start)
	p.logger.Info("polling window complete",
		"window_id", res.WindowID,
		"lines", res.Lines,
		"parsed", res.Parsed,
		"rejected", res.Rejected,
		"table_rows", res.TableRows,
	)
	return res, nil
}

// open tries the source up to OpenRetries times, RetryDelay apart.
func (p *Pipeline) open(ctx context.Context) (LineReader, error) {
	attempts := max(p.cfg.OpenRetries, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		reader, err := p.source.Open(ctx)
		if err == nil {
			return reader, nil
		}
		lastErr = err
		p.metrics.SourceOpenErrors.Inc()
		p.logger.Warn("open telemetry source failed",
			"source", p.source.Name(),
			"attempt", attempt,
			"attempts", attempts,
			"error", err,
		)
		if attempt < attempts && !sleepWithContext(ctx, p.cfg.RetryDelay) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrSourceUnavailable, p.source.Name(), attempts, lastErr)
}

// readWindow collects non-empty lines until the window elapses, the stream ends, or the
// reader fails.
func (p *Pipeline) readWindow(ctx context.Context, reader LineReader) []string {
	deadline := time.Now().Add(p.cfg.Window)

	var lines []string
	for time.Now().Before(deadline) && ctx.Err() == nil {
		raw, err := reader.ReadLine(ctx)
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("read telemetry line failed", "source", p.source.Name(), "error", err)
			}
			break
		}

		line := cleanLine(raw)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		p.metrics.LinesRead.Inc()
		p.remember(line)
	}
	return lines
}

func (p *Pipeline) publish(ctx context.Context, batch domain.ReadingBatch) {
	for _, s := range p.sinks {
		if err := s.loader.LoadBatch(ctx, batch); err != nil {
			p.logger.Warn("publish readings failed",
				"sink", s.name,
				"window_id", batch.WindowID,
				"readings", len(batch.Readings),
				"error", err,
			)
			p.metrics.PublishErrors.WithLabelValues(s.name).Inc()
		}
	}
}

func (p *Pipeline) finish(res *WindowResult, start time.Time) {
	res.Duration = time.Since(start)
	p.metrics.WindowDuration.Observe(res.Duration.Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()
	last := *res
	p.last = &last
}

// cleanLine drops invalid UTF-8 and surrounding whitespace.
func cleanLine(raw string) string {
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, "")
	}
	return strings.TrimSpace(raw)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
