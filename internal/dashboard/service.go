// Package dashboard prepares reading tables for presentation: positions resolved, scores
// recomputed with what-if weights, filtered and ordered.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
)

// ErrInvalidQuery is returned when query weights are not finite numbers.
var ErrInvalidQuery = errors.New("invalid query")

// ReadingLoader loads the persisted reading table.
type ReadingLoader interface {
	Load(ctx context.Context) ([]domain.SensorReading, error)
}

// OverrideStore reads and updates position overrides.
type OverrideStore interface {
	Load(ctx context.Context) (map[string]domain.Geo, error)
	Set(ctx context.Context, sensorID string, lat, lon *float64) error
}

// Query selects and scores readings.
type Query struct {
	Weights domain.Weights
	Labels  []domain.RiskLabel // empty keeps all labels
	Limit   int                // 0 means no limit
}

// DefaultQuery scores with the default weights and keeps everything.
func DefaultQuery() Query {
	return Query{Weights: domain.DefaultWeights()}
}

// Service answers dashboard questions from the persisted tables.
type Service struct {
	readings   ReadingLoader
	overrides  OverrideStore
	geocoder   domain.HashGeocoder
	thresholds domain.Thresholds
	logger     *slog.Logger
}

// NewService creates a Service over the given stores.
func NewService(readings ReadingLoader, overrides OverrideStore, geocoder domain.HashGeocoder, thresholds domain.Thresholds, logger *slog.Logger) *Service {
	return &Service{
		readings:   readings,
		overrides:  overrides,
		geocoder:   geocoder,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Model returns the risk model for w with the service thresholds.
func (s *Service) Model(w domain.Weights) domain.RiskModel {
	return domain.RiskModel{Weights: w, Thresholds: s.thresholds}
}

// Readings loads the table, re-applies overrides, fills missing positions, rescores with
// the query weights, filters by label and orders by descending score.
func (s *Service) Readings(ctx context.Context, q Query) ([]domain.SensorReading, error) {
	scored, err := s.scored(ctx, q.Weights)
	if err != nil {
		return nil, err
	}

	out := domain.FilterByLabel(scored, q.Labels...)
	domain.SortByRisk(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Summary computes the headline figures over the whole table scored with w.
func (s *Service) Summary(ctx context.Context, w domain.Weights) (domain.Summary, error) {
	scored, err := s.scored(ctx, w)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summarize(scored), nil
}

func (s *Service) scored(ctx context.Context, w domain.Weights) ([]domain.SensorReading, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	rows, err := s.readings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}
	overrides, err := s.overrides.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}

	positioned := domain.ApplyPositions(rows, overrides, s.geocoder)
	return s.Model(w).Rescore(positioned), nil
}

// Overrides returns the stored position overrides.
func (s *Service) Overrides(ctx context.Context) (map[string]domain.Geo, error) {
	return s.overrides.Load(ctx)
}

// SetOverride pins a sensor to a position.
func (s *Service) SetOverride(ctx context.Context, sensorID string, lat, lon *float64) error {
	return s.overrides.Set(ctx, sensorID, lat, lon)
}

// ParseTelemetry parses raw device text without persisting anything. Lines without a
// temperature token are skipped.
func (s *Service) ParseTelemetry(ctx context.Context, text string) ([]domain.SensorReading, error) {
	overrides, err := s.overrides.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}

	parser := domain.NewLineParser(s.geocoder, s.Model(domain.DefaultWeights()))
	readings := []domain.SensorReading{}
	for _, line := range strings.Split(text, "\n") {
		if r, ok := parser.ParseLine(strings.TrimSpace(line), overrides); ok {
			readings = append(readings, r)
		}
	}
	return readings, nil
}

// SimulatedHotspots returns the demo hotspot set around the map center, dated today.
func (s *Service) SimulatedHotspots() []domain.Hotspot {
	return domain.SimulatedHotspots(s.geocoder.Center, domain.Now())
}

// CheckReadiness returns nil when both stores can be read.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if _, err := s.readings.Load(ctx); err != nil {
		return fmt.Errorf("reading table: %w", err)
	}
	if _, err := s.overrides.Load(ctx); err != nil {
		return fmt.Errorf("override store: %w", err)
	}
	return nil
}
