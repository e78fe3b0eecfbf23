package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
)

// ErrInvalidOverride is returned by Set when the sensor ID is blank or a coordinate is
// missing or not a finite number. Nothing is written in that case.
var ErrInvalidOverride = errors.New("override needs a sensor id and valid lat and lon")

// OverrideStore persists operator-pinned sensor positions as one JSON object keyed by
// sensor ID. Every save rewrites the whole file.
type OverrideStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewOverrideStore creates a store backed by the JSON file at path.
func NewOverrideStore(path string, logger *slog.Logger) *OverrideStore {
	return &OverrideStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *OverrideStore) Path() string { return s.path }

// Load returns the stored overrides. A missing file yields an empty map; a file that is
// not a JSON object of {lat, lon} values is an error.
func (s *OverrideStore) Load(_ context.Context) (map[string]domain.Geo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save replaces the stored overrides with overrides.
func (s *OverrideStore) Save(_ context.Context, overrides map[string]domain.Geo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(overrides)
}

// Set pins sensorID to (lat, lon). It loads the current snapshot, applies the change and
// saves the whole table, so concurrent callers in this process never lose updates.
func (s *OverrideStore) Set(_ context.Context, sensorID string, lat, lon *float64) error {
	sensorID = strings.TrimSpace(sensorID)
	if sensorID == "" || !validCoordinate(lat) || !validCoordinate(lon) {
		return ErrInvalidOverride
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	overrides, err := s.load()
	if err != nil {
		return err
	}
	overrides[sensorID] = domain.Geo{Lat: *lat, Lon: *lon}
	if err := s.save(overrides); err != nil {
		return err
	}

	s.logger.Info("position override saved", "sensor_id", sensorID, "lat", *lat, "lon", *lon)
	return nil
}

func (s *OverrideStore) load() (map[string]domain.Geo, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]domain.Geo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}

	overrides := map[string]domain.Geo{}
	if len(bytes.TrimSpace(data)) == 0 {
		return overrides, nil
	}
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", s.path, err)
	}
	if overrides == nil {
		overrides = map[string]domain.Geo{}
	}
	return overrides, nil
}

func (s *OverrideStore) save(overrides map[string]domain.Geo) error {
	if overrides == nil {
		overrides = map[string]domain.Geo{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(overrides); err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}

	if err := writeFileAtomic(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save overrides: %w", err)
	}
	return nil
}

// ParseOverrideInput converts free-text coordinate inputs. Blank or non-numeric values
// come back nil so that Set rejects them.
func ParseOverrideInput(lat, lon string) (*float64, *float64) {
	return parseOptionalFloat(lat), parseOptionalFloat(lon)
}

func parseOptionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func validCoordinate(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
