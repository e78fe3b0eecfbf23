package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
)

// Columns is the fixed header of the reading table file, in order.
var Columns = []string{
	"sensor_id", "lat", "lon", "timestamp",
	"temp_c", "humidity_pct", "wind_ms", "smoke_ppm", "fuel_dryness",
	"risk_score", "risk_label",
}

// timestampLayouts are accepted when loading; rows are always written with
// domain.TimestampLayout.
var timestampLayouts = []string{
	domain.TimestampLayout,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
}

// legacyLabels maps labels written by earlier dashboard versions.
var legacyLabels = map[string]domain.RiskLabel{
	"Alto":  domain.RiskHigh,
	"Medio": domain.RiskMedium,
	"Bajo":  domain.RiskLow,
}

// ReadingTable is the flat-file reading table. Writes replace the whole file atomically.
type ReadingTable struct {
	path     string
	geocoder domain.HashGeocoder
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewReadingTable creates a table backed by the CSV file at path. The geocoder fills in
// positions for rows that reach persistence without one.
func NewReadingTable(path string, geocoder domain.HashGeocoder, logger *slog.Logger) *ReadingTable {
	return &ReadingTable{path: path, geocoder: geocoder, logger: logger}
}

// Path returns the backing file path.
func (t *ReadingTable) Path() string { return t.path }

// Load reads the table. A missing or empty file is an empty table. Rows without a sensor
// ID or with an unparseable timestamp are skipped with a warning.
func (t *ReadingTable) Load(_ context.Context) ([]domain.SensorReading, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}

// MergeAndPersist merges incoming into existing (incoming wins per key) and rewrites the
// file with the result, which it returns.
func (t *ReadingTable) MergeAndPersist(_ context.Context, existing, incoming []domain.SensorReading) ([]domain.SensorReading, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mergeAndPersist(existing, incoming)
}

// Append loads the current table, merges incoming into it and persists the result while
// holding the table lock. It returns the resulting row count.
func (t *ReadingTable) Append(_ context.Context, incoming []domain.SensorReading) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, err := t.load()
	if err != nil {
		return 0, err
	}
	merged, err := t.mergeAndPersist(existing, incoming)
	if err != nil {
		return 0, err
	}
	return len(merged), nil
}

func (t *ReadingTable) load() ([]domain.SensorReading, error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.SensorReading{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open reading table: %w", err)
	}
	defer f.Close()

	readings, err := DecodeReadings(f, t.logger)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", t.path, err)
	}
	return readings, nil
}

func (t *ReadingTable) mergeAndPersist(existing, incoming []domain.SensorReading) ([]domain.SensorReading, error) {
	merged := domain.MergeReadings(existing, incoming)
	for i := range merged {
		if !merged[i].HasPosition {
			merged[i].SetPosition(t.geocoder.DerivePosition(merged[i].SensorID))
		}
	}

	var buf bytes.Buffer
	if err := EncodeReadings(&buf, merged); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(t.path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("persist reading table: %w", err)
	}

	t.logger.Debug("reading table persisted",
		"path", t.path,
		"existing", len(existing),
		"incoming", len(incoming),
		"rows", len(merged),
	)
	return merged, nil
}

// DecodeReadings parses a reading table CSV. Columns are matched by header name, so
// order does not matter and absent columns read as missing values. The sensor_id and
// timestamp columns are required.
func DecodeReadings(r io.Reader, logger *slog.Logger) ([]domain.SensorReading, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []domain.SensorReading{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	indices := make(map[string]int, len(header))
	for i, h := range header {
		indices[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"sensor_id", "timestamp"} {
		if _, ok := indices[required]; !ok {
			return nil, fmt.Errorf("missing %s column", required)
		}
	}

	readings := []domain.SensorReading{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		r, err := decodeRow(record, indices)
		if err != nil {
			logger.Warn("skipping reading row", "line", line, "error", err)
			continue
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func decodeRow(record []string, indices map[string]int) (domain.SensorReading, error) {
	get := func(key string) string {
		if idx, ok := indices[key]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	var r domain.SensorReading
	r.SensorID = get("sensor_id")
	if r.SensorID == "" {
		return r, errors.New("missing sensor_id")
	}

	ts, err := parseTimestamp(get("timestamp"))
	if err != nil {
		return r, err
	}
	r.Timestamp = ts

	lat, lon := parseOptionalFloat(get("lat")), parseOptionalFloat(get("lon"))
	if validCoordinate(lat) && validCoordinate(lon) {
		r.SetPosition(domain.Geo{Lat: *lat, Lon: *lon})
	}

	r.TempC = measurement(get("temp_c"))
	r.HumidityPct = measurement(get("humidity_pct"))
	r.WindMS = measurement(get("wind_ms"))
	r.SmokePPM = measurement(get("smoke_ppm"))
	r.FuelDryness = measurement(get("fuel_dryness"))

	if s := measurement(get("risk_score")); s != nil {
		r.RiskScore = *s
	}
	r.RiskLabel = normalizeLabel(get("risk_label"))
	return r, nil
}

// EncodeReadings writes readings as CSV with the fixed Columns header. Missing
// measurements are written as empty cells.
func EncodeReadings(w io.Writer, readings []domain.SensorReading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range readings {
		row := []string{
			r.SensorID,
			formatFloat(r.Lat),
			formatFloat(r.Lon),
			r.Timestamp.Format(domain.TimestampLayout),
			formatOptional(r.TempC),
			formatOptional(r.HumidityPct),
			formatOptional(r.WindMS),
			formatOptional(r.SmokePPM),
			formatOptional(r.FuelDryness),
			formatFloat(r.RiskScore),
			string(r.RiskLabel),
		}
		if !r.HasPosition {
			row[1], row[2] = "", ""
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", r.SensorID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush readings: %w", err)
	}
	return nil
}

// parseTimestamp tries the accepted layouts; zone-less values are local time. The
// result is truncated to the second.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", s)
}

// measurement parses an optional numeric cell; empty, NaN and infinite cells are missing.
func measurement(s string) *float64 {
	v := parseOptionalFloat(s)
	if !validCoordinate(v) {
		return nil
	}
	return v
}

func normalizeLabel(s string) domain.RiskLabel {
	if l, ok := legacyLabels[s]; ok {
		return l
	}
	return domain.RiskLabel(s)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
