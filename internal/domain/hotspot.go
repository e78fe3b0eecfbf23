package domain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrNoCoordinateColumns is returned when a hotspot table has no latitude/longitude columns.
var ErrNoCoordinateColumns = errors.New("no latitude/longitude columns found")

// Hotspot is one satellite thermal anomaly (NASA FIRMS style).
type Hotspot struct {
	Lat        float64  `json:"latitude"`
	Lon        float64  `json:"longitude"`
	Date       string   `json:"date,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
}

// Accepted header names per field, in order of preference.
var (
	latColumns        = []string{"latitude", "lat"}
	lonColumns        = []string{"longitude", "lon", "long"}
	dateColumns       = []string{"acq_date", "date"}
	brightnessColumns = []string{"bright_ti4", "brightness", "bright_ti5"}
)

// ParseHotspots reads a FIRMS-like CSV. Header matching is case-insensitive and accepts
// the usual FIRMS aliases. Rows with unparseable coordinates are skipped and counted.
func ParseHotspots(r io.Reader) ([]Hotspot, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read hotspot header: %w", err)
	}

	indices := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := indices[key]; !dup {
			indices[key] = i
		}
	}

	latIdx := firstColumn(indices, latColumns)
	lonIdx := firstColumn(indices, lonColumns)
	if latIdx < 0 || lonIdx < 0 {
		return nil, 0, ErrNoCoordinateColumns
	}
	dateIdx := firstColumn(indices, dateColumns)
	brightIdx := firstColumn(indices, brightnessColumns)

	var (
		hotspots []Hotspot
		skipped  int
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return hotspots, skipped, fmt.Errorf("read hotspot line %d: %w", line, err)
		}

		lat, okLat := finiteField(record, latIdx)
		lon, okLon := finiteField(record, lonIdx)
		if !okLat || !okLon {
			skipped++
			continue
		}

		h := Hotspot{Lat: lat, Lon: lon, Date: field(record, dateIdx)}
		if v, ok := finiteField(record, brightIdx); ok {
			h.Brightness = &v
		}
		hotspots = append(hotspots, h)
	}
	return hotspots, skipped, nil
}

// SimulatedHotspots returns three demo hotspots around center, dated on day.
func SimulatedHotspots(center Geo, day time.Time) []Hotspot {
	date := day.Format("2006-01-02")
	return []Hotspot{
		{Lat: center.Lat + 0.05, Lon: center.Lon - 0.06, Date: date, Brightness: Float(330.1)},
		{Lat: center.Lat - 0.07, Lon: center.Lon + 0.03, Date: date, Brightness: Float(342.5)},
		{Lat: center.Lat + 0.12, Lon: center.Lon + 0.08, Date: date, Brightness: Float(318.9)},
	}
}

func firstColumn(indices map[string]int, names []string) int {
	for _, n := range names {
		if i, ok := indices[n]; ok {
			return i
		}
	}
	return -1
}

// finiteField parses a numeric cell, rejecting NaN and infinities.
func finiteField(record []string, idx int) (float64, bool) {
	v, err := strconv.ParseFloat(field(record, idx), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
