package domain

import (
	"time"
)

// TimestampLayout is the persisted timestamp format: ISO-8601 local time, second precision.
const TimestampLayout = "2006-01-02T15:04:05"

// LiveSensorID identifies readings that came from the live device feed.
const LiveSensorID = "Arduino-Live"

// RiskLabel is the discrete risk class derived from a risk score.
type RiskLabel string

const (
	RiskLow    RiskLabel = "Low"
	RiskMedium RiskLabel = "Medium"
	RiskHigh   RiskLabel = "High"
)

// Valid reports whether l is one of the three known labels.
func (l RiskLabel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SensorReading is one timestamped observation with position and derived risk.
// Measurement fields are nil when the sensor did not report them.
type SensorReading struct {
	SensorID    string    `json:"sensor_id"`
	Timestamp   time.Time `json:"timestamp"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	TempC       *float64  `json:"temp_c"`
	HumidityPct *float64  `json:"humidity_pct"`
	WindMS      *float64  `json:"wind_ms"`
	SmokePPM    *float64  `json:"smoke_ppm"`
	FuelDryness *float64  `json:"fuel_dryness"`
	RiskScore   float64   `json:"risk_score"`
	RiskLabel   RiskLabel `json:"risk_label"`

	// HasPosition is false for loaded rows whose lat/lon columns were empty.
	HasPosition bool `json:"-"`
}

// Key identifies a reading within a reading table.
type Key struct {
	SensorID  string
	Timestamp string
}

// Key returns the deduplication key of the reading.
func (r SensorReading) Key() Key {
	return Key{SensorID: r.SensorID, Timestamp: r.Timestamp.Format(TimestampLayout)}
}

// Position returns the reading's coordinate.
func (r SensorReading) Position() Geo {
	return Geo{Lat: r.Lat, Lon: r.Lon}
}

// SetPosition stores a coordinate on the reading and marks it as positioned.
func (r *SensorReading) SetPosition(g Geo) {
	r.Lat = g.Lat
	r.Lon = g.Lon
	r.HasPosition = true
}

// Float returns a pointer to v, for populating optional measurements.
func Float(v float64) *float64 {
	return &v
}

// valueOrZero is the scorer's treatment of missing measurements.
func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// ReadingBatch is the set of readings persisted by one polling window.
type ReadingBatch struct {
	WindowID string
	Readings []SensorReading
}
