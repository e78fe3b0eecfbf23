package domain

import (
	"crypto/md5" //nolint:gosec // positions only need a stable spread, not collision resistance
	"encoding/hex"
	"strconv"
)

// DefaultCenter is the map center the synthetic positions are spread around (Saltillo, MX).
var DefaultCenter = Geo{Lat: 25.4389, Lon: -100.9733}

// positionSpan is the full width of the bounding box, in degrees, on each axis.
const positionSpan = 0.18

// HashGeocoder derives a stable synthetic position from a sensor identifier.
// It holds no state besides the center, so the same ID always lands on the same point.
type HashGeocoder struct {
	Center Geo
}

// NewHashGeocoder creates a geocoder spreading sensors around center.
func NewHashGeocoder(center Geo) HashGeocoder {
	return HashGeocoder{Center: center}
}

// DerivePosition hashes the sensor ID and maps the first two digest bytes to an offset
// of at most ±0.09 degrees from the center.
func (g HashGeocoder) DerivePosition(sensorID string) Geo {
	sum := md5.Sum([]byte(sensorID)) //nolint:gosec // see import
	h := hex.EncodeToString(sum[:])
	j1 := hexByteFraction(h[0:2])
	j2 := hexByteFraction(h[2:4])
	return Geo{
		Lat: g.Center.Lat + (j1-0.5)*positionSpan,
		Lon: g.Center.Lon + (j2-0.5)*positionSpan,
	}
}

func hexByteFraction(pair string) float64 {
	v, _ := strconv.ParseUint(pair, 16, 8) // hex.EncodeToString output is always valid
	return float64(v) / 255.0
}

// ResolvePosition applies the position precedence for a sensor: an override always
// wins, then a position already carried by the reading, then the geocoder.
func ResolvePosition(r SensorReading, overrides map[string]Geo, g HashGeocoder) Geo {
	if o, ok := overrides[r.SensorID]; ok {
		return o
	}
	if r.HasPosition {
		return r.Position()
	}
	return g.DerivePosition(r.SensorID)
}

// ApplyPositions resolves the position of every reading, returning a new slice.
func ApplyPositions(readings []SensorReading, overrides map[string]Geo, g HashGeocoder) []SensorReading {
	out := make([]SensorReading, len(readings))
	for i, r := range readings {
		r.SetPosition(ResolvePosition(r, overrides, g))
		out[i] = r
	}
	return out
}
