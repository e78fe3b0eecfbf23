package domain

import (
	"regexp"
	"strconv"
)

var (
	// Labeled numeric tokens, e.g. "T:25.4 H:60 W:3.2 SM:120 DRY:0.7". Matching is
	// order independent and ignores any surrounding text.
	tempRe     = regexp.MustCompile(`T:(\d+\.?\d*)`)
	humidityRe = regexp.MustCompile(`H:(\d+\.?\d*)`)
	windRe     = regexp.MustCompile(`W:(\d+\.?\d*)`)
	smokeRe    = regexp.MustCompile(`SM:(\d+\.?\d*)`)
	drynessRe  = regexp.MustCompile(`DRY:(\d+\.?\d*)`)
)

// LineParser turns raw device text into scored, positioned readings.
type LineParser struct {
	Geocoder HashGeocoder
	Model    RiskModel
}

// NewLineParser creates a parser that positions readings with g and scores them with m.
func NewLineParser(g HashGeocoder, m RiskModel) LineParser {
	return LineParser{Geocoder: g, Model: m}
}

// ParseLine extracts a reading from one line of telemetry. It returns false when the line
// carries no temperature token; every other measurement is optional. The reading is
// attributed to the live device feed, stamped with the current second, positioned from the
// override snapshot (or the geocoder) and scored.
func (p LineParser) ParseLine(line string, overrides map[string]Geo) (SensorReading, bool) {
	temp := matchFloat(tempRe, line)
	if temp == nil {
		return SensorReading{}, false
	}

	r := SensorReading{
		SensorID:    LiveSensorID,
		Timestamp:   Now(),
		TempC:       temp,
		HumidityPct: matchFloat(humidityRe, line),
		WindMS:      matchFloat(windRe, line),
		SmokePPM:    matchFloat(smokeRe, line),
		FuelDryness: matchFloat(drynessRe, line),
	}
	r.SetPosition(ResolvePosition(r, overrides, p.Geocoder))
	return p.Model.Apply(r), true
}

// matchFloat returns the first captured number for re in line, or nil.
func matchFloat(re *regexp.Regexp, line string) *float64 {
	m := re.FindStringSubmatch(line)
	if len(m) != 2 {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}
