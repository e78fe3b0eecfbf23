package domain

import (
	"errors"
	"fmt"
	"math"
)

// Weights are the coefficients of the logistic risk scorer.
type Weights struct {
	Temp     float64 `json:"w_temp"`
	Humidity float64 `json:"w_hum"`
	Wind     float64 `json:"w_wind"`
	Dryness  float64 `json:"w_dry"`
	Smoke    float64 `json:"w_smoke"`
	Bias     float64 `json:"bias"`
}

// DefaultWeights returns the documented default coefficients.
func DefaultWeights() Weights {
	return Weights{
		Temp:     0.12,
		Humidity: -0.06,
		Wind:     0.18,
		Dryness:  1.20,
		Smoke:    0.22,
		Bias:     -3.0,
	}
}

// Validate rejects NaN and infinite coefficients.
func (w Weights) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"w_temp", w.Temp}, {"w_hum", w.Humidity}, {"w_wind", w.Wind},
		{"w_dry", w.Dryness}, {"w_smoke", w.Smoke}, {"bias", w.Bias},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("weight %s must be finite", f.name)
		}
	}
	return nil
}

// Thresholds are the lower score bounds of the Medium and High labels.
type Thresholds struct {
	High   float64
	Medium float64
}

// DefaultThresholds returns the documented label cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.66, Medium: 0.33}
}

// Validate checks that both thresholds lie in [0,1] and Medium does not exceed High.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.High) || t.High < 0 || t.High > 1 {
		return errors.New("high threshold must be within [0,1]")
	}
	if math.IsNaN(t.Medium) || t.Medium < 0 || t.Medium > 1 {
		return errors.New("medium threshold must be within [0,1]")
	}
	if t.Medium > t.High {
		return errors.New("medium threshold must not exceed high threshold")
	}
	return nil
}

// RiskModel is a fixed logistic scorer. Missing measurements count as zero.
type RiskModel struct {
	Weights    Weights
	Thresholds Thresholds
}

// DefaultRiskModel returns a model with default weights and thresholds.
func DefaultRiskModel() RiskModel {
	return RiskModel{Weights: DefaultWeights(), Thresholds: DefaultThresholds()}
}

// WithWeights returns a copy of the model using w.
func (m RiskModel) WithWeights(w Weights) RiskModel {
	m.Weights = w
	return m
}

// Score maps the reading's measurements to a value in [0,1].
func (m RiskModel) Score(r SensorReading) float64 {
	w := m.Weights
	z := w.Temp*valueOrZero(r.TempC) +
		w.Humidity*valueOrZero(r.HumidityPct) +
		w.Wind*valueOrZero(r.WindMS) +
		w.Dryness*valueOrZero(r.FuelDryness) +
		w.Smoke*valueOrZero(r.SmokePPM) +
		w.Bias
	return 1 / (1 + math.Exp(-z))
}

// Label classifies a score: >= High is High, >= Medium is Medium, otherwise Low.
func (m RiskModel) Label(score float64) RiskLabel {
	switch {
	case score >= m.Thresholds.High:
		return RiskHigh
	case score >= m.Thresholds.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Apply recomputes the reading's score and label.
func (m RiskModel) Apply(r SensorReading) SensorReading {
	r.RiskScore = m.Score(r)
	r.RiskLabel = m.Label(r.RiskScore)
	return r
}

// Rescore applies the model to every reading, returning a new slice.
func (m RiskModel) Rescore(readings []SensorReading) []SensorReading {
	out := make([]SensorReading, len(readings))
	for i, r := range readings {
		out[i] = m.Apply(r)
	}
	return out
}
