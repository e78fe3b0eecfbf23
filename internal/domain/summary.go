package domain

import (
	"math"
	"sort"
)

const (
	// criticalScore is the score at or above which a reading counts as a critical alert.
	criticalScore = 0.8

	areaPerActiveKM2   = 2.0
	areaPerCriticalKM2 = 20.0
	maxAffectedAreaKM2 = 100.0

	// minAvgConfidencePct is the floor the dashboard applies to the average confidence.
	minAvgConfidencePct = 83.0
)

// Summary holds the headline figures of the risk dashboard.
type Summary struct {
	Readings          int     `json:"readings"`
	ActiveFires       int     `json:"active_fires"`
	CriticalAlerts    int     `json:"critical_alerts"`
	AffectedAreaKM2   float64 `json:"affected_area_km2"`
	AvgConfidencePct  float64 `json:"avg_confidence_pct"`
	HighestRiskSensor string  `json:"highest_risk_sensor,omitempty"`
}

// Summarize computes dashboard figures from already scored readings. An empty table
// yields an all-zero summary.
func Summarize(readings []SensorReading) Summary {
	s := Summary{Readings: len(readings)}
	if len(readings) == 0 {
		return s
	}

	var total float64
	best := readings[0]
	for _, r := range readings {
		if r.RiskLabel == RiskHigh {
			s.ActiveFires++
		}
		if r.RiskScore >= criticalScore {
			s.CriticalAlerts++
		}
		if r.RiskScore > best.RiskScore {
			best = r
		}
		total += r.RiskScore
	}

	area := float64(s.ActiveFires)*areaPerActiveKM2 + float64(s.CriticalAlerts)*areaPerCriticalKM2
	s.AffectedAreaKM2 = math.Round(math.Min(area, maxAffectedAreaKM2)*10) / 10
	s.AvgConfidencePct = math.Max(math.RoundToEven(total/float64(len(readings))*100), minAvgConfidencePct)
	s.HighestRiskSensor = best.SensorID
	return s
}

// FilterByLabel keeps readings whose label is in labels. No labels keeps everything.
func FilterByLabel(readings []SensorReading, labels ...RiskLabel) []SensorReading {
	if len(labels) == 0 {
		return readings
	}
	allowed := make(map[RiskLabel]bool, len(labels))
	for _, l := range labels {
		allowed[l] = true
	}
	out := make([]SensorReading, 0, len(readings))
	for _, r := range readings {
		if allowed[r.RiskLabel] {
			out = append(out, r)
		}
	}
	return out
}

// SortByRisk orders readings by descending score; ties keep table order.
func SortByRisk(readings []SensorReading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].RiskScore > readings[j].RiskScore
	})
}
