package domain

import (
	"fmt"
	"math"
)

// Route describes an emergency vehicle trip to an incident.
type Route struct {
	DistanceKM    float64 `json:"distance_km"`
	Traffic       int     `json:"traffic"` // 1 = free flowing, 10 = heavy
	Intersections int     `json:"intersections"`
}

// DefaultRoute mirrors the dashboard's initial slider positions.
func DefaultRoute() Route {
	return Route{DistanceKM: 8, Traffic: 6, Intersections: 12}
}

// Validate enforces the ranges the simulator supports.
func (r Route) Validate() error {
	if math.IsNaN(r.DistanceKM) || r.DistanceKM < 1 || r.DistanceKM > 25 {
		return fmt.Errorf("distance_km must be within [1,25], got %v", r.DistanceKM)
	}
	if r.Traffic < 1 || r.Traffic > 10 {
		return fmt.Errorf("traffic must be within [1,10], got %d", r.Traffic)
	}
	if r.Intersections < 2 || r.Intersections > 30 {
		return fmt.Errorf("intersections must be within [2,30], got %d", r.Intersections)
	}
	return nil
}

// ETA compares arrival times with and without signal pre-emption, in minutes.
type ETA struct {
	WithoutPriorityMin float64 `json:"without_priority_min"`
	WithPriorityMin    float64 `json:"with_priority_min"`
	SavedMin           float64 `json:"saved_min"`
}

const (
	baseSpeedKMH     = 60.0
	minSpeedKMH      = 15.0
	trafficSlowdown  = 0.06
	priorityCapKMH   = 120.0
	greenWavePerStop = 0.5
	maxGreenWaveMin  = 8.0
	driverAlertGain  = 0.4
)

// EstimateETA applies the green-wave and driver-alert model. The priority ETA never
// drops below the time needed at 120 km/h.
func EstimateETA(r Route) ETA {
	speed := math.Max(minSpeedKMH, baseSpeedKMH*(1-float64(r.Traffic-1)*trafficSlowdown))
	without := r.DistanceKM / speed * 60

	greenWave := math.Min(greenWavePerStop*float64(r.Intersections), maxGreenWaveMin)
	alert := driverAlertGain * float64(11-r.Traffic)
	with := math.Max(without-greenWave-alert, r.DistanceKM/priorityCapKMH*60)

	return ETA{
		WithoutPriorityMin: without,
		WithPriorityMin:    with,
		SavedMin:           without - with,
	}
}
