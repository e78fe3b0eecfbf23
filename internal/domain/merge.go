package domain

// MergeReadings appends incoming after existing and drops every row whose key appears
// again later, so the most recently ingested row for a (sensor_id, timestamp) pair wins.
// Survivors keep their relative order. Neither input is modified.
func MergeReadings(existing, incoming []SensorReading) []SensorReading {
	combined := make([]SensorReading, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	combined = append(combined, incoming...)

	lastIndex := make(map[Key]int, len(combined))
	for i, r := range combined {
		lastIndex[r.Key()] = i
	}

	out := make([]SensorReading, 0, len(lastIndex))
	for i, r := range combined {
		if lastIndex[r.Key()] == i {
			out = append(out, r)
		}
	}
	return out
}
