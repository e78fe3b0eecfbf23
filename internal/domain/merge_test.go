package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(id string, ts time.Time, temp float64) SensorReading {
	r := SensorReading{SensorID: id, Timestamp: ts, TempC: Float(temp)}
	r.SetPosition(Geo{Lat: 25.4, Lon: -101})
	return DefaultRiskModel().Apply(r)
}

func TestMergeReadings(t *testing.T) {
	t0 := time.Date(2025, time.October, 4, 10, 0, 0, 0, time.Local)
	t1 := t0.Add(time.Second)
	t2 := t0.Add(2 * time.Second)

	existing := []SensorReading{
		reading("S-1", t0, 20),
		reading("S-1", t1, 21),
		reading("S-2", t0, 22),
	}

	t.Run("incoming supersedes existing", func(t *testing.T) {
		incoming := []SensorReading{reading("S-1", t1, 35), reading("S-1", t2, 36)}
		out := MergeReadings(existing, incoming)

		require.Len(t, out, 4)
		assert.Equal(t, Key{"S-1", t0.Format(TimestampLayout)}, out[0].Key())
		assert.Equal(t, Key{"S-2", t0.Format(TimestampLayout)}, out[1].Key())
		assert.Equal(t, 35.0, *out[2].TempC, "replacement row, not a field merge")
		assert.Equal(t, 36.0, *out[3].TempC)
	})

	t.Run("duplicates inside one batch keep the last", func(t *testing.T) {
		incoming := []SensorReading{reading("S-3", t0, 1), reading("S-3", t0, 2)}
		out := MergeReadings(nil, incoming)
		require.Len(t, out, 1)
		assert.Equal(t, 2.0, *out[0].TempC)
	})

	t.Run("sub-second differences collapse", func(t *testing.T) {
		a := reading("S-4", t0, 1)
		b := reading("S-4", t0.Add(300*time.Millisecond), 2)
		out := MergeReadings([]SensorReading{a}, []SensorReading{b})
		require.Len(t, out, 1)
		assert.Equal(t, 2.0, *out[0].TempC)
	})

	t.Run("idempotent", func(t *testing.T) {
		incoming := []SensorReading{reading("S-1", t2, 40), reading("S-5", t1, 18)}
		first := MergeReadings(existing, incoming)
		second := MergeReadings(first, incoming)

		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("second merge changed the table (-first +second):\n%s", diff)
		}
	})

	t.Run("empty inputs", func(t *testing.T) {
		assert.Empty(t, MergeReadings(nil, nil))
	})

	t.Run("inputs untouched", func(t *testing.T) {
		before := append([]SensorReading(nil), existing...)
		_ = MergeReadings(existing, []SensorReading{reading("S-1", t0, 99)})
		assert.Equal(t, before, existing)
	})
}
