package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	"github.com/couchcryptid/pyroguard-risk-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, readings []domain.SensorReading) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, store.EncodeReadings(&b, readings))
	path := filepath.Join(t.TempDir(), "readings.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func scoredReading(id string) domain.SensorReading {
	r := domain.SensorReading{
		SensorID:    id,
		Timestamp:   domain.Now(),
		TempC:       domain.Float(35),
		HumidityPct: domain.Float(20),
		WindMS:      domain.Float(6),
	}
	r.SetPosition(domain.DefaultCenter)
	return domain.DefaultRiskModel().Apply(r)
}

func TestValidTablePasses(t *testing.T) {
	path := writeTable(t, []domain.SensorReading{scoredReading("S-1"), scoredReading("S-2")})

	header, rows, err := loadCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	model := domain.DefaultRiskModel()
	for _, p := range []*phase{validateHeader(header), validateRows(rows), validateKeys(rows), validateScores(rows, model)} {
		assert.True(t, p.passed(), "%s: %v", p.name, p.errors)
	}
	assert.Equal(t, 0, run(path, ""))
}

func TestValidateDetectsProblems(t *testing.T) {
	t.Run("header order", func(t *testing.T) {
		p := validateHeader([]string{"timestamp", "sensor_id"})
		assert.False(t, p.passed())
	})

	t.Run("duplicate key", func(t *testing.T) {
		r := scoredReading("S-1")
		path := writeTable(t, []domain.SensorReading{r, r})
		_, rows, err := loadCSV(path)
		require.NoError(t, err)

		p := validateKeys(rows)
		require.Len(t, p.errors, 1)
		assert.Contains(t, p.errors[0], "duplicate of line 2")
	})

	t.Run("label inconsistent with score", func(t *testing.T) {
		r := scoredReading("S-1")
		r.RiskLabel = domain.RiskHigh
		r.RiskScore = 0.1
		path := writeTable(t, []domain.SensorReading{r})
		_, rows, err := loadCSV(path)
		require.NoError(t, err)

		p := validateScores(rows, domain.DefaultRiskModel())
		assert.False(t, p.passed())
	})

	t.Run("missing position", func(t *testing.T) {
		r := scoredReading("S-1")
		r.HasPosition = false
		path := writeTable(t, []domain.SensorReading{r})
		_, rows, err := loadCSV(path)
		require.NoError(t, err)

		p := validateRows(rows)
		require.Len(t, p.errors, 1)
		assert.Contains(t, p.errors[0], "missing position")
	})
}

func TestValidateOverrides(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"S-1": {"lat": 25.4, "lon": -101.0}}`), 0o644))
	assert.True(t, validateOverrides(good).passed())

	outOfRange := filepath.Join(dir, "range.json")
	require.NoError(t, os.WriteFile(outOfRange, []byte(`{"S-1": {"lat": 125.4, "lon": -101.0}}`), 0o644))
	assert.False(t, validateOverrides(outOfRange).passed())

	malformed := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(malformed, []byte(`[1,2]`), 0o644))
	assert.False(t, validateOverrides(malformed).passed())
}
