package dashboard_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/pyroguard-risk-service/internal/dashboard"
	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	"github.com/couchcryptid/pyroguard-risk-service/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = `sensor_id,lat,lon,timestamp,temp_c,humidity_pct,wind_ms,smoke_ppm,fuel_dryness,risk_score,risk_label
S-1001,25.41,-100.95,2025-08-01T12:00:00,20,80,1,0,0.1,0.99,High
S-1002,25.42,-100.96,2025-08-01T12:00:00,40,10,8,50,0.9,0.01,Low
S-1003,,,2025-08-01T12:00:00,30,40,3,2,0.5,0.5,Medium
`

type fixture struct {
	svc       *dashboard.Service
	overrides *store.OverrideStore
	geocoder  domain.HashGeocoder
}

func newFixture(t *testing.T, content string) fixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	geocoder := domain.NewHashGeocoder(domain.DefaultCenter)

	readingsPath := filepath.Join(dir, "readings.csv")
	if content != "" {
		require.NoError(t, os.WriteFile(readingsPath, []byte(content), 0o644))
	}
	readings := store.NewReadingTable(readingsPath, geocoder, logger)
	overrides := store.NewOverrideStore(filepath.Join(dir, "overrides.json"), logger)

	return fixture{
		svc:       dashboard.NewService(readings, overrides, geocoder, domain.DefaultThresholds(), logger),
		overrides: overrides,
		geocoder:  geocoder,
	}
}

func TestService_ReadingsRescoresAndSorts(t *testing.T) {
	f := newFixture(t, table)

	got, err := f.svc.Readings(context.Background(), dashboard.DefaultQuery())
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Stored scores are ignored; the hot, dry, smoky sensor ranks first.
	assert.Equal(t, "S-1002", got[0].SensorID)
	assert.Equal(t, domain.RiskHigh, got[0].RiskLabel)
	model := domain.DefaultRiskModel()
	for _, r := range got {
		assert.InDelta(t, model.Score(r), r.RiskScore, 1e-12)
		assert.Equal(t, model.Label(r.RiskScore), r.RiskLabel)
	}
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].RiskScore, got[i].RiskScore)
	}
}

func TestService_ReadingsFillsMissingPositions(t *testing.T) {
	f := newFixture(t, table)

	got, err := f.svc.Readings(context.Background(), dashboard.DefaultQuery())
	require.NoError(t, err)

	for _, r := range got {
		if r.SensorID == "S-1003" {
			assert.Equal(t, f.geocoder.DerivePosition("S-1003"), r.Position())
			return
		}
	}
	t.Fatal("S-1003 missing")
}

func TestService_ReadingsOverrideWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, table)
	require.NoError(t, f.svc.SetOverride(ctx, "S-1001", domain.Float(26), domain.Float(-101.5)))

	got, err := f.svc.Readings(ctx, dashboard.DefaultQuery())
	require.NoError(t, err)
	for _, r := range got {
		if r.SensorID == "S-1001" {
			assert.Equal(t, domain.Geo{Lat: 26, Lon: -101.5}, r.Position())
		}
	}
}

func TestService_ReadingsFilterAndLimit(t *testing.T) {
	f := newFixture(t, table)

	q := dashboard.DefaultQuery()
	q.Labels = []domain.RiskLabel{domain.RiskLow}
	got, err := f.svc.Readings(context.Background(), q)
	require.NoError(t, err)
	for _, r := range got {
		assert.Equal(t, domain.RiskLow, r.RiskLabel)
	}

	q = dashboard.DefaultQuery()
	q.Limit = 1
	got, err = f.svc.Readings(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestService_ReadingsWhatIfWeights(t *testing.T) {
	f := newFixture(t, table)

	q := dashboard.DefaultQuery()
	q.Weights = domain.Weights{Bias: 10}
	got, err := f.svc.Readings(context.Background(), q)
	require.NoError(t, err)
	for _, r := range got {
		assert.Equal(t, domain.RiskHigh, r.RiskLabel)
	}
}

func TestService_ReadingsRejectsNonFiniteWeights(t *testing.T) {
	f := newFixture(t, table)

	q := dashboard.DefaultQuery()
	q.Weights.Temp = math.NaN()
	_, err := f.svc.Readings(context.Background(), q)
	require.ErrorIs(t, err, dashboard.ErrInvalidQuery)
}

func TestService_ReadingsEmptyTable(t *testing.T) {
	f := newFixture(t, "")

	got, err := f.svc.Readings(context.Background(), dashboard.DefaultQuery())
	require.NoError(t, err)
	assert.Empty(t, got)

	summary, err := f.svc.Summary(context.Background(), domain.DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{}, summary)
}

func TestService_Summary(t *testing.T) {
	f := newFixture(t, table)

	summary, err := f.svc.Summary(context.Background(), domain.DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Readings)
	assert.Equal(t, "S-1002", summary.HighestRiskSensor)
	assert.GreaterOrEqual(t, summary.AvgConfidencePct, 83.0)
}

func TestService_ParseTelemetry(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, time.August, 1, 12, 0, 0, 0, time.Local)))
	t.Cleanup(func() { domain.SetClock(nil) })
	f := newFixture(t, "")

	got, err := f.svc.ParseTelemetry(context.Background(), "T:25.4 H:60 W:3.2\nno temperature here\n\nT:40 SM:500 DRY:0.9\n")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.RiskHigh, got[1].RiskLabel)
	assert.Nil(t, got[0].SmokePPM)
}

func TestService_CheckReadiness(t *testing.T) {
	f := newFixture(t, table)
	require.NoError(t, f.svc.CheckReadiness(context.Background()))

	require.NoError(t, os.WriteFile(f.overrides.Path(), []byte("not json"), 0o644))
	err := f.svc.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "override store")
}

func TestService_SimulatedHotspots(t *testing.T) {
	f := newFixture(t, "")
	hs := f.svc.SimulatedHotspots()
	require.Len(t, hs, 3)
	assert.InDelta(t, domain.DefaultCenter.Lat+0.05, hs[0].Lat, 1e-12)
}
