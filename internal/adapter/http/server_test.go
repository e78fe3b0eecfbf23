package http_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	httpadapter "github.com/couchcryptid/pyroguard-risk-service/internal/adapter/http"
	"github.com/couchcryptid/pyroguard-risk-service/internal/dashboard"
	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	"github.com/couchcryptid/pyroguard-risk-service/internal/pipeline"
	"github.com/couchcryptid/pyroguard-risk-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = `sensor_id,lat,lon,timestamp,temp_c,humidity_pct,wind_ms,smoke_ppm,fuel_dryness,risk_score,risk_label
S-1001,25.41,-100.95,2025-08-01T12:00:00,20,80,1,0,0.1,0.2,Low
S-1002,25.42,-100.96,2025-08-01T12:00:00,40,10,8,50,0.9,0.99,High
`

type mockIngestion struct {
	started int
	stopped int
	state   pipeline.State
}

func (m *mockIngestion) Start(_ context.Context) {
	m.started++
	m.state = pipeline.StateRunning
}

func (m *mockIngestion) Stop(_ context.Context) error {
	m.stopped++
	m.state = pipeline.StateStopped
	return nil
}

func (m *mockIngestion) Status() pipeline.Status {
	return pipeline.Status{State: m.state, Source: "serial:/dev/ttyACM0"}
}

type testEnv struct {
	srv           *httpadapter.Server
	overridesPath string
}

func newTestEnv(t *testing.T, ingestion httpadapter.Ingestion) testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	geocoder := domain.NewHashGeocoder(domain.DefaultCenter)

	readingsPath := filepath.Join(dir, "readings.csv")
	require.NoError(t, os.WriteFile(readingsPath, []byte(table), 0o644))
	overridesPath := filepath.Join(dir, "overrides.json")

	svc := dashboard.NewService(
		store.NewReadingTable(readingsPath, geocoder, logger),
		store.NewOverrideStore(overridesPath, logger),
		geocoder,
		domain.DefaultThresholds(),
		logger,
	)
	return testEnv{
		srv:           httpadapter.NewServer(":0", svc, ingestion, []string{"*"}, logger),
		overridesPath: overridesPath,
	}
}

func (e testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type readingsResponse struct {
	Count    int                    `json:"count"`
	Readings []domain.SensorReading `json:"readings"`
}

func TestHealthzReturns200(t *testing.T) {
	rec := newTestEnv(t, nil).do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenStoresReadable(t *testing.T) {
	rec := newTestEnv(t, nil).do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenOverridesMalformed(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.WriteFile(env.overridesPath, []byte("{"), 0o644))

	rec := env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newTestEnv(t, nil).do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestReadings_DefaultWeights(t *testing.T) {
	rec := newTestEnv(t, nil).do(t, http.MethodGet, "/api/v1/readings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[readingsResponse](t, rec)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "S-1002", body.Readings[0].SensorID)
	assert.Equal(t, domain.RiskHigh, body.Readings[0].RiskLabel)
}

func TestReadings_LabelFilterAndWeights(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/readings?label=Low", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[readingsResponse](t, rec)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "S-1001", body.Readings[0].SensorID)

	rec = env.do(t, http.MethodGet, "/api/v1/readings?w_temp=0&w_hum=0&w_wind=0&w_dry=0&w_smoke=0&bias=5&label=Medium,High", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[readingsResponse](t, rec)
	assert.Equal(t, 2, body.Count)
}

func TestReadings_BadQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, target := range []string{
		"/api/v1/readings?w_temp=hot",
		"/api/v1/readings?bias=NaN",
		"/api/v1/readings?label=Extreme",
		"/api/v1/readings?limit=-1",
	} {
		rec := env.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestSummary(t *testing.T) {
	rec := newTestEnv(t, nil).do(t, http.MethodGet, "/api/v1/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	summary := decode[domain.Summary](t, rec)
	assert.Equal(t, 2, summary.Readings)
	assert.Equal(t, 1, summary.ActiveFires)
	assert.Equal(t, "S-1002", summary.HighestRiskSensor)
}

func TestOverrides_SetAndList(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/v1/overrides/S-1001", `{"lat": 25.5, "lon": -101.1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/overrides", "")
	require.Equal(t, http.StatusOK, rec.Code)
	overrides := decode[map[string]domain.Geo](t, rec)
	assert.Equal(t, domain.Geo{Lat: 25.5, Lon: -101.1}, overrides["S-1001"])

	rec = env.do(t, http.MethodGet, "/api/v1/readings?label=Low", "")
	body := decode[readingsResponse](t, rec)
	require.Len(t, body.Readings, 1)
	assert.Equal(t, domain.Geo{Lat: 25.5, Lon: -101.1}, body.Readings[0].Position())
}

func TestOverrides_MissingCoordinate(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/v1/overrides/S-1001", `{"lat": 25.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "provide both lat and lon")

	_, err := os.Stat(env.overridesPath)
	assert.True(t, os.IsNotExist(err))
}

func TestOverrides_MalformedBody(t *testing.T) {
	rec := newTestEnv(t, nil).do(t, http.MethodPut, "/api/v1/overrides/S-1001", `lat=25`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverrides_MalformedFileIs500(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.WriteFile(env.overridesPath, []byte("[]"), 0o644))

	rec := env.do(t, http.MethodGet, "/api/v1/readings", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestParseTelemetry(t *testing.T) {
	rec := newTestEnv(t, nil).do(t, http.MethodPost, "/api/v1/telemetry/parse", "T:25.4 H:60 W:3.2\nno temperature here\nT:40 SM:500 DRY:0.9")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[readingsResponse](t, rec)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, domain.LiveSensorID, body.Readings[0].SensorID)
	assert.Equal(t, domain.RiskHigh, body.Readings[1].RiskLabel)
}

func TestTelemetryControl(t *testing.T) {
	ing := &mockIngestion{state: pipeline.StateStopped}
	env := newTestEnv(t, ing)

	rec := env.do(t, http.MethodPost, "/api/v1/telemetry/start", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, ing.started)
	assert.Equal(t, pipeline.StateRunning, decode[pipeline.Status](t, rec).State)

	rec = env.do(t, http.MethodGet, "/api/v1/telemetry/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "serial:/dev/ttyACM0", decode[pipeline.Status](t, rec).Source)

	rec = env.do(t, http.MethodPost, "/api/v1/telemetry/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ing.stopped)
}

func TestTelemetryControl_NoSource(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/telemetry/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/telemetry/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.StateStopped, decode[pipeline.Status](t, rec).State)
}

func TestHotspots(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/hotspots/simulated", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[struct {
		Count int `json:"count"`
	}](t, rec).Count)

	csv := "LATITUDE,Longitude,acq_date,bright_ti4\n25.1,-100.2,2025-08-01,330.5\nbad,-100,2025-08-01,1\n"
	rec = env.do(t, http.MethodPost, "/api/v1/hotspots", csv)
	require.Equal(t, http.StatusOK, rec.Code)
	upload := decode[struct {
		Count    int              `json:"count"`
		Skipped  int              `json:"skipped"`
		Hotspots []domain.Hotspot `json:"hotspots"`
	}](t, rec)
	assert.Equal(t, 1, upload.Count)
	assert.Equal(t, 1, upload.Skipped)
	assert.InDelta(t, 25.1, upload.Hotspots[0].Lat, 0)

	rec = env.do(t, http.MethodPost, "/api/v1/hotspots", "name,value\na,1\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestETA(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/mobility/eta", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		ETA domain.ETA `json:"eta"`
	}](t, rec)
	assert.InDelta(t, 11.428571428571427, body.ETA.WithoutPriorityMin, 1e-9)
	assert.InDelta(t, 4.0, body.ETA.WithPriorityMin, 1e-9)

	rec = env.do(t, http.MethodGet, "/api/v1/mobility/eta?traffic=11", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/overrides/S-1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()

	env.srv.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
