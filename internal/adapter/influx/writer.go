package influx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/pyroguard-risk-service/internal/config"
	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const measurement = "sensor_reading"

// Writer stores scored readings as InfluxDB points for time-series dashboards.
// It implements pipeline.BatchLoader.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	logger   *slog.Logger
}

// NewWriter creates a blocking writer for the configured org and bucket.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &Writer{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		bucket:   cfg.InfluxBucket,
		logger:   logger,
	}
}

// LoadBatch writes one point per reading in a single request.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.ReadingBatch) error {
	if len(batch.Readings) == 0 {
		return nil
	}
	points := make([]*write.Point, len(batch.Readings))
	for i, r := range batch.Readings {
		points[i] = toPoint(r)
	}
	if err := w.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write points to %s: %w", w.bucket, err)
	}
	w.logger.Debug("readings written to influxdb", "bucket", w.bucket, "count", len(points), "window_id", batch.WindowID)
	return nil
}

// Close releases the client's resources.
func (w *Writer) Close() {
	w.client.Close()
}

// toPoint maps a reading to a point. Missing measurements are left out rather than
// written as zero.
func toPoint(r domain.SensorReading) *write.Point {
	fields := map[string]any{
		"lat":        r.Lat,
		"lon":        r.Lon,
		"risk_score": r.RiskScore,
	}
	optional := map[string]*float64{
		"temp_c":       r.TempC,
		"humidity_pct": r.HumidityPct,
		"wind_ms":      r.WindMS,
		"smoke_ppm":    r.SmokePPM,
		"fuel_dryness": r.FuelDryness,
	}
	for k, v := range optional {
		if v != nil {
			fields[k] = *v
		}
	}

	return influxdb2.NewPoint(
		measurement,
		map[string]string{"sensor_id": r.SensorID, "risk_label": string(r.RiskLabel)},
		fields,
		r.Timestamp,
	)
}
