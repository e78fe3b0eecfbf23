package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pyroguard"

// Metrics holds the Prometheus counters, histograms, and gauges for telemetry ingestion.
type Metrics struct {
	LinesRead         prometheus.Counter
	ReadingsParsed    prometheus.Counter
	LinesRejected     prometheus.Counter
	ReadingsPersisted prometheus.Counter
	SourceOpenErrors  prometheus.Counter
	WindowErrors      prometheus.Counter
	IngestionRunning  prometheus.Gauge

	// Polling window metrics.
	WindowDuration prometheus.Histogram
	LinesPerWindow prometheus.Histogram

	RiskScore     prometheus.Histogram
	PublishErrors *prometheus.CounterVec // labels: sink={kafka,influx}
}

// NewMetrics creates and registers all ingestion metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.LinesRead,
		m.ReadingsParsed,
		m.LinesRejected,
		m.ReadingsPersisted,
		m.SourceOpenErrors,
		m.WindowErrors,
		m.IngestionRunning,
		m.WindowDuration,
		m.LinesPerWindow,
		m.RiskScore,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		LinesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_lines_read_total",
			Help:      "Non-empty raw lines read from the telemetry source.",
		}),
		ReadingsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_parsed_total",
			Help:      "Telemetry lines that produced a reading.",
		}),
		LinesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_lines_rejected_total",
			Help:      "Telemetry lines without a temperature token.",
		}),
		ReadingsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_persisted_total",
			Help:      "Readings merged into the reading table.",
		}),
		SourceOpenErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_open_failures_total",
			Help:      "Failed attempts to open the telemetry source.",
		}),
		WindowErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_errors_total",
			Help:      "Polling windows that ended without persisting because of an error.",
		}),
		IngestionRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingestion_running",
			Help:      "1 when the telemetry loop is active, 0 otherwise.",
		}),
		WindowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "window_duration_seconds",
			Help:      "Duration of a complete read-parse-persist polling window.",
			Buckets:   []float64{0.5, 1, 2, 4, 6, 8, 10, 15, 20, 30},
		}),
		LinesPerWindow: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lines_per_window",
			Help:      "Number of raw lines read per polling window.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 250},
		}),
		RiskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Risk score of ingested readings.",
			Buckets:   []float64{0.1, 0.2, 0.33, 0.5, 0.66, 0.8, 0.9, 1},
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed reading publications by sink.",
		}, []string{"sink"}),
	}
}
