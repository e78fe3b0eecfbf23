package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/pyroguard-risk-service/internal/adapter/http"
	"github.com/couchcryptid/pyroguard-risk-service/internal/adapter/influx"
	kafkaadapter "github.com/couchcryptid/pyroguard-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/pyroguard-risk-service/internal/adapter/source"
	"github.com/couchcryptid/pyroguard-risk-service/internal/config"
	"github.com/couchcryptid/pyroguard-risk-service/internal/dashboard"
	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	"github.com/couchcryptid/pyroguard-risk-service/internal/observability"
	"github.com/couchcryptid/pyroguard-risk-service/internal/pipeline"
	"github.com/spf13/cobra"
)

const tcpDialTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API and telemetry ingestion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			return serve(a)
		},
	}
}

func serve(a *app) error {
	cfg, logger := a.cfg, a.logger
	metrics := observability.NewMetrics()

	svc := dashboard.NewService(a.readings, a.overrides, a.geocoder, a.model.Thresholds, logger)

	// closers run in reverse order after the HTTP server and ingestion have stopped.
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	var (
		ingestion httpadapter.Ingestion
		ctrl      *pipeline.Controller
	)
	src, closeSource := newSource(cfg, logger)
	if closeSource != nil {
		closers = append(closers, closeSource)
	}
	if src != nil {
		p := pipeline.New(src, domain.NewLineParser(a.geocoder, a.model), a.overrides, a.readings,
			pipelineConfig(cfg), logger, metrics)

		if cfg.KafkaPublishEnabled {
			writer := kafkaadapter.NewWriter(cfg, logger)
			p.AddSink("kafka", writer)
			closers = append(closers, func() {
				if err := writer.Close(); err != nil {
					logger.Error("kafka writer close error", "error", err)
				}
			})
			logger.Info("publishing readings to kafka", "topic", cfg.KafkaReadingsTopic)
		}
		if cfg.InfluxEnabled {
			writer := influx.NewWriter(cfg, logger)
			p.AddSink("influxdb", writer)
			closers = append(closers, writer.Close)
			logger.Info("writing readings to influxdb", "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
		}

		ctrl = pipeline.NewController(p, logger)
		ingestion = ctrl
	} else {
		logger.Info("telemetry ingestion disabled, no TELEMETRY_SOURCE configured")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, ingestion, cfg.CORSAllowedOrigins, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	if ctrl != nil && cfg.TelemetryAutostart {
		ctrl.Start(ctx)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if ctrl != nil {
		if err := ctrl.Stop(shutdownCtx); err != nil {
			logger.Error("telemetry ingestion stop error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// newSource builds the configured telemetry source. The returned close function, when not
// nil, releases resources held across polling windows.
func newSource(cfg *config.Config, logger *slog.Logger) (pipeline.Source, func()) {
	switch cfg.TelemetrySource {
	case config.SourceFile:
		return source.NewFile(cfg.TelemetryAddr, cfg.TelemetryReadTimeout), nil
	case config.SourceTCP:
		return source.NewTCP(cfg.TelemetryAddr, tcpDialTimeout, cfg.TelemetryReadTimeout), nil
	case config.SourceSerial:
		return source.NewSerial(cfg.TelemetryAddr, cfg.SerialBaud, cfg.TelemetryReadTimeout), nil
	case config.SourceKafka:
		src := kafkaadapter.NewSource(cfg, logger)
		return src, func() {
			if err := src.Close(); err != nil {
				logger.Error("kafka source close error", "error", err)
			}
		}
	default:
		return nil, nil
	}
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	pcfg := pipeline.DefaultConfig()
	pcfg.Window = cfg.TelemetryWindow
	pcfg.Refresh = cfg.TelemetryRefresh
	pcfg.OpenRetries = cfg.TelemetryOpenRetries
	pcfg.RetryDelay = cfg.TelemetryRetryDelay
	return pcfg
}
