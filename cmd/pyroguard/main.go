// Command pyroguard runs the wildfire risk service and offers operator subcommands for
// working with the persisted reading table and override file.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/pyroguard-risk-service/internal/config"
	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	"github.com/couchcryptid/pyroguard-risk-service/internal/observability"
	"github.com/couchcryptid/pyroguard-risk-service/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	readingsPath  string
	overridesPath string
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "pyroguard",
		Short: "PyroGuard - wildfire risk scoring from field sensor telemetry",
		Long: `PyroGuard ingests telemetry from field sensors over serial, TCP, a tailed file or
Kafka, scores each reading with a logistic risk model and serves the risk dashboard API.
Settings come from environment variables (and .env); table paths can be overridden with flags.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&readingsPath, "readings", "", "path to the reading table (default $READINGS_PATH)")
	rootCmd.PersistentFlags().StringVar(&overridesPath, "overrides", "", "path to the override file (default $OVERRIDES_PATH)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(overrideCmd())
	rootCmd.AddCommand(etaCmd())
	rootCmd.AddCommand(hotspotsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds what every subcommand needs.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	geocoder  domain.HashGeocoder
	model     domain.RiskModel
	readings  *store.ReadingTable
	overrides *store.OverrideStore
}

// loadApp reads configuration and opens the persisted tables.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if readingsPath != "" {
		cfg.ReadingsPath = readingsPath
	}
	if overridesPath != "" {
		cfg.OverridesPath = overridesPath
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	geocoder := domain.NewHashGeocoder(domain.Geo{Lat: cfg.MapCenterLat, Lon: cfg.MapCenterLon})
	model := domain.DefaultRiskModel()
	model.Thresholds = domain.Thresholds{High: cfg.RiskHighThreshold, Medium: cfg.RiskMediumThreshold}

	return &app{
		cfg:       cfg,
		logger:    logger,
		geocoder:  geocoder,
		model:     model,
		readings:  store.NewReadingTable(cfg.ReadingsPath, geocoder, logger),
		overrides: store.NewOverrideStore(cfg.OverridesPath, logger),
	}, nil
}
