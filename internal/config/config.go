package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Telemetry source kinds accepted by TELEMETRY_SOURCE.
const (
	SourceNone   = ""
	SourceFile   = "file"
	SourceTCP    = "tcp"
	SourceSerial = "serial"
	SourceKafka  = "kafka"
)

const (
	minTelemetryWindow = time.Second
	maxTelemetryWindow = 20 * time.Second
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string

	// Persisted tables.
	ReadingsPath  string
	OverridesPath string

	// Risk model and geocoder.
	MapCenterLat        float64
	MapCenterLon        float64
	RiskHighThreshold   float64
	RiskMediumThreshold float64

	// Telemetry ingestion.
	TelemetrySource      string
	TelemetryAddr        string
	SerialBaud           int
	TelemetryWindow      time.Duration
	TelemetryRefresh     time.Duration
	TelemetryReadTimeout time.Duration
	TelemetryOpenRetries int
	TelemetryRetryDelay  time.Duration
	TelemetryAutostart   bool

	KafkaBrokers        []string
	KafkaTelemetryTopic string
	KafkaReadingsTopic  string
	KafkaGroupID        string
	KafkaPublishEnabled bool

	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string
	InfluxEnabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		CORSAllowedOrigins: splitList(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),

		ReadingsPath:  sharedcfg.EnvOrDefault("READINGS_PATH", "data/mock_sensors.csv"),
		OverridesPath: sharedcfg.EnvOrDefault("OVERRIDES_PATH", "data/overrides.json"),

		TelemetrySource: strings.ToLower(strings.TrimSpace(os.Getenv("TELEMETRY_SOURCE"))),
		TelemetryAddr:   strings.TrimSpace(os.Getenv("TELEMETRY_ADDR")),

		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTelemetryTopic: sharedcfg.EnvOrDefault("KAFKA_TELEMETRY_TOPIC", "raw-telemetry"),
		KafkaReadingsTopic:  sharedcfg.EnvOrDefault("KAFKA_READINGS_TOPIC", "scored-readings"),
		KafkaGroupID:        sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "pyroguard"),

		InfluxURL:    os.Getenv("INFLUX_URL"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    os.Getenv("INFLUX_ORG"),
		InfluxBucket: sharedcfg.EnvOrDefault("INFLUX_BUCKET", "wildfire"),
	}
	cfg.InfluxEnabled = cfg.InfluxURL != ""

	p := parser{}
	cfg.MapCenterLat = p.float("MAP_CENTER_LAT", 25.4389)
	cfg.MapCenterLon = p.float("MAP_CENTER_LON", -100.9733)
	cfg.RiskHighThreshold = p.float("RISK_HIGH_THRESHOLD", 0.66)
	cfg.RiskMediumThreshold = p.float("RISK_MEDIUM_THRESHOLD", 0.33)
	cfg.SerialBaud = p.int("SERIAL_BAUD", 9600)
	cfg.TelemetryWindow = p.duration("TELEMETRY_WINDOW", 6*time.Second)
	cfg.TelemetryRefresh = p.duration("TELEMETRY_REFRESH", cfg.TelemetryWindow)
	cfg.TelemetryReadTimeout = p.duration("TELEMETRY_READ_TIMEOUT", 500*time.Millisecond)
	cfg.TelemetryOpenRetries = p.int("TELEMETRY_OPEN_RETRIES", 3)
	cfg.TelemetryRetryDelay = p.duration("TELEMETRY_RETRY_DELAY", 600*time.Millisecond)
	cfg.TelemetryAutostart = p.bool("TELEMETRY_AUTOSTART", true)
	cfg.KafkaPublishEnabled = p.bool("KAFKA_PUBLISH_ENABLED", false)
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MapCenterLat < -90 || c.MapCenterLat > 90 {
		return errors.New("MAP_CENTER_LAT must be within [-90,90]")
	}
	if c.MapCenterLon < -180 || c.MapCenterLon > 180 {
		return errors.New("MAP_CENTER_LON must be within [-180,180]")
	}
	if c.RiskHighThreshold < 0 || c.RiskHighThreshold > 1 {
		return errors.New("RISK_HIGH_THRESHOLD must be within [0,1]")
	}
	if c.RiskMediumThreshold < 0 || c.RiskMediumThreshold > c.RiskHighThreshold {
		return errors.New("RISK_MEDIUM_THRESHOLD must be within [0,RISK_HIGH_THRESHOLD]")
	}
	if c.TelemetryWindow < minTelemetryWindow || c.TelemetryWindow > maxTelemetryWindow {
		return fmt.Errorf("TELEMETRY_WINDOW must be within [%s,%s]", minTelemetryWindow, maxTelemetryWindow)
	}
	if c.TelemetryRefresh <= 0 {
		return errors.New("TELEMETRY_REFRESH must be positive")
	}
	if c.TelemetryReadTimeout <= 0 {
		return errors.New("TELEMETRY_READ_TIMEOUT must be positive")
	}
	if c.TelemetryOpenRetries < 1 {
		return errors.New("TELEMETRY_OPEN_RETRIES must be at least 1")
	}
	if c.SerialBaud <= 0 {
		return errors.New("SERIAL_BAUD must be positive")
	}

	switch c.TelemetrySource {
	case SourceNone:
	case SourceFile, SourceTCP, SourceSerial:
		if c.TelemetryAddr == "" {
			return fmt.Errorf("TELEMETRY_ADDR is required for TELEMETRY_SOURCE=%s", c.TelemetrySource)
		}
	case SourceKafka:
		if c.KafkaTelemetryTopic == "" {
			return errors.New("KAFKA_TELEMETRY_TOPIC is required for TELEMETRY_SOURCE=kafka")
		}
	default:
		return fmt.Errorf("unknown TELEMETRY_SOURCE %q", c.TelemetrySource)
	}

	if c.usesKafka() && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.KafkaPublishEnabled && c.KafkaReadingsTopic == "" {
		return errors.New("KAFKA_READINGS_TOPIC is required when KAFKA_PUBLISH_ENABLED is true")
	}
	if c.InfluxEnabled && c.InfluxOrg == "" {
		return errors.New("INFLUX_ORG is required when INFLUX_URL is set")
	}
	return nil
}

func (c *Config) usesKafka() bool {
	return c.TelemetrySource == SourceKafka || c.KafkaPublishEnabled
}

// parser reads typed environment variables, keeping the first error.
type parser struct {
	err error
}

func (p *parser) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != "" && p.err == nil
}

func (p *parser) fail(key, v string) {
	p.err = fmt.Errorf("invalid %s: %q", key, v)
}

func (p *parser) float(key string, def float64) float64 {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v)
		return def
	}
	return f
}

func (p *parser) int(key string, def int) int {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v)
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v)
		return def
	}
	return d
}

func (p *parser) bool(key string, def bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v)
		return def
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
