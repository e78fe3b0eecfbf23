package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/pyroguard-risk-service/internal/dashboard"
	"github.com/couchcryptid/pyroguard-risk-service/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Ingestion controls the telemetry loop. A nil Ingestion means no source is configured.
type Ingestion interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	Status() pipeline.Status
}

// Server exposes the dashboard API together with health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	svc        *dashboard.Service
	ingestion  Ingestion
	logger     *slog.Logger
}

// NewServer creates an HTTP server. Readiness is reported by the dashboard service, which
// checks that both persisted tables can be read.
func NewServer(addr string, svc *dashboard.Service, ingestion Ingestion, allowedOrigins []string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		svc:       svc,
		ingestion: ingestion,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(svc))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/readings", s.handleReadings)
	mux.HandleFunc("GET /api/v1/summary", s.handleSummary)
	mux.HandleFunc("GET /api/v1/overrides", s.handleListOverrides)
	mux.HandleFunc("PUT /api/v1/overrides/{sensor_id}", s.handleSetOverride)
	mux.HandleFunc("POST /api/v1/telemetry/parse", s.handleParseTelemetry)
	mux.HandleFunc("GET /api/v1/telemetry/status", s.handleTelemetryStatus)
	mux.HandleFunc("POST /api/v1/telemetry/start", s.handleTelemetryStart)
	mux.HandleFunc("POST /api/v1/telemetry/stop", s.handleTelemetryStop)
	mux.HandleFunc("GET /api/v1/hotspots/simulated", s.handleSimulatedHotspots)
	mux.HandleFunc("POST /api/v1/hotspots", s.handleUploadHotspots)
	mux.HandleFunc("GET /api/v1/mobility/eta", s.handleETA)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      c.Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
