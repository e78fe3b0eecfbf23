package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/pyroguard-risk-service/internal/dashboard"
	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	"github.com/couchcryptid/pyroguard-risk-service/internal/pipeline"
	"github.com/couchcryptid/pyroguard-risk-service/internal/store"
)

const maxUploadBytes = 10 << 20

const overrideWarning = "provide both lat and lon to save an override"

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	q, err := parseReadingsQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := s.svc.Readings(r.Context(), q)
	if err != nil {
		s.serviceError(w, "list readings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(readings),
		"readings": readings,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	weights, err := parseWeights(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.svc.Summary(r.Context(), weights)
	if err != nil {
		s.serviceError(w, "summarize readings", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	overrides, err := s.svc.Overrides(r.Context())
	if err != nil {
		s.serviceError(w, "load overrides", err)
		return
	}
	writeJSON(w, http.StatusOK, overrides)
}

type overrideRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	sensorID := r.PathValue("sensor_id")

	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.svc.SetOverride(r.Context(), sensorID, req.Lat, req.Lon); err != nil {
		if errors.Is(err, store.ErrInvalidOverride) {
			writeError(w, http.StatusBadRequest, overrideWarning)
			return
		}
		s.serviceError(w, "save override", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sensor_id": sensorID,
		"lat":       *req.Lat,
		"lon":       *req.Lon,
	})
}

func (s *Server) handleParseTelemetry(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	readings, err := s.svc.ParseTelemetry(r.Context(), string(body))
	if err != nil {
		s.serviceError(w, "parse telemetry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(readings),
		"readings": readings,
	})
}

func (s *Server) handleTelemetryStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.telemetryStatus())
}

func (s *Server) handleTelemetryStart(w http.ResponseWriter, r *http.Request) {
	if s.ingestion == nil {
		writeError(w, http.StatusConflict, "no telemetry source configured")
		return
	}
	s.ingestion.Start(r.Context())
	s.logger.Info("telemetry ingestion start requested", "remote_addr", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, s.ingestion.Status())
}

func (s *Server) handleTelemetryStop(w http.ResponseWriter, r *http.Request) {
	if s.ingestion == nil {
		writeError(w, http.StatusConflict, "no telemetry source configured")
		return
	}
	if err := s.ingestion.Stop(r.Context()); err != nil {
		s.serviceError(w, "stop telemetry", err)
		return
	}
	s.logger.Info("telemetry ingestion stop requested", "remote_addr", r.RemoteAddr)
	writeJSON(w, http.StatusOK, s.ingestion.Status())
}

func (s *Server) telemetryStatus() pipeline.Status {
	if s.ingestion == nil {
		return pipeline.Status{State: pipeline.StateStopped, Message: "no telemetry source configured"}
	}
	return s.ingestion.Status()
}

func (s *Server) handleSimulatedHotspots(w http.ResponseWriter, _ *http.Request) {
	hotspots := s.svc.SimulatedHotspots()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(hotspots),
		"hotspots": hotspots,
	})
}

func (s *Server) handleUploadHotspots(w http.ResponseWriter, r *http.Request) {
	hotspots, skipped, err := domain.ParseHotspots(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if hotspots == nil {
		hotspots = []domain.Hotspot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(hotspots),
		"skipped":  skipped,
		"hotspots": hotspots,
	})
}

func (s *Server) handleETA(w http.ResponseWriter, r *http.Request) {
	route, err := parseRoute(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"route": route,
		"eta":   domain.EstimateETA(route),
	})
}

// serviceError maps service failures to status codes and logs server-side failures.
func (s *Server) serviceError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, dashboard.ErrInvalidQuery) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

func parseReadingsQuery(values url.Values) (dashboard.Query, error) {
	q := dashboard.DefaultQuery()

	weights, err := parseWeights(values)
	if err != nil {
		return q, err
	}
	q.Weights = weights

	for _, raw := range values["label"] {
		for _, part := range strings.Split(raw, ",") {
			label := domain.RiskLabel(strings.TrimSpace(part))
			if label == "" {
				continue
			}
			if !label.Valid() {
				return q, fmt.Errorf("unknown label %q", label)
			}
			q.Labels = append(q.Labels, label)
		}
	}

	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, fmt.Errorf("invalid limit %q", v)
		}
		q.Limit = n
	}
	return q, nil
}

// parseWeights starts from the default weights and replaces those present in values.
func parseWeights(values url.Values) (domain.Weights, error) {
	w := domain.DefaultWeights()
	params := []struct {
		name string
		dst  *float64
	}{
		{"w_temp", &w.Temp},
		{"w_hum", &w.Humidity},
		{"w_wind", &w.Wind},
		{"w_dry", &w.Dryness},
		{"w_smoke", &w.Smoke},
		{"bias", &w.Bias},
	}
	for _, p := range params {
		v := values.Get(p.name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return w, fmt.Errorf("invalid %s %q", p.name, v)
		}
		*p.dst = f
	}
	return w, w.Validate()
}

func parseRoute(values url.Values) (domain.Route, error) {
	route := domain.DefaultRoute()
	if v := values.Get("distance_km"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return route, fmt.Errorf("invalid distance_km %q", v)
		}
		route.DistanceKM = f
	}
	if v := values.Get("traffic"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return route, fmt.Errorf("invalid traffic %q", v)
		}
		route.Traffic = n
	}
	if v := values.Get("intersections"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return route, fmt.Errorf("invalid intersections %q", v)
		}
		route.Intersections = n
	}
	return route, route.Validate()
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
