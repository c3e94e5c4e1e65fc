// Package api serves a small local HTTP surface: the current sensor value,
// a manual refresh trigger, health and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ouraring/internal/sensor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SnapshotSource exposes the sensor's current state
type SnapshotSource interface {
	Snapshot() sensor.State
}

// RefreshTrigger queues a refresh; false means one was already pending
type RefreshTrigger interface {
	Trigger() bool
}

// Server provides HTTP API endpoints for the sleep sensor
type Server struct {
	sensor  SnapshotSource
	trigger RefreshTrigger
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a new API server. gatherer may be nil to omit /metrics.
func NewServer(source SnapshotSource, trigger RefreshTrigger, gatherer prometheus.Gatherer, logger *zap.Logger, port int) *Server {
	s := &Server{
		sensor:  source,
		trigger: trigger,
		logger:  logger.Named("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("/api/sleep", s.handleGetSleep)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/health", s.handleHealth)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SleepResponse is the JSON body of /api/sleep
type SleepResponse struct {
	Name              string         `json:"name"`
	Icon              string         `json:"icon"`
	Unit              string         `json:"unit_of_measurement"`
	Score             int            `json:"score"`
	Attributes        map[string]any `json:"data"`
	AttributesUpdated bool           `json:"attributes_updated"`
	LastRefresh       *time.Time     `json:"last_refresh,omitempty"`
}

// handleGetSleep returns the sensor state as JSON
func (s *Server) handleGetSleep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.sensor.Snapshot()
	response := SleepResponse{
		Name:              sensor.Name,
		Icon:              sensor.Icon,
		Unit:              sensor.Unit,
		Score:             snap.Score,
		Attributes:        snap.Attributes,
		AttributesUpdated: snap.AttributesUpdated,
	}
	if !snap.LastRefresh.IsZero() {
		response.LastRefresh = &snap.LastRefresh
	}

	writeJSON(w, s.logger, http.StatusOK, response)

	s.logger.Debug("Sleep request served",
		zap.String("remote_addr", r.RemoteAddr))
}

// handleRefresh queues an out-of-schedule refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	queued := s.trigger.Trigger()
	s.logger.Info("Manual refresh requested",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("queued", queued))

	status := "queued"
	if !queued {
		status = "already_pending"
	}
	writeJSON(w, s.logger, http.StatusAccepted, map[string]string{"status": status})
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap"},
	{Path: "/api/sleep", Method: "GET", Description: "Current sleep score and attributes"},
	{Path: "/api/refresh", Method: "POST", Description: "Queue a refresh from the Oura API"},
	{Path: "/health", Method: "GET", Description: "Health check endpoint - returns {\"status\": \"ok\"}"},
	{Path: "/metrics", Method: "GET", Description: "Prometheus metrics"},
}

// handleSitemap lists the available endpoints as plain text
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Oura Ring Sleep API\n")
	fmt.Fprintf(w, "===================\n\n")
	fmt.Fprintf(w, "Available endpoints:\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %-6s %-14s %s\n", ep.Method, ep.Path, ep.Description)
	}
	fmt.Fprintf(w, "\nExamples:\n\n")
	fmt.Fprintf(w, "  curl http://localhost%s/api/sleep | jq\n", s.server.Addr)
	fmt.Fprintf(w, "  curl -X POST http://localhost%s/api/refresh\n", s.server.Addr)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
