package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Sessions      int                    `json:"sessions"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handleHealthCheck reports catalog and database health.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	checks := map[string]HealthCheck{
		"catalog":  s.checkCatalogHealth(),
		"database": s.checkDatabaseHealth(r.Context()),
	}
	overall := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	response := HealthCheckResponse{
		Status:        overall,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		Uptime:        time.Since(s.startTime).String(),
		Sessions:      s.sessions.len(),
		Checks:        checks,
		System:        systemInfo(),
		RequestID:     requestID,
	}

	statusCode := http.StatusOK
	if overall == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, statusCode, response)
}

// handleReadiness provides readiness probe endpoint
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := true
	message := "Ready"

	if s.catalog.Len() == 0 {
		ready, message = false, "No effects registered"
	}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			ready, message = false, fmt.Sprintf("Database unavailable: %v", err)
		}
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
		s.logger.Printf("readiness_check outcome=not_ready message=%q", message)
	}
	s.writeJSON(w, statusCode, map[string]any{
		"ready":          ready,
		"message":        message,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

func (s *Server) checkCatalogHealth() HealthCheck {
	start := time.Now()
	n := s.catalog.Len()
	check := HealthCheck{
		Status:      HealthStatusHealthy,
		Message:     fmt.Sprintf("%d effects registered", n),
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}
	if n == 0 {
		check.Status = HealthStatusUnhealthy
		check.Message = "No effects registered"
	}
	check.Duration = time.Since(start).String()
	return check
}

func (s *Server) checkDatabaseHealth(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{
		Status:      HealthStatusHealthy,
		Message:     "Database connected",
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}
	if s.db == nil {
		check.Status = HealthStatusDegraded
		check.Message = "Database not configured"
		return check
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("Database ping failed: %v", err)
	}
	check.Duration = time.Since(start).String()
	return check
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		MemoryAlloc:   m.Alloc,
		GCCycles:      m.NumGC,
	}
}
