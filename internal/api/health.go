package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// ServiceHealth represents the health status of an individual service
// dependency.
type ServiceHealth struct {
	Status  string      `json:"status"` // "healthy", "unhealthy", "disabled"
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// DeepHealthResponse is the response body for the deep health check endpoint.
type DeepHealthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services"`
	System    SystemInfo               `json:"system"`
}

// SystemInfo contains runtime information about the notifyhub process.
type SystemInfo struct {
	GoVersion    string  `json:"go_version"`
	NumGoroutine int     `json:"num_goroutine"`
	NumCPU       int     `json:"num_cpu"`
	MemAllocMB   float64 `json:"mem_alloc_mb"`
	MemSysMB     float64 `json:"mem_sys_mb"`
	MemGCCycles  uint32  `json:"mem_gc_cycles"`
}

// handleDeepHealthCheck performs a comprehensive health check of every
// external dependency notifyhub relies on: PostgreSQL, the Redis-backed
// asynq queue substrate, NATS (socket fan-out), SMTP, and FCM. PostgreSQL,
// the queue and NATS are each checked with a short timeout and their latency
// reported; SMTP and FCM are only reported as configured or disabled, without
// contacting the provider.
//
// GET /health/deep
func (s *Server) handleDeepHealthCheck(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]ServiceHealth)
	overallStatus := "ok"
	checkTimeout := 5 * time.Second

	record := func(name string, check func(ctx context.Context) error) {
		h := s.checkServiceHealth(name, checkTimeout, check)
		services[name] = h
		if h.Status == "unhealthy" && overallStatus == "ok" {
			overallStatus = "unhealthy"
		}
	}

	if s.Store != nil {
		record("database", func(ctx context.Context) error { return s.Store.HealthCheck(ctx) })
	} else {
		services["database"] = ServiceHealth{Status: "disabled"}
	}

	if s.Queue != nil {
		record("queue", func(ctx context.Context) error { return s.Queue.HealthCheck(ctx) })
	} else {
		services["queue"] = ServiceHealth{Status: "disabled"}
	}

	if s.EventBus != nil {
		record("nats", func(_ context.Context) error { return s.EventBus.HealthCheck() })
	} else {
		services["nats"] = ServiceHealth{Status: "disabled"}
	}

	if s.Mailer != nil {
		services["smtp"] = ServiceHealth{Status: "healthy", Details: "configured"}
	} else {
		services["smtp"] = ServiceHealth{Status: "disabled"}
	}

	if s.Push != nil {
		services["fcm"] = ServiceHealth{Status: "healthy", Details: "configured"}
	} else {
		services["fcm"] = ServiceHealth{Status: "disabled"}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := DeepHealthResponse{
		Status:    overallStatus,
		Version:   s.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
		System: SystemInfo{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAllocMB:   float64(memStats.Alloc) / 1024 / 1024,
			MemSysMB:     float64(memStats.Sys) / 1024 / 1024,
			MemGCCycles:  memStats.NumGC,
		},
	}

	httpStatus := http.StatusOK
	if overallStatus != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}
	WriteJSON(w, httpStatus, response)
}

// handleShallowHealthCheck is a cheap liveness probe with no dependency
// checks, for use by the load balancer's /health poll (spec §4.7).
func (s *Server) handleShallowHealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) checkServiceHealth(name string, timeout time.Duration, check func(context.Context) error) ServiceHealth {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	latency := time.Since(start)

	if err != nil {
		return ServiceHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Error:   fmt.Sprintf("%s health check failed: %v", name, err),
		}
	}
	return ServiceHealth{Status: "healthy", Latency: latency.String()}
}
