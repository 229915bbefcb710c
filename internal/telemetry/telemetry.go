// Package telemetry records per-stage delivery metrics (spec §4.8): every
// request gets a trace ID at ingress, propagated through the orchestrator,
// queue job payload, and worker; stages are recorded as
// {component, stage, status, started, duration}. Built on
// github.com/prometheus/client_golang, the teacher's middleware/tracing.go
// correlation-ID pattern, and an in-memory recent-trace ring for the
// live-view endpoints. Telemetry failures never affect delivery: every
// recording method swallows its own errors rather than returning them.
package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stage is one recorded step of a notification's journey through the
// system, e.g. {component: "orchestrator", stage: "dispatch", status: "ok"}.
type Stage struct {
	Component string        `json:"component"`
	Stage     string        `json:"stage"`
	Status    string        `json:"status"`
	TraceID   string        `json:"trace_id"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

const recentTraceCapacity = 500

// Recorder collects Prometheus metrics and a bounded in-memory ring of
// recent stages for the live-view endpoints.
type Recorder struct {
	stageDuration *prometheus.HistogramVec
	stageTotal    *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
	connections   prometheus.Gauge

	mu     sync.Mutex
	recent []Stage
	cursor int

	logger *slog.Logger
}

// New builds a Recorder and registers its collectors against reg.
func New(reg prometheus.Registerer, logger *slog.Logger) *Recorder {
	r := &Recorder{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notifyhub",
			Name:      "stage_duration_seconds",
			Help:      "Duration of one delivery-pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component", "stage", "status"}),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifyhub",
			Name:      "stage_total",
			Help:      "Count of delivery-pipeline stages by outcome.",
		}, []string{"component", "stage", "status"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "notifyhub",
			Name:      "queue_depth",
			Help:      "Approximate depth of a channel+tier queue.",
		}, []string{"channel", "tier"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notifyhub",
			Name:      "socket_connections",
			Help:      "Current number of live socket connections on this instance.",
		}),
		recent: make([]Stage, recentTraceCapacity),
		logger: logger,
	}

	reg.MustRegister(r.stageDuration, r.stageTotal, r.queueDepth, r.connections)
	return r
}

// RecordStage records one pipeline stage's outcome. Never returns an error:
// telemetry must not be on the delivery critical path (spec §4.8).
func (r *Recorder) RecordStage(s Stage) {
	r.stageDuration.WithLabelValues(s.Component, s.Stage, s.Status).Observe(s.Duration.Seconds())
	r.stageTotal.WithLabelValues(s.Component, s.Stage, s.Status).Inc()

	r.mu.Lock()
	r.recent[r.cursor%recentTraceCapacity] = s
	r.cursor++
	r.mu.Unlock()
}

// RecentStages returns up to limit of the most recently recorded stages,
// newest first, for the live-view endpoints.
func (r *Recorder) RecentStages(limit int) []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := recentTraceCapacity
	if r.cursor < n {
		n = r.cursor
	}
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Stage, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.cursor - 1 - i + recentTraceCapacity) % recentTraceCapacity
		out = append(out, r.recent[idx])
	}
	return out
}

// SetQueueDepth records a channel+tier queue's current depth.
func (r *Recorder) SetQueueDepth(channel, tier string, depth float64) {
	r.queueDepth.WithLabelValues(channel, tier).Set(depth)
}

// SetConnections records this instance's current live socket connection
// count.
func (r *Recorder) SetConnections(n int) {
	r.connections.Set(float64(n))
}

// Span times one stage, recording it on End.
type Span struct {
	component, stage, traceID string
	started                   time.Time
	recorder                  *Recorder
}

// StartSpan begins timing a stage.
func (r *Recorder) StartSpan(component, stage, traceID string) *Span {
	return &Span{component: component, stage: stage, traceID: traceID, started: time.Now(), recorder: r}
}

// End records the span's outcome; status is typically "ok" or "error".
func (s *Span) End(status string) {
	s.recorder.RecordStage(Stage{
		Component: s.component,
		Stage:     s.stage,
		Status:    status,
		TraceID:   s.traceID,
		Started:   s.started,
		Duration:  time.Since(s.started),
	})
}
