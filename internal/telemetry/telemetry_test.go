package telemetry

import (
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func testRecorder(t *testing.T) *Recorder {
	t.Helper()
	return New(prometheus.NewRegistry(), slog.Default())
}

func TestRecordStage_AppearsInRecent(t *testing.T) {
	r := testRecorder(t)
	r.RecordStage(Stage{Component: "orchestrator", Stage: "dispatch", Status: "ok", Duration: time.Millisecond})

	recent := r.RecentStages(10)
	if len(recent) != 1 {
		t.Fatalf("len(recent) = %d, want 1", len(recent))
	}
	if recent[0].Component != "orchestrator" {
		t.Errorf("component = %q", recent[0].Component)
	}
}

func TestRecentStages_NewestFirst(t *testing.T) {
	r := testRecorder(t)
	r.RecordStage(Stage{Component: "a", Stage: "1", Status: "ok"})
	r.RecordStage(Stage{Component: "b", Stage: "2", Status: "ok"})

	recent := r.RecentStages(10)
	if recent[0].Component != "b" {
		t.Errorf("recent[0] = %q, want b (newest first)", recent[0].Component)
	}
}

func TestSpan_RecordsDuration(t *testing.T) {
	r := testRecorder(t)
	span := r.StartSpan("worker", "deliver", "trace-1")
	time.Sleep(time.Millisecond)
	span.End("ok")

	recent := r.RecentStages(1)
	if len(recent) != 1 || recent[0].Duration <= 0 {
		t.Fatalf("expected a positive duration, got %+v", recent)
	}
}
