package stats

import (
	"testing"
	"time"
)

func TestLatencySnapshotPercentiles(t *testing.T) {
	l := NewLatency(time.Hour)
	for _, ms := range []int{100, 200, 300, 400, 500} {
		l.Record(time.Duration(ms) * time.Millisecond)
	}

	snap := l.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 {
		t.Fatalf("expected min=100, got %f", snap.MinMs)
	}
	if snap.MaxMs != 500 {
		t.Fatalf("expected max=500, got %f", snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestLatencyPrunesExpiredSamples(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLatency(10 * time.Second)
	l.now = func() time.Time { return now }

	l.Record(100 * time.Millisecond)
	now = now.Add(25 * time.Second)

	if snap := l.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}

	l.Record(200 * time.Millisecond)
	snap := l.Snapshot()
	if snap.Count != 1 {
		t.Fatalf("expected count=1 for fresh sample, got %d", snap.Count)
	}
	if snap.MinMs != 200 || snap.MaxMs != 200 {
		t.Fatalf("expected min=max=200, got min=%f max=%f", snap.MinMs, snap.MaxMs)
	}
}

func TestLatencyRecordClampsNegativeDuration(t *testing.T) {
	l := NewLatency(time.Hour)
	l.Record(-time.Second)
	if snap := l.Snapshot(); snap.MinMs != 0 {
		t.Fatalf("expected clamped min=0, got %f", snap.MinMs)
	}
}

func TestRenderRecordPass(t *testing.T) {
	r := NewRender(time.Hour)
	r.RecordPass("markdown", 2*time.Millisecond, 3, 1)
	r.RecordPass("pdf", 4*time.Millisecond, 2, 0)
	r.RecordPass("pdf", 6*time.Millisecond, 0, 2)

	snap := r.Snapshot()
	if snap.Passes.Count != 3 {
		t.Errorf("expected 3 passes, got %d", snap.Passes.Count)
	}
	if snap.Applied != 5 || snap.Skipped != 3 {
		t.Errorf("expected applied=5 skipped=3, got %d/%d", snap.Applied, snap.Skipped)
	}
	if got := snap.ByFormat["pdf"]; got.Count != 2 || got.AvgMs != 5 {
		t.Errorf("unexpected pdf snapshot %+v", got)
	}
}
