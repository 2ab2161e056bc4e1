// Package stats keeps rolling latency aggregates for reconcile passes and
// conversions.
package stats

import (
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp time.Time
	duration  time.Duration
}

// Snapshot is a point-in-time aggregate of latency samples.
type Snapshot struct {
	Count int     `json:"count"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// Latency tracks recent durations within a rolling window.
type Latency struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
	now     func() time.Time
}

func NewLatency(maxAge time.Duration) *Latency {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Latency{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

func (l *Latency) Record(d time.Duration) {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	l.samples = append(l.samples, sample{timestamp: now, duration: d})
}

func (l *Latency) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.now())
	if len(l.samples) == 0 {
		return Snapshot{}
	}

	values := make([]float64, 0, len(l.samples))
	var sum float64
	for _, sm := range l.samples {
		ms := float64(sm.duration) / float64(time.Millisecond)
		values = append(values, ms)
		sum += ms
	}
	sort.Float64s(values)

	return Snapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: sum / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

func (l *Latency) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.maxAge)
	writeIdx := 0
	for _, sm := range l.samples {
		if !sm.timestamp.Before(cutoff) {
			l.samples[writeIdx] = sm
			writeIdx++
		}
	}
	l.samples = l.samples[:writeIdx]
}

func percentile(sortedValues []float64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return sortedValues[0]
	}
	if pct >= 100 {
		return sortedValues[len(sortedValues)-1]
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return sortedValues[lower]
	}
	weight := index - float64(lower)
	lo := sortedValues[lower]
	hi := sortedValues[upper]
	return lo + ((hi - lo) * weight)
}

// RenderSnapshot aggregates reconcile activity.
type RenderSnapshot struct {
	Passes   Snapshot            `json:"passes"`
	ByFormat map[string]Snapshot `json:"by_format"`
	Applied  int64               `json:"highlights_applied"`
	Skipped  int64               `json:"highlights_skipped"`
}

// Render tracks reconcile passes overall and per rendering format.
type Render struct {
	maxAge time.Duration
	passes *Latency

	mu       sync.Mutex
	byFormat map[string]*Latency
	applied  int64
	skipped  int64
}

func NewRender(maxAge time.Duration) *Render {
	return &Render{
		maxAge:   maxAge,
		passes:   NewLatency(maxAge),
		byFormat: make(map[string]*Latency),
	}
}

// RecordPass records one reconcile pass.
func (r *Render) RecordPass(format string, d time.Duration, applied, skipped int) {
	r.passes.Record(d)

	r.mu.Lock()
	l, ok := r.byFormat[format]
	if !ok {
		l = NewLatency(r.maxAge)
		r.byFormat[format] = l
	}
	r.applied += int64(applied)
	r.skipped += int64(skipped)
	r.mu.Unlock()

	l.Record(d)
}

func (r *Render) Snapshot() RenderSnapshot {
	r.mu.Lock()
	formats := make(map[string]*Latency, len(r.byFormat))
	for k, v := range r.byFormat {
		formats[k] = v
	}
	snap := RenderSnapshot{Applied: r.applied, Skipped: r.skipped}
	r.mu.Unlock()

	snap.Passes = r.passes.Snapshot()
	snap.ByFormat = make(map[string]Snapshot, len(formats))
	for k, v := range formats {
		snap.ByFormat[k] = v.Snapshot()
	}
	return snap
}
