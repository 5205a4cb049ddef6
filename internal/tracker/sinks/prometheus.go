package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbforge/ingest/internal/tracker"
)

// PrometheusSink exports operation progress metrics. It owns the collectors
// for submitted/completed/active operations and the per-kind runtime
// histogram.
type PrometheusSink struct {
	opsSubmitted *prometheus.CounterVec
	opsCompleted *prometheus.CounterVec
	opsActive    prometheus.Gauge
	opRuntime    *prometheus.HistogramVec

	active *activeSet
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		opsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_operations_submitted_total",
			Help: "Total operations registered for tracking, partitioned by kind.",
		}, []string{"kind"}),
		opsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_operations_completed_total",
			Help: "Total operations reaching a terminal status, partitioned by kind and result.",
		}, []string{"kind", "result"}),
		opsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_operations_active",
			Help: "Current number of non-terminal tracked operations.",
		}),
		opRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_operation_runtime_seconds",
			Help:    "Wall time from registration to terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"kind", "result"}),
		active: newActiveSet(),
	}
	for _, collector := range []prometheus.Collector{
		s.opsSubmitted,
		s.opsCompleted,
		s.opsActive,
		s.opRuntime,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register operation collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from one operation snapshot. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, op tracker.Operation) error {
	kind := string(op.Kind)
	if op.Status.Terminal() {
		if s.active.remove(op.ProgressID) {
			s.opsActive.Dec()
			result := "success"
			if op.Status == tracker.StatusFailed {
				result = "error"
			}
			s.opsCompleted.WithLabelValues(kind, result).Inc()
			if dur := op.UpdatedAt.Sub(op.StartedAt); dur > 0 {
				s.opRuntime.WithLabelValues(kind, result).Observe(dur.Seconds())
			}
		}
		return nil
	}
	if s.active.add(op.ProgressID) {
		s.opsSubmitted.WithLabelValues(kind).Inc()
		s.opsActive.Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type activeSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newActiveSet() *activeSet {
	return &activeSet{ids: make(map[string]struct{})}
}

func (a *activeSet) add(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.ids[id]; ok {
		return false
	}
	a.ids[id] = struct{}{}
	return true
}

func (a *activeSet) remove(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.ids[id]; !ok {
		return false
	}
	delete(a.ids, id)
	return true
}
