// Package metrics exposes extraction and replication counters to Prometheus.
//
// A nil *Metrics is valid and records nothing, so library code can take an
// optional metrics handle without branching.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fieldx"

// Metrics holds the collectors shared by extractors and replication.
type Metrics struct {
	cellsVisited      *prometheus.CounterVec
	primitives        *prometheus.CounterVec
	integrationSteps  *prometheus.CounterVec
	particlesRemoved  prometheus.Counter
	particlesLive     prometheus.Gauge
	tickDuration      *prometheus.HistogramVec
	replicationBytes  *prometheus.CounterVec
	replicationFrames *prometheus.CounterVec
	protocolErrors    prometheus.Counter
}

// New creates and registers the collectors on reg. A nil reg returns nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		cellsVisited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "cells_visited_total",
			Help:      "Cells classified by fragment extractors",
		}, []string{"algorithm"}),

		primitives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "primitives_total",
			Help:      "Primitives committed to geometry sinks",
		}, []string{"algorithm"}),

		integrationSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trace",
			Name:      "integration_steps_total",
			Help:      "Streamline integration trial steps by outcome",
		}, []string{"outcome"}),

		particlesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trace",
			Name:      "particles_removed_total",
			Help:      "Particles removed after leaving the domain or expiring",
		}),

		particlesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trace",
			Name:      "particles_live",
			Help:      "Particles currently advected",
		}),

		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one incremental extraction tick",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"algorithm"}),

		replicationBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "bytes_total",
			Help:      "Replication bytes sent by masters or received by replicas",
		}, []string{"role"}),

		replicationFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "frames_total",
			Help:      "Replication frames by role and record type",
		}, []string{"role", "record"}),

		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "protocol_errors_total",
			Help:      "Replica streams aborted by protocol violations",
		}),
	}

	reg.MustRegister(
		m.cellsVisited,
		m.primitives,
		m.integrationSteps,
		m.particlesRemoved,
		m.particlesLive,
		m.tickDuration,
		m.replicationBytes,
		m.replicationFrames,
		m.protocolErrors,
	)
	return m
}

// NewRegistry returns a private registry with the collectors and the Go
// runtime collectors installed.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return reg, New(reg)
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// CellVisited counts one classified cell.
func (m *Metrics) CellVisited(algorithm string) {
	if m == nil {
		return
	}
	m.cellsVisited.WithLabelValues(algorithm).Inc()
}

// PrimitivesEmitted counts committed primitives.
func (m *Metrics) PrimitivesEmitted(algorithm string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.primitives.WithLabelValues(algorithm).Add(float64(n))
}

// IntegrationStep counts one trial step; outcome is "accepted",
// "rejected" or "exited".
func (m *Metrics) IntegrationStep(outcome string) {
	if m == nil {
		return
	}
	m.integrationSteps.WithLabelValues(outcome).Inc()
}

// ParticlesRemoved counts removed particles.
func (m *Metrics) ParticlesRemoved(n int) {
	if m == nil || n == 0 {
		return
	}
	m.particlesRemoved.Add(float64(n))
}

// ParticlesLive sets the live particle gauge.
func (m *Metrics) ParticlesLive(n int) {
	if m == nil {
		return
	}
	m.particlesLive.Set(float64(n))
}

// ObserveTick records the duration of one tick.
func (m *Metrics) ObserveTick(algorithm string, d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.WithLabelValues(algorithm).Observe(d.Seconds())
}

// Frame counts one replication frame of n bytes.
func (m *Metrics) Frame(role, record string, n int) {
	if m == nil {
		return
	}
	m.replicationFrames.WithLabelValues(role, record).Inc()
	m.replicationBytes.WithLabelValues(role).Add(float64(n))
}

// ProtocolError counts an aborted replica stream.
func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}
