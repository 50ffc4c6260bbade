// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cip

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus instrumentation a Client
// optionally exposes. Grounded on vango-go-vango's
// pkg/middleware/metrics.go functional-options shape.
type MetricsConfig struct {
	Namespace   string
	ConstLabels prometheus.Labels
	Registry    prometheus.Registerer
}

// MetricsOption configures a MetricsConfig.
type MetricsOption func(*MetricsConfig)

// WithMetricsNamespace sets the Prometheus metric namespace (default "cip").
func WithMetricsNamespace(ns string) MetricsOption {
	return func(c *MetricsConfig) { c.Namespace = ns }
}

// WithMetricsRegistry sets the registerer metrics are registered
// against (default prometheus.DefaultRegisterer).
func WithMetricsRegistry(r prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) { c.Registry = r }
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "cip", Registry: prometheus.DefaultRegisterer}
}

// Metrics holds the engine's Prometheus instruments. A nil *Metrics is
// valid everywhere in this package and every method is a no-op on it,
// so Metrics is entirely optional.
type Metrics struct {
	framesSent       *prometheus.CounterVec
	framesReceived   *prometheus.CounterVec
	reconnectsTotal  prometheus.Counter
	heartbeatsTotal  prometheus.Counter
	connectionState  prometheus.Gauge
	registrationState prometheus.Gauge
}

// NewMetrics builds and registers the engine's Prometheus instruments.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)

	return &Metrics{
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "frames_sent_total",
			Help:        "Total CIP frames written to the socket, by frame type.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"frame_type"}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "frames_received_total",
			Help:        "Total CIP frames decoded from the socket, by frame type.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"frame_type"}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "reconnects_total",
			Help:        "Total number of reconnect attempts initiated.",
			ConstLabels: cfg.ConstLabels,
		}),

		heartbeatsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "heartbeats_sent_total",
			Help:        "Total heartbeat frames sent while registered.",
			ConstLabels: cfg.ConstLabels,
		}),

		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "connection_state",
			Help:        "Current ConnectionState as an integer (0=disconnected,1=connecting,2=connected,3=retrying).",
			ConstLabels: cfg.ConstLabels,
		}),

		registrationState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "registered",
			Help:        "1 if registered with the processor, else 0.",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

func (m *Metrics) frameSent(frameType string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(frameType).Inc()
}

func (m *Metrics) frameReceived(frameType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(frameType).Inc()
}

func (m *Metrics) reconnect() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

func (m *Metrics) heartbeat() {
	if m == nil {
		return
	}
	m.heartbeatsTotal.Inc()
}

func (m *Metrics) setConnectionState(s ConnectionState) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(s))
}

func (m *Metrics) setRegistered(registered bool) {
	if m == nil {
		return
	}
	if registered {
		m.registrationState.Set(1)
	} else {
		m.registrationState.Set(0)
	}
}
