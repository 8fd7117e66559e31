// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package livebuffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/juju/docsync/core/store"
)

const metricsNamespace = "docsync_livebuffer"

// Metrics is a prometheus.Collector for live buffers. A nil *Metrics
// records nothing.
type Metrics struct {
	events *prometheus.CounterVec
	cached *prometheus.GaugeVec
}

// NewMetrics returns a new Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_total",
				Help:      "The number of subscription events applied to live buffers.",
			}, []string{"class", "op"},
		),
		cached: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "cached_objects",
				Help:      "The number of objects held by live buffers.",
			}, []string{"class"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.events.Describe(ch)
	m.cached.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.events.Collect(ch)
	m.cached.Collect(ch)
}

func (m *Metrics) observe(class string, op store.Op) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(class, string(op)).Inc()
}

func (m *Metrics) setSize(class string, n int) {
	if m == nil {
		return
	}
	m.cached.WithLabelValues(class).Set(float64(n))
}
