// Package metrics exposes tick outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/sosim/internal/model"
)

const namespace = "sosim"

// Collector counts ticks, events and diagnostics. It owns its registry so
// several collectors can coexist in one process (tests, multiple worlds).
type Collector struct {
	Registry *prometheus.Registry

	ticks       prometheus.Counter
	events      *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	lastTick    prometheus.Gauge
}

// New creates a collector with its metrics registered.
func New() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Number of completed ticks.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_events_total",
			Help:      "Log events produced by Update, by type.",
		}, []string{"type"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnostics produced by Update, by code.",
		}, []string{"code"}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_tick",
			Help:      "Last completed tick.",
		}),
	}
	c.Registry.MustRegister(c.ticks, c.events, c.diagnostics, c.lastTick)
	return c
}

// Record implements engine.Sink.
func (c *Collector) Record(tick int, ur model.UpdateResult) error {
	c.ticks.Inc()
	c.lastTick.Set(float64(tick))
	for _, ev := range ur.Events {
		c.events.WithLabelValues(string(ev.Type)).Inc()
	}
	for _, d := range ur.Diagnostics {
		c.diagnostics.WithLabelValues(string(d.Code)).Inc()
	}
	return nil
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{Registry: c.Registry})
}
