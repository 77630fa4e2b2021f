// Package metrics collects module and action-bus telemetry with Prometheus.
//
// A nil *Collector is valid and records nothing, so components can take one
// as an optional dependency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeUnhandled = "unhandled"
	OutcomeVetoed    = "vetoed"
)

// UnhandledType replaces the type label of dispatches nobody handles, since
// those types can come straight from clients.
const UnhandledType = "_unhandled"

// Collector owns a private registry so tests and multiple apps in one
// process never collide.
type Collector struct {
	registry *prometheus.Registry

	modulesLoaded       prometheus.Gauge
	moduleRegistrations *prometheus.CounterVec
	moduleInitLatency   prometheus.Histogram

	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	handlers        *prometheus.GaugeVec
}

// NewCollector creates a collector with the given namespace ("composer" if empty).
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "composer"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.modulesLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "module",
		Name:      "loaded",
		Help:      "Number of modules whose init hook completed.",
	})
	c.moduleRegistrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "module",
		Name:      "registrations_total",
		Help:      "Module registration attempts by outcome.",
	}, []string{"outcome"})
	c.moduleInitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "module",
		Name:      "init_duration_seconds",
		Help:      "Duration of module init hooks.",
		Buckets:   prometheus.DefBuckets,
	})

	c.dispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "dispatch_total",
		Help:      "Dispatched actions by type and outcome.",
	}, []string{"type", "outcome"})
	c.dispatchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "dispatch_duration_seconds",
		Help:      "Time from dispatch to all handlers settling.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})
	c.handlers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "handlers",
		Help:      "Registered handlers per action type.",
	}, []string{"type"})

	c.registry.MustRegister(
		c.modulesLoaded,
		c.moduleRegistrations,
		c.moduleInitLatency,
		c.dispatchTotal,
		c.dispatchLatency,
		c.handlers,
	)
	return c
}

// Registry exposes the underlying registry, e.g. to add runtime collectors.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ModuleRegistered records a registration attempt.
func (c *Collector) ModuleRegistered(outcome string) {
	if c == nil {
		return
	}
	c.moduleRegistrations.WithLabelValues(outcome).Inc()
}

// ModuleLoaded records a completed init hook.
func (c *Collector) ModuleLoaded(d time.Duration) {
	if c == nil {
		return
	}
	c.modulesLoaded.Inc()
	c.moduleInitLatency.Observe(d.Seconds())
}

// ModuleUnloaded records the removal of a loaded module.
func (c *Collector) ModuleUnloaded() {
	if c == nil {
		return
	}
	c.modulesLoaded.Dec()
}

// Dispatched records one dispatch.
func (c *Collector) Dispatched(actionType, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if outcome == OutcomeUnhandled {
		actionType = UnhandledType
	}
	c.dispatchTotal.WithLabelValues(actionType, outcome).Inc()
	c.dispatchLatency.WithLabelValues(actionType).Observe(d.Seconds())
}

// Handlers sets the handler count for an action type.
func (c *Collector) Handlers(actionType string, n int) {
	if c == nil {
		return
	}
	c.handlers.WithLabelValues(actionType).Set(float64(n))
}

// ResetHandlers zeroes all handler gauges.
func (c *Collector) ResetHandlers() {
	if c == nil {
		return
	}
	c.handlers.Reset()
}
