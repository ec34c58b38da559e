// Package metrics holds the console's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "starlaunch"

// Collectors groups every metric the console exports. A nil *Collectors is
// valid and records nothing.
type Collectors struct {
	gatherer prometheus.Gatherer

	StreamsActive   prometheus.Gauge
	SamplesTotal    prometheus.Counter
	StoreErrors     prometheus.Counter
	SessionsActive  prometheus.Gauge
	ChatMessages    *prometheus.CounterVec
	StatusUpdates   prometheus.Counter
	PublishFailures prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Collectors {
	return NewWithRegistry(prometheus.NewRegistry())
}

func NewWithRegistry(reg *prometheus.Registry) *Collectors {
	c := &Collectors{
		gatherer: reg,
		StreamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "streams_active",
			Help:      "Telemetry streams currently connected.",
		}),
		SamplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "samples_total",
			Help:      "Telemetry samples persisted and pushed.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "store_errors_total",
			Help:      "Telemetry appends that failed and ended a stream.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operator_sessions",
			Help:      "Connected operator chat sessions.",
		}),
		ChatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Inbound operator chat messages by result.",
		}, []string{"result"}),
		StatusUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mission_status_updates_total",
			Help:      "Mission status updates applied from the flight monitor.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "publish_failures_total",
			Help:      "Samples that could not be published to the broker.",
		}),
	}
	reg.MustRegister(
		c.StreamsActive,
		c.SamplesTotal,
		c.StoreErrors,
		c.SessionsActive,
		c.ChatMessages,
		c.StatusUpdates,
		c.PublishFailures,
		collectors.NewGoCollector(),
	)
	return c
}

// Handler serves the registry in the prometheus text format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func (c *Collectors) StreamOpened() {
	if c != nil {
		c.StreamsActive.Inc()
	}
}

func (c *Collectors) StreamClosed() {
	if c != nil {
		c.StreamsActive.Dec()
	}
}

func (c *Collectors) SampleStored() {
	if c != nil {
		c.SamplesTotal.Inc()
	}
}

func (c *Collectors) StoreFailed() {
	if c != nil {
		c.StoreErrors.Inc()
	}
}

func (c *Collectors) SessionOpened() {
	if c != nil {
		c.SessionsActive.Inc()
	}
}

func (c *Collectors) SessionClosed() {
	if c != nil {
		c.SessionsActive.Dec()
	}
}

// ChatMessage counts one inbound message; result is "broadcast" or "dropped".
func (c *Collectors) ChatMessage(result string) {
	if c != nil {
		c.ChatMessages.WithLabelValues(result).Inc()
	}
}

func (c *Collectors) StatusUpdateApplied() {
	if c != nil {
		c.StatusUpdates.Inc()
	}
}

func (c *Collectors) PublishFailed() {
	if c != nil {
		c.PublishFailures.Inc()
	}
}
