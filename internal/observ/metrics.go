package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the pipeline's Prometheus collectors. Each instance owns
// its registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	FeedEvents          *prometheus.CounterVec
	EchoesSuppressed    *prometheus.CounterVec
	ActiveSubscriptions prometheus.Gauge
	Resubscribes        prometheus.Counter
	Sends               *prometheus.CounterVec
	AttachmentFailures  prometheus.Counter
	HydrationFailures   *prometheus.CounterVec
	Sessions            prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		FeedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_feed_events_total",
			Help: "Change feed events delivered to subscribers",
		}, []string{"table", "op"}),
		EchoesSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_feed_echoes_suppressed_total",
			Help: "Insert events dropped because the id was already rendered",
		}, []string{"table"}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_feed_active_subscriptions",
			Help: "Open change feed subscriptions",
		}),
		Resubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_feed_resubscribes_total",
			Help: "Subscriptions reopened after the stream was lost",
		}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_sends_total",
			Help: "Send pipeline outcomes",
		}, []string{"outcome"}),
		AttachmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_attachment_failures_total",
			Help: "Attachment uploads or records that failed",
		}),
		HydrationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_hydration_failures_total",
			Help: "Assembler reads that degraded to placeholders",
		}, []string{"source"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_ws_sessions",
			Help: "Connected websocket sessions",
		}),
	}

	m.Registry.MustRegister(
		m.FeedEvents,
		m.EchoesSuppressed,
		m.ActiveSubscriptions,
		m.Resubscribes,
		m.Sends,
		m.AttachmentFailures,
		m.HydrationFailures,
		m.Sessions,
		collectors.NewGoCollector(),
	)
	return m
}
