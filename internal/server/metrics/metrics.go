// Package metrics holds the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	MessagesStored       prometheus.Counter
	ConversationsCreated prometheus.Counter
	ReceiptsMarked       *prometheus.CounterVec
	ActiveSubscriptions  prometheus.Gauge
	RPCRequests          *prometheus.CounterVec
	ClientReports        *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, so tests can create as
// many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		MessagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agrolink", Name: "messages_stored_total",
			Help: "Messages stored (retried sends of an existing id are not counted).",
		}),
		ConversationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agrolink", Name: "conversations_created_total",
			Help: "Conversations created.",
		}),
		ReceiptsMarked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agrolink", Name: "receipts_marked_total",
			Help: "Receipt upserts by kind.",
		}, []string{"kind"}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agrolink", Name: "realtime_subscriptions",
			Help: "Open realtime subscriptions.",
		}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agrolink", Name: "rpc_requests_total",
			Help: "gRPC requests by method and status code.",
		}, []string{"method", "code"}),
		ClientReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agrolink", Name: "client_reports_total",
			Help: "Error and metric reports posted by clients.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesStored,
		m.ConversationsCreated,
		m.ReceiptsMarked,
		m.ActiveSubscriptions,
		m.RPCRequests,
		m.ClientReports,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
