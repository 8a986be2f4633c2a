package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the router's prometheus collectors.
type Metrics struct {
	Received    *prometheus.CounterVec
	Routed      *prometheus.CounterVec
	Suppressed  *prometheus.CounterVec
	Errors      *prometheus.CounterVec
	QueueLength prometheus.Gauge
	Online      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nmearouter_sentences_received_total",
			Help: "Sentences received per source.",
		}, []string{"source"}),
		Routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nmearouter_sentences_routed_total",
			Help: "Sentences handed to each destination endpoint.",
		}, []string{"destination"}),
		Suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nmearouter_sentences_suppressed_total",
			Help: "Deliveries suppressed by a rule transform.",
		}, []string{"rule"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nmearouter_errors_total",
			Help: "Parser and routing errors per source and error code.",
		}, []string{"source", "code"}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nmearouter_dispatch_queue_length",
			Help: "Sentences waiting for the dispatcher.",
		}),
		Online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nmearouter_source_online",
			Help: "1 while a source sends within its liveness window.",
		}, []string{"source"}),
	}
	if reg != nil {
		reg.MustRegister(m.Received, m.Routed, m.Suppressed, m.Errors, m.QueueLength, m.Online)
	}
	return m
}
