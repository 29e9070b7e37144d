package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hark_events_received_total",
		Help: "Total number of event payloads received, labelled by source.",
	}, []string{"source"})

	EventsMalformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hark_events_malformed_total",
		Help: "Total number of event payloads dropped as malformed, labelled by source.",
	}, []string{"source"})

	EventsIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hark_events_ignored_total",
		Help: "Total number of well-formed events matching no dispatch rule.",
	})

	AlertsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hark_alerts_dispatched_total",
		Help: "Total number of alerts emitted, labelled by kind.",
	}, []string{"kind"})
)
