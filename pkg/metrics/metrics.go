package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clustertest"

var (
	RestartCount = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "restart_count", Help: "restart_count of the persisted document after startup initialization."},
	)
	PageRenders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "page_renders_total", Help: "Status page renders by data outcome (ok, no_data, error)."},
		[]string{"result"},
	)
	MessageUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "message_updates_total", Help: "Message form submissions by outcome (ok, dropped, error)."},
		[]string{"result"},
	)
	StoreWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "store_writes_total", Help: "Writes of the persisted document by outcome."},
		[]string{"result"},
	)
	SnapshotExports = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "snapshot_exports_total", Help: "Off-volume document exports by exporter and outcome."},
		[]string{"exporter", "result"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

// Result returns "ok" for a nil error and "error" otherwise.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RestartCount)
	reg.MustRegister(PageRenders)
	reg.MustRegister(MessageUpdates)
	reg.MustRegister(StoreWrites)
	reg.MustRegister(SnapshotExports)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
