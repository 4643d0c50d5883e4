package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHitMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prometheus.BuildFQName("capi", "gateway", "cache_hits_total"),
		Help: "Requests answered from the result cache.",
	})

	cacheMissMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prometheus.BuildFQName("capi", "gateway", "cache_misses_total"),
		Help: "Requests that had to invoke an upstream producer.",
	})

	upstreamErrorMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName("capi", "gateway", "upstream_errors_total"),
		Help: "Failed calls against daemon nodes and mining pools.",
	}, []string{"source"})

	aggregationAnswersMetric = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: prometheus.BuildFQName("capi", "gateway", "aggregation_answers"),
		Help: "Usable answers collected in the latest aggregation round, per scope.",
	}, []string{"scope"})

	poolListMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prometheus.BuildFQName("capi", "gateway", "pool_directory_size"),
		Help: "Mining pools currently known to the directory.",
	})

	mirrorRejectMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prometheus.BuildFQName("capi", "gateway", "mirror_rejects_total"),
		Help: "Mirror block counts rejected for deviating from the network consensus height.",
	})
)

func init() {
	prometheus.MustRegister(cacheHitMetric, cacheMissMetric, upstreamErrorMetric,
		aggregationAnswersMetric, poolListMetric, mirrorRejectMetric)
}
