// Package metrics exposes prometheus counters for the ingestion and query paths
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestCyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsemap_ingest_cycles_total",
		Help: "Ingestion cycles by source and outcome",
	}, []string{"source", "outcome"})
	IngestUpsertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsemap_ingest_upserts_total",
		Help: "Incident upserts by source and outcome",
	}, []string{"source", "outcome"})
	IngestCircuitOpens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsemap_ingest_circuit_opens_total",
		Help: "Circuit breaker open transitions by source",
	}, []string{"source"})
	QueryCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsemap_query_cache_hits_total",
		Help: "Spatial query cache hits",
	})
	QueryCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsemap_query_cache_misses_total",
		Help: "Spatial query cache misses",
	})
	QueryDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulsemap_query_duration_ms",
		Help:    "Spatial query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	IndexRebuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsemap_index_rebuilds_total",
		Help: "Spatial index rebuilds completed",
	})
)

func init() {
	prometheus.MustRegister(IngestCyclesTotal)
	prometheus.MustRegister(IngestUpsertsTotal)
	prometheus.MustRegister(IngestCircuitOpens)
	prometheus.MustRegister(QueryCacheHitsTotal)
	prometheus.MustRegister(QueryCacheMissesTotal)
	prometheus.MustRegister(QueryDurationMs)
	prometheus.MustRegister(IndexRebuildsTotal)
}

// Handler returns the /metrics scrape handler
func Handler() http.Handler { return promhttp.Handler() }
