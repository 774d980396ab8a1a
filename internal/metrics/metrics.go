// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "percodb_documents_ingested_total",
		Help: "Documents accepted into the batching pipeline.",
	})

	BatchesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "percodb_batches_matched_total",
		Help: "Document batches run through the matcher.",
	})

	BatchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "percodb_batches_failed_total",
		Help: "Document batches aborted by a build or match failure.",
	})

	MatchesFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "percodb_matches_total",
		Help: "Individual (query, document) matches produced.",
	})

	SinkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "percodb_sink_errors_total",
		Help: "Sink writes that failed and were dropped.",
	})

	RegistrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "percodb_registered_queries",
		Help: "Queries currently held in the registry.",
	})

	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "percodb_match_duration_seconds",
		Help:    "Wall time of one batch match run.",
		Buckets: prometheus.DefBuckets,
	})
)

func Handler() http.Handler { return promhttp.Handler() }
