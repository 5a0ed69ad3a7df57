package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for Responses.
const (
	ResultHit         = "hit"
	ResultMiss        = "miss"
	ResultNotModified = "not_modified"
	ResultBypass      = "bypass"
	ResultUncacheable = "uncacheable"
)

var (
	// Responses counts read responses by how they were produced
	Responses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statscache_responses_total",
		Help: "Total cached-path responses by result",
	}, []string{"result"})

	// ChunkErrors counts bodies that could not be chunked and were served whole
	ChunkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statscache_chunk_errors_total",
		Help: "Total responses served unchunked because chunking failed",
	})
)
