package tokens

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider metrics, registered on the default registry at init.
var (
	mintsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_token_mints_total",
		Help: "Tokens minted via the client-credentials exchange",
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_token_cache_hits_total",
		Help: "Token requests served from the cache",
	})

	cacheFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_token_cache_fallbacks_total",
		Help: "Mint failures recovered via the last-known-good cache record",
	})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_token_failures_total",
		Help: "Token requests that failed, by error code",
	}, []string{"code"})
)
