package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QuoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "defio_quote_latency_seconds",
		Help:    "Time to obtain a quote from a venue",
		Buckets: prometheus.DefBuckets,
	}, []string{"exchange"})

	QuoterErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "defio_quoter_errors_total",
		Help: "Number of quoter failures",
	}, []string{"exchange"})

	BestRouteWins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "defio_best_route_wins_total",
		Help: "How often each venue produced the winning quote",
	}, []string{"exchange"})

	SwapsExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "defio_swaps_executed_total",
		Help: "Swaps by final status",
	}, []string{"status"})

	FeesCollectedUSD = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "defio_fees_collected_usd_total",
		Help: "Platform fees collected, USD estimate",
	})
)

func init() {
	prometheus.MustRegister(
		QuoteLatency,
		QuoterErrors,
		BestRouteWins,
		SwapsExecuted,
		FeesCollectedUSD,
	)
}
