package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_ratelimit_requests_total",
		Help: "Total token acquisitions attempted per exchange",
	}, []string{"exchange"})

	RateLimitRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_ratelimit_rejects_total",
		Help: "Non-blocking acquisitions rejected for lack of tokens",
	}, []string{"exchange"})

	RateLimitWaitSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_ratelimit_wait_seconds_total",
		Help: "Cumulative seconds spent in blocking waits",
	}, []string{"exchange"})

	CapitalReserveRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_capital_reserve_rejects_total",
		Help: "Capital reservations rejected by the allocation ceiling",
	}, []string{"exchange", "reason"})

	CapitalAllocationRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradecore_capital_allocation_ratio",
		Help: "Fraction of total capital currently locked per exchange",
	}, []string{"exchange"})

	TradesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_trades_matched_total",
		Help: "Closed trades produced by FIFO matching",
	}, []string{"exchange", "side"})

	UnmatchedExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecore_unmatched_exits_total",
		Help: "Exit fills with no opposing open executions to match",
	}, []string{"exchange"})
)
