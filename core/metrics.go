package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBlocksMined = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bchain",
		Name:      "blocks_mined_total",
		Help:      "Number of blocks mined by this node",
	})

	metricMiningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bchain",
		Name:      "mining_duration_seconds",
		Help:      "Wall time of mining attempts",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	})

	metricTransactionsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bchain",
		Name:      "transactions_added_total",
		Help:      "Transactions accepted into the pool",
	})

	metricGossipErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bchain",
		Name:      "gossip_errors_total",
		Help:      "Failed peer gossip deliveries",
	})

	metricReorgs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bchain",
		Name:      "chain_reorgs_total",
		Help:      "Chain replacements adopted from peers",
	})
)
