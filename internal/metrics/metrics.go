// Package metrics exposes the core's Prometheus instrumentation: the
// latency path from tick to cache update and tick to fill, ingest
// throughput and loss, cache rebuild/synthesis activity, and subscription
// fabric/feed-ingestor state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Latency ============

// TickToCacheLatency measures time from a vendor tick arriving on the
// TickBus to the Option-Chain Cache applying it.
var TickToCacheLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "dhancore",
		Subsystem: "feed",
		Name:      "tick_to_cache_latency_ms",
		Help:      "Latency from tick ingest to cache apply in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	},
	[]string{"underlying"},
)

// TickToFillLatency measures the Execution Engine's full decision-to-fill
// path, including the simulated Gamma-distributed network sleep.
var TickToFillLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "dhancore",
		Subsystem: "execution",
		Name:      "tick_to_fill_latency_ms",
		Help:      "Latency from order acceptance to fill decision in milliseconds",
		Buckets:   []float64{5, 10, 25, 50, 100, 200, 500, 1000, 2000},
	},
	[]string{"exchange_segment", "order_type"},
)

// ============ Counters ============

// TicksProcessed counts ticks successfully applied to the cache.
var TicksProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dhancore",
		Subsystem: "feed",
		Name:      "ticks_processed_total",
		Help:      "Total number of ticks applied to the option-chain cache",
	},
	[]string{"underlying"},
)

// TicksDropped counts ticks discarded by TickBus back-pressure (bounded
// channel full, oldest tick for a token dropped — never blocks the read loop).
var TicksDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dhancore",
		Subsystem: "feed",
		Name:      "ticks_dropped_total",
		Help:      "Total number of ticks dropped due to TickBus back-pressure",
	},
	[]string{"token"},
)

// RebuildsTotal counts ATM-shift strike-window rebuilds.
var RebuildsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dhancore",
		Subsystem: "cache",
		Name:      "rebuilds_total",
		Help:      "Total number of ATM-shift strike-window rebuilds",
	},
	[]string{"underlying"},
)

// EvictionsTotal counts Tier-A subscription evictions under capacity pressure.
var EvictionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dhancore",
		Subsystem: "subscription",
		Name:      "evictions_total",
		Help:      "Total number of Tier-A subscriptions evicted for capacity",
	},
	[]string{"reason"},
)

// SynthesizedPricesTotal counts option legs whose price was interpolated
// rather than ticked.
var SynthesizedPricesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dhancore",
		Subsystem: "cache",
		Name:      "synthesized_prices_total",
		Help:      "Total number of option legs synthesized via interpolation",
	},
	[]string{"underlying", "option_type"},
)

// OrdersRejectedTotal counts orders rejected by reason (spec §7 taxonomy).
var OrdersRejectedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dhancore",
		Subsystem: "execution",
		Name:      "orders_rejected_total",
		Help:      "Total number of orders rejected by reason",
	},
	[]string{"reason"},
)

// ============ Gauges ============

// ActiveSubscriptionsPerShard tracks live token subscriptions per
// registry/feed shard.
var ActiveSubscriptionsPerShard = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "dhancore",
		Subsystem: "subscription",
		Name:      "active_per_shard",
		Help:      "Current number of active subscriptions per shard",
	},
	[]string{"shard"},
)

// IngestorState reports the feed ingestor's connection state machine
// (1=current state, 0=otherwise) so a single Grafana panel can show the
// active state across IDLE/CONNECTING/STREAMING/BACKOFF/COOLDOWN.
var IngestorState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "dhancore",
		Subsystem: "feed",
		Name:      "ingestor_state",
		Help:      "Feed ingestor state machine (1=active state, 0=otherwise)",
	},
	[]string{"state"},
)

// CooldownRemainingSeconds reports time left in the feed's reconnect
// cooldown, 0 when not in cooldown.
var CooldownRemainingSeconds = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "dhancore",
		Subsystem: "feed",
		Name:      "cooldown_remaining_seconds",
		Help:      "Seconds remaining in the feed reconnect cooldown",
	},
)

// PendingOrders reports the current count of PENDING/PARTIAL orders the
// sweep loop is tracking.
var PendingOrders = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "dhancore",
		Subsystem: "execution",
		Name:      "pending_orders",
		Help:      "Current number of PENDING or PARTIAL orders",
	},
)

// ============ Helpers ============

// RecordTick records a tick successfully applied to the cache and its
// cache-apply latency.
func RecordTick(underlying string, latencyMs float64) {
	TicksProcessed.WithLabelValues(underlying).Inc()
	TickToCacheLatency.WithLabelValues(underlying).Observe(latencyMs)
}

// RecordTickDropped records a tick discarded by TickBus back-pressure.
func RecordTickDropped(token string) {
	TicksDropped.WithLabelValues(token).Inc()
}

// RecordFill records the Execution Engine's decision-to-fill latency.
func RecordFill(exchangeSegment, orderType string, latencyMs float64) {
	TickToFillLatency.WithLabelValues(exchangeSegment, orderType).Observe(latencyMs)
}

// RecordRejection records an order rejection by reason.
func RecordRejection(reason string) {
	OrdersRejectedTotal.WithLabelValues(reason).Inc()
}

// SetIngestorState flips the gauge so only the current state reads 1.
func SetIngestorState(states []string, current string) {
	for _, s := range states {
		if s == current {
			IngestorState.WithLabelValues(s).Set(1)
		} else {
			IngestorState.WithLabelValues(s).Set(0)
		}
	}
}
