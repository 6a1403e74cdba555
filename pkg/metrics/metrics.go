// Package metrics exposes the Prometheus gauges, counters, and
// histograms emitted by witnode's mailbox components.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Epoch manager metrics
	CurrentEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "witnode_current_epoch",
			Help: "Current epoch number",
		},
	)

	EpochSubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "witnode_epoch_subscribers_total",
			Help: "Active epoch subscriptions (one-shot plus persistent)",
		},
	)

	// Peer manager metrics
	PeersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "witnode_peers_total",
			Help: "Total number of addresses tracked by bucket kind",
		},
		[]string{"bucket_kind"}, // "new", "tried", "ice"
	)

	// Session manager metrics
	SessionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "witnode_sessions_total",
			Help: "Total number of live sessions by status and direction",
		},
		[]string{"status", "direction"},
	)

	HandshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "witnode_handshake_duration_seconds",
			Help:    "Time taken to consolidate a session handshake",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Chain manager metrics
	ChainTipHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "witnode_chain_tip_epoch",
			Help: "Epoch of the current chain tip",
		},
	)

	UTXOSetSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "witnode_utxo_set_size",
			Help: "Number of unspent outputs tracked",
		},
	)

	MempoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "witnode_mempool_size",
			Help: "Number of transactions pending in the mempool",
		},
	)

	MempoolWeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "witnode_mempool_weight_total",
			Help: "Total weight of transactions pending in the mempool",
		},
	)

	BlockValidationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "witnode_block_validation_duration_seconds",
			Help:    "Time taken to validate a candidate block",
			Buckets: prometheus.DefBuckets,
		},
	)

	BlocksRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "witnode_blocks_rejected_total",
			Help: "Total number of blocks rejected by validation step",
		},
		[]string{"step"},
	)

	SuperblockVotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "witnode_superblock_votes_total",
			Help: "Total number of superblock votes by outcome",
		},
		[]string{"outcome"}, // "consensus", "no_consensus"
	)

	// Data-request pool metrics
	DataRequestsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "witnode_data_requests_total",
			Help: "Total number of data requests tracked by stage",
		},
		[]string{"stage"}, // "new", "pending", "finished"
	)

	DataRequestsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "witnode_data_requests_finished_total",
			Help: "Total number of data requests finished by reason",
		},
		[]string{"reason"}, // "tallied", "no_reveals"
	)

	DataRequestCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "witnode_data_request_commits_total",
			Help: "Total number of commit transactions accepted by the data-request pool",
		},
	)

	DataRequestRevealsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "witnode_data_request_reveals_total",
			Help: "Total number of reveal transactions accepted by the data-request pool",
		},
	)

	// RADON engine metrics
	RadonExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "witnode_radon_executions_total",
			Help: "Total number of RADON script executions by stage and outcome",
		},
		[]string{"stage", "outcome"}, // outcome: "value", "error"
	)

	RadonExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "witnode_radon_execution_duration_seconds",
			Help:    "RADON script execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// RPC surface metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "witnode_rpc_requests_total",
			Help: "Total number of RPC requests by method and status",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "witnode_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RPCSubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "witnode_rpc_subscribers_total",
			Help: "Total number of active RPC event subscribers",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CurrentEpoch,
		EpochSubscribersTotal,
		PeersTotal,
		SessionsTotal,
		HandshakeDuration,
		ChainTipHeight,
		UTXOSetSize,
		MempoolSize,
		MempoolWeight,
		BlockValidationDuration,
		BlocksRejectedTotal,
		SuperblockVotesTotal,
		DataRequestsTotal,
		DataRequestsFinishedTotal,
		DataRequestCommitsTotal,
		DataRequestRevealsTotal,
		RadonExecutionsTotal,
		RadonExecutionDuration,
		RPCRequestsTotal,
		RPCRequestDuration,
		RPCSubscribersTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
