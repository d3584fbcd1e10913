// Package metrics registers and updates the sequencer's Prometheus gauges,
// grounded on the teacher's zk/metrics/metrics_xlayer.go naming/Init() convention.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const prefix = "sequencer_"

var (
	sealDeltaName      = prefix + "batch_seal_delta_seconds"
	l2BlockSealName    = prefix + "l2_block_seal_duration_seconds"
	batchTxCountName   = prefix + "batch_tx_count"
	sealReasonName     = prefix + "batch_seal_reason_total"
	aggregatorOpName   = prefix + "aggregator_operation_total"
	ethSenderNonceName = prefix + "eth_sender_base_nonce"
)

var SealDelta = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name: sealDeltaName,
	Help: "time elapsed between consecutive L1 batch seals",
})

var L2BlockSealDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name: l2BlockSealName,
	Help: "time spent sealing a single L2 block",
})

var BatchTxCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: batchTxCountName,
	Help: "number of transactions included in the most recently sealed L1 batch",
})

var SealReasonTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: sealReasonName,
	Help: "count of batch seals, partitioned by the criterion source that triggered them",
}, []string{"source"})

var AggregatorOperationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: aggregatorOpName,
	Help: "count of aggregated operations sent to L1, partitioned by operation kind",
}, []string{"kind"})

var EthSenderBaseNonce = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: ethSenderNonceName,
	Help: "base nonce the eth sender has allocated transactions from",
})

func Init() {
	prometheus.MustRegister(SealDelta)
	prometheus.MustRegister(L2BlockSealDuration)
	prometheus.MustRegister(BatchTxCount)
	prometheus.MustRegister(SealReasonTotal)
	prometheus.MustRegister(AggregatorOperationTotal)
	prometheus.MustRegister(EthSenderBaseNonce)
}

func ObserveSealDelta(d time.Duration) {
	SealDelta.Observe(d.Seconds())
}

func ObserveL2BlockSeal(d time.Duration) {
	L2BlockSealDuration.Observe(d.Seconds())
}

func RecordSealReason(source string) {
	SealReasonTotal.WithLabelValues(source).Inc()
}

func RecordAggregatedOperation(kind string) {
	AggregatorOperationTotal.WithLabelValues(kind).Inc()
}
