package blockchaintree

import "github.com/eth2030/eth2030/metrics"

// treeMetrics instruments a BlockchainTree using the repository's
// go-metrics-style registry, mirroring how the teacher's packages expose a
// dedicated metrics.go alongside their core logic.
type treeMetrics struct {
	inserted   *metrics.Counter
	reorgs     *metrics.Counter
	finalized  *metrics.Counter
	chainCount *metrics.Gauge
	reorgDepth *metrics.Histogram
}

func newTreeMetrics(r *metrics.Registry) *treeMetrics {
	return &treeMetrics{
		inserted:   r.Counter("blockchaintree/blocks_inserted"),
		reorgs:     r.Counter("blockchaintree/reorgs"),
		finalized:  r.Counter("blockchaintree/blocks_finalized"),
		chainCount: r.Gauge("blockchaintree/live_chains"),
		reorgDepth: r.Histogram("blockchaintree/reorg_depth"),
	}
}
