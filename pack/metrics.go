package pack

import (
	"github.com/ethereum/go-ethereum/metrics"
)

// packMetrics mirrors the source's FD_MGAUGE_SET / FD_MCNT_INC /
// FD_MHIST_COPY calls in fd_pack_schedule_impl, fd_pack_schedule_next_microblock
// and fd_pack_end_block (spec.md §4.2, §4.3, §4.7, §7), using
// go-ethereum/metrics the way the teacher wires gauges/counters
// through its own txpool. Each Pack gets its own private registry
// (rather than registering into metrics.DefaultRegistry directly) so
// multiple Packs in one process never collide on metric names; a
// caller that wants these exported reaches it through
// Pack.MetricsRegistry (spec.md §7; see cmd/packctl's serveMetrics).
type packMetrics struct {
	registry metrics.Registry

	availableTxns     metrics.Gauge
	availableVoteTxns metrics.Gauge
	cusConsumed       metrics.Gauge

	scheduleTaken      metrics.Counter
	scheduleCULimit    metrics.Counter
	scheduleFastPath   metrics.Counter
	scheduleByteLimit  metrics.Counter
	scheduleWriteCost  metrics.Counter
	scheduleSlowPath   metrics.Counter
	microblockPerBlock metrics.Counter
	dataPerBlockLimit  metrics.Counter

	txnPerMicroblock  metrics.Histogram
	votePerMicroblock metrics.Histogram
	cusScheduled      metrics.Histogram
	cusRebated        metrics.Histogram
	cusNet            metrics.Histogram
}

func newPackMetrics(prefix string) *packMetrics {
	r := metrics.NewRegistry()
	sample := func() metrics.Sample { return metrics.NewUniformSample(1028) }
	return &packMetrics{
		registry:           r,
		availableTxns:      metrics.NewRegisteredGauge(prefix+"/available_transactions", r),
		availableVoteTxns:  metrics.NewRegisteredGauge(prefix+"/available_vote_transactions", r),
		cusConsumed:        metrics.NewRegisteredGauge(prefix+"/cus_consumed_in_block", r),
		scheduleTaken:      metrics.NewRegisteredCounter(prefix+"/schedule/taken", r),
		scheduleCULimit:    metrics.NewRegisteredCounter(prefix+"/schedule/cu_limit", r),
		scheduleFastPath:   metrics.NewRegisteredCounter(prefix+"/schedule/fast_path", r),
		scheduleByteLimit:  metrics.NewRegisteredCounter(prefix+"/schedule/byte_limit", r),
		scheduleWriteCost:  metrics.NewRegisteredCounter(prefix+"/schedule/write_cost", r),
		scheduleSlowPath:   metrics.NewRegisteredCounter(prefix+"/schedule/slow_path", r),
		microblockPerBlock: metrics.NewRegisteredCounter(prefix+"/microblock_per_block_limit", r),
		dataPerBlockLimit:  metrics.NewRegisteredCounter(prefix+"/data_per_block_limit", r),
		txnPerMicroblock:   metrics.NewRegisteredHistogram(prefix+"/txn_per_microblock", r, sample()),
		votePerMicroblock:  metrics.NewRegisteredHistogram(prefix+"/vote_per_microblock", r, sample()),
		cusScheduled:       metrics.NewRegisteredHistogram(prefix+"/cus_scheduled", r, sample()),
		cusRebated:         metrics.NewRegisteredHistogram(prefix+"/cus_rebated", r, sample()),
		cusNet:             metrics.NewRegisteredHistogram(prefix+"/cus_net", r, sample()),
	}
}
