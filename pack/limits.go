package pack

// Limits bounds what the scheduler may pack into a single block
// (spec.md §6 "Limits record").
type Limits struct {
	MaxCostPerBlock        uint64
	MaxVoteCostPerBlock    uint64
	MaxWriteCostPerAcct    uint64
	MaxTxnPerMicroblock    uint64
	MaxMicroblocksPerBlock uint64
	MaxDataBytesPerBlock   uint64
}

// Tuning constants carried over from the source this core is modeled
// on (spec.md §6 "Constants").
const (
	// microblockDataOverhead is charged against MaxDataBytesPerBlock for
	// every non-empty microblock: a 32-byte hash, an 8-byte hash count
	// and an 8-byte transaction count.
	microblockDataOverhead uint64 = 48

	// defaultWrittenListMax bounds how many distinct written accounts
	// end_block will bulk-undo individually before falling back to
	// clearing the whole writer-cost table (spec.md §4.7).
	defaultWrittenListMax = 16384

	// minTxnCost is the compute-unit floor below which cu_limit is
	// considered exhausted for scheduling purposes
	// (FD_PACK_MIN_TXN_COST in the source).
	minTxnCost uint64 = 1

	// minSerializedSize is the byte-size floor below which byte_limit
	// is considered exhausted (FD_TXN_MIN_SERIALIZED_SZ in the source:
	// the smallest possible serialized transaction).
	minSerializedSize uint64 = 61

	// maxAccountsPerTxn is the admission-time ceiling on total account
	// count (spec.md §4.1 step 3).
	maxAccountsPerTxn = 64

	// typicalVoteCost estimates a simple-vote transaction's compute
	// cost, used only to size the vote reservation in
	// ScheduleNextMicroblock (spec.md §4.3 step 3).
	typicalVoteCost uint64 = 2100
)
