package txn

// CostEstimator estimates the reward and compute cost of a pending
// transaction. This stands in for the fee/cost module spec.md places
// out of scope (§1, §6): a real implementation prices compute budget
// instructions, signature counts and precompile signature counts; the
// core only requires the four outputs below.
type CostEstimator interface {
	// Estimate returns the lamport reward, the estimated compute unit
	// cost, the requested compute unit budget, and the number of
	// additional precompile signatures folded into the signature fee.
	// ok is false if the transaction cannot be costed at all (e.g. an
	// unrecognized compute budget instruction), which the admission
	// pipeline maps to RejectEstimationFail.
	Estimate(tx Transaction) (rewards, computeEst, requestedCUs, precompileSigs uint32, ok bool)
}

// FeePayerAffordabilityChecker decides whether a transaction's fee
// payer can afford its price. spec.md §9 notes the reference
// implementation stubs this to always return true; callers that want
// a real balance check supply one of these instead.
type FeePayerAffordabilityChecker interface {
	CanAfford(payer Address, priceLamports uint64) bool
}

// AlwaysAffordable is the stub affordability checker spec.md §9
// describes as the reference behavior: "fd_pack_can_fee_payer_afford
// ... is a stub returning true."
type AlwaysAffordable struct{}

func (AlwaysAffordable) CanAfford(Address, uint64) bool { return true }
