// Package pack implements a priority-ordered, conflict-aware
// transaction scheduler: it admits pending transactions into two
// treaps (regular and vote), and on request schedules conflict-free
// subsets ("microblocks") for dispatch to a fixed number of parallel
// bank tiles, respecting per-block compute, write-cost, microblock-
// count, byte-count and vote-share limits.
//
// A Pack is single-threaded: every exported method must be called
// from one goroutine (or externally serialized), matching the
// reference scheduler this package is modeled on. Concurrent bank
// tiles are simulated by the caller (see internal/bankrig), not by
// Pack itself.
package pack

import (
	"fmt"
	"math/rand"
	"unsafe"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/xinyijun/txpack/txn"
)

// Scheduled is a transaction the scheduler selected for a microblock.
// ComputeEst is the estimate the scheduler reserved budget against;
// the caller reports actual usage back through RebateCUs once the
// transaction executes.
type Scheduled struct {
	Txn          txn.Transaction
	ComputeEst   uint32
	RequestedCUs uint32
	IsVote       bool
}

// Option configures a Pack at construction time.
type Option func(*Pack)

// WithUnwritableAccounts overrides the default sysvar/builtin-program
// unwritable set, for callers targeting a runtime with a different
// fixed set of non-writable accounts.
func WithUnwritableAccounts(extra map[txn.Address]struct{}) Option {
	return func(p *Pack) { p.unwritable = newUnwritableSet(extra) }
}

// WithMetricsPrefix sets the go-ethereum/metrics registration prefix
// for this Pack's gauges/counters/histograms (spec.md §7).
func WithMetricsPrefix(prefix string) Option {
	return func(p *Pack) { p.metrics = newPackMetrics(prefix) }
}

// WithLogger overrides the package logger, matching the teacher's
// go-ethereum/log convention of an injectable root logger rather than
// only ever using the process-wide default.
func WithLogger(l log.Logger) Option {
	return func(p *Pack) { p.log = l }
}

// WithWrittenListMax bounds how many distinct written accounts
// EndBlock will undo individually before falling back to clearing the
// whole writer-cost table in one pass (spec.md §4.7).
func WithWrittenListMax(n int) Option {
	return func(p *Pack) { p.writtenListMax = n }
}

// Pack is the scheduler core. Construct with New.
type Pack struct {
	limits       Limits
	bankTileCnt  int
	packDepth    int

	arena        *arena
	pending      *treap
	pendingVotes *treap
	expq         *expQueue
	sigs         *sigMap
	bitsets      *acctBitsetTable
	acctInUse    *addrUseTable
	writerCosts  *addrUseTable
	unwritable   *unwritableSet
	metrics      *packMetrics
	log          log.Logger

	estimator  txn.CostEstimator
	feeChecker txn.FeePayerAffordabilityChecker
	rng        *rand.Rand

	// Global snapshot of which accounts any outstanding (scheduled but
	// not yet completed) microblock currently holds, used by the
	// scheduler's fast superset conflict test (spec.md §4.2).
	// MicroblockComplete clears an account's bit only when that bit was
	// not recycled while the account was locked; otherwise the bit stays
	// set until the bulk clear at EndBlock, so the test can produce more
	// slow-path fallbacks as a block fills up (see DESIGN.md).
	bitsetRWInUse bitset
	bitsetWInUse  bitset

	// useByBank[i] lists every account locked on behalf of bank tile i
	// by microblocks not yet completed, in lock order, consumed by
	// MicroblockComplete.
	useByBank [][]txn.Address

	// writtenList is the insertion-ordered list of accounts newly
	// charged in writerCosts this block, undone in reverse order at
	// EndBlock (spec.md §4.7). writtenListOverflowed falls back to a
	// bulk clear once the list would exceed writtenListMax.
	writtenList           []txn.Address
	writtenListMax        int
	writtenListOverflowed bool

	pendingTxnCnt   int
	expireBeforeVal uint64
	seqCounter      uint64

	cumulativeBlockCost uint64
	cumulativeVoteCost  uint64
	microblockCnt       uint64
	dataBytesConsumed   uint64
}

// New constructs a Pack that admits at most packDepth pending
// transactions at a time and schedules for bankTileCnt parallel bank
// tiles. rng drives both treaps' priority assignment; callers that
// want reproducible scheduling order across runs supply a seeded
// source.
func New(packDepth, bankTileCnt int, lim Limits, estimator txn.CostEstimator, feeChecker txn.FeePayerAffordabilityChecker, rng *rand.Rand, opts ...Option) (*Pack, error) {
	if packDepth <= 0 {
		return nil, fmt.Errorf("pack: packDepth must be positive, got %d", packDepth)
	}
	if bankTileCnt <= 0 || bankTileCnt > maxBankTiles {
		return nil, fmt.Errorf("pack: bankTileCnt must be in [1,%d], got %d", maxBankTiles, bankTileCnt)
	}
	if estimator == nil {
		return nil, fmt.Errorf("pack: estimator must not be nil")
	}
	if feeChecker == nil {
		feeChecker = txn.AlwaysAffordable{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	p := &Pack{
		limits:         lim,
		bankTileCnt:    bankTileCnt,
		packDepth:      packDepth,
		arena:          newArena(packDepth + 1),
		pending:        newTreap(rng),
		pendingVotes:   newTreap(rng),
		expq:           newExpQueue(),
		sigs:           newSigMap(packDepth),
		bitsets:        newAcctBitsetTable(2 * packDepth),
		acctInUse:      newAddrUseTable(2 * packDepth),
		writerCosts:    newAddrUseTable(2 * packDepth),
		unwritable:     newUnwritableSet(nil),
		estimator:      estimator,
		feeChecker:     feeChecker,
		rng:            rng,
		useByBank:      make([][]txn.Address, bankTileCnt),
		writtenListMax: defaultWrittenListMax,
		log:            log.Root(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = newPackMetrics("pack")
	}
	return p, nil
}

// Footprint estimates the number of bytes a Pack sized for packDepth
// pending transactions and bankTileCnt bank tiles will allocate,
// mirroring the source's fd_pack_footprint sizing helper (spec.md §5)
// so a caller can size a memory budget before constructing one.
func Footprint(packDepth, bankTileCnt int) uint64 {
	arenaBytes := uint64(packDepth+1) * uint64(unsafe.Sizeof(entry{}))
	perAcctBytes := uint64(unsafe.Sizeof(acctBitsetMapping{})) + 2*uint64(unsafe.Sizeof(addrUse{}))
	acctBytes := uint64(2*packDepth) * perAcctBytes
	bankBytes := uint64(bankTileCnt) * uint64(unsafe.Sizeof([]txn.Address{}))
	return arenaBytes + acctBytes + bankBytes
}

// AvailTxnCnt returns how many more transactions may be admitted
// before capacity-eviction policy starts replacing existing entries.
func (p *Pack) AvailTxnCnt() int { return p.packDepth - p.pendingTxnCnt }

// BankTileCnt returns the number of bank tiles this Pack schedules
// for.
func (p *Pack) BankTileCnt() int { return p.bankTileCnt }

// MetricsRegistry returns this Pack's private go-ethereum/metrics
// registry, for a caller that wants to export it (e.g. merge it into
// an HTTP /metrics endpoint alongside other registries).
func (p *Pack) MetricsRegistry() metrics.Registry { return p.metrics.registry }

// SetBlockLimits adjusts the per-block microblock-count and data-byte
// ceilings without reconstructing the Pack, for callers that learn the
// current slot's limits only after scheduling has already begun
// (spec.md §5).
func (p *Pack) SetBlockLimits(maxMicroblocks, maxDataBytes uint64) {
	p.limits.MaxMicroblocksPerBlock = maxMicroblocks
	p.limits.MaxDataBytesPerBlock = maxDataBytes
}

// PendingSlot is a reserved arena entry between InsertInit and the
// matching InsertFini or InsertCancel. A Pack has exactly one spare
// arena slot beyond packDepth, so callers must not hold more than one
// PendingSlot open at a time.
type PendingSlot struct {
	e *entry
}

// InsertInit reserves a scratch entry for a transaction the caller is
// about to validate, ahead of calling InsertFini (spec.md §5).
func (p *Pack) InsertInit() *PendingSlot {
	return &PendingSlot{e: p.arena.acquire()}
}

// InsertCancel abandons a reservation from InsertInit without
// admitting anything, returning the scratch entry to the arena.
func (p *Pack) InsertCancel(slot *PendingSlot) {
	if slot == nil || slot.e == nil {
		return
	}
	p.arena.release(slot.e)
	slot.e = nil
}

// InsertFini runs the admission pipeline for tx against the reserved
// slot: estimation, affordability, size and account-count checks,
// duplicate-account and sysvar-write checks, duplicate-signature and
// expiration checks, address-lookup-table rejection, and finally the
// capacity-eviction policy, in that order (spec.md §4.1). On
// acceptance the entry is registered in the bitset reference table and
// inserted into the appropriate treap, signature map and expiration
// queue. slot is consumed either way; the caller must not reuse it.
func (p *Pack) InsertFini(slot *PendingSlot, tx txn.Transaction, expiresAt uint64) (AcceptCode, RejectCode, bool) {
	e := slot.e
	slot.e = nil
	reject := func(code RejectCode) (AcceptCode, RejectCode, bool) {
		p.arena.release(e)
		return 0, code, false
	}

	rewards, computeEst, requestedCUs, _, ok := p.estimator.Estimate(tx)
	if !ok || computeEst == 0 {
		return reject(RejectEstimationFail)
	}

	// priceLamports: the full fee schedule is out of scope (spec.md §1,
	// §6), so the estimator's reward figure stands in for price here.
	if !p.feeChecker.CanAfford(tx.FeePayer(), uint64(rewards)) {
		return reject(RejectUnaffordable)
	}
	if uint64(computeEst) >= p.limits.MaxCostPerBlock {
		return reject(RejectTooLarge)
	}

	all := tx.Accounts(txn.CategoryAll)
	if len(all) > maxAccountsPerTxn {
		return reject(RejectAccountCount)
	}
	seen := mapset.NewThreadUnsafeSet[txn.Address]()
	for _, a := range all {
		if !seen.Add(a) {
			return reject(RejectDuplicateAccount)
		}
	}

	writable := tx.Accounts(txn.CategoryWritableImmediate)
	for _, a := range writable {
		if p.unwritable.contains(a) {
			return reject(RejectWritesSysvar)
		}
	}

	sig := tx.Signature()
	if p.sigs.lookup(sig) != nil {
		return reject(RejectDuplicate)
	}
	if expiresAt < p.expireBeforeVal {
		return reject(RejectExpired)
	}
	if tx.HasAddressLookupTables() {
		return reject(RejectAddrLUT)
	}

	isVote := tx.IsSimpleVote()
	accept := AcceptNonvoteAdd
	if isVote {
		accept = AcceptVoteAdd
	}

	if p.pendingTxnCnt >= p.packDepth {
		victimTreap, ok := p.evictionVictimPool(isVote)
		if !ok {
			return reject(RejectPriority)
		}
		victim := victimTreap.worst()
		if victim == nil {
			return reject(RejectPriority)
		}
		// COMPARE_WORSE: reject unless the new candidate strictly beats
		// the victim's reward/compute ratio (spec.md §3, §9).
		lhs := uint64(rewards) * uint64(victim.computeEst)
		rhs := uint64(victim.rewards) * uint64(computeEst)
		if lhs <= rhs {
			return reject(RejectPriority)
		}
		p.releasePendingEntry(victim)
		if isVote {
			accept = AcceptVoteReplace
		} else {
			accept = AcceptNonvoteReplace
		}
	}

	readable := tx.Accounts(txn.CategoryReadonlyImmediate)

	e.txn = tx
	e.sig = [64]byte(sig)
	e.payloadSize = len(tx.Payload())
	e.rewards = rewards
	e.computeEst = computeEst
	e.requestedCUs = requestedCUs
	if isVote {
		e.flags |= FlagIsSimpleVote
	}
	e.expiresAt = expiresAt
	p.seqCounter++
	e.seq = p.seqCounter

	e.writable = append(e.writable[:0], writable...)
	e.readable = e.readable[:0]
	for _, a := range readable {
		// Sysvar-like accounts are read by nearly every transaction; if
		// tracked like any other account they would dominate the scarce
		// bit space and force everything onto the slowpath bit for no
		// conflict-detection benefit, since they're never writable.
		if !p.unwritable.contains(a) {
			e.readable = append(e.readable, a)
		}
	}

	for _, a := range e.writable {
		p.bitsets.reference(a, e, true)
	}
	for _, a := range e.readable {
		p.bitsets.reference(a, e, false)
	}

	target := p.pending
	e.root = rootPending
	if isVote {
		target = p.pendingVotes
		e.root = rootPendingVote
	}
	target.insert(e)
	p.sigs.insert(e)
	p.expq.insert(e)
	p.pendingTxnCnt++

	if p.metrics != nil {
		p.metrics.availableTxns.Update(int64(p.pending.len()))
		p.metrics.availableVoteTxns.Update(int64(p.pendingVotes.len()))
	}

	return accept, RejectNone, true
}

// evictionVictimPool decides which treap capacity-eviction should pull
// its victim from when admitting an is-vote-or-not candidate at full
// capacity: when the candidate's own pool holds fewer than
// pack_depth>>2 entries (and the other pool is non-empty), the victim
// is taken from the other pool instead of the candidate's own worst
// member. Either way the candidate must still beat the victim's
// reward/compute ratio. This is how the source keeps one
// class of traffic from being starved by a flood of the other (spec.md
// §9, an Open Question this package resolves this way — see
// DESIGN.md).
func (p *Pack) evictionVictimPool(isVote bool) (*treap, bool) {
	threshold := p.packDepth >> 2
	voteCnt, nonVoteCnt := p.pendingVotes.len(), p.pending.len()
	if isVote {
		if voteCnt < threshold && nonVoteCnt > 0 {
			return p.pending, true
		}
		if p.pendingVotes.len() == 0 {
			return nil, false
		}
		return p.pendingVotes, true
	}
	if nonVoteCnt < threshold && voteCnt > 0 {
		return p.pendingVotes, true
	}
	if p.pending.len() == 0 {
		return nil, false
	}
	return p.pending, true
}

// releasePendingEntry removes a still-pending (never scheduled) entry
// from every index and returns it to the arena. Used by
// DeleteTransaction, ExpireBefore and capacity-eviction. Unlike a
// scheduled entry, a pending entry never touched the global in-use
// bitset, so there's nothing to undo there — only its bitset
// reference-count slot needs releasing.
func (p *Pack) releasePendingEntry(e *entry) {
	for _, a := range e.writable {
		p.bitsets.release(a)
	}
	for _, a := range e.readable {
		p.bitsets.release(a)
	}
	p.sigs.remove(e.sig)
	p.expq.remove(e)
	switch e.root {
	case rootPending:
		p.pending.remove(e)
	case rootPendingVote:
		p.pendingVotes.remove(e)
	default:
		panic(invariantError("release of entry not owned by a pending treap"))
	}
	p.arena.release(e)
	p.pendingTxnCnt--
}

// DeleteTransaction removes a still-pending transaction by signature,
// reporting whether one was found.
func (p *Pack) DeleteTransaction(sig txn.Signature) bool {
	e := p.sigs.lookup(sig)
	if e == nil {
		return false
	}
	p.releasePendingEntry(e)
	return true
}

// ExpireBefore evicts every pending transaction whose expiration is
// strictly before limit, returning the number removed. The floor is
// monotonic: a smaller limit than a prior call has no additional
// effect (spec.md §4.6).
func (p *Pack) ExpireBefore(limit uint64) int {
	if limit > p.expireBeforeVal {
		p.expireBeforeVal = limit
	}
	n := 0
	for {
		e := p.expq.peek()
		if e == nil || e.expiresAt >= p.expireBeforeVal {
			break
		}
		p.releasePendingEntry(e)
		n++
	}
	return n
}

// ClearAll discards every pending transaction and resets all
// within-block accounting, as if the Pack had just been constructed
// (spec.md §5).
func (p *Pack) ClearAll() {
	p.pending.drainAll(func(e *entry) { p.arena.release(e) })
	p.pendingVotes.drainAll(func(e *entry) { p.arena.release(e) })
	p.sigs.clear()
	p.expq.clear()
	p.bitsets.clear()
	p.acctInUse.clear()
	p.writerCosts.clear()
	p.writtenList = p.writtenList[:0]
	p.writtenListOverflowed = false
	p.bitsetRWInUse = bitset{}
	p.bitsetWInUse = bitset{}
	p.pendingTxnCnt = 0
	p.cumulativeBlockCost = 0
	p.cumulativeVoteCost = 0
	p.microblockCnt = 0
	p.dataBytesConsumed = 0
	for i := range p.useByBank {
		p.useByBank[i] = p.useByBank[i][:0]
	}
}

// scheduleImpl is the scheduler hot path (spec.md §4.2): it walks src
// from best to worst priority, skipping candidates that can't fit the
// remaining CU or byte budget, then a fast bitset superset conflict
// test, then (only on a fast-path hit) an exact account-by-account
// conflict check, then a per-writable-account write-cost ceiling
// check. Accepted entries are locked immediately; their actual removal
// from src is deferred until iteration finishes, since mutating a
// treap mid-traversal is unsafe.
func (p *Pack) scheduleImpl(src *treap, bankTile int, cuLimit, txnLimit, byteLimit uint64, out []Scheduled) (result []Scheduled, cusUsed, bytesUsed, txnsUsed uint64) {
	result = out
	var scheduled []*entry

	src.reverseIter(func(e *entry) bool {
		if txnsUsed >= txnLimit {
			return false
		}
		if cuLimit < minTxnCost || cuLimit-cusUsed < minTxnCost {
			return false
		}
		if uint64(e.computeEst) > cuLimit-cusUsed {
			p.metrics.scheduleCULimit.Inc(1)
			return true
		}
		if byteLimit < minSerializedSize || byteLimit-bytesUsed < minSerializedSize {
			return false
		}
		if uint64(e.payloadSize) > byteLimit-bytesUsed {
			p.metrics.scheduleByteLimit.Inc(1)
			return true
		}
		if conflicts(p.bitsetRWInUse, p.bitsetWInUse, e.rwBitset, e.wBitset) {
			p.metrics.scheduleFastPath.Inc(1)
			if p.hasExactConflict(e) {
				p.metrics.scheduleSlowPath.Inc(1)
				return true
			}
		}
		for _, a := range e.writable {
			if wc, ok := p.writerCosts.get(a); ok && wc.totalCost+uint64(e.computeEst) > p.limits.MaxWriteCostPerAcct {
				p.metrics.scheduleWriteCost.Inc(1)
				return true
			}
		}

		p.lockAndAccount(e, bankTile)
		result = append(result, Scheduled{
			Txn:          e.txn,
			ComputeEst:   e.computeEst,
			RequestedCUs: e.requestedCUs,
			IsVote:       e.isVote(),
		})
		scheduled = append(scheduled, e)
		cusUsed += uint64(e.computeEst)
		bytesUsed += uint64(e.payloadSize)
		txnsUsed++
		p.metrics.scheduleTaken.Inc(1)
		return txnsUsed < txnLimit
	})

	for _, e := range scheduled {
		p.sigs.remove(e.sig)
		p.expq.remove(e)
		src.remove(e)
		p.arena.release(e)
		p.pendingTxnCnt--
	}
	return result, cusUsed, bytesUsed, txnsUsed
}

// hasExactConflict is the slow-path, always-exact conflict test the
// fast bitset test falls back on when it reports a possible conflict
// (spec.md §4.2): a candidate's writable account conflicts with any
// bank currently holding that account at all; a candidate's readable
// account conflicts only if some bank currently holds it writably.
func (p *Pack) hasExactConflict(e *entry) bool {
	for _, a := range e.writable {
		if use, ok := p.acctInUse.get(a); ok && use.inUseBy&bankMembershipMask != 0 {
			return true
		}
	}
	for _, a := range e.readable {
		if use, ok := p.acctInUse.get(a); ok && use.inUseBy&writableBit != 0 {
			return true
		}
	}
	return false
}

// lockAndAccount records e as locked by bankTile: it folds e's bitset
// into the global in-use snapshot, marks each account's bank
// membership, charges writable accounts against their per-block
// write-cost ceiling, and releases e's own bitset reference (it's
// leaving the pending population, so it no longer needs a reserved
// slot in the ref-counted bit table).
func (p *Pack) lockAndAccount(e *entry, bankTile int) {
	p.bitsetRWInUse.or(e.rwBitset)
	p.bitsetWInUse.or(e.wBitset)

	bank := uint64(1) << uint(bankTile)
	for _, a := range e.writable {
		p.lockAccount(a, bank, true)
		p.chargeWriteCost(a, e.computeEst)
		p.useByBank[bankTile] = append(p.useByBank[bankTile], a)
	}
	for _, a := range e.readable {
		p.lockAccount(a, bank, false)
		p.useByBank[bankTile] = append(p.useByBank[bankTile], a)
	}

	p.cumulativeBlockCost += uint64(e.computeEst)
	if e.isVote() {
		p.cumulativeVoteCost += uint64(e.computeEst)
	}
}

// lockAccount marks addr as held by bank, capturing its currently
// assigned scarce bit (if any) the first time the account transitions
// from unlocked to locked, then releases this entry's own pending
// bitset reference.
func (p *Pack) lockAccount(addr txn.Address, bank uint64, writable bool) {
	use := p.acctInUse.getOrInsert(addr)
	if use.inUseBy&(bankMembershipMask|writableBit) == 0 {
		use.globalBit = -1
		if q, ok := p.bitsets.m[addr]; ok {
			use.globalBit = resolvedBit(q.bit)
		}
	}
	use.inUseBy |= bank
	if writable {
		use.inUseBy |= writableBit
	}
	releaseBitReference(p.bitsets, p.acctInUse, addr)
}

// chargeWriteCost adds cost to addr's running per-block write-cost
// total, recording addr in writtenList the first time it's charged
// this block so EndBlock can undo the charge in reverse order.
func (p *Pack) chargeWriteCost(addr txn.Address, cost uint32) {
	_, existed := p.writerCosts.get(addr)
	wc := p.writerCosts.getOrInsert(addr)
	wc.totalCost += uint64(cost)
	if !existed {
		if len(p.writtenList) < p.writtenListMax {
			p.writtenList = append(p.writtenList, addr)
		} else {
			p.writtenListOverflowed = true
		}
	}
}

// ScheduleNextMicroblock selects a conflict-free set of transactions
// for bankTile's next microblock, in three passes (spec.md §4.3):
// non-vote transactions up to totalCUs minus a CU reservation sized by
// voteFraction, then votes up to that CU reservation, then a non-vote
// remainder pass using whatever of the reservation the vote pool
// didn't use. Alongside the CU reservation, vote_reserved_txns bounds
// how many of MaxTxnPerMicroblock's txn-count budget the non-vote pass
// may take, so a flood of cheap non-votes can't consume the whole
// microblock's txn-count budget and starve votes out on txn count
// alone even though CU budget was reserved for them. voteFraction is
// clamped to [0,1]. Returns nil (scheduling nothing) once
// MaxMicroblocksPerBlock has been reached.
func (p *Pack) ScheduleNextMicroblock(bankTile int, totalCUs uint64, voteFraction float64) []Scheduled {
	if bankTile < 0 || bankTile >= p.bankTileCnt {
		panic(invariantError("bank tile %d out of range [0,%d)", bankTile, p.bankTileCnt))
	}
	if p.microblockCnt >= p.limits.MaxMicroblocksPerBlock {
		p.metrics.microblockPerBlock.Inc(1)
		return nil
	}
	if p.dataBytesConsumed+microblockDataOverhead > p.limits.MaxDataBytesPerBlock {
		p.metrics.dataPerBlockLimit.Inc(1)
		return nil
	}

	if voteFraction < 0 {
		voteFraction = 0
	} else if voteFraction > 1 {
		voteFraction = 1
	}

	blockRemaining := uint64(0)
	if p.limits.MaxCostPerBlock > p.cumulativeBlockCost {
		blockRemaining = p.limits.MaxCostPerBlock - p.cumulativeBlockCost
	}
	if totalCUs > blockRemaining {
		totalCUs = blockRemaining
	}
	voteRemaining := uint64(0)
	if p.limits.MaxVoteCostPerBlock > p.cumulativeVoteCost {
		voteRemaining = p.limits.MaxVoteCostPerBlock - p.cumulativeVoteCost
	}

	txnLimit := p.limits.MaxTxnPerMicroblock
	byteLimit := p.limits.MaxDataBytesPerBlock - p.dataBytesConsumed - microblockDataOverhead

	voteCU := uint64(float64(totalCUs) * voteFraction)
	if voteCU > voteRemaining {
		voteCU = voteRemaining
	}
	nonVoteCU := totalCUs - voteCU

	// vote_reserved_txns (spec.md §4.3 steps 3/5/6; fd_pack.c's
	// fd_pack_schedule_next_microblock): as many votes as the CU
	// reservation could plausibly fit at a typical vote's cost, capped
	// by voteFraction's share of the whole microblock's txn-count
	// budget, and never more than the budget itself.
	voteReservedTxns := voteCU / typicalVoteCost
	if maxByFraction := uint64(float64(txnLimit) * voteFraction); voteReservedTxns > maxByFraction {
		voteReservedTxns = maxByFraction
	}
	if voteReservedTxns > txnLimit {
		voteReservedTxns = txnLimit
	}
	nonVoteTxnLimit := txnLimit - voteReservedTxns

	out := make([]Scheduled, 0, txnLimit)

	out, cus1, bytes1, n1 := p.scheduleImpl(p.pending, bankTile, nonVoteCU, nonVoteTxnLimit, byteLimit, out)
	byteLimit -= bytes1

	out, cus2, bytes2, n2 := p.scheduleImpl(p.pendingVotes, bankTile, voteCU, voteReservedTxns, byteLimit, out)
	byteLimit -= bytes2

	remainderCU := (nonVoteCU - cus1) + (voteCU - cus2)
	remainderTxnLimit := txnLimit - n1 - n2
	out, cus3, bytes3, _ := p.scheduleImpl(p.pending, bankTile, remainderCU, remainderTxnLimit, byteLimit, out)

	totalCUsUsed := cus1 + cus2 + cus3
	totalBytesUsed := bytes1 + bytes2 + bytes3

	if len(out) > 0 {
		p.dataBytesConsumed += totalBytesUsed + microblockDataOverhead
		p.microblockCnt++
	}

	if p.metrics != nil {
		p.metrics.txnPerMicroblock.Update(int64(len(out)))
		p.metrics.votePerMicroblock.Update(int64(n2))
		p.metrics.cusScheduled.Update(int64(totalCUsUsed))
		p.metrics.cusConsumed.Update(int64(p.cumulativeBlockCost))
	}
	p.log.Debug("scheduled microblock", "bank_tile", bankTile, "txns", len(out), "cus", totalCUsUsed, "bytes", totalBytesUsed)

	return out
}

// MicroblockComplete releases every account bankTile's most recently
// scheduled (and now-executed) microblocks locked. For an account
// whose last bank-membership bit this clears, its global bitset bit
// is cleared too, but only if nothing recycled that scarce bit to a
// different account since it was locked (the BIT_CLEARED hazard,
// spec.md §4.2, §4.4, §9): leaving the bit set in that case is always
// safe, just conservative, since the fast-path test may only ever
// false-positive, never false-negative.
func (p *Pack) MicroblockComplete(bankTile int) {
	if bankTile < 0 || bankTile >= p.bankTileCnt {
		panic(invariantError("bank tile %d out of range [0,%d)", bankTile, p.bankTileCnt))
	}
	bank := uint64(1) << uint(bankTile)
	for _, addr := range p.useByBank[bankTile] {
		use, ok := p.acctInUse.get(addr)
		if !ok {
			panic(invariantError("microblock complete: account not in acct_in_use"))
		}
		wasWritable := use.inUseBy&writableBit != 0
		use.inUseBy &^= bank
		if use.inUseBy&bankMembershipMask != 0 {
			continue
		}
		safe := use.inUseBy&bitClearedFlag == 0
		if safe && use.globalBit >= 0 {
			p.bitsetRWInUse.clear(int(use.globalBit))
			if wasWritable {
				p.bitsetWInUse.clear(int(use.globalBit))
			}
		}
		p.acctInUse.remove(addr)
	}
	p.useByBank[bankTile] = p.useByBank[bankTile][:0]
}

// RebateCUs gives back the unused portion of a scheduled transaction's
// reserved compute budget once its actual execution cost is known,
// freeing that budget for later scheduling within the same block
// (spec.md §4.5). flags reports the transaction's execution result;
// a caller that reports a failed execution (FlagExecuteSuccess unset)
// alongside executedCUs > 0 has violated the contract that a failed
// transaction consumes no compute, which is a caller bug rather than a
// recoverable condition. executedCUs greater than computeEst is the
// same kind of bug: the estimate is exactly what was reserved against
// every limit this call now partially refunds.
func (p *Pack) RebateCUs(tx txn.Transaction, computeEst, executedCUs uint32, flags Flags) {
	if flags&FlagExecuteSuccess == 0 && executedCUs > 0 {
		panic(invariantError("rebate: transaction reported %d executed cus without FlagExecuteSuccess", executedCUs))
	}
	if executedCUs > computeEst {
		panic(invariantError("rebate: executed_cus %d exceeds estimated %d", executedCUs, computeEst))
	}
	rebate := uint64(computeEst - executedCUs)
	if rebate == 0 {
		return
	}
	if p.cumulativeBlockCost < rebate {
		panic(invariantError("rebate: block cost underflow"))
	}
	p.cumulativeBlockCost -= rebate
	if tx.IsSimpleVote() {
		if p.cumulativeVoteCost < rebate {
			panic(invariantError("rebate: vote cost underflow"))
		}
		p.cumulativeVoteCost -= rebate
	}
	for _, a := range tx.Accounts(txn.CategoryWritableImmediate) {
		wc, ok := p.writerCosts.get(a)
		if !ok {
			panic(invariantError("rebate: account not in writer_costs"))
		}
		if wc.totalCost < rebate {
			panic(invariantError("rebate: writer cost underflow"))
		}
		wc.totalCost -= rebate
	}
	if p.metrics != nil {
		p.metrics.cusRebated.Update(int64(rebate))
	}
}

// EndBlock samples the per-block histograms (spec.md §4.7's "sample
// per-block histograms" step, net_cus_per_block in SPEC_FULL.md §5)
// and resets all per-block accounting for the next block: the
// cumulative cost and vote-cost totals, the microblock and data-byte
// counters, the global in-use bitset, and the writer-cost table
// (undone in reverse insertion order to bound the work to exactly what
// was charged, falling back to a single bulk clear if writtenList
// overflowed its cap).
func (p *Pack) EndBlock() {
	if p.metrics != nil {
		p.metrics.cusNet.Update(int64(p.cumulativeBlockCost))
	}
	if p.writtenListOverflowed {
		p.writerCosts.clear()
	} else {
		for i := len(p.writtenList) - 1; i >= 0; i-- {
			p.writerCosts.remove(p.writtenList[i])
		}
	}
	p.writtenList = p.writtenList[:0]
	p.writtenListOverflowed = false

	p.cumulativeBlockCost = 0
	p.cumulativeVoteCost = 0
	p.microblockCnt = 0
	p.dataBytesConsumed = 0
	p.bitsetRWInUse = bitset{}
	p.bitsetWInUse = bitset{}
}
