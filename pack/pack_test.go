package pack

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xinyijun/txpack/txn"
	"github.com/xinyijun/txpack/txn/txntest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func defaultLimits() Limits {
	return Limits{
		MaxCostPerBlock:        1_000_000,
		MaxVoteCostPerBlock:    200_000,
		MaxWriteCostPerAcct:    100_000,
		MaxTxnPerMicroblock:    64,
		MaxMicroblocksPerBlock: 1000,
		MaxDataBytesPerBlock:   10_000_000,
	}
}

func newTestPack(t *testing.T, packDepth, bankTileCnt int, lim Limits) *Pack {
	t.Helper()
	p, err := New(packDepth, bankTileCnt, lim, txntest.ConstantCostEstimator{Rewards: 100, ComputeEst: 1000, RequestedCUs: 1000}, nil, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	return p
}

func insertOK(t *testing.T, p *Pack, tx *txntest.Transaction, expiresAt uint64) AcceptCode {
	t.Helper()
	slot := p.InsertInit()
	accept, reject, ok := p.InsertFini(slot, tx, expiresAt)
	require.True(t, ok, "expected acceptance, got reject code %s", reject)
	return accept
}

func TestInsertFiniAcceptsAndRejectsDuplicates(t *testing.T) {
	p := newTestPack(t, 8, 2, defaultLimits())
	tx := txntest.NewBuilder(1).Writes(txntest.AddressFromLabel("a")).Build()

	accept := insertOK(t, p, tx, 100)
	require.Equal(t, AcceptNonvoteAdd, accept)

	slot := p.InsertInit()
	_, reject, ok := p.InsertFini(slot, tx, 100)
	require.False(t, ok)
	require.Equal(t, RejectDuplicate, reject)
	require.NoError(t, p.Verify())
}

func TestInsertFiniRejectsEstimationFailure(t *testing.T) {
	p, err := New(4, 1, defaultLimits(), txntest.RejectingCostEstimator{}, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	tx := txntest.NewBuilder(1).Build()
	slot := p.InsertInit()
	_, reject, ok := p.InsertFini(slot, tx, 100)
	require.False(t, ok)
	require.Equal(t, RejectEstimationFail, reject)
}

func TestInsertFiniRejectsAddressLookupTables(t *testing.T) {
	p := newTestPack(t, 4, 1, defaultLimits())
	tx := txntest.NewBuilder(1).WithAddressLookupTables().Build()
	slot := p.InsertInit()
	_, reject, ok := p.InsertFini(slot, tx, 100)
	require.False(t, ok)
	require.Equal(t, RejectAddrLUT, reject)
}

func TestInsertFiniRejectsWritesSysvar(t *testing.T) {
	p := newTestPack(t, 4, 1, defaultLimits())
	tx := txntest.NewBuilder(1).Writes(defaultClockAddress()).Build()
	slot := p.InsertInit()
	_, reject, ok := p.InsertFini(slot, tx, 100)
	require.False(t, ok)
	require.Equal(t, RejectWritesSysvar, reject)
}

func defaultClockAddress() txn.Address {
	return addressFromLabel("Clock")
}

// capacityEstimator returns a custom reward per transaction so
// eviction-priority tests can control which candidate wins.
type capacityEstimator struct{}

func (capacityEstimator) Estimate(tx txn.Transaction) (rewards, computeEst, requestedCUs, precompileSigs uint32, ok bool) {
	b := tx.Payload()
	return uint32(b[0]), 1000, 1000, 0, true
}

func TestCapacityEvictionReplacesWorsePriority(t *testing.T) {
	lim := defaultLimits()
	p, err := New(2, 1, lim, capacityEstimator{}, nil, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	low1 := txntest.NewBuilder(1).WithPayloadSize(8).Build()
	low1.Payload()[0] = 1
	low2 := txntest.NewBuilder(2).WithPayloadSize(8).Build()
	low2.Payload()[0] = 2

	insertOK(t, p, low1, 100)
	insertOK(t, p, low2, 100)
	require.Equal(t, 0, p.AvailTxnCnt())

	// A much higher-priority transaction must evict the worst pending one.
	high := txntest.NewBuilder(3).WithPayloadSize(8).Build()
	high.Payload()[0] = 200
	accept := insertOK(t, p, high, 100)
	require.Equal(t, AcceptNonvoteReplace, accept)
	require.Equal(t, 0, p.AvailTxnCnt())
	require.NoError(t, p.Verify())

	// A worse-than-everything transaction must be rejected outright.
	tooLow := txntest.NewBuilder(4).WithPayloadSize(8).Build()
	tooLow.Payload()[0] = 1
	slot := p.InsertInit()
	_, reject, ok := p.InsertFini(slot, tooLow, 100)
	require.False(t, ok)
	require.Equal(t, RejectPriority, reject)
}

func TestScheduleNextMicroblockConflictAcrossBanks(t *testing.T) {
	p := newTestPack(t, 8, 2, defaultLimits())
	shared := txntest.AddressFromLabel("shared")

	tx1 := txntest.NewBuilder(1).Writes(shared).Build()
	tx2 := txntest.NewBuilder(2).Writes(shared).Build()
	insertOK(t, p, tx1, 100)
	insertOK(t, p, tx2, 100)

	out0 := p.ScheduleNextMicroblock(0, 100_000, 0)
	require.Len(t, out0, 1, "first bank should schedule exactly one of the conflicting pair")

	out1 := p.ScheduleNextMicroblock(1, 100_000, 0)
	require.Empty(t, out1, "second bank must not schedule the conflicting transaction while the first is outstanding")

	p.MicroblockComplete(0)
	out1Again := p.ScheduleNextMicroblock(1, 100_000, 0)
	require.Len(t, out1Again, 1, "after completion the remaining transaction must become schedulable")

	require.NoError(t, p.Verify())
}

func TestScheduleNextMicroblockHonorsVoteFraction(t *testing.T) {
	p := newTestPack(t, 16, 1, defaultLimits())
	for i := 0; i < 4; i++ {
		tx := txntest.NewBuilder(uint64(i + 1)).AsVote().Writes(txntest.AddressFromLabel("vote-acct")).Build()
		insertOK(t, p, tx, 100)
	}
	for i := 0; i < 4; i++ {
		tx := txntest.NewBuilder(uint64(i + 100)).Writes(txntest.AddressFromLabel("nonvote-acct")).Build()
		insertOK(t, p, tx, 100)
	}

	// 8000 CUs at 0.5 reserves 4000 CUs for votes, enough for one
	// typicalVoteCost-sized vote txn slot.
	out := p.ScheduleNextMicroblock(0, 8000, 0.5)
	var votes, nonVotes int
	for _, s := range out {
		if s.IsVote {
			votes++
		} else {
			nonVotes++
		}
	}
	require.Greater(t, votes, 0, "vote reservation must let at least one vote through")
	require.Greater(t, nonVotes, 0, "non-vote pass must still run")
}

func TestScheduleNextMicroblockReservesVoteTxnSlots(t *testing.T) {
	lim := defaultLimits()
	lim.MaxTxnPerMicroblock = 4
	p := newTestPack(t, 32, 1, lim)

	// Flood with cheap non-votes on distinct accounts, far more than the
	// per-microblock txn-count limit, so CU budget alone never binds.
	for i := 0; i < 20; i++ {
		tx := txntest.NewBuilder(uint64(i + 1)).Writes(txntest.AddressFromLabel(fmt.Sprintf("nv%d", i))).Build()
		insertOK(t, p, tx, 100)
	}
	vote := txntest.NewBuilder(100).AsVote().Writes(txntest.AddressFromLabel("vote-acct")).Build()
	insertOK(t, p, vote, 100)

	out := p.ScheduleNextMicroblock(0, 1_000_000, 0.5)
	var votes int
	for _, s := range out {
		if s.IsVote {
			votes++
		}
	}
	require.Greater(t, votes, 0, "vote_reserved_txns must guarantee a vote slot even when non-votes flood the microblock's txn-count budget")
}

func TestRebateCUsRequiresExecuteSuccessFlagWhenCUsUsed(t *testing.T) {
	p := newTestPack(t, 8, 1, defaultLimits())
	tx := txntest.NewBuilder(1).Writes(txntest.AddressFromLabel("a")).Build()
	insertOK(t, p, tx, 100)

	out := p.ScheduleNextMicroblock(0, 100_000, 0)
	require.Len(t, out, 1)
	require.Panics(t, func() {
		p.RebateCUs(out[0].Txn, out[0].ComputeEst, 50, 0)
	}, "reporting nonzero executed cus without FlagExecuteSuccess must panic")
}

func TestScheduleNextMicroblockWriteCostCeiling(t *testing.T) {
	lim := defaultLimits()
	lim.MaxWriteCostPerAcct = 1500
	p := newTestPack(t, 8, 1, lim)
	acct := txntest.AddressFromLabel("hot")

	tx1 := txntest.NewBuilder(1).Writes(acct).Build()
	tx2 := txntest.NewBuilder(2).Writes(acct).Build()
	insertOK(t, p, tx1, 100)
	insertOK(t, p, tx2, 100)

	out := p.ScheduleNextMicroblock(0, 1_000_000, 0)
	require.Len(t, out, 1, "the two transactions conflict on the account, so only one fits this microblock")

	// With the account's lock released, the only thing keeping the second
	// transaction out is the write-cost ceiling (1000 + 1000 > 1500).
	p.MicroblockComplete(0)
	out = p.ScheduleNextMicroblock(0, 1_000_000, 0)
	require.Empty(t, out, "second transaction must be skipped once the account's write-cost ceiling would be exceeded")
	require.Equal(t, 1, p.pendingTxnCnt)
}

func TestExpireBeforeRemovesOnlyExpired(t *testing.T) {
	p := newTestPack(t, 8, 1, defaultLimits())
	old := txntest.NewBuilder(1).Writes(txntest.AddressFromLabel("a")).Build()
	fresh := txntest.NewBuilder(2).Writes(txntest.AddressFromLabel("b")).Build()
	insertOK(t, p, old, 50)
	insertOK(t, p, fresh, 500)

	n := p.ExpireBefore(100)
	require.Equal(t, 1, n)
	require.Equal(t, 1, p.pendingTxnCnt)
	require.NoError(t, p.Verify())

	// Monotonic floor: a smaller limit afterward has no additional effect.
	require.Equal(t, 0, p.ExpireBefore(10))
}

func TestRebateThenEndBlock(t *testing.T) {
	lim := defaultLimits()
	lim.MaxWriteCostPerAcct = 5000
	p := newTestPack(t, 8, 1, lim)
	acct := txntest.AddressFromLabel("rebate-acct")
	tx := txntest.NewBuilder(1).Writes(acct).Build()
	insertOK(t, p, tx, 100)

	out := p.ScheduleNextMicroblock(0, 100_000, 0)
	require.Len(t, out, 1)
	require.Equal(t, uint64(1000), p.cumulativeBlockCost)

	p.RebateCUs(out[0].Txn, out[0].ComputeEst, 200, FlagExecuteSuccess)
	require.Equal(t, uint64(200), p.cumulativeBlockCost)
	wc, ok := p.writerCosts.get(acct)
	require.True(t, ok)
	require.Equal(t, uint64(200), wc.totalCost)

	p.MicroblockComplete(0)
	p.EndBlock()
	require.Equal(t, uint64(0), p.cumulativeBlockCost)
	_, ok = p.writerCosts.get(acct)
	require.False(t, ok, "write cost must be undone at end of block")
	require.NoError(t, p.Verify())
}

func TestDeleteTransaction(t *testing.T) {
	p := newTestPack(t, 8, 1, defaultLimits())
	tx := txntest.NewBuilder(1).Writes(txntest.AddressFromLabel("a")).Build()
	insertOK(t, p, tx, 100)
	require.True(t, p.DeleteTransaction(tx.Signature()))
	require.False(t, p.DeleteTransaction(tx.Signature()))
	require.Equal(t, 0, p.pendingTxnCnt)
	require.NoError(t, p.Verify())
}

func TestClearAll(t *testing.T) {
	p := newTestPack(t, 8, 2, defaultLimits())
	for i := 0; i < 4; i++ {
		tx := txntest.NewBuilder(uint64(i + 1)).Writes(txntest.AddressFromLabel("a")).Build()
		insertOK(t, p, tx, 100)
	}
	p.ClearAll()
	require.Equal(t, 0, p.pendingTxnCnt)
	require.Equal(t, 8, p.AvailTxnCnt())
	require.NoError(t, p.Verify())
}
