package bankrig

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xinyijun/txpack/pack"
	"github.com/xinyijun/txpack/txn/txntest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRigDrainsPendingTransactions(t *testing.T) {
	lim := pack.Limits{
		MaxCostPerBlock:        10_000_000,
		MaxVoteCostPerBlock:    1_000_000,
		MaxWriteCostPerAcct:    10_000_000,
		MaxTxnPerMicroblock:    32,
		MaxMicroblocksPerBlock: 1000,
		MaxDataBytesPerBlock:   10_000_000,
	}
	estimator := txntest.ConstantCostEstimator{Rewards: 10, ComputeEst: 500, RequestedCUs: 500}
	p, err := pack.New(64, 2, lim, estimator, nil, rand.New(rand.NewSource(9)))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		tx := txntest.NewBuilder(uint64(i + 1)).Writes(txntest.AddressFromLabel("acct")).Build()
		slot := p.InsertInit()
		_, _, ok := p.InsertFini(slot, tx, 1000)
		require.True(t, ok)
	}

	rig := New(p, ExecuteNoop{Rng: rand.New(rand.NewSource(1)), MinFraction: 0.5}, Config{
		BankTileCnt:        2,
		CUsPerBank:         5000,
		VoteFraction:       0,
		MicroblocksPerBank: 25,
	}, nil)

	require.NoError(t, rig.Run(context.Background()))
	require.Equal(t, 64, p.AvailTxnCnt(), "every inserted transaction should have been scheduled and drained")
	require.NoError(t, p.Verify())
}
