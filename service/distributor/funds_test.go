package distributor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_SubmitsHoldersAndTreasury(t *testing.T) {
	chain := &fakeChain{signature: "sig-abc"}
	fd := NewFundsDistributor(chain, time.Minute, testLogger())

	sig, err := fd.Execute(context.Background(), ExecuteParams{
		Holders:             makeHolders(2),
		PerHolder:           []int64{100, 100},
		RemainderToTreasury: 5,
		TreasuryWallet:      "Treasury11111111111111111111111111111111111",
	})
	require.NoError(t, err)
	assert.Equal(t, "sig-abc", sig)

	require.Len(t, chain.submitted, 1)
	batch := chain.submitted[0]
	require.Len(t, batch, 3)
	assert.Equal(t, "Treasury11111111111111111111111111111111111", batch[2].Recipient)
	assert.Equal(t, uint64(5), batch[2].Lamports)
}

func TestExecute_NoSigner(t *testing.T) {
	fd := NewFundsDistributor(&fakeChain{noSigner: true}, time.Minute, testLogger())
	_, err := fd.Execute(context.Background(), ExecuteParams{
		Holders:   makeHolders(1),
		PerHolder: []int64{100},
	})
	assert.ErrorIs(t, err, ErrSignerUnavailable)
}

func TestExecute_NilChain(t *testing.T) {
	fd := NewFundsDistributor(nil, time.Minute, testLogger())
	_, err := fd.Execute(context.Background(), ExecuteParams{
		Holders:   makeHolders(1),
		PerHolder: []int64{100},
	})
	assert.ErrorIs(t, err, ErrSignerUnavailable)
}

func TestExecute_MismatchedAmounts(t *testing.T) {
	fd := NewFundsDistributor(&fakeChain{}, time.Minute, testLogger())
	_, err := fd.Execute(context.Background(), ExecuteParams{
		Holders:   makeHolders(2),
		PerHolder: []int64{100},
	})
	assert.ErrorIs(t, err, ErrTransferBatchFailed)
}

func TestExecute_TreasuryTransferSkipped(t *testing.T) {
	tests := []struct {
		name   string
		params ExecuteParams
	}{
		{
			name: "zero remainder",
			params: ExecuteParams{
				Holders:             makeHolders(1),
				PerHolder:           []int64{100},
				RemainderToTreasury: 0,
				TreasuryWallet:      "Treasury11111111111111111111111111111111111",
			},
		},
		{
			name: "no treasury wallet",
			params: ExecuteParams{
				Holders:             makeHolders(1),
				PerHolder:           []int64{100},
				RemainderToTreasury: 5,
			},
		},
		{
			name: "treasury is the signer",
			params: ExecuteParams{
				Holders:             makeHolders(1),
				PerHolder:           []int64{100},
				RemainderToTreasury: 5,
				TreasuryWallet:      "FakeSigner1111111111111111111111111111111111",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &fakeChain{}
			fd := NewFundsDistributor(chain, time.Minute, testLogger())

			_, err := fd.Execute(context.Background(), tt.params)
			require.NoError(t, err)

			require.Len(t, chain.submitted, 1)
			assert.Len(t, chain.submitted[0], 1)
		})
	}
}

func TestExecute_SkipsZeroAmountHolders(t *testing.T) {
	chain := &fakeChain{}
	fd := NewFundsDistributor(chain, time.Minute, testLogger())

	_, err := fd.Execute(context.Background(), ExecuteParams{
		Holders:   makeHolders(3),
		PerHolder: []int64{100, 0, 100},
	})
	require.NoError(t, err)

	require.Len(t, chain.submitted, 1)
	assert.Len(t, chain.submitted[0], 2)
}

func TestExecute_EmptyBatchRejected(t *testing.T) {
	chain := &fakeChain{}
	fd := NewFundsDistributor(chain, time.Minute, testLogger())

	_, err := fd.Execute(context.Background(), ExecuteParams{
		Holders:   makeHolders(1),
		PerHolder: []int64{0},
	})
	assert.ErrorIs(t, err, ErrTransferBatchFailed)
	assert.Equal(t, 0, chain.submitCalls)
}

func TestExecute_SubmitFailure(t *testing.T) {
	chain := &fakeChain{submitErr: errors.New("rpc unavailable")}
	fd := NewFundsDistributor(chain, time.Minute, testLogger())

	sig, err := fd.Execute(context.Background(), ExecuteParams{
		Holders:   makeHolders(1),
		PerHolder: []int64{100},
	})
	assert.ErrorIs(t, err, ErrTransferBatchFailed)
	assert.Empty(t, sig)
}

func TestExecute_ConfirmationTimeout(t *testing.T) {
	chain := &fakeChain{confirmErr: context.DeadlineExceeded}
	fd := NewFundsDistributor(chain, time.Minute, testLogger())

	sig, err := fd.Execute(context.Background(), ExecuteParams{
		Holders:   makeHolders(1),
		PerHolder: []int64{100},
	})
	assert.ErrorIs(t, err, ErrConfirmationTimeout)

	// The batch was submitted; the signature comes back with the error so
	// the caller can record what may have landed.
	assert.Equal(t, "sig-1", sig)
}

func TestExecute_ConfirmationFailure(t *testing.T) {
	chain := &fakeChain{confirmErr: errors.New("transaction reverted")}
	fd := NewFundsDistributor(chain, time.Minute, testLogger())

	sig, err := fd.Execute(context.Background(), ExecuteParams{
		Holders:   makeHolders(1),
		PerHolder: []int64{100},
	})
	assert.ErrorIs(t, err, ErrTransferBatchFailed)
	assert.NotErrorIs(t, err, ErrConfirmationTimeout)
	assert.Equal(t, "sig-1", sig)
}

func TestMockReference(t *testing.T) {
	a := MockReference()
	b := MockReference()
	assert.Contains(t, a, "mock-dist-")
	assert.NotEqual(t, a, b)
}
