package solana

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	accounts     rpc.GetProgramAccountsResult
	accountsErr  error
	blockhash    *rpc.GetLatestBlockhashResult
	blockhashErr error
	sendSig      solana.Signature
	sendErr      error
	sentTxs      []*solana.Transaction
	statuses     []*rpc.SignatureStatusesResult
	statusErr    error
	balance      uint64
	balanceErr   error
}

func (m *mockRPCClient) GetProgramAccountsWithOpts(
	ctx context.Context,
	publicKey solana.PublicKey,
	opts *rpc.GetProgramAccountsOpts,
) (rpc.GetProgramAccountsResult, error) {
	if m.accountsErr != nil {
		return nil, m.accountsErr
	}
	return m.accounts, nil
}

func (m *mockRPCClient) GetLatestBlockhash(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (*rpc.GetLatestBlockhashResult, error) {
	if m.blockhashErr != nil {
		return nil, m.blockhashErr
	}
	if m.blockhash != nil {
		return m.blockhash, nil
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            solana.Hash{},
			LastValidBlockHeight: 100,
		},
	}, nil
}

func (m *mockRPCClient) SendTransactionWithOpts(
	ctx context.Context,
	tx *solana.Transaction,
	opts rpc.TransactionOpts,
) (solana.Signature, error) {
	if m.sendErr != nil {
		return solana.Signature{}, m.sendErr
	}
	m.sentTxs = append(m.sentTxs, tx)
	return m.sendSig, nil
}

func (m *mockRPCClient) GetSignatureStatuses(
	ctx context.Context,
	searchTransactionHistory bool,
	transactionSignatures ...solana.Signature,
) (*rpc.GetSignatureStatusesResult, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return &rpc.GetSignatureStatusesResult{Value: m.statuses}, nil
}

func (m *mockRPCClient) GetBalance(
	ctx context.Context,
	account solana.PublicKey,
	commitment rpc.CommitmentType,
) (*rpc.GetBalanceResult, error) {
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	return &rpc.GetBalanceResult{Value: m.balance}, nil
}

func newTestClient(mock *mockRPCClient, signer *solana.PrivateKey) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, signer, "test", nil, logger)
}

// tokenAccountData builds a raw SPL token account: mint [0:32],
// owner [32:64], amount little-endian [64:72].
func tokenAccountData(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, tokenAccountSize)
	copy(data[0:32], mint.Bytes())
	copy(data[32:64], owner.Bytes())
	binary.LittleEndian.PutUint64(data[64:72], amount)
	return data
}

func TestGetTokenHolders(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	owner1 := solana.NewWallet().PublicKey()
	owner2 := solana.NewWallet().PublicKey()
	ownerZero := solana.NewWallet().PublicKey()
	acct1 := solana.NewWallet().PublicKey()
	acct2 := solana.NewWallet().PublicKey()
	acct3 := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		accounts: rpc.GetProgramAccountsResult{
			{
				Pubkey: acct1,
				Account: &rpc.Account{
					Data: rpc.DataBytesOrJSONFromBytes(tokenAccountData(mint, owner1, 500)),
				},
			},
			{
				Pubkey: acct2,
				Account: &rpc.Account{
					Data: rpc.DataBytesOrJSONFromBytes(tokenAccountData(mint, owner2, 1_250)),
				},
			},
			{
				// Zero-balance accounts are not holders.
				Pubkey: acct3,
				Account: &rpc.Account{
					Data: rpc.DataBytesOrJSONFromBytes(tokenAccountData(mint, ownerZero, 0)),
				},
			},
		},
	}

	client := newTestClient(mock, nil)
	holders, err := client.GetTokenHolders(context.Background(), mint.String())
	require.NoError(t, err)
	require.Len(t, holders, 2)

	assert.Equal(t, owner1.String(), holders[0].Owner)
	assert.Equal(t, acct1.String(), holders[0].TokenAccount)
	assert.Equal(t, uint64(500), holders[0].Balance)
	assert.Equal(t, owner2.String(), holders[1].Owner)
	assert.Equal(t, uint64(1_250), holders[1].Balance)
}

func TestGetTokenHolders_SkipsMalformedAccounts(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		accounts: rpc.GetProgramAccountsResult{
			{
				Pubkey: solana.NewWallet().PublicKey(),
				Account: &rpc.Account{
					Data: rpc.DataBytesOrJSONFromBytes([]byte{0x01, 0x02}),
				},
			},
			{
				Pubkey: solana.NewWallet().PublicKey(),
				Account: &rpc.Account{
					Data: rpc.DataBytesOrJSONFromBytes(tokenAccountData(mint, owner, 10)),
				},
			},
		},
	}

	client := newTestClient(mock, nil)
	holders, err := client.GetTokenHolders(context.Background(), mint.String())
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, owner.String(), holders[0].Owner)
}

func TestGetTokenHolders_RPCError(t *testing.T) {
	mock := &mockRPCClient{accountsErr: errors.New("node unavailable")}
	client := newTestClient(mock, nil)

	_, err := client.GetTokenHolders(context.Background(), solana.NewWallet().PublicKey().String())
	assert.Error(t, err)
}

func TestGetTokenHolders_InvalidMint(t *testing.T) {
	client := newTestClient(&mockRPCClient{}, nil)
	_, err := client.GetTokenHolders(context.Background(), "not-a-base58-address!")
	assert.Error(t, err)
}

func TestSubmitTransferBatch(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	mock := &mockRPCClient{sendSig: sig}
	client := newTestClient(mock, &signer)

	got, err := client.SubmitTransferBatch(context.Background(), []Transfer{
		{Recipient: solana.NewWallet().PublicKey().String(), Lamports: 100},
		{Recipient: solana.NewWallet().PublicKey().String(), Lamports: 200},
	})
	require.NoError(t, err)
	assert.Equal(t, sig.String(), got)

	// One transaction carrying both transfers.
	require.Len(t, mock.sentTxs, 1)
	assert.Len(t, mock.sentTxs[0].Message.Instructions, 2)
	assert.NotEmpty(t, mock.sentTxs[0].Signatures)
}

func TestSubmitTransferBatch_NoSigner(t *testing.T) {
	client := newTestClient(&mockRPCClient{}, nil)
	_, err := client.SubmitTransferBatch(context.Background(), []Transfer{
		{Recipient: solana.NewWallet().PublicKey().String(), Lamports: 100},
	})
	assert.Error(t, err)
}

func TestSubmitTransferBatch_EmptyBatch(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	client := newTestClient(&mockRPCClient{}, &signer)
	_, err := client.SubmitTransferBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestSubmitTransferBatch_InvalidRecipient(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	mock := &mockRPCClient{}
	client := newTestClient(mock, &signer)

	_, err := client.SubmitTransferBatch(context.Background(), []Transfer{
		{Recipient: "definitely not an address", Lamports: 100},
	})
	assert.Error(t, err)
	assert.Empty(t, mock.sentTxs)
}

func TestSubmitTransferBatch_SendError(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	mock := &mockRPCClient{sendErr: errors.New("blockhash not found")}
	client := newTestClient(mock, &signer)

	_, err := client.SubmitTransferBatch(context.Background(), []Transfer{
		{Recipient: solana.NewWallet().PublicKey().String(), Lamports: 100},
	})
	assert.Error(t, err)
}

func TestConfirmTransaction_Confirmed(t *testing.T) {
	sig := "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
	mock := &mockRPCClient{
		statuses: []*rpc.SignatureStatusesResult{
			{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
		},
	}
	client := newTestClient(mock, nil)

	err := client.ConfirmTransaction(context.Background(), sig)
	assert.NoError(t, err)
}

func TestConfirmTransaction_Finalized(t *testing.T) {
	sig := "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
	mock := &mockRPCClient{
		statuses: []*rpc.SignatureStatusesResult{
			{ConfirmationStatus: rpc.ConfirmationStatusFinalized},
		},
	}
	client := newTestClient(mock, nil)

	err := client.ConfirmTransaction(context.Background(), sig)
	assert.NoError(t, err)
}

func TestConfirmTransaction_FailedOnChain(t *testing.T) {
	sig := "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
	mock := &mockRPCClient{
		statuses: []*rpc.SignatureStatusesResult{
			{Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
		},
	}
	client := newTestClient(mock, nil)

	err := client.ConfirmTransaction(context.Background(), sig)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed on-chain")
}

func TestConfirmTransaction_ContextExpires(t *testing.T) {
	sig := "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
	// Status never resolves; the wait must be bounded by the context.
	mock := &mockRPCClient{statuses: []*rpc.SignatureStatusesResult{nil}}
	client := newTestClient(mock, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.ConfirmTransaction(ctx, sig)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfirmTransaction_InvalidSignature(t *testing.T) {
	client := newTestClient(&mockRPCClient{}, nil)
	err := client.ConfirmTransaction(context.Background(), "bogus")
	assert.Error(t, err)
}

func TestGetBalance(t *testing.T) {
	mock := &mockRPCClient{balance: 42_000_000}
	client := newTestClient(mock, nil)

	balance, err := client.GetBalance(context.Background(), solana.NewWallet().PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000_000), balance)
}

func TestGetBalance_InvalidAddress(t *testing.T) {
	client := newTestClient(&mockRPCClient{}, nil)
	_, err := client.GetBalance(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSignerAccessors(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	withSigner := newTestClient(&mockRPCClient{}, &signer)
	assert.True(t, withSigner.HasSigner())
	assert.Equal(t, signer.PublicKey().String(), withSigner.SignerAddress())

	withoutSigner := newTestClient(&mockRPCClient{}, nil)
	assert.False(t, withoutSigner.HasSigner())
	assert.Empty(t, withoutSigner.SignerAddress())
}
