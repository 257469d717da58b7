package solana

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/aliquot/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// tokenAccountSize is the byte size of an SPL token account.
	tokenAccountSize = 165

	// confirmPollInterval is how often we poll signature status while
	// waiting for confirmation.
	confirmPollInterval = 2 * time.Second
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real nodes.
type RPCClient interface {
	GetProgramAccountsWithOpts(
		ctx context.Context,
		publicKey solana.PublicKey,
		opts *rpc.GetProgramAccountsOpts,
	) (rpc.GetProgramAccountsResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SendTransactionWithOpts(
		ctx context.Context,
		tx *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		transactionSignatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)

	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)
}

// Client wraps the RPC client with the domain operations the distribution
// engine needs: holder enumeration, transfer batch submission, and bounded
// confirmation waits.
type Client struct {
	rpc      RPCClient
	signer   *solana.PrivateKey // nil when running without a funding signer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics labeling

	// The funding signer's account sequence is a shared resource; one
	// in-flight batch per signer at a time.
	submitMu sync.Mutex
}

// NewClient creates a new Solana client. signer may be nil, in which case
// SubmitTransferBatch reports the signer as unavailable. The endpoint
// parameter is used for metrics labeling. If m is nil, no metrics are
// recorded.
func NewClient(rpcClient RPCClient, signer *solana.PrivateKey, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		signer:   signer,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// HasSigner reports whether a funding signer is configured.
func (c *Client) HasSigner() bool {
	return c.signer != nil
}

// SignerAddress returns the funding signer's address, or "" without a signer.
func (c *Client) SignerAddress() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.PublicKey().String()
}

// GetTokenHolders enumerates current holders of the given mint: all token
// accounts for the mint with a positive balance. Returns holders in the
// order the RPC node reports them.
func (c *Client) GetTokenHolders(ctx context.Context, mint string) ([]TokenHolder, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint address %q: %w", mint, err)
	}

	opts := &rpc.GetProgramAccountsOpts{
		Encoding: solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{DataSize: tokenAccountSize},
			{Memcmp: &rpc.RPCFilterMemcmp{
				Offset: 0,
				Bytes:  solana.Base58(mintKey.Bytes()),
			}},
		},
	}

	start := time.Now()
	accounts, err := c.rpc.GetProgramAccountsWithOpts(ctx, solana.TokenProgramID, opts)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetProgramAccounts", status, c.endpoint, duration)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to query token accounts",
			"mint", mint,
			"error", err,
		)
		return nil, fmt.Errorf("get token accounts for mint %s: %w", mint, err)
	}

	holders := make([]TokenHolder, 0, len(accounts))
	for _, acct := range accounts {
		data := acct.Account.Data.GetBinary()
		if len(data) < tokenAccountSize {
			c.logger.WarnContext(ctx, "skipping malformed token account",
				"account", acct.Pubkey.String(),
				"data_len", len(data),
			)
			continue
		}

		// SPL token account layout: mint [0:32], owner [32:64], amount [64:72].
		owner := solana.PublicKeyFromBytes(data[32:64])
		amount := binary.LittleEndian.Uint64(data[64:72])
		if amount == 0 {
			continue
		}

		holders = append(holders, TokenHolder{
			Owner:        owner.String(),
			TokenAccount: acct.Pubkey.String(),
			Balance:      amount,
		})
	}

	c.logger.DebugContext(ctx, "enumerated token holders",
		"mint", mint,
		"accounts", len(accounts),
		"holders", len(holders),
	)

	return holders, nil
}

// SubmitTransferBatch builds one transaction containing a system transfer
// per entry, signs it with the funding signer, and submits it. The batch is
// atomic: either every transfer lands or none do. Returns the transaction
// signature. Submission is serialized per client so concurrent batches never
// race on the signer's account sequence.
func (c *Client) SubmitTransferBatch(ctx context.Context, transfers []Transfer) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("no signer configured")
	}
	if len(transfers) == 0 {
		return "", fmt.Errorf("empty transfer batch")
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	from := c.signer.PublicKey()
	instructions := make([]solana.Instruction, 0, len(transfers))
	for _, t := range transfers {
		recipient, err := solana.PublicKeyFromBase58(t.Recipient)
		if err != nil {
			return "", fmt.Errorf("invalid recipient address %q: %w", t.Recipient, err)
		}
		instructions = append(instructions, system.NewTransferInstruction(t.Lamports, from, recipient).Build())
	}

	start := time.Now()
	blockhash, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if c.metrics != nil {
		blockhashStatus := "success"
		if err != nil {
			blockhashStatus = "error"
		}
		c.metrics.RecordRPCCall("GetLatestBlockhash", blockhashStatus, c.endpoint, time.Since(start).Seconds())
	}
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash.Value.Blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from) {
			return c.signer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sendStart := time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	sendDuration := time.Since(sendStart).Seconds()

	sendStatus := "success"
	if err != nil {
		sendStatus = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("SendTransaction", sendStatus, c.endpoint, sendDuration)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to submit transfer batch",
			"transfers", len(transfers),
			"error", err,
		)
		return "", fmt.Errorf("send transaction: %w", err)
	}

	c.logger.InfoContext(ctx, "transfer batch submitted",
		"signature", sig.String(),
		"transfers", len(transfers),
	)

	return sig.String(), nil
}

// ConfirmTransaction polls signature status until the transaction reaches
// confirmed commitment or ctx expires. A transaction that failed on-chain
// returns an error immediately.
func (c *Client) ConfirmTransaction(ctx context.Context, signature string) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		duration := time.Since(start).Seconds()

		callStatus := "success"
		if err != nil {
			callStatus = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall("GetSignatureStatuses", callStatus, c.endpoint, duration)
		}

		if err == nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			st := statuses.Value[0]
			if st.Err != nil {
				return fmt.Errorf("transaction %s failed on-chain: %v", signature, st.Err)
			}
			switch st.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				c.logger.DebugContext(ctx, "transaction confirmed",
					"signature", signature,
					"status", st.ConfirmationStatus,
				)
				return nil
			}
		}
		if err != nil {
			c.logger.WarnContext(ctx, "signature status query failed, will retry",
				"signature", signature,
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation wait for %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetBalance returns the lamport balance of an account.
func (c *Client) GetBalance(ctx context.Context, account string) (uint64, error) {
	key, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return 0, fmt.Errorf("invalid account address %q: %w", account, err)
	}

	start := time.Now()
	result, err := c.rpc.GetBalance(ctx, key, rpc.CommitmentConfirmed)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetBalance", status, c.endpoint, duration)
	}
	if err != nil {
		return 0, fmt.Errorf("get balance for %s: %w", account, err)
	}
	return result.Value, nil
}

// NewRPCClient creates a real RPC client for the given endpoint URL.
func NewRPCClient(rpcURL string) RPCClient {
	return rpc.New(rpcURL)
}
