package distributor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	solanasvc "github.com/brojonat/aliquot/service/solana"
)

// ChainClient is the slice of the Solana client the funds distributor
// needs. Satisfied by *solana.Client.
type ChainClient interface {
	HasSigner() bool
	SignerAddress() string
	SubmitTransferBatch(ctx context.Context, transfers []solanasvc.Transfer) (string, error)
	ConfirmTransaction(ctx context.Context, signature string) error
}

// FundsDistributor executes one distribution's transfers as a single atomic
// batch: every holder plus the treasury remainder in one transaction, so
// either all transfers land or none do.
type FundsDistributor struct {
	chain          ChainClient
	confirmTimeout time.Duration
	logger         *slog.Logger
}

// NewFundsDistributor creates a funds distributor. chain may be nil when no
// funding signer is configured (development mode); Execute then returns
// ErrSignerUnavailable and the orchestrator records a mock distribution.
func NewFundsDistributor(chain ChainClient, confirmTimeout time.Duration, logger *slog.Logger) *FundsDistributor {
	return &FundsDistributor{
		chain:          chain,
		confirmTimeout: confirmTimeout,
		logger:         logger,
	}
}

// ExecuteParams describe one transfer batch.
type ExecuteParams struct {
	Holders             []Holder
	PerHolder           []int64 // parallel to Holders, all > 0
	RemainderToTreasury int64
	TreasuryWallet      string
}

// Execute submits the transfer batch and waits for confirmation, returning
// the transaction signature. The treasury transfer is skipped when the
// remainder is zero or the treasury is the signer itself. When confirmation
// fails or times out after submission the signature is returned with the
// non-nil error.
func (f *FundsDistributor) Execute(ctx context.Context, p ExecuteParams) (string, error) {
	if f.chain == nil || !f.chain.HasSigner() {
		return "", ErrSignerUnavailable
	}
	if len(p.Holders) != len(p.PerHolder) {
		return "", fmt.Errorf("%w: %d holders but %d amounts", ErrTransferBatchFailed, len(p.Holders), len(p.PerHolder))
	}

	transfers := make([]solanasvc.Transfer, 0, len(p.Holders)+1)
	for i, h := range p.Holders {
		// Zero shares are rejected by the split calculator; skip rather
		// than submit a zero-lamport transfer.
		if p.PerHolder[i] <= 0 {
			continue
		}
		transfers = append(transfers, solanasvc.Transfer{
			Recipient: h.AccountAddress,
			Lamports:  uint64(p.PerHolder[i]),
		})
	}

	if p.RemainderToTreasury > 0 && p.TreasuryWallet != "" && p.TreasuryWallet != f.chain.SignerAddress() {
		transfers = append(transfers, solanasvc.Transfer{
			Recipient: p.TreasuryWallet,
			Lamports:  uint64(p.RemainderToTreasury),
		})
	}

	if len(transfers) == 0 {
		return "", fmt.Errorf("%w: no transfer instructions generated", ErrTransferBatchFailed)
	}

	signature, err := f.chain.SubmitTransferBatch(ctx, transfers)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransferBatchFailed, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, f.confirmTimeout)
	defer cancel()

	// Confirmation failures return the signature alongside the error: the
	// transaction was submitted and may still land, so the caller must
	// record the reference rather than treat the attempt as never sent.
	if err := f.chain.ConfirmTransaction(confirmCtx, signature); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return signature, fmt.Errorf("%w: signature %s: %v", ErrConfirmationTimeout, signature, err)
		}
		return signature, fmt.Errorf("%w: signature %s: %v", ErrTransferBatchFailed, signature, err)
	}

	f.logger.InfoContext(ctx, "transfer batch confirmed",
		"signature", signature,
		"transfers", len(transfers),
	)

	return signature, nil
}

// MockReference generates a clearly synthetic transaction reference for
// distributions recorded without a signer. Downstream consumers must rely
// on the record's status field, not this prefix, to distinguish mock from
// real confirmations.
func MockReference() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return "mock-dist-" + strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + hex.EncodeToString(buf[:])
}
