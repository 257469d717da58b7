package distributor

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	solanasvc "github.com/brojonat/aliquot/service/solana"
	"github.com/gagliardetto/solana-go"
)

// HolderDirectory resolves the current set of beneficiary accounts for a
// revenue stream. Implementations must never cache results across
// distributions; holder sets change through normal token transfers outside
// this system's control.
type HolderDirectory interface {
	GetHolders(ctx context.Context, streamID string) ([]Holder, error)
}

// TokenHolderClient is the slice of the Solana client the live directory
// needs. Satisfied by *solana.Client.
type TokenHolderClient interface {
	GetTokenHolders(ctx context.Context, mint string) ([]solanasvc.TokenHolder, error)
}

// LiveHolderDirectory enumerates holders from on-chain token accounts for
// the stream's mint. Query failures surface as ErrUpstreamUnavailable and
// are never masked with synthetic holders; the mock strategy is a separate,
// configuration-gated implementation.
type LiveHolderDirectory struct {
	client  TokenHolderClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewLiveHolderDirectory creates a directory backed by on-chain queries.
// Each query is bounded by the given timeout.
func NewLiveHolderDirectory(client TokenHolderClient, timeout time.Duration, logger *slog.Logger) *LiveHolderDirectory {
	return &LiveHolderDirectory{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// GetHolders returns all positive-balance holders of the stream's mint.
func (d *LiveHolderDirectory) GetHolders(ctx context.Context, streamID string) ([]Holder, error) {
	queryCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	tokenHolders, err := d.client.GetTokenHolders(queryCtx, streamID)
	if err != nil {
		d.logger.ErrorContext(ctx, "holder enumeration failed",
			"stream_id", streamID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if len(tokenHolders) == 0 {
		return nil, fmt.Errorf("%w: mint %s", ErrNoHoldersFound, streamID)
	}

	holders := make([]Holder, len(tokenHolders))
	for i, th := range tokenHolders {
		holders[i] = Holder{
			AccountAddress: th.Owner,
			TokenAccount:   th.TokenAccount,
			Weight:         1.0,
			Balance:        th.Balance,
		}
	}

	d.logger.DebugContext(ctx, "resolved holders",
		"stream_id", streamID,
		"count", len(holders),
	)

	return holders, nil
}

// MockHolderDirectory returns a fixed-size synthetic holder set, derived
// deterministically from the stream ID. Used only outside production for
// testing and demos; selected by configuration at startup, never as a
// runtime fallback for live query failures.
type MockHolderDirectory struct {
	count  int
	logger *slog.Logger
}

// NewMockHolderDirectory creates a deterministic mock directory with the
// given holder count per stream.
func NewMockHolderDirectory(count int, logger *slog.Logger) *MockHolderDirectory {
	if count <= 0 {
		count = 25
	}
	return &MockHolderDirectory{count: count, logger: logger}
}

// GetHolders returns the synthetic holder set for the stream. The same
// stream ID always yields the same addresses.
func (d *MockHolderDirectory) GetHolders(ctx context.Context, streamID string) ([]Holder, error) {
	holders := make([]Holder, d.count)
	for i := range holders {
		holders[i] = Holder{
			AccountAddress: mockHolderAddress(streamID, i),
			TokenAccount:   fmt.Sprintf("mock-account-%d", i+1),
			Weight:         1.0,
			Balance:        1,
		}
	}

	d.logger.DebugContext(ctx, "using mock holder set",
		"stream_id", streamID,
		"count", d.count,
	)

	return holders, nil
}

// mockHolderAddress derives a valid-looking base58 account address from the
// stream ID and holder index.
func mockHolderAddress(streamID string, index int) string {
	h := sha256.New()
	h.Write([]byte(streamID))
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(index))
	h.Write(idx[:])
	return solana.PublicKeyFromBytes(h.Sum(nil)).String()
}
