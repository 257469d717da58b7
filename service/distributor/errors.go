package distributor

import "errors"

// Sentinel errors for the distribution engine. Callers match with errors.Is;
// wrapped variants carry stream and amount context for replay.
var (
	// ErrInvalidAmount means the payment amount normalized to zero or less.
	// Rejected before any side effect.
	ErrInvalidAmount = errors.New("payment amount must be positive")

	// ErrStreamNotRegistered means no enabled distribution config exists
	// for the stream. Rejected before any side effect.
	ErrStreamNotRegistered = errors.New("stream not registered for distribution")

	// ErrNoHoldersFound means the stream currently has zero holders. Funds
	// must not vanish, so the attempt fails and is recorded.
	ErrNoHoldersFound = errors.New("no holders found for stream")

	// ErrUpstreamUnavailable means the on-chain holder query failed.
	ErrUpstreamUnavailable = errors.New("holder query upstream unavailable")

	// ErrAmountTooSmall means the holder pool floors to zero per holder.
	// The attempt is rejected rather than sending zero-amount transfers.
	ErrAmountTooSmall = errors.New("per-holder amount rounds to zero lamports")

	// ErrSignerUnavailable means no funding signer is configured. The
	// orchestrator records a mock distribution, never a fake success.
	ErrSignerUnavailable = errors.New("no funding signer configured")

	// ErrTransferBatchFailed means transfer batch submission failed.
	ErrTransferBatchFailed = errors.New("transfer batch failed")

	// ErrConfirmationTimeout means the batch was submitted but confirmation
	// did not arrive within the configured wait.
	ErrConfirmationTimeout = errors.New("transfer confirmation timed out")
)
