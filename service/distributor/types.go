package distributor

import (
	"fmt"
	"math"
	"time"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Model selects how the holder pool is divided among holders.
type Model string

const (
	// ModelEqual splits the holder pool evenly among all holders.
	ModelEqual Model = "equal"

	// ModelWeighted splits the holder pool proportionally to holder weights.
	ModelWeighted Model = "weighted"

	// ModelCreatorSplit carves a creator share off the holder pool before
	// splitting the rest evenly among holders. The creator share is routed
	// to the stream's treasury wallet.
	ModelCreatorSplit Model = "creator-split"
)

// ValidModel reports whether m is a known distribution model.
func ValidModel(m Model) bool {
	switch m {
	case ModelEqual, ModelWeighted, ModelCreatorSplit:
		return true
	}
	return false
}

// Currency identifies the unit of a payment event's amount field.
type Currency string

const (
	// CurrencySOL means the amount is denominated in SOL (base units).
	CurrencySOL Currency = "SOL"

	// CurrencyLamports means the amount is already in lamports.
	CurrencyLamports Currency = "LAMPORTS"
)

// Status values for a recorded distribution attempt.
const (
	StatusCompleted = "completed"
	StatusMock      = "mock"
	StatusFailed    = "failed"
)

// Holder is one current beneficiary of a revenue stream. Holder sets are
// re-fetched for every distribution and never cached across attempts,
// since token transfers outside this system change them at any time.
type Holder struct {
	AccountAddress string
	TokenAccount   string
	Weight         float64 // used only by the weighted model; defaults to 1.0
	Balance        uint64  // informational
}

// PaymentEvent is an incoming payment to be distributed. It is validated
// and normalized at the boundary; it is not persisted as-is.
type PaymentEvent struct {
	StreamID         string
	Amount           float64
	Currency         Currency
	SourceOperation  string
	FundingReference string // idempotency key, usually the inbound payment signature
	Metadata         map[string]string
	ReceivedAt       time.Time
}

// NormalizeLamports converts the event amount to an integer lamport count.
// SOL amounts are floored after scaling; lamport amounts are floored directly.
func (e *PaymentEvent) NormalizeLamports() (int64, error) {
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) {
		return 0, fmt.Errorf("%w: amount is not a number", ErrInvalidAmount)
	}

	var lamports float64
	switch e.Currency {
	case CurrencyLamports:
		lamports = math.Floor(e.Amount)
	case CurrencySOL, "":
		// SOL is the default, matching the webhook wire format.
		lamports = math.Floor(e.Amount * LamportsPerSOL)
	default:
		return 0, fmt.Errorf("%w: unknown currency %q", ErrInvalidAmount, e.Currency)
	}

	// float64(MaxInt64) is exactly 2^63, one past the largest int64, so the
	// bound check must be inclusive or the conversion below overflows.
	if lamports <= 0 || lamports >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v %s normalizes to %v lamports", ErrInvalidAmount, e.Amount, e.Currency, lamports)
	}

	return int64(lamports), nil
}

// Result is the structured outcome of a distribution attempt, returned to
// the webhook caller. All amounts are in lamports.
type Result struct {
	Success          bool   `json:"success"`
	StreamID         string `json:"stream_id"`
	DistributionTx   string `json:"distribution_tx,omitempty"`
	Recipients       int    `json:"recipients"`
	AmountPerHolder  int64  `json:"amount_per_holder"`
	TotalDistributed int64  `json:"total_distributed"`
	TreasuryAmount   int64  `json:"treasury_amount"`
	PlatformFee      int64  `json:"platform_fee"`
	Status           string `json:"status"`
}
