package distributor

import (
	"fmt"
	"math/big"
)

// SplitParams are the inputs to ComputeSplit.
type SplitParams struct {
	// TotalLamports is the gross payment amount in lamports. Must be > 0.
	TotalLamports int64

	// FeePercent is the platform fee as a percentage (e.g. 2.5). Applied
	// with basis-point precision; finer fractions are rounded to the
	// nearest basis point.
	FeePercent float64

	// DistributionPercent is the share of the post-fee amount routed to
	// holders, 0-100. The rest goes to the treasury.
	DistributionPercent int

	// Model selects equal, weighted, or creator-split division.
	Model Model

	// CreatorSplitPercent is the creator's share of the holder pool, 0-100.
	// Used only when Model is ModelCreatorSplit.
	CreatorSplitPercent int

	// Holders are the current beneficiaries. Must be non-empty.
	Holders []Holder
}

// Split is the exact lamport accounting for one distribution.
//
// Invariant: PlatformFee + sum(PerHolder) + RemainderToTreasury == TotalLamports.
// Every lamport is accounted for; rounding dust is routed to the treasury,
// never dropped.
type Split struct {
	TotalLamports       int64
	PlatformFee         int64
	HolderPool          int64
	PerHolder           []int64 // parallel to Holders; equal model repeats one value
	RemainderToTreasury int64
}

// EqualShare returns the per-holder amount when all shares are equal, or 0
// for weighted splits where shares differ.
func (s *Split) EqualShare() int64 {
	if len(s.PerHolder) == 0 {
		return 0
	}
	first := s.PerHolder[0]
	for _, amt := range s.PerHolder[1:] {
		if amt != first {
			return 0
		}
	}
	return first
}

// TotalToHolders returns the sum of all per-holder amounts.
func (s *Split) TotalToHolders() int64 {
	var sum int64
	for _, amt := range s.PerHolder {
		sum += amt
	}
	return sum
}

// ComputeSplit computes the platform fee, per-holder amounts, and treasury
// remainder for a payment. All arithmetic is integer lamports; weights are
// the only ratios involved and final amounts are always floored integers.
func ComputeSplit(p SplitParams) (*Split, error) {
	if p.TotalLamports <= 0 {
		return nil, fmt.Errorf("%w: got %d lamports", ErrInvalidAmount, p.TotalLamports)
	}
	if len(p.Holders) == 0 {
		return nil, ErrNoHoldersFound
	}
	if p.FeePercent < 0 || p.FeePercent > 100 {
		return nil, fmt.Errorf("invalid fee percent %v: must be in [0, 100]", p.FeePercent)
	}
	if p.DistributionPercent < 0 || p.DistributionPercent > 100 {
		return nil, fmt.Errorf("invalid distribution percent %d: must be in [0, 100]", p.DistributionPercent)
	}
	if !ValidModel(p.Model) {
		return nil, fmt.Errorf("invalid distribution model %q", p.Model)
	}

	// Fee at basis-point precision: floor(total * feeBps / 10000).
	feeBps := int64(p.FeePercent*100 + 0.5)
	platformFee := mulDiv(p.TotalLamports, feeBps, 10_000)

	distributable := p.TotalLamports - platformFee
	holderPool := mulDiv(distributable, int64(p.DistributionPercent), 100)
	treasuryBase := distributable - holderPool

	var (
		perHolder []int64
		err       error
	)
	switch p.Model {
	case ModelEqual:
		perHolder, err = splitEqual(holderPool, len(p.Holders))
	case ModelWeighted:
		perHolder, err = splitWeighted(holderPool, p.Holders)
	case ModelCreatorSplit:
		if p.CreatorSplitPercent < 0 || p.CreatorSplitPercent > 100 {
			return nil, fmt.Errorf("invalid creator split percent %d: must be in [0, 100]", p.CreatorSplitPercent)
		}
		// The creator share comes off the top of the holder pool and is
		// routed to the treasury wallet with the remainder.
		creatorShare := mulDiv(holderPool, int64(p.CreatorSplitPercent), 100)
		perHolder, err = splitEqual(holderPool-creatorShare, len(p.Holders))
	}
	if err != nil {
		return nil, err
	}

	var paid int64
	for _, amt := range perHolder {
		paid += amt
	}

	return &Split{
		TotalLamports:       p.TotalLamports,
		PlatformFee:         platformFee,
		HolderPool:          holderPool,
		PerHolder:           perHolder,
		RemainderToTreasury: treasuryBase + (holderPool - paid),
	}, nil
}

func splitEqual(pool int64, holderCount int) ([]int64, error) {
	share := pool / int64(holderCount)
	if share == 0 {
		return nil, fmt.Errorf("%w: pool of %d lamports across %d holders", ErrAmountTooSmall, pool, holderCount)
	}
	perHolder := make([]int64, holderCount)
	for i := range perHolder {
		perHolder[i] = share
	}
	return perHolder, nil
}

// splitWeighted computes floor(pool * w_i / sum(w)) per holder using exact
// rational arithmetic so float error can never push the paid sum past the
// pool. Holders with no weight set default to 1.0.
func splitWeighted(pool int64, holders []Holder) ([]int64, error) {
	totalWeight := new(big.Rat)
	weights := make([]*big.Rat, len(holders))
	for i, h := range holders {
		w := h.Weight
		if w == 0 {
			w = 1.0
		}
		if w < 0 {
			return nil, fmt.Errorf("invalid weight %v for holder %s", w, h.AccountAddress)
		}
		weights[i] = new(big.Rat).SetFloat64(w)
		totalWeight.Add(totalWeight, weights[i])
	}
	if totalWeight.Sign() == 0 {
		return nil, fmt.Errorf("total holder weight is zero")
	}

	poolRat := new(big.Rat).SetInt64(pool)
	perHolder := make([]int64, len(holders))
	for i, w := range weights {
		share := new(big.Rat).Mul(poolRat, new(big.Rat).Quo(w, totalWeight))
		// Floor to an integer lamport count.
		amt := new(big.Int).Quo(share.Num(), share.Denom())
		if !amt.IsInt64() {
			return nil, fmt.Errorf("weighted share overflows int64 for holder %s", holders[i].AccountAddress)
		}
		perHolder[i] = amt.Int64()
		if perHolder[i] == 0 {
			return nil, fmt.Errorf("%w: weighted share for holder %s", ErrAmountTooSmall, holders[i].AccountAddress)
		}
	}
	return perHolder, nil
}

// mulDiv computes floor(a * num / den) without int64 overflow in the
// intermediate product.
func mulDiv(a, num, den int64) int64 {
	result := new(big.Int).Mul(big.NewInt(a), big.NewInt(num))
	result.Quo(result, big.NewInt(den))
	return result.Int64()
}
