package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/brojonat/aliquot/service/db"
	"github.com/brojonat/aliquot/service/metrics"
	natssvc "github.com/brojonat/aliquot/service/nats"
)

// Store is the slice of the database layer the distribution engine needs.
// Satisfied by *db.Store and *db.FakeStore.
type Store interface {
	GetStream(ctx context.Context, streamID string) (*db.RevenueStream, error)
	AppendDistribution(ctx context.Context, params db.AppendDistributionParams) (*db.Distribution, error)
	GetDistributionByFundingReference(ctx context.Context, streamID, fundingReference string) (*db.Distribution, error)
	GetDistributionStats(ctx context.Context, streamID string) (*db.DistributionStats, error)
}

// Service orchestrates one distribution end to end: normalize the payment,
// check the ledger for a replay, resolve the stream configuration and its
// holders, compute the split, execute the transfer batch, and append the
// outcome to the ledger.
type Service struct {
	store      Store
	holders    HolderDirectory
	funds      *FundsDistributor
	publisher  natssvc.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	feePercent float64

	mu    sync.Mutex
	locks map[string]*fundingLock
}

type fundingLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a distribution service. publisher and m may be nil;
// outcome events and metrics are then skipped.
func NewService(
	store Store,
	holders HolderDirectory,
	funds *FundsDistributor,
	publisher natssvc.Publisher,
	m *metrics.Metrics,
	feePercent float64,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:      store,
		holders:    holders,
		funds:      funds,
		publisher:  publisher,
		metrics:    m,
		logger:     logger,
		feePercent: feePercent,
		locks:      make(map[string]*fundingLock),
	}
}

// lockFunding serializes concurrent attempts for the same
// (stream, funding reference) pair so exactly one computes and records;
// the others observe the ledger row and return the replay.
func (s *Service) lockFunding(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &fundingLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// Distribute processes one payment event. Replays of a funding reference
// whose attempt completed, was mocked, or failed after submission return
// the prior outcome without touching funds. A prior failure recorded before
// anything was submitted does not consume the reference: re-invoking with
// the same funding reference re-drives the attempt and appends a correction
// row pointing at the stranded one. The returned error is non-nil only when
// the attempt failed (or was rejected before a record was warranted).
func (s *Service) Distribute(ctx context.Context, event *PaymentEvent) (*Result, error) {
	start := time.Now()

	totalLamports, err := event.NormalizeLamports()
	if err != nil {
		s.logger.WarnContext(ctx, "rejected payment event",
			"stream_id", event.StreamID,
			"amount", event.Amount,
			"currency", event.Currency,
			"error", err,
		)
		return nil, err
	}

	if event.FundingReference != "" {
		unlock := s.lockFunding(event.StreamID + "|" + event.FundingReference)
		defer unlock()

		prior, err := s.store.GetDistributionByFundingReference(ctx, event.StreamID, event.FundingReference)
		switch {
		case err == nil && fundsMayHaveMoved(prior):
			if s.metrics != nil {
				s.metrics.RecordIdempotentReplay(event.StreamID)
			}
			s.logger.InfoContext(ctx, "idempotent replay",
				"stream_id", event.StreamID,
				"funding_reference", event.FundingReference,
				"status", prior.Status,
			)
			return resultFromRecord(prior), nil
		case err == nil:
			// Failed before anything reached the chain: the reference is
			// still live, so re-drive and link the new row to the old one.
			event = event.withSupersedes(prior.ID)
			s.logger.InfoContext(ctx, "re-driving failed distribution",
				"stream_id", event.StreamID,
				"funding_reference", event.FundingReference,
				"supersedes", prior.ID,
			)
		case !errors.Is(err, db.ErrNotFound):
			return nil, fmt.Errorf("idempotency lookup failed: %w", err)
		}
	}

	stream, err := s.store.GetStream(ctx, event.StreamID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrStreamNotRegistered, event.StreamID)
		}
		return nil, fmt.Errorf("stream lookup failed: %w", err)
	}
	if !stream.Enabled {
		return nil, fmt.Errorf("%w: %s is disabled", ErrStreamNotRegistered, event.StreamID)
	}

	holders, err := s.holders.GetHolders(ctx, event.StreamID)
	if err != nil {
		s.recordFailure(ctx, event, totalLamports, nil, "", err)
		s.observe(event.StreamID, StatusFailed, start, err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordHolderCount(event.StreamID, len(holders))
	}

	creatorSplit := 0
	if stream.CreatorSplitPercentage != nil {
		creatorSplit = *stream.CreatorSplitPercentage
	}
	split, err := ComputeSplit(SplitParams{
		TotalLamports:       totalLamports,
		FeePercent:          s.feePercent,
		DistributionPercent: stream.DistributionPercentage,
		Model:               Model(stream.DistributionModel),
		CreatorSplitPercent: creatorSplit,
		Holders:             holders,
	})
	if err != nil {
		s.recordFailure(ctx, event, totalLamports, nil, "", err)
		s.observe(event.StreamID, StatusFailed, start, err)
		return nil, err
	}

	signature, execErr := s.funds.Execute(ctx, ExecuteParams{
		Holders:             holders,
		PerHolder:           split.PerHolder,
		RemainderToTreasury: split.RemainderToTreasury,
		TreasuryWallet:      stream.TreasuryWallet,
	})

	status := StatusCompleted
	switch {
	case errors.Is(execErr, ErrSignerUnavailable):
		// No funding signer configured: record a mock distribution with a
		// clearly synthetic reference instead of moving funds.
		status = StatusMock
		signature = MockReference()
		s.logger.InfoContext(ctx, "no signer configured, recording mock distribution",
			"stream_id", event.StreamID,
			"mock_reference", signature,
		)
	case execErr != nil:
		// A non-empty signature means the batch was submitted; recording it
		// on the failed row consumes the funding reference so the payment
		// cannot be re-driven into a double payout.
		s.recordFailure(ctx, event, totalLamports, split, signature, execErr)
		s.observe(event.StreamID, StatusFailed, start, execErr)
		return nil, execErr
	}

	record, err := s.appendRecord(ctx, event, db.AppendDistributionParams{
		StreamID:             event.StreamID,
		TotalAmount:          totalLamports,
		RecipientCount:       len(holders),
		AmountPerHolder:      split.EqualShare(),
		PlatformFee:          split.PlatformFee,
		TreasuryAmount:       split.RemainderToTreasury,
		TransactionReference: &signature,
		FundingReference:     optionalString(event.FundingReference),
		Status:               status,
		SourceOperation:      event.SourceOperation,
		Metadata:             event.Metadata,
	})
	if err != nil {
		return nil, err
	}

	s.observe(event.StreamID, status, start, nil)
	if s.metrics != nil && status == StatusCompleted {
		s.metrics.RecordLamportsDistributed(event.StreamID, split.TotalToHolders())
	}

	s.logger.InfoContext(ctx, "distribution recorded",
		"stream_id", event.StreamID,
		"status", status,
		"total_lamports", totalLamports,
		"recipients", len(holders),
		"platform_fee", split.PlatformFee,
		"treasury_amount", split.RemainderToTreasury,
		"transaction_reference", signature,
	)

	s.publish(ctx, record)

	return resultFromRecord(record), nil
}

// appendRecord writes the ledger row, treating a duplicate funding
// reference as a concurrent replay and returning the row that won the race.
func (s *Service) appendRecord(ctx context.Context, event *PaymentEvent, params db.AppendDistributionParams) (*db.Distribution, error) {
	record, err := s.store.AppendDistribution(ctx, params)
	if err == nil {
		return record, nil
	}
	if errors.Is(err, db.ErrDuplicateFundingReference) && event.FundingReference != "" {
		if s.metrics != nil {
			s.metrics.RecordIdempotentReplay(event.StreamID)
		}
		return s.store.GetDistributionByFundingReference(ctx, event.StreamID, event.FundingReference)
	}
	return nil, fmt.Errorf("failed to record distribution: %w", err)
}

// recordFailure appends a failed ledger row. A nil split records zero
// amounts for the parts that were never computed; a non-empty txRef records
// the submitted transaction. Append errors are logged rather than returned;
// the caller's original error is the one that matters.
func (s *Service) recordFailure(ctx context.Context, event *PaymentEvent, totalLamports int64, split *Split, txRef string, cause error) {
	detail := cause.Error()
	params := db.AppendDistributionParams{
		StreamID:             event.StreamID,
		TotalAmount:          totalLamports,
		TransactionReference: optionalString(txRef),
		FundingReference:     optionalString(event.FundingReference),
		Status:               StatusFailed,
		SourceOperation:      event.SourceOperation,
		ErrorDetail:          &detail,
		Metadata:             event.Metadata,
	}
	if split != nil {
		params.RecipientCount = len(split.PerHolder)
		params.AmountPerHolder = split.EqualShare()
		params.PlatformFee = split.PlatformFee
		params.TreasuryAmount = split.RemainderToTreasury
	}

	record, err := s.store.AppendDistribution(ctx, params)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateFundingReference) {
			return
		}
		s.logger.ErrorContext(ctx, "failed to record failed distribution",
			"stream_id", event.StreamID,
			"cause", cause,
			"error", err,
		)
		return
	}
	s.publish(ctx, record)
}

// publish sends the outcome event. Publish failures are logged, never
// fatal; the ledger row is the source of truth.
func (s *Service) publish(ctx context.Context, record *db.Distribution) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDistribution(ctx, natssvc.FromDBDistribution(record)); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish distribution event",
			"stream_id", record.StreamID,
			"error", err,
		)
	}
}

func (s *Service) observe(streamID, status string, start time.Time, cause error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDistribution(streamID, status, time.Since(start).Seconds())
	if cause != nil {
		s.metrics.RecordDistributionError(streamID, errorKind(cause))
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNoHoldersFound):
		return "no_holders"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrAmountTooSmall):
		return "amount_too_small"
	case errors.Is(err, ErrTransferBatchFailed):
		return "transfer_failed"
	case errors.Is(err, ErrConfirmationTimeout):
		return "confirmation_timeout"
	default:
		return "other"
	}
}

// Stats is the aggregate view of one stream's distribution history combined
// with its current holder count.
type Stats struct {
	StreamID               string `json:"stream_id"`
	TotalDistributed       int64  `json:"total_distributed"`
	DistributionCount      int64  `json:"distribution_count"`
	AveragePerDistribution int64  `json:"average_per_distribution"`
	CurrentHolderCount     int    `json:"holder_count"`
}

// GetStats aggregates the stream's ledger history and resolves the current
// holder count. The holder count is best-effort: if enumeration fails, the
// ledger aggregates are still returned with a count of zero.
func (s *Service) GetStats(ctx context.Context, streamID string) (*Stats, error) {
	dbStats, err := s.store.GetDistributionStats(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate distributions: %w", err)
	}

	stats := &Stats{
		StreamID:               dbStats.StreamID,
		TotalDistributed:       dbStats.TotalDistributed,
		DistributionCount:      dbStats.DistributionCount,
		AveragePerDistribution: dbStats.AveragePerDistribution,
	}

	holders, err := s.holders.GetHolders(ctx, streamID)
	if err != nil {
		s.logger.WarnContext(ctx, "holder count unavailable for stats",
			"stream_id", streamID,
			"error", err,
		)
		return stats, nil
	}
	stats.CurrentHolderCount = len(holders)
	return stats, nil
}

func resultFromRecord(d *db.Distribution) *Result {
	res := &Result{
		Success:         d.Status != StatusFailed,
		StreamID:        d.StreamID,
		Recipients:      d.RecipientCount,
		AmountPerHolder: d.AmountPerHolder,
		TreasuryAmount:  d.TreasuryAmount,
		PlatformFee:     d.PlatformFee,
		Status:          d.Status,
	}
	if d.Status != StatusFailed {
		res.TotalDistributed = d.TotalAmount - d.PlatformFee - d.TreasuryAmount
	}
	if d.TransactionReference != nil {
		res.DistributionTx = *d.TransactionReference
	}
	return res
}

// fundsMayHaveMoved reports whether a recorded attempt consumed its funding
// reference. Completed and mock rows always do; failed rows do only when a
// transaction was submitted, since a confirmation failure leaves the
// on-chain outcome unknown.
func fundsMayHaveMoved(d *db.Distribution) bool {
	return d.Status != StatusFailed || d.TransactionReference != nil
}

// withSupersedes returns a copy of the event whose metadata links ledger
// rows it produces back to the stranded attempt being corrected.
func (e *PaymentEvent) withSupersedes(priorID int64) *PaymentEvent {
	ev := *e
	ev.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		ev.Metadata[k] = v
	}
	ev.Metadata["supersedes"] = strconv.FormatInt(priorID, 10)
	return &ev
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
