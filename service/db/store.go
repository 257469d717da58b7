package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateFundingReference is returned when appending a distribution
// whose (stream_id, funding_reference) pair is already recorded. Callers
// treat this as an idempotent replay, not a failure.
var ErrDuplicateFundingReference = errors.New("funding reference already recorded for stream")

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RevenueStream is the distribution configuration for one revenue stream
// (an NFT collection mint address). Read-only to the distribution engine.
type RevenueStream struct {
	StreamID               string
	Enabled                bool
	DistributionModel      string
	DistributionPercentage int
	TreasuryWallet         string
	CreatorSplitPercentage *int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// UpsertStreamParams contains the parameters for registering or
// reconfiguring a revenue stream.
type UpsertStreamParams struct {
	StreamID               string
	Enabled                bool
	DistributionModel      string
	DistributionPercentage int
	TreasuryWallet         string
	CreatorSplitPercentage *int
}

// UpsertStream registers a revenue stream for distribution, or reconfigures
// an existing one.
func (s *Store) UpsertStream(ctx context.Context, params UpsertStreamParams) (*RevenueStream, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO revenue_streams (
			stream_id, enabled, distribution_model, distribution_percentage,
			treasury_wallet, creator_split_percentage
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stream_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			distribution_model = EXCLUDED.distribution_model,
			distribution_percentage = EXCLUDED.distribution_percentage,
			treasury_wallet = EXCLUDED.treasury_wallet,
			creator_split_percentage = EXCLUDED.creator_split_percentage,
			updated_at = now()
		RETURNING stream_id, enabled, distribution_model, distribution_percentage,
			treasury_wallet, creator_split_percentage, created_at, updated_at`,
		params.StreamID,
		params.Enabled,
		params.DistributionModel,
		params.DistributionPercentage,
		params.TreasuryWallet,
		intPtrToPgInt4(params.CreatorSplitPercentage),
	)
	return scanStream(row)
}

// GetStream retrieves the configuration for a revenue stream.
// Returns ErrNotFound if the stream is not registered.
func (s *Store) GetStream(ctx context.Context, streamID string) (*RevenueStream, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT stream_id, enabled, distribution_model, distribution_percentage,
			treasury_wallet, creator_split_percentage, created_at, updated_at
		FROM revenue_streams
		WHERE stream_id = $1`,
		streamID,
	)
	stream, err := scanStream(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return stream, err
}

// ListStreams retrieves all registered revenue streams.
func (s *Store) ListStreams(ctx context.Context) ([]*RevenueStream, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT stream_id, enabled, distribution_model, distribution_percentage,
			treasury_wallet, creator_split_percentage, created_at, updated_at
		FROM revenue_streams
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var streams []*RevenueStream
	for rows.Next() {
		stream, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, stream)
	}
	return streams, rows.Err()
}

// Distribution is one recorded distribution attempt. Immutable once written.
// All amounts are in lamports.
type Distribution struct {
	ID                   int64
	StreamID             string
	TotalAmount          int64
	RecipientCount       int
	AmountPerHolder      int64
	PlatformFee          int64
	TreasuryAmount       int64
	TransactionReference *string
	FundingReference     *string
	Status               string
	SourceOperation      string
	ErrorDetail          *string
	Metadata             map[string]string
	CreatedAt            time.Time
}

// AppendDistributionParams contains the parameters for recording a
// distribution attempt.
type AppendDistributionParams struct {
	StreamID             string
	TotalAmount          int64
	RecipientCount       int
	AmountPerHolder      int64
	PlatformFee          int64
	TreasuryAmount       int64
	TransactionReference *string
	FundingReference     *string
	Status               string
	SourceOperation      string
	ErrorDetail          *string
	Metadata             map[string]string
}

// AppendDistribution records a distribution attempt in the ledger.
// The ledger is append-only; there is no update or delete.
// Returns ErrDuplicateFundingReference if the (stream, funding reference)
// pair is already recorded.
func (s *Store) AppendDistribution(ctx context.Context, params AppendDistributionParams) (*Distribution, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO distributions (
			stream_id, total_amount, recipient_count, amount_per_holder,
			platform_fee, treasury_amount, transaction_reference,
			funding_reference, status, source_operation, error_detail, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, stream_id, total_amount, recipient_count, amount_per_holder,
			platform_fee, treasury_amount, transaction_reference, funding_reference,
			status, source_operation, error_detail, metadata, created_at`,
		params.StreamID,
		params.TotalAmount,
		params.RecipientCount,
		params.AmountPerHolder,
		params.PlatformFee,
		params.TreasuryAmount,
		pgtextFromStringPtr(params.TransactionReference),
		pgtextFromStringPtr(params.FundingReference),
		params.Status,
		params.SourceOperation,
		pgtextFromStringPtr(params.ErrorDetail),
		params.Metadata,
	)
	dist, err := scanDistribution(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: stream=%s", ErrDuplicateFundingReference, params.StreamID)
		}
		return nil, err
	}
	return dist, nil
}

// GetDistributionByFundingReference looks up the newest recorded attempt
// for an inbound payment signature. Pre-submission failures can share a
// funding reference with the correction row that superseded them; the
// latest row is the authoritative one. Returns ErrNotFound if no attempt
// with that funding reference has been recorded.
func (s *Store) GetDistributionByFundingReference(ctx context.Context, streamID, fundingReference string) (*Distribution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, stream_id, total_amount, recipient_count, amount_per_holder,
			platform_fee, treasury_amount, transaction_reference, funding_reference,
			status, source_operation, error_detail, metadata, created_at
		FROM distributions
		WHERE stream_id = $1 AND funding_reference = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		streamID, fundingReference,
	)
	dist, err := scanDistribution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return dist, err
}

// ListDistributions retrieves the most recent distributions for a stream,
// newest first.
func (s *Store) ListDistributions(ctx context.Context, streamID string, limit int32) ([]*Distribution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, stream_id, total_amount, recipient_count, amount_per_holder,
			platform_fee, treasury_amount, transaction_reference, funding_reference,
			status, source_operation, error_detail, metadata, created_at
		FROM distributions
		WHERE stream_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		streamID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var distributions []*Distribution
	for rows.Next() {
		dist, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		distributions = append(distributions, dist)
	}
	return distributions, rows.Err()
}

// DistributionStats is the aggregate over a stream's completed and mock
// distributions. Amounts are in lamports.
type DistributionStats struct {
	StreamID               string
	TotalDistributed       int64
	DistributionCount      int64
	AveragePerDistribution int64
}

// GetDistributionStats aggregates a stream's distribution history.
// Failed attempts are excluded from the totals.
func (s *Store) GetDistributionStats(ctx context.Context, streamID string) (*DistributionStats, error) {
	stats := &DistributionStats{StreamID: streamID}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total_amount), 0),
			COUNT(*),
			COALESCE(AVG(total_amount), 0)::BIGINT
		FROM distributions
		WHERE stream_id = $1 AND status != 'failed'`,
		streamID,
	).Scan(&stats.TotalDistributed, &stats.DistributionCount, &stats.AveragePerDistribution)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Helper functions to convert between pgx row types and domain types

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStream(row rowScanner) (*RevenueStream, error) {
	var (
		stream    RevenueStream
		creator   pgtype.Int4
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&stream.StreamID,
		&stream.Enabled,
		&stream.DistributionModel,
		&stream.DistributionPercentage,
		&stream.TreasuryWallet,
		&creator,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	stream.CreatorSplitPercentage = intPtrFromPgInt4(creator)
	stream.CreatedAt = createdAt.Time
	stream.UpdatedAt = updatedAt.Time
	return &stream, nil
}

func scanDistribution(row rowScanner) (*Distribution, error) {
	var (
		dist      Distribution
		txRef     pgtype.Text
		fundRef   pgtype.Text
		errDetail pgtype.Text
		createdAt pgtype.Timestamptz
	)
	err := row.Scan(
		&dist.ID,
		&dist.StreamID,
		&dist.TotalAmount,
		&dist.RecipientCount,
		&dist.AmountPerHolder,
		&dist.PlatformFee,
		&dist.TreasuryAmount,
		&txRef,
		&fundRef,
		&dist.Status,
		&dist.SourceOperation,
		&errDetail,
		&dist.Metadata,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	dist.TransactionReference = stringPtrFromPgtext(txRef)
	dist.FundingReference = stringPtrFromPgtext(fundRef)
	dist.ErrorDetail = stringPtrFromPgtext(errDetail)
	dist.CreatedAt = createdAt.Time
	return &dist, nil
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func intPtrToPgInt4(i *int) pgtype.Int4 {
	if i == nil {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(*i), Valid: true}
}

func intPtrFromPgInt4(i pgtype.Int4) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int32)
	return &v
}
