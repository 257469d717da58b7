package nats

import (
	"time"

	"github.com/brojonat/aliquot/service/db"
)

// DistributionEvent is the outcome of a distribution attempt, published to
// the subject "distributions.{stream_id}" in JetStream. All amounts are in
// lamports.
type DistributionEvent struct {
	StreamID             string  `json:"stream_id"`
	Status               string  `json:"status"` // completed, mock, or failed
	TotalAmount          int64   `json:"total_amount"`
	RecipientCount       int     `json:"recipient_count"`
	AmountPerHolder      int64   `json:"amount_per_holder"`
	PlatformFee          int64   `json:"platform_fee"`
	TreasuryAmount       int64   `json:"treasury_amount"`
	TransactionReference *string `json:"transaction_reference,omitempty"`
	FundingReference     *string `json:"funding_reference,omitempty"`
	SourceOperation      string  `json:"source_operation,omitempty"`
	ErrorDetail          *string `json:"error_detail,omitempty"`

	RecordedAt  time.Time `json:"recorded_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromDBDistribution converts a ledger record to an event for publishing.
func FromDBDistribution(dist *db.Distribution) *DistributionEvent {
	return &DistributionEvent{
		StreamID:             dist.StreamID,
		Status:               dist.Status,
		TotalAmount:          dist.TotalAmount,
		RecipientCount:       dist.RecipientCount,
		AmountPerHolder:      dist.AmountPerHolder,
		PlatformFee:          dist.PlatformFee,
		TreasuryAmount:       dist.TreasuryAmount,
		TransactionReference: dist.TransactionReference,
		FundingReference:     dist.FundingReference,
		SourceOperation:      dist.SourceOperation,
		ErrorDetail:          dist.ErrorDetail,
		RecordedAt:           dist.CreatedAt,
		PublishedAt:          time.Now().UTC(),
	}
}
