package temporal

import (
	"context"
	"log/slog"

	"github.com/brojonat/aliquot/service/distributor"
)

// DistributorInterface is the slice of the distribution engine activities
// need. Satisfied by *distributor.Service.
type DistributorInterface interface {
	Distribute(ctx context.Context, event *distributor.PaymentEvent) (*distributor.Result, error)
}

// Activities holds dependencies for distribution activities.
type Activities struct {
	distributor DistributorInterface
	logger      *slog.Logger
}

// NewActivities creates a new Activities instance with dependencies.
func NewActivities(dist DistributorInterface, logger *slog.Logger) *Activities {
	return &Activities{
		distributor: dist,
		logger:      logger,
	}
}

// Distribute runs one distribution attempt. Replays with an
// already-recorded funding reference return the prior ledger record, so the
// activity is safe to re-drive.
func (a *Activities) Distribute(ctx context.Context, input DistributionInput) (*distributor.Result, error) {
	a.logger.InfoContext(ctx, "distribute activity started",
		"stream_id", input.StreamID,
		"source_operation", input.SourceOperation,
		"funding_reference", input.FundingReference,
	)

	event := &distributor.PaymentEvent{
		StreamID:         input.StreamID,
		Amount:           input.Amount,
		Currency:         distributor.Currency(input.Currency),
		SourceOperation:  input.SourceOperation,
		FundingReference: input.FundingReference,
		Metadata:         input.Metadata,
		ReceivedAt:       input.ReceivedAt,
	}

	result, err := a.distributor.Distribute(ctx, event)
	if err != nil {
		a.logger.ErrorContext(ctx, "distribute activity failed",
			"stream_id", input.StreamID,
			"error", err,
		)
		return nil, err
	}

	a.logger.InfoContext(ctx, "distribute activity completed",
		"stream_id", input.StreamID,
		"status", result.Status,
		"recipients", result.Recipients,
	)

	return result, nil
}
