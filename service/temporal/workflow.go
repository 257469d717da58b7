package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/brojonat/aliquot/service/distributor"
)

// DistributionInput is the payment event carried into a distribution
// workflow. Amounts follow the webhook wire format: decimal, SOL by default.
type DistributionInput struct {
	StreamID         string            `json:"stream_id"`
	Amount           float64           `json:"amount"`
	Currency         string            `json:"currency"`
	SourceOperation  string            `json:"source_operation"`
	FundingReference string            `json:"funding_reference"`
	Metadata         map[string]string `json:"metadata"`
	ReceivedAt       time.Time         `json:"received_at"`
}

// DistributionWorkflowID derives the workflow ID for a payment event so a
// funding reference maps to one workflow. Events without a funding
// reference get a time-based ID and rely on the ledger for dedup.
func DistributionWorkflowID(streamID, fundingReference string) string {
	if fundingReference == "" {
		return fmt.Sprintf("dist-%s-%d", streamID, time.Now().UnixNano())
	}
	return fmt.Sprintf("dist-%s-%s", streamID, fundingReference)
}

// DistributionWorkflow runs one distribution attempt as a single activity.
// The activity is not retried automatically: a failed attempt is recorded in
// the ledger and re-driven manually with the same funding reference, which
// the engine's idempotency makes safe.
func DistributionWorkflow(ctx workflow.Context, input DistributionInput) (*distributor.Result, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("DistributionWorkflow started",
		"stream_id", input.StreamID,
		"amount", input.Amount,
		"currency", input.Currency,
		"funding_reference", input.FundingReference,
	)

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute, // covers holder query plus confirmation wait
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var result *distributor.Result
	if err := workflow.ExecuteActivity(ctx, "Distribute", input).Get(ctx, &result); err != nil {
		logger.Error("distribution activity failed",
			"stream_id", input.StreamID,
			"error", err,
		)
		return nil, fmt.Errorf("distribution failed: %w", err)
	}

	logger.Info("DistributionWorkflow completed",
		"stream_id", input.StreamID,
		"status", result.Status,
		"recipients", result.Recipients,
	)

	return result, nil
}
