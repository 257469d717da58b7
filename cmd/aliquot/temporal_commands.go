package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/aliquot/service/temporal"
	"github.com/urfave/cli/v2"
)

func redriveCommand() *cli.Command {
	return &cli.Command{
		Name:      "redrive",
		Usage:     "Re-run a distribution with its original funding reference",
		ArgsUsage: "<stream_id>",
		Description: `Starts a DistributionWorkflow for the given stream and funding
reference and waits for the result. Safe to run against an
already-completed distribution: the engine's idempotency returns the
recorded outcome without moving funds again.`,
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Original payment amount (decimal)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "currency",
				Usage: "Amount unit: SOL or LAMPORTS",
				Value: "SOL",
			},
			&cli.StringFlag{
				Name:     "funding-reference",
				Usage:    "Funding reference of the distribution to re-drive",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

			tc, err := temporal.NewClient(
				c.String("temporal-host"),
				c.String("temporal-namespace"),
				c.String("temporal-task-queue"),
				logger,
			)
			if err != nil {
				return fmt.Errorf("failed to connect to temporal: %w", err)
			}
			defer tc.Close()

			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: stream ID")
			}

			input := temporal.DistributionInput{
				StreamID:         c.Args().First(),
				Amount:           c.Float64("amount"),
				Currency:         c.String("currency"),
				SourceOperation:  "redrive",
				FundingReference: c.String("funding-reference"),
				ReceivedAt:       time.Now().UTC(),
			}

			fmt.Fprintf(c.App.ErrWriter, "starting workflow %s\n",
				temporal.DistributionWorkflowID(input.StreamID, input.FundingReference))

			result, err := tc.RunDistribution(context.Background(), input)
			if err != nil {
				return fmt.Errorf("re-drive failed: %w", err)
			}

			return outputJSON(result)
		},
	}
}
