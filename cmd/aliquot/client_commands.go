package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/aliquot/client"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP API client commands",
		Subcommands: []*cli.Command{
			registerStreamCommand(),
			distributeCommand(),
			distributeTestCommand(),
			statsCommand(),
			historyCommand(),
		},
	}
}

func getClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return client.NewClient(c.String("server-url"), c.String("webhook-secret"), nil, logger)
}

func registerStreamCommand() *cli.Command {
	return &cli.Command{
		Name:      "register-stream",
		Usage:     "Register or reconfigure a revenue stream",
		ArgsUsage: "<stream_id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "enabled",
				Usage: "Whether distributions are enabled for the stream",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Distribution model: equal, weighted, or creator-split",
				Value: "equal",
			},
			&cli.IntFlag{
				Name:  "distribution-percentage",
				Usage: "Share of the post-fee amount routed to holders (0-100)",
				Value: 90,
			},
			&cli.StringFlag{
				Name:  "treasury",
				Usage: "Treasury wallet address for remainders",
			},
			&cli.IntFlag{
				Name:  "creator-split",
				Usage: "Creator share of the holder pool (0-100, creator-split model only)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: stream ID")
			}

			stream := &client.RevenueStream{
				StreamID:               c.Args().First(),
				Enabled:                c.Bool("enabled"),
				DistributionModel:      c.String("model"),
				DistributionPercentage: c.Int("distribution-percentage"),
				TreasuryWallet:         c.String("treasury"),
			}
			if c.IsSet("creator-split") {
				split := c.Int("creator-split")
				stream.CreatorSplitPercentage = &split
			}

			registered, err := getClient(c).RegisterStream(context.Background(), stream)
			if err != nil {
				return err
			}

			return outputJSON(registered)
		},
	}
}

func distributeCommand() *cli.Command {
	return &cli.Command{
		Name:      "distribute",
		Usage:     "Submit a payment event through the webhook endpoint",
		ArgsUsage: "<stream_id>",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Payment amount (decimal)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "currency",
				Usage: "Amount unit: SOL or LAMPORTS",
				Value: "SOL",
			},
			&cli.StringFlag{
				Name:  "funding-reference",
				Usage: "Idempotency key, usually the inbound payment signature",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Source operation label",
				Value: "cli",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: stream ID")
			}

			result, err := getClient(c).Distribute(context.Background(), &client.PaymentEvent{
				StreamID:         c.Args().First(),
				Amount:           c.Float64("amount"),
				Currency:         c.String("currency"),
				SourceOperation:  c.String("source"),
				FundingReference: c.String("funding-reference"),
			})
			if err != nil {
				return err
			}

			return outputJSON(result)
		},
	}
}

func distributeTestCommand() *cli.Command {
	return &cli.Command{
		Name:      "distribute-test",
		Usage:     "Trigger a test distribution with a synthesized payment event",
		ArgsUsage: "<stream_id>",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:    "amount",
				Aliases: []string{"a"},
				Usage:   "Payment amount in SOL",
				Value:   0.1,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: stream ID")
			}

			result, err := getClient(c).DistributeTest(context.Background(), &client.PaymentEvent{
				StreamID: c.Args().First(),
				Amount:   c.Float64("amount"),
			})
			if err != nil {
				return err
			}

			return outputJSON(result)
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show a stream's aggregate distribution stats",
		ArgsUsage: "<stream_id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: stream ID")
			}

			stats, err := getClient(c).GetStats(context.Background(), c.Args().First())
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(stats)
			}

			fmt.Printf("Stream ID:            %s\n", stats.StreamID)
			fmt.Printf("Total Distributed:    %d lamports\n", stats.TotalDistributed)
			fmt.Printf("Distribution Count:   %d\n", stats.DistributionCount)
			fmt.Printf("Average Per Dist:     %d lamports\n", stats.AveragePerDistribution)
			fmt.Printf("Current Holders:      %d\n", stats.CurrentHolderCount)
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show a stream's distribution history, newest first",
		ArgsUsage: "<stream_id>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of records",
				Value:   20,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: stream ID")
			}

			distributions, err := getClient(c).ListDistributions(context.Background(), c.Args().First(), c.Int("limit"))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(distributions)
			}

			for _, d := range distributions {
				fmt.Printf("%s  %-9s  total=%d  recipients=%d  per_holder=%d  tx=%s\n",
					d.CreatedAt.Format(time.RFC3339),
					d.Status,
					d.TotalAmount,
					d.RecipientCount,
					d.AmountPerHolder,
					formatOptional(d.TransactionReference),
				)
			}
			fmt.Fprintf(os.Stderr, "\nTotal: %d distributions\n", len(distributions))
			return nil
		},
	}
}
