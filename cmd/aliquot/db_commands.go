package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/aliquot/service/db"
	"github.com/itchyny/gojq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func listStreamsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-streams",
		Usage:   "List all registered revenue streams",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "enabled-only",
				Usage: "Show only enabled streams",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			streams, err := store.ListStreams(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list streams: %w", err)
			}

			if c.Bool("enabled-only") {
				filtered := make([]*db.RevenueStream, 0)
				for _, s := range streams {
					if s.Enabled {
						filtered = append(filtered, s)
					}
				}
				streams = filtered
			}

			if c.Bool("json") {
				return outputJSON(streams)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STREAM\tENABLED\tMODEL\tDIST %\tTREASURY\tCREATED")
			for _, stream := range streams {
				fmt.Fprintf(w, "%s\t%v\t%s\t%d\t%s\t%s\n",
					stream.StreamID,
					stream.Enabled,
					stream.DistributionModel,
					stream.DistributionPercentage,
					stream.TreasuryWallet,
					stream.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d streams\n", len(streams))
			return nil
		},
	}
}

func getStreamCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-stream",
		Usage:     "Get revenue stream details",
		Aliases:   []string{"get"},
		ArgsUsage: "<stream_id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: stream ID")
			}

			streamID := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			stream, err := store.GetStream(context.Background(), streamID)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(stream)
			}

			// Pretty output
			fmt.Printf("Stream ID:            %s\n", stream.StreamID)
			fmt.Printf("Enabled:              %v\n", stream.Enabled)
			fmt.Printf("Distribution Model:   %s\n", stream.DistributionModel)
			fmt.Printf("Distribution Percent: %d\n", stream.DistributionPercentage)
			fmt.Printf("Treasury Wallet:      %s\n", stream.TreasuryWallet)
			if stream.CreatorSplitPercentage != nil {
				fmt.Printf("Creator Split:        %d%%\n", *stream.CreatorSplitPercentage)
			}
			fmt.Printf("Created:              %s\n", stream.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Updated:              %s\n", stream.UpdatedAt.Format(time.RFC3339))

			return nil
		},
	}
}

func listDistributionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-distributions",
		Usage:   "List distribution ledger records for a stream",
		Aliases: []string{"dists"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "stream",
				Aliases:  []string{"s"},
				Usage:    "Stream ID",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of records",
				Value:   50,
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "jq expression applied to each record, e.g. 'select(.status == \"failed\")'",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			distributions, err := store.ListDistributions(context.Background(), c.String("stream"), int32(c.Int("limit")))
			if err != nil {
				return fmt.Errorf("failed to list distributions: %w", err)
			}

			if filter := c.String("filter"); filter != "" {
				return outputFiltered(distributions, filter)
			}

			if c.Bool("json") {
				return outputJSON(distributions)
			}

			// Pretty table output; amounts in lamports
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tTOTAL\tRECIPIENTS\tPER HOLDER\tFEE\tTREASURY\tFUNDING REF\tCREATED")
			for _, d := range distributions {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
					d.ID,
					d.Status,
					d.TotalAmount,
					d.RecipientCount,
					d.AmountPerHolder,
					d.PlatformFee,
					d.TreasuryAmount,
					formatOptional(d.FundingReference),
					d.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d distributions\n", len(distributions))
			return nil
		},
	}
}

// outputFiltered runs a jq expression over each record and prints the
// results, one JSON value per line.
func outputFiltered(v interface{}, filter string) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	// Round-trip through JSON so gojq sees plain maps and slices.
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	var records []interface{}
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("failed to unmarshal records: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	for _, record := range records {
		iter := code.Run(record)
		for {
			result, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := result.(error); isErr {
				return fmt.Errorf("jq filter error: %w", err)
			}
			if result == nil {
				continue
			}
			if err := enc.Encode(result); err != nil {
				return err
			}
		}
	}
	return nil
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	// Try to get from parent context first (for global flags)
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Helper function to format optional strings
func formatOptional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "-"
}
