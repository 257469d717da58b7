package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	natspkg "github.com/brojonat/aliquot/service/nats"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes to distribution outcome events.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to distribution outcome events",
		ArgsUsage: "[stream_id]",
		Description: `Subscribe to distribution outcome events published to NATS JetStream.

Events are published to the subject distributions.{stream_id}; failed
publishes land on distributions.deadletter. Without a stream ID, all
distribution events are streamed.

Example:
  aliquot nats subscribe DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK --filter 'select(.status == "failed")'`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "deadletter",
				Usage: "Subscribe to the dead-letter subject instead",
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "jq expression applied to each event before printing",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if c.NArg() == 1 {
				subject = fmt.Sprintf("distributions.%s", c.Args().First())
			}
			if c.Bool("deadletter") {
				subject = natspkg.DeadLetterSubject
			}

			var code *gojq.Code
			if filter := c.String("filter"); filter != "" {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
				}
				code, err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
				}
			}

			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
			})
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			fmt.Fprintf(os.Stderr, "subscribed to %s (ctrl-c to stop)\n", subject)

			enc := json.NewEncoder(os.Stdout)
			consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
				defer msg.Ack()

				var event interface{}
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					fmt.Fprintf(os.Stderr, "error parsing event: %v\n", err)
					return
				}

				if code != nil {
					iter := code.Run(event)
					for {
						result, ok := iter.Next()
						if !ok {
							break
						}
						if err, isErr := result.(error); isErr {
							fmt.Fprintf(os.Stderr, "jq filter error: %v\n", err)
							break
						}
						if result == nil {
							continue
						}
						enc.Encode(result)
					}
					return
				}

				enc.Encode(event)
			})
			if err != nil {
				return fmt.Errorf("failed to start consumer: %w", err)
			}
			defer consumeCtx.Stop()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
			<-shutdown
			return nil
		},
	}
}

// inspectStreamCommand shows JetStream stream state.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Show the DISTRIBUTIONS JetStream stream state",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream %q: %w", natspkg.StreamName, err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(info)
			}

			fmt.Printf("Stream:     %s\n", info.Config.Name)
			fmt.Printf("Subjects:   %v\n", info.Config.Subjects)
			fmt.Printf("Messages:   %d\n", info.State.Msgs)
			fmt.Printf("Bytes:      %d\n", info.State.Bytes)
			fmt.Printf("First Seq:  %d\n", info.State.FirstSeq)
			fmt.Printf("Last Seq:   %d\n", info.State.LastSeq)
			fmt.Printf("Consumers:  %d\n", info.State.Consumers)
			return nil
		},
	}
}
