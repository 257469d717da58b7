package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"

	"github.com/brojonat/aliquot/service/distributor"
)

// Client wraps a Temporal SDK client for starting distribution workflows.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartDistribution starts a distribution workflow without waiting for it to
// finish. Returns the workflow ID.
func (c *Client) StartDistribution(ctx context.Context, input DistributionInput) (string, error) {
	id := DistributionWorkflowID(input.StreamID, input.FundingReference)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
	}, "DistributionWorkflow", input)
	if err != nil {
		return "", fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	c.logger.Info("distribution workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"stream_id", input.StreamID,
	)

	return run.GetID(), nil
}

// RunDistribution starts a distribution workflow and waits for its result.
// Used by the CLI to re-drive a failed distribution with the same funding
// reference.
func (c *Client) RunDistribution(ctx context.Context, input DistributionInput) (*distributor.Result, error) {
	id := DistributionWorkflowID(input.StreamID, input.FundingReference)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
	}, "DistributionWorkflow", input)
	if err != nil {
		return nil, fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	var result *distributor.Result
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("workflow %q failed: %w", id, err)
	}

	return result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
