package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/aliquot/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing distribution outcome
// events to NATS.
type Publisher interface {
	// PublishDistribution publishes a distribution outcome to JetStream on
	// the subject "distributions.{stream_id}". If that publish fails, the
	// event is republished to the dead-letter subject so the failure is
	// visible to an operator instead of vanishing.
	PublishDistribution(ctx context.Context, event *DistributionEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes distribution events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for distributions.
	StreamName = "DISTRIBUTIONS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "distributions.>"

	// DeadLetterSubject receives events whose primary publish failed.
	DeadLetterSubject = "distributions.deadletter"

	// StreamRetention is how long messages are retained (30 days).
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("aliquot-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Distribution outcome events per revenue stream",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishDistribution publishes a distribution outcome event.
func (p *JetStreamPublisher) PublishDistribution(ctx context.Context, event *DistributionEvent) error {
	subject := fmt.Sprintf("distributions.%s", event.StreamID)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal distribution event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(subject, status, duration)
	}

	if err != nil {
		// Route to the dead-letter subject so the failed notification is
		// visible to an operator rather than silently lost.
		p.logger.Error("failed to publish distribution event, routing to dead letter",
			"subject", subject,
			"stream_id", event.StreamID,
			"error", err,
		)
		if _, dlErr := p.js.Publish(ctx, DeadLetterSubject, data); dlErr != nil {
			p.logger.Error("dead letter publish failed",
				"stream_id", event.StreamID,
				"error", dlErr,
			)
			if p.metrics != nil {
				p.metrics.RecordNATSPublish(DeadLetterSubject, "error", 0)
			}
		} else if p.metrics != nil {
			p.metrics.RecordNATSPublish(DeadLetterSubject, "success", 0)
		}
		return fmt.Errorf("failed to publish distribution event: %w", err)
	}

	p.logger.Debug("published distribution event",
		"subject", subject,
		"stream_id", event.StreamID,
		"status", event.Status,
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
