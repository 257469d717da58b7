package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RevenueStream is a registered revenue stream's distribution configuration.
type RevenueStream struct {
	StreamID               string    `json:"stream_id"`
	Enabled                bool      `json:"enabled"`
	DistributionModel      string    `json:"distribution_model"`
	DistributionPercentage int       `json:"distribution_percentage"`
	TreasuryWallet         string    `json:"treasury_wallet"`
	CreatorSplitPercentage *int      `json:"creator_split_percentage,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// PaymentEvent is a payment to be distributed among a stream's holders.
// Amount is decimal in the wire unit; currency defaults to SOL.
type PaymentEvent struct {
	StreamID         string            `json:"stream_id"`
	Amount           float64           `json:"amount"`
	Currency         string            `json:"currency,omitempty"`
	SourceOperation  string            `json:"source_operation,omitempty"`
	FundingReference string            `json:"funding_reference,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// DistributionResult is the outcome of a distribution attempt. Amounts are
// in lamports.
type DistributionResult struct {
	Success          bool   `json:"success"`
	StreamID         string `json:"stream_id"`
	DistributionTx   string `json:"distribution_tx,omitempty"`
	Recipients       int    `json:"recipients"`
	AmountPerHolder  int64  `json:"amount_per_holder"`
	TotalDistributed int64  `json:"total_distributed"`
	TreasuryAmount   int64  `json:"treasury_amount"`
	PlatformFee      int64  `json:"platform_fee"`
	Status           string `json:"status"`
}

// Distribution is one recorded distribution attempt from the ledger.
type Distribution struct {
	ID                   int64             `json:"id"`
	StreamID             string            `json:"stream_id"`
	TotalAmount          int64             `json:"total_amount"`
	RecipientCount       int               `json:"recipient_count"`
	AmountPerHolder      int64             `json:"amount_per_holder"`
	PlatformFee          int64             `json:"platform_fee"`
	TreasuryAmount       int64             `json:"treasury_amount"`
	TransactionReference *string           `json:"transaction_reference,omitempty"`
	FundingReference     *string           `json:"funding_reference,omitempty"`
	Status               string            `json:"status"`
	SourceOperation      string            `json:"source_operation,omitempty"`
	ErrorDetail          *string           `json:"error_detail,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

// Stats aggregates a stream's distribution history.
type Stats struct {
	StreamID               string `json:"stream_id"`
	TotalDistributed       int64  `json:"total_distributed"`
	DistributionCount      int64  `json:"distribution_count"`
	AveragePerDistribution int64  `json:"average_per_distribution"`
	CurrentHolderCount     int    `json:"holder_count"`
}

// Client is the HTTP client for the aliquot distribution service.
type Client struct {
	baseURL       string
	webhookSecret string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewClient creates a new distribution service client. webhookSecret may be
// empty when the server runs without signature verification.
func NewClient(baseURL, webhookSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 150 * time.Second} // distributions wait for confirmation
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:       baseURL,
		webhookSecret: webhookSecret,
		httpClient:    httpClient,
		logger:        logger,
	}
}

// RegisterStream registers or reconfigures a revenue stream.
func (c *Client) RegisterStream(ctx context.Context, stream *RevenueStream) (*RevenueStream, error) {
	body, err := json.Marshal(map[string]interface{}{
		"stream_id":                stream.StreamID,
		"enabled":                  stream.Enabled,
		"distribution_model":       stream.DistributionModel,
		"distribution_percentage":  stream.DistributionPercentage,
		"treasury_wallet":          stream.TreasuryWallet,
		"creator_split_percentage": stream.CreatorSplitPercentage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/streams", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var registered RevenueStream
	if err := json.NewDecoder(resp.Body).Decode(&registered); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("stream registered", "stream_id", registered.StreamID)
	return &registered, nil
}

// GetStream retrieves one stream's configuration.
func (c *Client) GetStream(ctx context.Context, streamID string) (*RevenueStream, error) {
	u := fmt.Sprintf("%s/api/v1/streams/%s", c.baseURL, url.PathEscape(streamID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var stream RevenueStream
	if err := json.NewDecoder(resp.Body).Decode(&stream); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &stream, nil
}

// ListStreams retrieves all registered streams.
func (c *Client) ListStreams(ctx context.Context) ([]*RevenueStream, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/streams", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Streams []*RevenueStream `json:"streams"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Streams, nil
}

// Distribute submits a payment event to the webhook endpoint, signing the
// body when a webhook secret is configured.
func (c *Client) Distribute(ctx context.Context, event *PaymentEvent) (*DistributionResult, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/webhook", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.webhookSecret != "" {
		mac := hmac.New(sha256.New, []byte(c.webhookSecret))
		mac.Write(body)
		req.Header.Set("X-X402-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var result DistributionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("distribution submitted",
		"stream_id", result.StreamID,
		"status", result.Status,
		"recipients", result.Recipients,
	)
	return &result, nil
}

// DistributeTest triggers a test distribution with a synthesized payment
// event. No signature is attached; intended against dev or mock setups.
func (c *Client) DistributeTest(ctx context.Context, event *PaymentEvent) (*DistributionResult, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/distribute-test", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var result DistributionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// ListDistributions retrieves a stream's distribution history, newest first.
// limit <= 0 uses the server default.
func (c *Client) ListDistributions(ctx context.Context, streamID string, limit int) ([]*Distribution, error) {
	u := fmt.Sprintf("%s/api/v1/streams/%s/distributions", c.baseURL, url.PathEscape(streamID))
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Distributions []*Distribution `json:"distributions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Distributions, nil
}

// GetStats retrieves a stream's aggregate distribution stats.
func (c *Client) GetStats(ctx context.Context, streamID string) (*Stats, error) {
	u := fmt.Sprintf("%s/api/v1/streams/%s/stats", c.baseURL, url.PathEscape(streamID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &stats, nil
}

// Health checks whether the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// parseErrorResponse extracts the error message from a failed response.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, errResp.Error)
}
