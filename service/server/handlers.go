package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/aliquot/service/db"
	"github.com/brojonat/aliquot/service/distributor"
)

const (
	maxRequestBodySize  = 1 << 20 // 1MB - plenty for payment events
	maxAddressLength    = 100     // Solana addresses are 44 chars, give buffer
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// signatureHeader carries the webhook HMAC, hex-encoded.
const signatureHeader = "X-X402-Signature"

// paymentRequest is the JSON body of a payment webhook.
type paymentRequest struct {
	StreamID         string            `json:"stream_id"`
	Amount           float64           `json:"amount"`
	Currency         string            `json:"currency"`
	SourceOperation  string            `json:"source_operation"`
	FundingReference string            `json:"funding_reference"`
	Metadata         map[string]string `json:"metadata"`
}

// handlePaymentWebhook returns a handler that accepts a payment event and
// runs a distribution.
// POST /api/v1/webhook
func handlePaymentWebhook(dist Distributor, webhookSecret string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		if webhookSecret != "" {
			if err := verifySignature(body, r.Header.Get(signatureHeader), webhookSecret); err != nil {
				logger.Warn("webhook signature verification failed", "error", err)
				writeError(w, "invalid webhook signature", http.StatusUnauthorized)
				return
			}
		}

		var req paymentRequest
		if err := json.Unmarshal(body, &req); err != nil {
			logger.Debug("failed to decode webhook payload", "error", err)
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.StreamID); err != nil {
			logger.Debug("invalid stream_id", "stream_id", req.StreamID, "error", err)
			writeError(w, fmt.Sprintf("invalid stream_id: %v", err), http.StatusBadRequest)
			return
		}

		if req.SourceOperation == "" {
			req.SourceOperation = "webhook"
		}

		runDistribution(w, r, dist, &req, logger)
	})
}

// handleDistributeTest returns a handler that triggers a distribution with a
// synthesized payment event. No signature verification; intended for manual
// testing against a mock or devnet setup.
// POST /api/v1/distribute-test
func handleDistributeTest(dist Distributor, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req paymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode test distribution request", "error", err)
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.StreamID); err != nil {
			writeError(w, fmt.Sprintf("invalid stream_id: %v", err), http.StatusBadRequest)
			return
		}

		if req.Amount == 0 {
			req.Amount = 0.1 // 0.1 SOL default for test runs
		}
		req.SourceOperation = "test"
		if req.FundingReference == "" {
			req.FundingReference = fmt.Sprintf("test-%d", time.Now().UnixNano())
		}

		runDistribution(w, r, dist, &req, logger)
	})
}

func runDistribution(w http.ResponseWriter, r *http.Request, dist Distributor, req *paymentRequest, logger *slog.Logger) {
	event := &distributor.PaymentEvent{
		StreamID:         req.StreamID,
		Amount:           req.Amount,
		Currency:         distributor.Currency(req.Currency),
		SourceOperation:  req.SourceOperation,
		FundingReference: req.FundingReference,
		Metadata:         req.Metadata,
		ReceivedAt:       time.Now().UTC(),
	}

	result, err := dist.Distribute(r.Context(), event)
	if err != nil {
		logger.Error("distribution failed",
			"stream_id", req.StreamID,
			"source_operation", req.SourceOperation,
			"error", err,
		)
		writeError(w, err.Error(), distributionErrorStatus(err))
		return
	}

	writeJSON(w, result, http.StatusOK)
}

// distributionErrorStatus maps typed distribution errors to HTTP statuses.
func distributionErrorStatus(err error) int {
	switch {
	case errors.Is(err, distributor.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, distributor.ErrStreamNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, distributor.ErrNoHoldersFound),
		errors.Is(err, distributor.ErrAmountTooSmall):
		return http.StatusUnprocessableEntity
	case errors.Is(err, distributor.ErrUpstreamUnavailable),
		errors.Is(err, distributor.ErrTransferBatchFailed):
		return http.StatusBadGateway
	case errors.Is(err, distributor.ErrConfirmationTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// verifySignature checks the hex-encoded HMAC-SHA256 of the raw body.
func verifySignature(body []byte, signature, secret string) error {
	if signature == "" {
		return fmt.Errorf("missing %s header", signatureHeader)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// handleRegisterStream returns a handler that registers or reconfigures a
// revenue stream.
// POST /api/v1/streams
func handleRegisterStream(store StreamStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			StreamID               string `json:"stream_id"`
			Enabled                *bool  `json:"enabled"`
			DistributionModel      string `json:"distribution_model"`
			DistributionPercentage int    `json:"distribution_percentage"`
			TreasuryWallet         string `json:"treasury_wallet"`
			CreatorSplitPercentage *int   `json:"creator_split_percentage"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode stream registration", "error", err)
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.StreamID); err != nil {
			writeError(w, fmt.Sprintf("invalid stream_id: %v", err), http.StatusBadRequest)
			return
		}

		if req.DistributionModel == "" {
			req.DistributionModel = string(distributor.ModelEqual)
		}
		if !distributor.ValidModel(distributor.Model(req.DistributionModel)) {
			writeError(w, fmt.Sprintf("invalid distribution_model %q", req.DistributionModel), http.StatusBadRequest)
			return
		}

		if req.DistributionPercentage < 0 || req.DistributionPercentage > 100 {
			writeError(w, "distribution_percentage must be in [0, 100]", http.StatusBadRequest)
			return
		}

		if req.TreasuryWallet != "" {
			if err := validateAddress(req.TreasuryWallet); err != nil {
				writeError(w, fmt.Sprintf("invalid treasury_wallet: %v", err), http.StatusBadRequest)
				return
			}
		}

		if req.CreatorSplitPercentage != nil && (*req.CreatorSplitPercentage < 0 || *req.CreatorSplitPercentage > 100) {
			writeError(w, "creator_split_percentage must be in [0, 100]", http.StatusBadRequest)
			return
		}

		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}

		stream, err := store.UpsertStream(r.Context(), db.UpsertStreamParams{
			StreamID:               req.StreamID,
			Enabled:                enabled,
			DistributionModel:      req.DistributionModel,
			DistributionPercentage: req.DistributionPercentage,
			TreasuryWallet:         req.TreasuryWallet,
			CreatorSplitPercentage: req.CreatorSplitPercentage,
		})
		if err != nil {
			logger.Error("failed to register stream", "stream_id", req.StreamID, "error", err)
			writeError(w, "failed to register stream", http.StatusInternalServerError)
			return
		}

		logger.Info("stream registered",
			"stream_id", stream.StreamID,
			"enabled", stream.Enabled,
			"distribution_model", stream.DistributionModel,
			"distribution_percentage", stream.DistributionPercentage,
		)

		writeJSON(w, streamToResponse(stream), http.StatusCreated)
	})
}

// handleGetStream returns a handler that fetches one stream's configuration.
// GET /api/v1/streams/{stream_id}
func handleGetStream(store StreamStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamID := r.PathValue("stream_id")
		if err := validateAddress(streamID); err != nil {
			writeError(w, fmt.Sprintf("invalid stream_id: %v", err), http.StatusBadRequest)
			return
		}

		stream, err := store.GetStream(r.Context(), streamID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "stream not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get stream", "stream_id", streamID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, streamToResponse(stream), http.StatusOK)
	})
}

// handleListStreams returns a handler that lists all registered streams.
// GET /api/v1/streams
func handleListStreams(store StreamStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streams, err := store.ListStreams(r.Context())
		if err != nil {
			logger.Error("failed to list streams", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]streamResponse, len(streams))
		for i, stream := range streams {
			resp[i] = streamToResponse(stream)
		}

		writeJSON(w, map[string]interface{}{
			"streams": resp,
		}, http.StatusOK)
	})
}

// handleListDistributions returns a handler that lists a stream's
// distribution history, newest first.
// GET /api/v1/streams/{stream_id}/distributions?limit=N
func handleListDistributions(store StreamStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamID := r.PathValue("stream_id")
		if err := validateAddress(streamID); err != nil {
			writeError(w, fmt.Sprintf("invalid stream_id: %v", err), http.StatusBadRequest)
			return
		}

		limit := int32(defaultHistoryLimit)
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsed < 1 {
				writeError(w, "limit must be at least 1", http.StatusBadRequest)
				return
			}
			if parsed > maxHistoryLimit {
				writeError(w, fmt.Sprintf("limit cannot exceed %d", maxHistoryLimit), http.StatusBadRequest)
				return
			}
			limit = int32(parsed)
		}

		distributions, err := store.ListDistributions(r.Context(), streamID, limit)
		if err != nil {
			logger.Error("failed to list distributions", "stream_id", streamID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]distributionResponse, len(distributions))
		for i := range distributions {
			resp[i] = distributionToResponse(distributions[i])
		}

		writeJSON(w, map[string]interface{}{
			"stream_id":     streamID,
			"distributions": resp,
			"count":         len(resp),
		}, http.StatusOK)
	})
}

// handleStreamStats returns a handler that aggregates a stream's history.
// GET /api/v1/streams/{stream_id}/stats
func handleStreamStats(dist Distributor, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamID := r.PathValue("stream_id")
		if err := validateAddress(streamID); err != nil {
			writeError(w, fmt.Sprintf("invalid stream_id: %v", err), http.StatusBadRequest)
			return
		}

		stats, err := dist.GetStats(r.Context(), streamID)
		if err != nil {
			logger.Error("failed to get stream stats", "stream_id", streamID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, stats, http.StatusOK)
	})
}

// streamResponse is the JSON response format for a revenue stream.
type streamResponse struct {
	StreamID               string    `json:"stream_id"`
	Enabled                bool      `json:"enabled"`
	DistributionModel      string    `json:"distribution_model"`
	DistributionPercentage int       `json:"distribution_percentage"`
	TreasuryWallet         string    `json:"treasury_wallet"`
	CreatorSplitPercentage *int      `json:"creator_split_percentage,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func streamToResponse(s *db.RevenueStream) streamResponse {
	return streamResponse{
		StreamID:               s.StreamID,
		Enabled:                s.Enabled,
		DistributionModel:      s.DistributionModel,
		DistributionPercentage: s.DistributionPercentage,
		TreasuryWallet:         s.TreasuryWallet,
		CreatorSplitPercentage: s.CreatorSplitPercentage,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
	}
}

// distributionResponse is the JSON response format for a ledger record.
// All amounts are in lamports.
type distributionResponse struct {
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

func distributionToResponse(d *db.Distribution) distributionResponse {
	return distributionResponse{
		ID:                   d.ID,
		StreamID:             d.StreamID,
		TotalAmount:          d.TotalAmount,
		RecipientCount:       d.RecipientCount,
		AmountPerHolder:      d.AmountPerHolder,
		PlatformFee:          d.PlatformFee,
		TreasuryAmount:       d.TreasuryAmount,
		TransactionReference: d.TransactionReference,
		FundingReference:     d.FundingReference,
		Status:               d.Status,
		SourceOperation:      d.SourceOperation,
		ErrorDetail:          d.ErrorDetail,
		Metadata:             d.Metadata,
		CreatedAt:            d.CreatedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a base58 account or mint address.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long: maximum length is %d characters", maxAddressLength)
	}
	if !validAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid address format: must contain only valid base58 characters")
	}
	return nil
}
