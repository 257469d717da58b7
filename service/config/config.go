package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Holder source strategies. The mock source is selected explicitly at
// startup; it is never a runtime fallback for live query failures.
const (
	HolderSourceLive = "live"
	HolderSourceMock = "mock"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaRPCURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Distribution configuration
	PlatformFeePercent float64
	HolderSource       string
	MockHolderCount    int
	ConfirmTimeout     time.Duration
	HolderQueryTimeout time.Duration

	// Signer is the funding keypair. Nil means no signer is configured and
	// distributions are recorded with mock status instead of moving funds.
	Signer *solana.PrivateKey

	// WebhookSecret authenticates inbound payment webhooks via HMAC.
	// Empty disables signature verification (development only).
	WebhookSecret string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "aliquot-distributions")

	// Distribution configuration
	feePercent, err := parseFloat("PLATFORM_FEE_PERCENT", 2.5)
	if err != nil {
		errs = append(errs, err)
	} else if feePercent < 0 || feePercent > 100 {
		errs = append(errs, fmt.Errorf("PLATFORM_FEE_PERCENT must be in [0, 100], got %v", feePercent))
	} else {
		cfg.PlatformFeePercent = feePercent
	}

	cfg.HolderSource = getEnvOrDefault("HOLDER_SOURCE", HolderSourceLive)
	if cfg.HolderSource != HolderSourceLive && cfg.HolderSource != HolderSourceMock {
		errs = append(errs, fmt.Errorf("HOLDER_SOURCE must be %q or %q, got %q",
			HolderSourceLive, HolderSourceMock, cfg.HolderSource))
	}

	mockCount, err := parseInt("MOCK_HOLDER_COUNT", 25)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MockHolderCount = mockCount
	}

	confirmTimeout, err := parseDuration("CONFIRM_TIMEOUT", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = confirmTimeout
	}

	holderTimeout, err := parseDuration("HOLDER_QUERY_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HolderQueryTimeout = holderTimeout
	}

	signer, err := loadSigner()
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.Signer = signer
	}

	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.PlatformFeePercent < 0 || c.PlatformFeePercent > 100 {
		errs = append(errs, fmt.Errorf("PlatformFeePercent must be in [0, 100]"))
	}

	if c.HolderSource != HolderSourceLive && c.HolderSource != HolderSourceMock {
		errs = append(errs, fmt.Errorf("HolderSource must be %q or %q", HolderSourceLive, HolderSourceMock))
	}

	if c.ConfirmTimeout < time.Second {
		errs = append(errs, fmt.Errorf("ConfirmTimeout must be at least 1 second"))
	}

	if c.HolderQueryTimeout < time.Second {
		errs = append(errs, fmt.Errorf("HolderQueryTimeout must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// loadSigner reads the funding keypair from SIGNER_SECRET (base58 or a JSON
// byte array, the solana-keygen format) or SIGNER_KEYPAIR_PATH (a keygen
// file). Returns nil with no error when neither is set.
func loadSigner() (*solana.PrivateKey, error) {
	if secret := os.Getenv("SIGNER_SECRET"); secret != "" {
		key, err := parseSignerSecret(secret)
		if err != nil {
			return nil, fmt.Errorf("SIGNER_SECRET: %w", err)
		}
		return key, nil
	}

	if path := os.Getenv("SIGNER_KEYPAIR_PATH"); path != "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
		if err != nil {
			return nil, fmt.Errorf("SIGNER_KEYPAIR_PATH: %w", err)
		}
		return &key, nil
	}

	return nil, nil
}

func parseSignerSecret(secret string) (*solana.PrivateKey, error) {
	if secret[0] == '[' {
		var raw []int
		if err := json.Unmarshal([]byte(secret), &raw); err != nil {
			return nil, fmt.Errorf("invalid keypair byte array: %w", err)
		}
		if len(raw) != 64 {
			return nil, fmt.Errorf("keypair byte array must be 64 bytes, got %d", len(raw))
		}
		buf := make([]byte, len(raw))
		for i, b := range raw {
			if b < 0 || b > 255 {
				return nil, fmt.Errorf("keypair byte array contains invalid byte %d", b)
			}
			buf[i] = byte(b)
		}
		key := solana.PrivateKey(buf)
		return &key, nil
	}

	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 private key: %w", err)
	}
	return &key, nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
