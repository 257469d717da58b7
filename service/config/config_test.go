package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Setup environment variables
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.SolanaRPCURL)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "localhost:7233", cfg.TemporalHost)
	assert.Equal(t, "default", cfg.TemporalNamespace)
	assert.Equal(t, "aliquot-distributions", cfg.TemporalTaskQueue)
	assert.Equal(t, 2.5, cfg.PlatformFeePercent)
	assert.Equal(t, HolderSourceLive, cfg.HolderSource)
	assert.Equal(t, 25, cfg.MockHolderCount)
	assert.Equal(t, 60*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, 30*time.Second, cfg.HolderQueryTimeout)
	assert.Nil(t, cfg.Signer)
	assert.Empty(t, cfg.WebhookSecret)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_MissingSolanaRPCURL(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "SOLANA_RPC_URL is required")
}

func TestLoad_InvalidHolderSource(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("HOLDER_SOURCE", "hybrid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "HOLDER_SOURCE")
}

func TestLoad_FeeOutOfBounds(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("PLATFORM_FEE_PERCENT", "150")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "PLATFORM_FEE_PERCENT")
}

func TestLoad_InvalidFee(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("PLATFORM_FEE_PERCENT", "two-ish")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidConfirmTimeout(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("CONFIRM_TIMEOUT", "invalid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("NATS_URL", "nats://nats.internal:4222")
	os.Setenv("TEMPORAL_HOST", "temporal.internal:7233")
	os.Setenv("PLATFORM_FEE_PERCENT", "1.25")
	os.Setenv("HOLDER_SOURCE", "mock")
	os.Setenv("MOCK_HOLDER_COUNT", "10")
	os.Setenv("CONFIRM_TIMEOUT", "90s")
	os.Setenv("WEBHOOK_SECRET", "s3cret")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://nats.internal:4222", cfg.NATSURL)
	assert.Equal(t, "temporal.internal:7233", cfg.TemporalHost)
	assert.Equal(t, 1.25, cfg.PlatformFeePercent)
	assert.Equal(t, HolderSourceMock, cfg.HolderSource)
	assert.Equal(t, 10, cfg.MockHolderCount)
	assert.Equal(t, 90*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, "s3cret", cfg.WebhookSecret)
}

func TestLoad_SignerFromBase58(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("SIGNER_SECRET", key.String())
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Signer)
	assert.Equal(t, key.PublicKey(), cfg.Signer.PublicKey())
}

func TestLoad_SignerFromKeygenArray(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	// solana-keygen writes the keypair as a JSON array of byte values.
	raw := make([]int, len(key))
	for i, b := range key {
		raw[i] = int(b)
	}
	encoded, err := json.Marshal(raw)
	require.NoError(t, err)

	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("SIGNER_SECRET", string(encoded))
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Signer)
	assert.Equal(t, key.PublicKey(), cfg.Signer.PublicKey())
}

func TestLoad_SignerInvalidArrayLength(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("SIGNER_SECRET", "[1, 2, 3]")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "64 bytes")
}

func TestLoad_SignerInvalidBase58(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("SIGNER_SECRET", "not-a-real-key")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestValidate(t *testing.T) {
	valid := &Config{
		DatabaseURL:        "postgres://localhost/test",
		SolanaRPCURL:       "https://api.mainnet-beta.solana.com",
		TemporalHost:       "localhost:7233",
		TemporalNamespace:  "default",
		TemporalTaskQueue:  "aliquot-distributions",
		PlatformFeePercent: 2.5,
		HolderSource:       HolderSourceLive,
		ConfirmTimeout:     60 * time.Second,
		HolderQueryTimeout: 30 * time.Second,
	}
	assert.NoError(t, valid.Validate())

	invalid := *valid
	invalid.PlatformFeePercent = 150
	assert.Error(t, invalid.Validate())

	invalid = *valid
	invalid.HolderSource = "hybrid"
	assert.Error(t, invalid.Validate())

	invalid = *valid
	invalid.ConfirmTimeout = 0
	assert.Error(t, invalid.Validate())

	invalid = *valid
	invalid.DatabaseURL = ""
	assert.Error(t, invalid.Validate())
}

// cleanupEnv removes all configuration environment variables.
func cleanupEnv() {
	vars := []string{
		"SERVER_ADDR",
		"LOG_LEVEL",
		"DATABASE_URL",
		"NATS_URL",
		"SOLANA_RPC_URL",
		"TEMPORAL_HOST",
		"TEMPORAL_NAMESPACE",
		"TEMPORAL_TASK_QUEUE",
		"PLATFORM_FEE_PERCENT",
		"HOLDER_SOURCE",
		"MOCK_HOLDER_COUNT",
		"CONFIRM_TIMEOUT",
		"HOLDER_QUERY_TIMEOUT",
		"SIGNER_SECRET",
		"SIGNER_KEYPAIR_PATH",
		"WEBHOOK_SECRET",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
