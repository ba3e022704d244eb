package cfg

import (
	"testing"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_USER", "conveyor")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "conveyor")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Http.Port)
	assert.Equal(t, "localhost", cfg.Db.Host)
	assert.Equal(t, time.Hour, cfg.Redis.FeedTTL)
	assert.InDelta(t, 0.3, cfg.Pricing.RetailDivisor, 1e-9)
	assert.Equal(t, int64(500), cfg.Pricing.MinOfferPrice)
	assert.Equal(t, "explicit_first", cfg.Pricing.SKUOrder)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Empty(t, cfg.AI.Providers)
}

func TestLoad_MissingPostgresUser(t *testing.T) {
	t.Setenv("POSTGRES_USER", "")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "conveyor")

	_, err := Load(logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_USER")
}

func TestLoad_AIProvidersFollowOrderAndSkipMissingKeys(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AI_PROVIDER_ORDER", "openai, groq, gemini")
	t.Setenv("OPENAI_API_KEY", "sk-1")
	t.Setenv("GEMINI_API_KEY", "g-1")

	cfg, err := Load(logger.NewNop())
	require.NoError(t, err)

	require.Len(t, cfg.AI.Providers, 2)
	assert.Equal(t, "openai", cfg.AI.Providers[0].Name)
	assert.Equal(t, "gemini", cfg.AI.Providers[1].Name)
	assert.Equal(t, "https://api.openai.com/v1", cfg.AI.Providers[0].BaseURL)
}

func TestLoad_KafkaRequiresBrokers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("KAFKA_ENABLED", "true")

	_, err := Load(logger.NewNop())
	require.Error(t, err)
}

func TestLoad_InvalidDivisor(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PRICE_RETAIL_DIVISOR", "0")

	_, err := Load(logger.NewNop())
	require.Error(t, err)
}
