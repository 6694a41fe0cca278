package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LLM_PROVIDER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.False(t, cfg.OpenAI.Enabled)
	assert.Equal(t, 20.0, cfg.Valuation.DefaultDiscount)
	assert.Equal(t, 99, cfg.Valuation.RemainingLease)
	assert.Equal(t, 4, cfg.Valuation.MaxInFlight)
	assert.Equal(t, "model/xgb_model.json", cfg.Valuation.ModelPath)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_API_BASE", "https://example.test/v1/")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("VALUATION_MAX_IN_FLIGHT", "8")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REFERENCE_YEAR", "2024")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.OpenAI.Enabled)
	assert.Equal(t, "https://example.test/v1", cfg.OpenAI.APIBase)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 8, cfg.Valuation.MaxInFlight)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2024, cfg.ReferenceYear(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "cohere")

	_, err := Load()
	assert.Error(t, err)
}

func TestReferenceYear_DefaultsToNow(t *testing.T) {
	cfg := &Config{}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 2026, cfg.ReferenceYear(now))
}

func TestGetPostgreSQLDSN(t *testing.T) {
	cfg := &Config{PostgreSQL: PostgreSQLConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Database: "hdb", SSLMode: "disable",
	}}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=hdb sslmode=disable", cfg.GetPostgreSQLDSN())

	cfg.PostgreSQL.DSN = "postgres://u:p@db/hdb"
	assert.Equal(t, "postgres://u:p@db/hdb", cfg.GetPostgreSQLDSN())
}
