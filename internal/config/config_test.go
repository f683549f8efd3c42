package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesComponentDefaultsWhenUnset(t *testing.T) {
	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Greater(t, cfg.WorkerPool.MaxWorkers, 0)
}

func TestLoad_EnvOverridesTakePrecedenceOverDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("WORKERPOOL_MAX_WORKERS", "7")
	t.Setenv("WORKERPOOL_TASK_TIMEOUT", "45s")
	t.Setenv("RISK_MIN_RISK_REWARD_RATIO", "3.5")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 7, cfg.WorkerPool.MaxWorkers)
	assert.Equal(t, 45*time.Second, cfg.WorkerPool.TaskTimeout)
	assert.Equal(t, "3.5", cfg.Risk.MinRiskRewardRatio.String())
}

func TestLoad_FallsBackToDefaultOnUnparseableOverride(t *testing.T) {
	t.Setenv("WORKERPOOL_MAX_WORKERS", "not-a-number")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)
	assert.Greater(t, cfg.WorkerPool.MaxWorkers, 0, "an unparseable override should fall back to the component default rather than zero")
}

func TestLoad_RejectsNonPositiveMaxWorkers(t *testing.T) {
	t.Setenv("WORKERPOOL_MAX_WORKERS", "0")

	_, err := Load(zerolog.Nop())
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositiveMaxConcurrentTrades(t *testing.T) {
	t.Setenv("EXECUTOR_MAX_CONCURRENT_TRADES", "-1")

	_, err := Load(zerolog.Nop())
	assert.Error(t, err)
}

func TestLoad_BinanceSecretFallsBackToLegacyEnvName(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "key123")
	t.Setenv("BINANCE_SECRET_KEY", "legacy-secret")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "legacy-secret", cfg.BinanceAPISecret)
}
