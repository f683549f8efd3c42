// Package config loads every tunable of the trading engine from the
// environment (and an optional .env file), following config/loader.go's
// shape: godotenv.Load, then os.Getenv with a typed default for every
// knob so a missing .env never prevents startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentineltrade/futuresbot/internal/executor"
	"github.com/sentineltrade/futuresbot/internal/marketdata"
	"github.com/sentineltrade/futuresbot/internal/orchestrator"
	"github.com/sentineltrade/futuresbot/internal/position"
	"github.com/sentineltrade/futuresbot/internal/ratelimit"
	"github.com/sentineltrade/futuresbot/internal/risk"
	"github.com/sentineltrade/futuresbot/internal/signalqueue"
	"github.com/sentineltrade/futuresbot/internal/workerpool"
)

// Config is the fully resolved set of knobs for one process run.
type Config struct {
	BinanceAPIKey    string
	BinanceAPISecret string
	IsTestnet        bool

	TelegramToken      string
	TelegramChatIDFile string
	FirebaseCredsFile  string

	LedgerPath string

	HTTPAddr string

	LogLevel string

	RateLimit    ratelimit.Config
	MarketData   marketdata.Config
	WorkerPool   workerpool.Config
	SignalQueue  signalqueue.Config
	Risk         risk.Config
	Executor     executor.Config
	Position     position.Config
	Orchestrator orchestrator.Config
}

// Load reads .env (if present) and the process environment, applying the
// same component defaults each package's own DefaultConfig returns, then
// overriding with whatever is actually set.
func Load(log zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on system environment variables")
	}

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiSecret == "" {
		apiSecret = os.Getenv("BINANCE_SECRET_KEY")
	}
	if apiKey == "" || apiSecret == "" {
		log.Warn().Msg("binance credentials missing from environment")
	}

	cfg := &Config{
		BinanceAPIKey:      apiKey,
		BinanceAPISecret:   apiSecret,
		IsTestnet:          envBool("BINANCE_TESTNET", false),
		TelegramToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatIDFile: envString("TELEGRAM_CHAT_ID_FILE", "chat_id.txt"),
		FirebaseCredsFile:  envString("FIREBASE_CREDENTIALS_FILE", "firebase-credentials.json"),
		LedgerPath:         envString("LEDGER_DB_PATH", "trades.db"),
		HTTPAddr:           envString("HTTP_ADDR", ":8080"),
		LogLevel:           envString("LOG_LEVEL", "info"),

		RateLimit:    ratelimit.DefaultConfig(),
		MarketData:   marketdata.DefaultConfig(),
		WorkerPool:   workerpool.DefaultConfig(),
		SignalQueue:  signalqueue.DefaultConfig(),
		Risk:         risk.DefaultConfig(),
		Executor:     executor.DefaultConfig(),
		Position:     position.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
	}

	cfg.RateLimit.MarketDataBurst = envInt("RATE_MARKET_DATA_BURST", cfg.RateLimit.MarketDataBurst)
	cfg.RateLimit.TradingBurst = envInt("RATE_TRADING_BURST", cfg.RateLimit.TradingBurst)

	cfg.MarketData.TickerTTL = envDuration("MARKETDATA_TICKER_TTL", cfg.MarketData.TickerTTL)
	cfg.MarketData.KlineTTL = envDuration("MARKETDATA_KLINE_TTL", cfg.MarketData.KlineTTL)
	cfg.MarketData.MaxCacheSize = envInt("MARKETDATA_MAX_CACHE_SIZE", cfg.MarketData.MaxCacheSize)

	cfg.WorkerPool.MaxWorkers = envInt("WORKERPOOL_MAX_WORKERS", cfg.WorkerPool.MaxWorkers)
	cfg.WorkerPool.MaxQueueDepth = envInt("WORKERPOOL_MAX_QUEUE_DEPTH", cfg.WorkerPool.MaxQueueDepth)
	cfg.WorkerPool.TaskTimeout = envDuration("WORKERPOOL_TASK_TIMEOUT", cfg.WorkerPool.TaskTimeout)
	cfg.WorkerPool.MinVolumeUSDT = envFloat("WORKERPOOL_MIN_VOLUME_USDT", cfg.WorkerPool.MinVolumeUSDT)
	cfg.WorkerPool.BreakerThreshold = envInt("WORKERPOOL_BREAKER_THRESHOLD", cfg.WorkerPool.BreakerThreshold)
	cfg.WorkerPool.BreakerResumeAfter = envDuration("WORKERPOOL_BREAKER_RESUME_AFTER", cfg.WorkerPool.BreakerResumeAfter)
	cfg.WorkerPool.UniverseMaxSymbols = envInt("WORKERPOOL_UNIVERSE_MAX_SYMBOLS", cfg.WorkerPool.UniverseMaxSymbols)

	cfg.SignalQueue.MaxDepth = envInt("SIGNALQUEUE_MAX_DEPTH", cfg.SignalQueue.MaxDepth)
	cfg.SignalQueue.DefaultTTL = envDuration("SIGNALQUEUE_DEFAULT_TTL", cfg.SignalQueue.DefaultTTL)
	cfg.SignalQueue.DedupWindow = envDuration("SIGNALQUEUE_DEDUP_WINDOW", cfg.SignalQueue.DedupWindow)

	cfg.Risk.MaxPositionSizePercent = envDecimal("RISK_MAX_POSITION_SIZE_PERCENT", cfg.Risk.MaxPositionSizePercent)
	cfg.Risk.MaxDailyLossUSDT = envDecimal("RISK_MAX_DAILY_LOSS_USDT", cfg.Risk.MaxDailyLossUSDT)
	cfg.Risk.MaxDrawdownPercent = envDecimal("RISK_MAX_DRAWDOWN_PERCENT", cfg.Risk.MaxDrawdownPercent)
	cfg.Risk.MinRiskRewardRatio = envDecimal("RISK_MIN_RISK_REWARD_RATIO", cfg.Risk.MinRiskRewardRatio)
	cfg.Risk.StopLossPercent = envDecimal("RISK_STOP_LOSS_PERCENT", cfg.Risk.StopLossPercent)
	cfg.Risk.TakeProfitPercent = envDecimal("RISK_TAKE_PROFIT_PERCENT", cfg.Risk.TakeProfitPercent)

	cfg.Executor.MaxExecutors = envInt("EXECUTOR_MAX_EXECUTORS", cfg.Executor.MaxExecutors)
	cfg.Executor.MaxConcurrentTrades = envInt("EXECUTOR_MAX_CONCURRENT_TRADES", cfg.Executor.MaxConcurrentTrades)
	cfg.Executor.ExecutionTimeout = envDuration("EXECUTOR_EXECUTION_TIMEOUT", cfg.Executor.ExecutionTimeout)
	cfg.Executor.MaxSignalAge = envDuration("EXECUTOR_MAX_SIGNAL_AGE", cfg.Executor.MaxSignalAge)

	cfg.Position.MonitoringInterval = envDuration("POSITION_MONITORING_INTERVAL", cfg.Position.MonitoringInterval)
	cfg.Position.MaxPositionAge = envDuration("POSITION_MAX_AGE", cfg.Position.MaxPositionAge)
	cfg.Position.EmergencyCloseThreshold = envDecimal("POSITION_EMERGENCY_CLOSE_THRESHOLD", cfg.Position.EmergencyCloseThreshold)
	cfg.Position.TrailingStopEnabled = envBool("POSITION_TRAILING_STOP_ENABLED", cfg.Position.TrailingStopEnabled)
	cfg.Position.TrailingStopPercent = envDecimal("POSITION_TRAILING_STOP_PERCENT", cfg.Position.TrailingStopPercent)

	cfg.Orchestrator.ScanInterval = envDuration("ORCHESTRATOR_SCAN_INTERVAL", cfg.Orchestrator.ScanInterval)
	cfg.Orchestrator.MinSignalStrength = envInt("ORCHESTRATOR_MIN_SIGNAL_STRENGTH", cfg.Orchestrator.MinSignalStrength)
	cfg.Orchestrator.ImmediateExecution = envBool("ORCHESTRATOR_IMMEDIATE_EXECUTION", cfg.Orchestrator.ImmediateExecution)
	cfg.Orchestrator.DefaultPositionSize = envDecimal("ORCHESTRATOR_DEFAULT_POSITION_SIZE", cfg.Orchestrator.DefaultPositionSize)

	if cfg.WorkerPool.MaxWorkers <= 0 {
		return nil, fmt.Errorf("WORKERPOOL_MAX_WORKERS must be positive, got %d", cfg.WorkerPool.MaxWorkers)
	}
	if cfg.Executor.MaxConcurrentTrades <= 0 {
		return nil, fmt.Errorf("EXECUTOR_MAX_CONCURRENT_TRADES must be positive, got %d", cfg.Executor.MaxConcurrentTrades)
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return parsed
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return parsed
}

func envDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return parsed
}
