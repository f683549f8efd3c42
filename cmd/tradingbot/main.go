// Command tradingbot wires the full signal-to-execution pipeline together
// and runs it until a termination signal arrives. The wiring order follows
// main.go's component construction shape (channels/services built bottom
// up, background loops started last), adapted to this tree's explicit
// dependency-injection constructors instead of package-level globals.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/sentineltrade/futuresbot/internal/config"
	"github.com/sentineltrade/futuresbot/internal/events"
	"github.com/sentineltrade/futuresbot/internal/exchange"
	"github.com/sentineltrade/futuresbot/internal/executor"
	"github.com/sentineltrade/futuresbot/internal/indicators"
	"github.com/sentineltrade/futuresbot/internal/ledger"
	"github.com/sentineltrade/futuresbot/internal/marketdata"
	"github.com/sentineltrade/futuresbot/internal/notify"
	"github.com/sentineltrade/futuresbot/internal/orchestrator"
	"github.com/sentineltrade/futuresbot/internal/position"
	"github.com/sentineltrade/futuresbot/internal/ratelimit"
	"github.com/sentineltrade/futuresbot/internal/requestmanager"
	"github.com/sentineltrade/futuresbot/internal/risk"
	"github.com/sentineltrade/futuresbot/internal/signalqueue"
	"github.com/sentineltrade/futuresbot/internal/statusserver"
	"github.com/sentineltrade/futuresbot/internal/workerpool"
	"github.com/sentineltrade/futuresbot/pkg/logging"
)

func main() {
	log := logging.New(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("trading engine starting")

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	if futures.UseTestnet != cfg.IsTestnet {
		futures.UseTestnet = cfg.IsTestnet
	}

	bus := events.New(log)

	api := futures.NewClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret)
	exClient := exchange.NewBinanceClient(api, log)

	gov := ratelimit.New(cfg.RateLimit, log)
	marketRM := requestmanager.New(gov, ratelimit.BudgetMarketData, log)
	tradingRM := requestmanager.New(gov, ratelimit.BudgetTrading, log)

	mdc := marketdata.New(cfg.MarketData, marketRM, exClient, bus, log)

	gate := indicators.NewTrendGate(mdc)
	liqMonitor := exchange.NewLiquidationMonitor(60 * time.Second)
	icfg := indicators.DefaultConfig()

	pool := workerpool.New(cfg.WorkerPool, bus, mdc, exClient, gate, liqMonitor, icfg, log)
	queue := signalqueue.New(cfg.SignalQueue, bus, log)
	validator := risk.New(cfg.Risk)

	ledgerStore, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		log.Fatal().Err(err).Msg("ledger open failed")
	}
	defer ledgerStore.Close()

	posManager := position.New(cfg.Position, bus, exClient, nil, ledgerStore, log)
	execPool := executor.New(cfg.Executor, bus, tradingRM, exClient, validator, posManager, ledgerStore, log)
	posManager.SetReleaser(execPool)

	bot := orchestrator.New(cfg.Orchestrator, bus, mdc, pool, queue, validator, execPool, posManager, log)

	telegram := notify.New(cfg.TelegramToken, cfg.TelegramChatIDFile, log)
	telegram.SubscribeAll(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	push := notify.NewPush(ctx, cfg.FirebaseCredsFile, log)
	push.SubscribeAll(bus)

	status := statusserver.New(log)
	status.SubscribeAll(bus)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", status.HandleHealthz)
	mux.HandleFunc("/ws/status", status.HandleWebSocket)

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("status http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status http server stopped")
		}
	}()

	if telegram != nil {
		go telegram.StartCommandListener(
			func() string { return "engine running" },
			func() { cancel() },
			func() string { return "report unavailable" },
		)
	}

	if err := bot.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("orchestrator start failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	}

	cancel()
	bot.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("status http server shutdown error")
	}

	log.Info().Msg("trading engine stopped")
}
