// Package notify adapts notification_service.go's Telegram bot into a
// nil-safe, event-bus-driven collaborator: it subscribes to the high-signal
// lifecycle events and exposes a StartCommandListener loop for status/stop/
// report commands, persisting the chat ID the same way (a small on-disk
// file) rather than requiring it as a fixed config value.
package notify

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/sentineltrade/futuresbot/internal/events"
)

// Telegram is the concrete optional notifier. A nil *Telegram is valid and
// every method on it is a no-op, matching the source material's nil-safety
// idiom for optional collaborators.
type Telegram struct {
	bot        *tgbotapi.BotAPI
	log        zerolog.Logger
	chatIDFile string
	mu         sync.Mutex
	chatID     int64
}

// New builds a Telegram notifier, or returns nil (not an error) if no token
// is configured, so callers can publish to it unconditionally.
func New(token, chatIDFile string, log zerolog.Logger) *Telegram {
	if token == "" {
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Warn().Err(err).Msg("telegram bot init failed, notifications disabled")
		return nil
	}

	t := &Telegram{
		bot:        bot,
		log:        log.With().Str("component", "notify").Logger(),
		chatIDFile: chatIDFile,
	}
	t.chatID = t.loadChatID()
	return t
}

func (t *Telegram) loadChatID() int64 {
	data, err := os.ReadFile(t.chatIDFile)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (t *Telegram) saveChatID(id int64) {
	if err := os.WriteFile(t.chatIDFile, []byte(strconv.FormatInt(id, 10)), 0o644); err != nil {
		t.log.Warn().Err(err).Msg("failed to persist chat id")
	}
}

// SubscribeAll wires every high-priority lifecycle event to a Telegram
// message. Safe to call on a nil *Telegram (no-op).
func (t *Telegram) SubscribeAll(bus *events.Bus) {
	if t == nil {
		return
	}
	events.Subscribe(bus, func(e events.TradeExecutedEvent) {
		t.Notify(fmt.Sprintf("✅ *TRADE EXECUTED*\n%s %s qty=%s entry=%s sl=%s tp=%s",
			e.Position.Symbol, e.Position.Side, e.Position.Quantity, e.Position.EntryPrice,
			e.Position.StopLossPrice, e.Position.TakeProfitPrice))
	})
	events.Subscribe(bus, func(e events.TradeRejectedEvent) {
		t.Notify(fmt.Sprintf("⚠️ *TRADE REJECTED*\n%s: %s", e.Code, e.Message))
	})
	events.Subscribe(bus, func(e events.PositionRemovedEvent) {
		t.Notify(fmt.Sprintf("📉 *POSITION CLOSED*\n%s reason=%s pnl=%s",
			e.Position.Symbol, e.Reason, e.Position.UnrealizedPnl))
	})
	events.Subscribe(bus, func(e events.CircuitBreakerOpenedEvent) {
		t.Notify(fmt.Sprintf("🛑 *CIRCUIT BREAKER OPEN*\nconsecutive errors=%d, resuming at %s",
			e.ConsecutiveErrors, e.ResumeAt.Format("15:04:05")))
	})
	events.Subscribe(bus, func(e events.EmergencyStopEvent) {
		t.Notify(fmt.Sprintf("🚨 *EMERGENCY STOP*\n%s: %s", e.Symbol, e.Reason))
	})
}

// Notify sends a fire-and-forget message. No-op if unconfigured or the chat
// ID hasn't been captured yet.
func (t *Telegram) Notify(msg string) {
	if t == nil || t.bot == nil {
		return
	}
	t.mu.Lock()
	chatID := t.chatID
	t.mu.Unlock()
	if chatID == 0 {
		return
	}

	go func() {
		cfg := tgbotapi.NewMessage(chatID, msg)
		cfg.ParseMode = "Markdown"
		if _, err := t.bot.Send(cfg); err != nil {
			t.log.Warn().Err(err).Msg("telegram send failed")
		}
	}()
}

// StartCommandListener polls Telegram updates and dispatches /status,
// /stop, and /report commands. Blocks until the bot's update channel
// closes; run it in its own goroutine.
func (t *Telegram) StartCommandListener(statusFn func() string, stopFn func(), reportFn func() string) {
	if t == nil {
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		t.mu.Lock()
		if t.chatID == 0 {
			t.chatID = update.Message.Chat.ID
			t.saveChatID(t.chatID)
			t.mu.Unlock()
			t.Notify("🔔 Bot connected. Notifications enabled.")
		} else {
			t.mu.Unlock()
		}

		if !update.Message.IsCommand() {
			continue
		}

		switch update.Message.Command() {
		case "status":
			if statusFn != nil {
				t.Notify(statusFn())
			}
		case "stop":
			t.Notify("🛑 *EMERGENCY STOP REQUESTED*")
			if stopFn != nil {
				stopFn()
			}
		case "report":
			if reportFn != nil {
				t.Notify(reportFn())
			}
		}
	}
}
