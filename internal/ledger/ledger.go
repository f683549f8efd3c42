// Package ledger provides a modernc.org/sqlite backed trade ledger
// implementing the §6 trade schema; it satisfies the narrow Ledger
// interfaces declared by the executor and position packages. Concrete tables and the
// store-a-row-then-update-on-close pattern are new (the teacher has no
// persistence layer at all); the JSON-blob-for-opaque-fields idiom used for
// the indicators column follows the same shape the requestmanager cache key
// uses for marshaling arbitrary args.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shopspring/decimal"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id TEXT NOT NULL UNIQUE,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	position_side TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	executed_qty TEXT NOT NULL DEFAULT '0',
	avg_price TEXT NOT NULL DEFAULT '0',
	stop_price TEXT,
	take_profit_price TEXT,
	stop_loss_price TEXT,
	commission TEXT NOT NULL DEFAULT '0',
	commission_asset TEXT,
	realized_pnl TEXT NOT NULL DEFAULT '0',
	signal_strength INTEGER,
	signal_reason TEXT,
	indicators TEXT,
	executed_at DATETIME,
	closed_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades(created_at);
`

// Ledger is the concrete sqlite trade ledger adapter.
type Ledger struct {
	db *sql.DB
}

// Open creates/migrates the sqlite file at path and returns a ready Ledger.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordOpen inserts a NEW trade row for a freshly placed order.
func (l *Ledger) RecordOpen(ctx context.Context, pos domain.ManagedPosition, indicators map[string]any) error {
	indicatorsJSON, err := json.Marshal(indicators)
	if err != nil {
		indicatorsJSON = []byte("{}")
	}

	side := "BUY"
	if pos.Side == domain.PositionShort {
		side = "SELL"
	}

	now := time.Now()
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO trades (
			order_id, symbol, side, position_side, type, status,
			quantity, price, executed_qty, avg_price,
			stop_loss_price, take_profit_price,
			indicators, executed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.OrderID, string(pos.Symbol), side, string(pos.Side), "MARKET", "NEW",
		pos.Quantity.String(), pos.EntryPrice.String(), pos.Quantity.String(), pos.EntryPrice.String(),
		pos.StopLossPrice.String(), pos.TakeProfitPrice.String(),
		string(indicatorsJSON), now, now, now,
	)
	if err != nil {
		return fmt.Errorf("recording trade open for order %s: %w", pos.OrderID, err)
	}
	return nil
}

// RecordClose updates the row for symbol's most recent open trade with the
// realized PnL and terminal status on close.
func (l *Ledger) RecordClose(ctx context.Context, symbol domain.Symbol, closedAt time.Time, realizedPnl decimal.Decimal, status string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE trades SET status = ?, realized_pnl = ?, closed_at = ?, updated_at = ?
		WHERE symbol = ? AND status = 'NEW'
		ORDER BY created_at DESC LIMIT 1`,
		status, realizedPnl.String(), closedAt, time.Now(), string(symbol),
	)
	if err != nil {
		return fmt.Errorf("recording trade close for %s: %w", symbol, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no open trade row found for %s: %w", symbol, domain.ErrNotFound)
	}
	return nil
}

// RecordRejection is a best-effort audit row for a REJECTED trade that never
// reached order placement (no orderId yet, so a synthetic one is assigned).
func (l *Ledger) RecordRejection(ctx context.Context, symbol domain.Symbol, side domain.Side, reason string) error {
	now := time.Now()
	syntheticID := fmt.Sprintf("rejected-%s-%d", symbol, now.UnixNano())
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO trades (
			order_id, symbol, side, position_side, type, status,
			quantity, price, signal_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		syntheticID, string(symbol), string(side), "", "MARKET", "REJECTED",
		"0", "0", reason, now, now,
	)
	if err != nil {
		return fmt.Errorf("recording rejection for %s: %w", symbol, err)
	}
	return nil
}
