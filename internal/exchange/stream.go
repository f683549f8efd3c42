package exchange

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

// gzipMagic is the two leading bytes of a gzip member (spec §6).
var gzipMagic = []byte{0x1F, 0x8B}

// TickerFrame is the normalized payload MarketDataCache applies to its
// cache on every streamed update, built from the flexible short-key field
// names the exchange's streaming protocol actually uses.
type TickerFrame struct {
	Symbol        domain.Symbol
	LastPrice     string
	PriceChange   string
	ChangePercent string
	Volume        string
	QuoteVolume   string
	BidPrice      string
	AskPrice      string
	OpenPrice     string
	HighPrice     string
	LowPrice      string
}

// StreamHandler is invoked for every decoded ticker frame.
type StreamHandler func(TickerFrame)

// TickerStream manages one persistent per-symbol WebSocket subscription,
// reconnecting with exponential backoff on failure. Grounded on main.go's
// BinanceFutures.Start dialing pattern, extended with the gzip-detection
// requirement spec §6 adds on top of it.
type TickerStream struct {
	baseURL string
	symbol  domain.Symbol
	log     zerolog.Logger
	onFrame StreamHandler
}

// NewTickerStream builds a stream for symbol against baseURL (e.g.
// "wss://fstream.example.com").
func NewTickerStream(baseURL string, symbol domain.Symbol, log zerolog.Logger, onFrame StreamHandler) *TickerStream {
	return &TickerStream{
		baseURL: baseURL,
		symbol:  symbol,
		log:     log.With().Str("component", "exchange.stream").Str("symbol", string(symbol)).Logger(),
		onFrame: onFrame,
	}
}

// Run dials, subscribes, and reads frames until ctx is cancelled,
// reconnecting on any read/dial error with backoff.
func (s *TickerStream) Run(ctx context.Context) {
	b := &backoff.Backoff{Min: 2 * time.Second, Max: 5 * time.Second, Factor: 1.5, Jitter: true}

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.connectAndRead(ctx); err != nil {
			delay := b.Duration()
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("stream disconnected, reconnecting")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		b.Reset()
	}
}

func (s *TickerStream) connectAndRead(ctx context.Context) error {
	u := fmt.Sprintf("%s/market?symbol=%s", s.baseURL, url.QueryEscape(string(s.symbol)))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{
		"id":      time.Now().UnixNano(),
		"reqType": "sub",
		"dataType": fmt.Sprintf("%s@ticker", s.symbol),
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		payload, err := maybeInflate(raw)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to inflate frame")
			continue
		}

		frame, err := decodeTickerFrame(s.symbol, payload)
		if err != nil {
			s.log.Debug().Err(err).Msg("non-ticker or malformed frame, skipping")
			continue
		}
		s.onFrame(frame)
	}
}

// maybeInflate detects the gzip magic bytes and inflates if present,
// otherwise returns raw unchanged.
func maybeInflate(raw []byte) ([]byte, error) {
	if len(raw) < 2 || raw[0] != gzipMagic[0] || raw[1] != gzipMagic[1] {
		return raw, nil
	}

	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip inflate: %w", err)
	}
	return out, nil
}

func decodeTickerFrame(symbol domain.Symbol, payload []byte) (TickerFrame, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return TickerFrame{}, err
	}

	f := TickerFrame{Symbol: symbol}
	f.LastPrice = firstString(m, "c", "lastPrice")
	f.PriceChange = firstString(m, "P", "priceChange")
	f.ChangePercent = firstString(m, "p", "priceChangePercent")
	f.Volume = firstString(m, "v", "volume")
	f.QuoteVolume = firstString(m, "q", "quoteVolume")
	f.BidPrice = firstString(m, "b", "bidPrice")
	f.AskPrice = firstString(m, "a", "askPrice")
	f.OpenPrice = firstString(m, "o", "openPrice")
	f.HighPrice = firstString(m, "h", "highPrice")
	f.LowPrice = firstString(m, "l", "lowPrice")

	if f.LastPrice == "" {
		return TickerFrame{}, fmt.Errorf("no price field in frame")
	}
	return f, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case string:
				return t
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64)
			}
		}
	}
	return ""
}
