// Package feed streams live mark prices from the Binance futures websocket
// into the price cache, so monitor ticks read recent marks without hitting
// the REST API for every position.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/botfolio/riskengine/internal/domain"
)

const (
	mainnetStreamURL = "wss://fstream.binance.com/stream"
	testnetStreamURL = "wss://stream.binancefuture.com/stream"

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// markPriceEvent is one "<symbol>@markPrice" stream payload.
type markPriceEvent struct {
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
	EventTime int64  `json:"E"`
}

// streamEnvelope wraps events on combined streams.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Config selects the endpoint and the symbols to stream.
type Config struct {
	Testnet bool
	Symbols []string
}

// Feed maintains one websocket subscription to the combined mark-price
// streams of the configured symbols and writes every update through the
// price cache.
type Feed struct {
	url    string
	prices domain.PriceCache
	logger *slog.Logger
}

// New creates a Feed for the given symbols.
func New(cfg Config, prices domain.PriceCache, logger *slog.Logger) *Feed {
	base := mainnetStreamURL
	if cfg.Testnet {
		base = testnetStreamURL
	}

	streams := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		streams = append(streams, strings.ToLower(s)+"@markPrice@1s")
	}

	return &Feed{
		url:    base + "?streams=" + strings.Join(streams, "/"),
		prices: prices,
		logger: logger.With(slog.String("component", "feed")),
	}
}

// Run connects and pumps updates into the cache until ctx is cancelled,
// reconnecting with exponential backoff on any connection failure.
func (f *Feed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		err := f.runOnce(ctx)
		if ctx.Err() != nil {
			f.logger.InfoContext(ctx, "feed stopped")
			return ctx.Err()
		}

		f.logger.WarnContext(ctx, "feed disconnected, reconnecting",
			slog.Any("error", err),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runOnce holds one connection open until it fails or ctx is cancelled.
func (f *Feed) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	f.logger.InfoContext(ctx, "feed connected", slog.String("url", f.url))

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Close the connection when ctx ends so the blocked read returns.
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = conn.Close()
	}()

	go f.pingLoop(ctx, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(ctx, raw)
	}
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one stream payload and writes it through the cache.
// Unparseable messages are dropped.
func (f *Feed) handleMessage(ctx context.Context, raw []byte) {
	var envelope streamEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Data) == 0 {
		return
	}

	var event markPriceEvent
	if err := json.Unmarshal(envelope.Data, &event); err != nil || event.Symbol == "" {
		return
	}

	price, err := strconv.ParseFloat(event.MarkPrice, 64)
	if err != nil || price <= 0 {
		return
	}

	ts := time.UnixMilli(event.EventTime)
	if event.EventTime == 0 {
		ts = time.Now()
	}

	if err := f.prices.SetPrice(ctx, event.Symbol, price, ts); err != nil {
		f.logger.WarnContext(ctx, "price cache write failed",
			slog.String("symbol", event.Symbol),
			slog.Any("error", err),
		)
	}
}
