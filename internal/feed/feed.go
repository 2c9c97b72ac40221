// Package feed subscribes to Hyperliquid's allMids websocket channel to
// feed the status snapshot's price history at a resolution finer than the
// tick cadence. It never drives trading decisions; the strategy's sync
// loop only ever reads market data via the signed REST client, which is
// what keeps the engine's behaviour deterministic and testable.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	mainnetWsURL = "wss://api.hyperliquid.xyz/ws"
	testnetWsURL = "wss://api.hyperliquid-testnet.xyz/ws"

	reconnectInterval = 3 * time.Second
	maxReconnects      = 20
	readDeadline       = 60 * time.Second
)

// PriceCallback receives each mid-price update observed on the feed.
type PriceCallback func(symbol string, mid decimal.Decimal, ts time.Time)

// Feed manages one long-lived websocket connection and re-subscribes on
// reconnect.
type Feed struct {
	url      string
	symbol   string
	logger   *zap.Logger
	dialer   *websocket.Dialer
	callback PriceCallback

	mu    sync.RWMutex
	conn  *websocket.Conn
	ready bool
}

// New builds a Feed for symbol against the mainnet or testnet websocket
// endpoint.
func New(symbol string, isMainnet bool, logger *zap.Logger, callback PriceCallback) *Feed {
	url := testnetWsURL
	if isMainnet {
		url = mainnetWsURL
	}
	return &Feed{
		url:      url,
		symbol:   symbol,
		logger:   logger,
		dialer:   websocket.DefaultDialer,
		callback: callback,
	}
}

// Run connects, subscribes to allMids, and processes messages until ctx
// is cancelled. After a disconnect it reconnects at once; a failed connect
// is retried every reconnectInterval, and Run gives up with an error after
// maxReconnects consecutive failures. It never returns an error for a
// clean cancellation.
func (f *Feed) Run(ctx context.Context) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := f.connectAndSubscribe(); err != nil {
			attempts++
			if attempts > maxReconnects {
				return fmt.Errorf("feed: exceeded max reconnect attempts: %w", err)
			}
			f.logger.Warn("feed connect failed, retrying", zap.Error(err), zap.Int("attempt", attempts))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reconnectInterval):
				continue
			}
		}
		attempts = 0
		f.readLoop(ctx)
	}
}

func (f *Feed) connectAndSubscribe() error {
	conn, _, err := f.dialer.Dial(f.url, nil)
	if err != nil {
		return fmt.Errorf("feed: dial: %w", err)
	}

	sub := map[string]any{
		"method": "subscribe",
		"subscription": map[string]any{
			"type": "allMids",
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("feed: subscribe: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.ready = true
	f.mu.Unlock()

	f.logger.Info("feed connected", zap.String("url", f.url))
	return nil
}

func (f *Feed) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			f.closeConn()
			return
		}
		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, data, err := conn.ReadMessage()
		if err != nil {
			f.logger.Warn("feed read error, reconnecting", zap.Error(err))
			f.closeConn()
			return
		}
		f.handleMessage(data)
	}
}

func (f *Feed) closeConn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.ready = false
}

type allMidsMessage struct {
	Channel string `json:"channel"`
	Data    struct {
		Mids map[string]string `json:"mids"`
	} `json:"data"`
}

func (f *Feed) handleMessage(data []byte) {
	var msg allMidsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Channel != "allMids" {
		return
	}
	raw, ok := msg.Data.Mids[f.symbol]
	if !ok {
		return
	}
	mid, err := decimal.NewFromString(raw)
	if err != nil {
		return
	}
	if f.callback != nil {
		f.callback(f.symbol, mid, time.Now())
	}
}
