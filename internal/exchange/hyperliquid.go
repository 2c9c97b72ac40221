package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/errs"
	"gridbot/internal/grid"
	"gridbot/internal/signer"
)

const (
	mainnetBaseURL = "https://api.hyperliquid.xyz"
	testnetBaseURL = "https://api.hyperliquid-testnet.xyz"
)

// RateLimiter is a simple token-bucket limiter guarding outbound REST
// calls against the exchange's per-IP rate limit.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiter builds a limiter that refills to rps tokens per second.
func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{
		tokens:     rps,
		maxTokens:  rps,
		refillRate: time.Second / time.Duration(rps),
		lastRefill: time.Now(),
	}
}

// Allow reports whether a call may proceed now, consuming a token if so.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	if add := int(elapsed / rl.refillRate); add > 0 {
		rl.tokens = minInt(rl.maxTokens, rl.tokens+add)
		rl.lastRefill = now
	}
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Hyperliquid is the signed REST implementation of Client.
type Hyperliquid struct {
	baseURL    string
	httpClient *http.Client
	signer     *signer.Signer
	rateLimit  *RateLimiter
	logger     *zap.Logger

	assetIndexMu sync.RWMutex
	assetIndex   map[string]int
}

// HyperliquidOption configures a Hyperliquid client at construction.
type HyperliquidOption func(*Hyperliquid)

// WithRateLimitRPS overrides the default outbound request rate.
func WithRateLimitRPS(rps int) HyperliquidOption {
	return func(h *Hyperliquid) { h.rateLimit = NewRateLimiter(rps) }
}

// NewHyperliquid builds a client signing with the given private key.
func NewHyperliquid(privateKeyHex string, isMainnet bool, logger *zap.Logger, opts ...HyperliquidOption) (*Hyperliquid, error) {
	s, err := signer.New(privateKeyHex, isMainnet)
	if err != nil {
		return nil, errs.New(errs.KindConfigInvalid, "NewHyperliquid", err)
	}
	baseURL := testnetBaseURL
	if isMainnet {
		baseURL = mainnetBaseURL
	}
	h := &Hyperliquid{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		signer:     s,
		rateLimit:  NewRateLimiter(100),
		logger:     logger,
		assetIndex: make(map[string]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Hyperliquid) postJSON(ctx context.Context, path string, payload any, out any) error {
	if !h.rateLimit.Allow() {
		return errs.New(errs.KindTransport, "postJSON", fmt.Errorf("rate limit exceeded"))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.New(errs.KindParse, "postJSON.marshal", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errs.New(errs.KindTransport, "postJSON.newRequest", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errs.New(errs.KindCancelled, "postJSON.do", ctx.Err())
		}
		return errs.New(errs.KindTransport, "postJSON.do", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New(errs.KindTransport, "postJSON.read", err)
	}
	if resp.StatusCode != http.StatusOK {
		kind := errs.KindRejected
		if resp.StatusCode >= 500 {
			kind = errs.KindTransport
		}
		return errs.New(kind, "postJSON", fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errs.New(errs.KindParse, "postJSON.unmarshal", fmt.Errorf("%w (body=%s)", err, string(respBody)))
	}
	return nil
}

// GetMarketData fetches the current mid/bid/ask for symbol via l2Book.
func (h *Hyperliquid) GetMarketData(ctx context.Context, symbol string) (MarketData, error) {
	var book struct {
		Levels [][]struct {
			Px string `json:"px"`
			Sz string `json:"sz"`
		} `json:"levels"`
	}
	if err := h.postJSON(ctx, "/info", map[string]any{"type": "l2Book", "coin": symbol}, &book); err != nil {
		return MarketData{}, err
	}
	if len(book.Levels) != 2 || len(book.Levels[0]) == 0 || len(book.Levels[1]) == 0 {
		return MarketData{}, errs.New(errs.KindParse, "GetMarketData", fmt.Errorf("malformed l2Book response for %s", symbol))
	}
	bid, err := decimal.NewFromString(book.Levels[0][0].Px)
	if err != nil {
		return MarketData{}, errs.New(errs.KindParse, "GetMarketData.bid", err)
	}
	ask, err := decimal.NewFromString(book.Levels[1][0].Px)
	if err != nil {
		return MarketData{}, errs.New(errs.KindParse, "GetMarketData.ask", err)
	}
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	return MarketData{
		Symbol:    symbol,
		MidPrice:  mid,
		BidPrice:  bid,
		AskPrice:  ask,
		Timestamp: time.Now(),
	}, nil
}

// GetAccountState fetches perps clearinghouse state for the signer's own
// address.
func (h *Hyperliquid) GetAccountState(ctx context.Context) (AccountState, error) {
	var state struct {
		MarginSummary struct {
			AccountValue string `json:"accountValue"`
			TotalMarginUsed string `json:"totalMarginUsed"`
		} `json:"marginSummary"`
		Withdrawable string `json:"withdrawable"`
		AssetPositions []struct {
			Position struct {
				Coin           string `json:"coin"`
				Szi            string `json:"szi"`
				EntryPx        string `json:"entryPx"`
				UnrealizedPnl  string `json:"unrealizedPnl"`
			} `json:"position"`
		} `json:"assetPositions"`
	}
	payload := map[string]any{"type": "clearinghouseState", "user": h.signer.Address().Hex()}
	if err := h.postJSON(ctx, "/info", payload, &state); err != nil {
		return AccountState{}, err
	}

	equity, err := decimal.NewFromString(zeroIfEmpty(state.MarginSummary.AccountValue))
	if err != nil {
		return AccountState{}, errs.New(errs.KindParse, "GetAccountState.equity", err)
	}
	marginUsed, err := decimal.NewFromString(zeroIfEmpty(state.MarginSummary.TotalMarginUsed))
	if err != nil {
		return AccountState{}, errs.New(errs.KindParse, "GetAccountState.marginUsed", err)
	}
	withdrawable, err := decimal.NewFromString(zeroIfEmpty(state.Withdrawable))
	if err != nil {
		return AccountState{}, errs.New(errs.KindParse, "GetAccountState.withdrawable", err)
	}

	positions := make([]Position, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		size, err := decimal.NewFromString(zeroIfEmpty(ap.Position.Szi))
		if err != nil {
			continue
		}
		if size.IsZero() {
			continue
		}
		entry, _ := decimal.NewFromString(zeroIfEmpty(ap.Position.EntryPx))
		upnl, _ := decimal.NewFromString(zeroIfEmpty(ap.Position.UnrealizedPnl))
		positions = append(positions, Position{
			Symbol:        ap.Position.Coin,
			Size:          size,
			EntryPrice:    entry,
			UnrealizedPnl: upnl,
		})
	}

	return AccountState{
		TotalEquity:      equity,
		AvailableBalance: withdrawable,
		MarginUsed:       marginUsed,
		Positions:        positions,
	}, nil
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// GetOpenOrders fetches the signer's resting orders across all assets.
func (h *Hyperliquid) GetOpenOrders(ctx context.Context) ([]Order, error) {
	var raw []struct {
		Coin    string `json:"coin"`
		Oid     int64  `json:"oid"`
		Side    string `json:"side"`
		LimitPx string `json:"limitPx"`
		Sz      string `json:"sz"`
		OrigSz  string `json:"origSz"`
		Timestamp int64 `json:"timestamp"`
	}
	payload := map[string]any{"type": "openOrders", "user": h.signer.Address().Hex()}
	if err := h.postJSON(ctx, "/info", payload, &raw); err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(raw))
	for _, o := range raw {
		side := grid.Buy
		if o.Side == "A" {
			side = grid.Sell
		}
		price, err := decimal.NewFromString(o.LimitPx)
		if err != nil {
			continue
		}
		remaining, err := decimal.NewFromString(o.Sz)
		if err != nil {
			continue
		}
		total, err := decimal.NewFromString(o.OrigSz)
		if err != nil {
			total = remaining
		}
		filled := total.Sub(remaining)
		orders = append(orders, Order{
			ID:         o.Oid,
			Symbol:     o.Coin,
			Side:       side,
			Price:      price,
			Size:       total,
			FilledSize: filled,
			Status:     OrderOpen,
			CreatedAt:  time.UnixMilli(o.Timestamp),
		})
	}
	return orders, nil
}

// GetAssetIndex resolves a coin symbol to its perp asset index, caching
// the result from the universe returned by the meta endpoint.
func (h *Hyperliquid) GetAssetIndex(ctx context.Context, symbol string) (int, error) {
	h.assetIndexMu.RLock()
	if idx, ok := h.assetIndex[symbol]; ok {
		h.assetIndexMu.RUnlock()
		return idx, nil
	}
	h.assetIndexMu.RUnlock()

	var meta struct {
		Universe []struct {
			Name string `json:"name"`
		} `json:"universe"`
	}
	if err := h.postJSON(ctx, "/info", map[string]any{"type": "meta"}, &meta); err != nil {
		return 0, err
	}

	h.assetIndexMu.Lock()
	defer h.assetIndexMu.Unlock()
	for i, asset := range meta.Universe {
		h.assetIndex[asset.Name] = i
	}
	idx, ok := h.assetIndex[symbol]
	if !ok {
		return 0, errs.New(errs.KindParse, "GetAssetIndex", fmt.Errorf("unknown symbol %q in universe", symbol))
	}
	return idx, nil
}

// PlaceLimitOrder signs and submits a GTC limit order, returning the
// exchange-assigned order ID.
func (h *Hyperliquid) PlaceLimitOrder(ctx context.Context, symbol string, assetIndex int, side grid.Side, price, size decimal.Decimal) (int64, error) {
	isBuy := side == grid.Buy
	order := signer.NewOrderedMap(
		signer.KV{Key: "a", Value: assetIndex},
		signer.KV{Key: "b", Value: isBuy},
		signer.KV{Key: "p", Value: signer.FormatWireDecimal(price)},
		signer.KV{Key: "s", Value: signer.FormatWireDecimal(size)},
		signer.KV{Key: "r", Value: false},
		signer.KV{Key: "t", Value: signer.NewOrderedMap(
			signer.KV{Key: "limit", Value: signer.NewOrderedMap(
				signer.KV{Key: "tif", Value: "Gtc"},
			)},
		)},
	)
	action := signer.NewOrderedMap(
		signer.KV{Key: "type", Value: "order"},
		signer.KV{Key: "orders", Value: []any{order}},
		signer.KV{Key: "grouping", Value: "na"},
	)

	nonce := time.Now().UnixMilli()
	sig, err := h.signer.SignL1Action(action, nonce, nil)
	if err != nil {
		return 0, errs.New(errs.KindRejected, "PlaceLimitOrder.sign", err)
	}

	req := exchangeRequest{
		Action:       actionJSON(action),
		Nonce:        nonce,
		Signature:    sig,
		VaultAddress: nil,
		ExpiresAfter: nil,
	}

	var resp orderResponse
	if err := h.postJSON(ctx, "/exchange", req, &resp); err != nil {
		return 0, err
	}
	return resp.orderID()
}

// CancelOrder signs and submits a cancel for a single resting order.
func (h *Hyperliquid) CancelOrder(ctx context.Context, assetIndex int, orderID int64) (bool, error) {
	action := signer.NewOrderedMap(
		signer.KV{Key: "type", Value: "cancel"},
		signer.KV{Key: "cancels", Value: []any{
			signer.NewOrderedMap(
				signer.KV{Key: "a", Value: assetIndex},
				signer.KV{Key: "o", Value: orderID},
			),
		}},
	)

	nonce := time.Now().UnixMilli()
	sig, err := h.signer.SignL1Action(action, nonce, nil)
	if err != nil {
		return false, errs.New(errs.KindRejected, "CancelOrder.sign", err)
	}

	req := exchangeRequest{Action: actionJSON(action), Nonce: nonce, Signature: sig, VaultAddress: nil, ExpiresAfter: nil}
	var resp cancelResponse
	if err := h.postJSON(ctx, "/exchange", req, &resp); err != nil {
		return false, err
	}
	return resp.ok(), nil
}

// CancelAllOrders cancels every resting order GetOpenOrders returns,
// submitting each cancel under assetIndex, and tolerates individual cancel
// failures (the order may already be filled or gone). Orders are not
// filtered by coin.
func (h *Hyperliquid) CancelAllOrders(ctx context.Context, assetIndex int) (int, error) {
	orders, err := h.GetOpenOrders(ctx)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, o := range orders {
		ok, err := h.CancelOrder(ctx, assetIndex, o.ID)
		if err != nil {
			h.logger.Warn("cancel failed during cancel-all", zap.Int64("orderID", o.ID), zap.Error(err))
			continue
		}
		if ok {
			cancelled++
		}
	}
	return cancelled, nil
}

// GetSpotUsdcBalance fetches the signer's spot USDC balance.
func (h *Hyperliquid) GetSpotUsdcBalance(ctx context.Context) (decimal.Decimal, error) {
	var state struct {
		Balances []struct {
			Coin  string `json:"coin"`
			Total string `json:"total"`
		} `json:"balances"`
	}
	payload := map[string]any{"type": "spotClearinghouseState", "user": h.signer.Address().Hex()}
	if err := h.postJSON(ctx, "/info", payload, &state); err != nil {
		return decimal.Zero, err
	}
	for _, b := range state.Balances {
		if b.Coin == "USDC" {
			return decimal.NewFromString(b.Total)
		}
	}
	return decimal.Zero, nil
}

// TransferSpotToPerps moves USDC from the spot wallet into the perps
// margin wallet via a Scheme-B signed usdClassTransfer.
func (h *Hyperliquid) TransferSpotToPerps(ctx context.Context, amount decimal.Decimal) error {
	nonce := time.Now().UnixMilli()
	dest := h.signer.Address().Hex()
	amountStr := signer.FormatWireDecimal(amount)

	sig, err := h.signer.SignUsdClassTransfer(dest, amountStr, nonce)
	if err != nil {
		return errs.New(errs.KindRejected, "TransferSpotToPerps.sign", err)
	}

	sigChainID := "0x66eee" // 421614, Arbitrum testnet
	if hlChainName(h) == "Mainnet" {
		sigChainID = "0xa4b1" // 42161, Arbitrum mainnet
	}

	action := map[string]any{
		"type":             "usdClassTransfer",
		"hyperliquidChain": hlChainName(h),
		"signatureChainId": sigChainID,
		"amount":           amountStr,
		"toPerp":           true,
		"nonce":            nonce,
	}

	req := exchangeRequest{Action: action, Nonce: nonce, Signature: sig, VaultAddress: nil, ExpiresAfter: nil}
	return h.postJSON(ctx, "/exchange", req, nil)
}

func hlChainName(h *Hyperliquid) string {
	if h.baseURL == mainnetBaseURL {
		return "Mainnet"
	}
	return "Testnet"
}

// exchangeRequest is the /exchange envelope. vaultAddress and expiresAfter
// are always sent as explicit null: this client never trades on behalf of
// a vault and never sets an order expiry, but the exchange's signature
// verification covers the whole envelope shape, so the fields must be
// present even when unused.
type exchangeRequest struct {
	Action       any              `json:"action"`
	Nonce        int64            `json:"nonce"`
	Signature    signer.Signature `json:"signature"`
	VaultAddress *string          `json:"vaultAddress"`
	ExpiresAfter *int64           `json:"expiresAfter"`
}

// actionJSON renders an OrderedMap action for the JSON envelope. Field
// order doesn't matter here, only the MsgPack bytes used for signing are
// order-sensitive.
func actionJSON(action *signer.OrderedMap) any {
	return action
}

type orderResponse struct {
	Status   string `json:"status"`
	Response struct {
		Type string `json:"type"`
		Data struct {
			Statuses []struct {
				Resting *struct {
					Oid int64 `json:"oid"`
				} `json:"resting"`
				Filled *struct {
					Oid int64 `json:"oid"`
				} `json:"filled"`
				Error string `json:"error"`
			} `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

func (r orderResponse) orderID() (int64, error) {
	if r.Status != "ok" || len(r.Response.Data.Statuses) == 0 {
		return 0, errs.New(errs.KindRejected, "orderID", fmt.Errorf("unexpected order response status %q", r.Status))
	}
	st := r.Response.Data.Statuses[0]
	if st.Error != "" {
		return 0, errs.New(errs.KindRejected, "orderID", fmt.Errorf("%s", st.Error))
	}
	if st.Resting != nil {
		return st.Resting.Oid, nil
	}
	if st.Filled != nil {
		return st.Filled.Oid, nil
	}
	return 0, errs.New(errs.KindRejected, "orderID", fmt.Errorf("order response had neither resting nor filled status"))
}

type cancelResponse struct {
	Status   string `json:"status"`
	Response struct {
		Data struct {
			Statuses []string `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

func (r cancelResponse) ok() bool {
	if r.Status != "ok" {
		return false
	}
	for _, s := range r.Response.Data.Statuses {
		if s == "success" {
			return true
		}
	}
	return false
}
