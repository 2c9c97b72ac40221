package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// testPrivateKeyHex is a well-known Hardhat/Anvil throwaway dev key, used
// only to exercise signing and JSON encoding against a local test server.
const testPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestHyperliquid(t *testing.T, baseURL string) *Hyperliquid {
	t.Helper()
	h, err := NewHyperliquid(testPrivateKeyHex, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHyperliquid: %v", err)
	}
	h.baseURL = baseURL
	return h
}

// TestPlaceLimitOrderSendsRealActionBody guards against OrderedMap
// marshaling to "{}" in the JSON envelope: it captures the raw body the
// client POSTs to /exchange and asserts the action carries the real order
// fields, not an empty object.
func TestPlaceLimitOrderSendsRealActionBody(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","response":{"type":"order","data":{"statuses":[{"resting":{"oid":42}}]}}}`))
	}))
	defer srv.Close()

	h := newTestHyperliquid(t, srv.URL)

	oid, err := h.PlaceLimitOrder(context.Background(), "BTC", 0, "Buy", decimal.NewFromInt(50000), decimal.NewFromFloat(0.01))
	if err != nil {
		t.Fatalf("PlaceLimitOrder: %v", err)
	}
	if oid != 42 {
		t.Fatalf("expected order id 42, got %d", oid)
	}

	action, ok := captured["action"].(map[string]any)
	if !ok {
		t.Fatalf("action field missing or not an object: %#v", captured["action"])
	}
	if action["type"] != "order" {
		t.Fatalf("expected action.type=order, got %#v", action["type"])
	}
	orders, ok := action["orders"].([]any)
	if !ok || len(orders) != 1 {
		t.Fatalf("expected action.orders to be a one-element array, got %#v", action["orders"])
	}
	order, ok := orders[0].(map[string]any)
	if !ok {
		t.Fatalf("expected order element to be an object, got %#v", orders[0])
	}
	if order["p"] != "50000" {
		t.Fatalf("expected order price 50000, got %#v", order["p"])
	}
	if order["s"] != "0.01" {
		t.Fatalf("expected order size 0.01, got %#v", order["s"])
	}
	if order["b"] != true {
		t.Fatalf("expected buy side true, got %#v", order["b"])
	}
	tif, ok := order["t"].(map[string]any)
	if !ok {
		t.Fatalf("expected order.t to be an object, got %#v", order["t"])
	}
	limit, ok := tif["limit"].(map[string]any)
	if !ok || limit["tif"] != "Gtc" {
		t.Fatalf("expected order.t.limit.tif=Gtc, got %#v", tif["limit"])
	}

	assertNullEnvelopeFields(t, captured)
}

// assertNullEnvelopeFields checks the /exchange envelope carries explicit
// vaultAddress and expiresAfter nulls rather than omitting the keys.
func assertNullEnvelopeFields(t *testing.T, body map[string]any) {
	t.Helper()
	vaultAddress, ok := body["vaultAddress"]
	if !ok {
		t.Fatal("expected vaultAddress key present in envelope")
	}
	if vaultAddress != nil {
		t.Fatalf("expected vaultAddress to be null, got %#v", vaultAddress)
	}
	expiresAfter, ok := body["expiresAfter"]
	if !ok {
		t.Fatal("expected expiresAfter key present in envelope")
	}
	if expiresAfter != nil {
		t.Fatalf("expected expiresAfter to be null, got %#v", expiresAfter)
	}
}

func TestCancelOrderSendsRealActionBody(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","response":{"type":"cancel","data":{"statuses":["success"]}}}`))
	}))
	defer srv.Close()

	h := newTestHyperliquid(t, srv.URL)

	ok, err := h.CancelOrder(context.Background(), 3, 7)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if !ok {
		t.Fatal("expected cancel to report success")
	}

	action, isMap := captured["action"].(map[string]any)
	if !isMap {
		t.Fatalf("action field missing or not an object: %#v", captured["action"])
	}
	if action["type"] != "cancel" {
		t.Fatalf("expected action.type=cancel, got %#v", action["type"])
	}
	cancels, isSlice := action["cancels"].([]any)
	if !isSlice || len(cancels) != 1 {
		t.Fatalf("expected action.cancels to be a one-element array, got %#v", action["cancels"])
	}
	cancel, isMap := cancels[0].(map[string]any)
	if !isMap {
		t.Fatalf("expected cancel element to be an object, got %#v", cancels[0])
	}
	if int64(cancel["o"].(float64)) != 7 {
		t.Fatalf("expected cancel.o=7, got %#v", cancel["o"])
	}
	if int64(cancel["a"].(float64)) != 3 {
		t.Fatalf("expected cancel.a=3, got %#v", cancel["a"])
	}

	assertNullEnvelopeFields(t, captured)
}
