package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HYPERLIQUID_PRIVATE_KEY", "HYPERLIQUID_WALLET_ADDRESS", "HYPERLIQUID_MAINNET",
		"TRADING_SYMBOL", "GRID_LEVELS", "GRID_SPACING_PERCENT", "ORDER_SIZE_BTC",
		"SYNC_INTERVAL_SECONDS", "MAX_POSITION_SIZE_BTC", "MAX_DRAWDOWN_PERCENT",
		"MIN_GRID_PRICE", "MAX_GRID_PRICE", "STATUS_ADDR",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadFailsFastWithoutPrivateKey(t *testing.T) {
	clearEnv(t)
	if _, err := Load(""); err == nil {
		t.Fatal("expected ConfigInvalid error for missing private key")
	}
}

func TestLoadSucceedsWithRequiredEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("HYPERLIQUID_PRIVATE_KEY", "0xabc123")
	defer clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PrivateKeyHex != "0xabc123" {
		t.Fatalf("expected private key to be set, got %q", cfg.PrivateKeyHex)
	}
	if cfg.GridLevels < 4 {
		t.Fatalf("expected default GridLevels >= 4, got %d", cfg.GridLevels)
	}
}

func TestLoadRejectsInvalidGridLevels(t *testing.T) {
	clearEnv(t)
	os.Setenv("HYPERLIQUID_PRIVATE_KEY", "0xabc123")
	os.Setenv("GRID_LEVELS", "2")
	defer clearEnv(t)

	if _, err := Load(""); err == nil {
		t.Fatal("expected ConfigInvalid error for GridLevels < 4")
	}
}

func TestLoadTrimsQuotedPrivateKey(t *testing.T) {
	clearEnv(t)
	os.Setenv("HYPERLIQUID_PRIVATE_KEY", "\"0xabc123\"")
	defer clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PrivateKeyHex != "0xabc123" {
		t.Fatalf("expected trimmed private key, got %q", cfg.PrivateKeyHex)
	}
}
