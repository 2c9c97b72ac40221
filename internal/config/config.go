// Package config loads the grid engine's configuration from environment
// variables, optionally overlaid on a TOML file, and validates it
// fail-fast the way a misconfigured credential or threshold should be
// caught at startup rather than three ticks into live trading.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"gridbot/internal/errs"
)

// Config is the full recognised configuration surface.
type Config struct {
	PrivateKeyHex string
	WalletAddress string
	IsMainnet     bool

	Symbol             string
	AssetIndex         int
	GridLevels         int
	GridSpacingPercent decimal.Decimal
	OrderSizeBtc       decimal.Decimal
	SyncInterval       time.Duration

	MaxPositionSizeBtc decimal.Decimal
	MaxDrawdownPercent decimal.Decimal
	MinGridPrice       decimal.Decimal
	MaxGridPrice       decimal.Decimal

	StatusAddr string
}

// fileConfig mirrors Config's TOML-overridable fields. Env vars always
// win over the file.
type fileConfig struct {
	PrivateKeyHex string `toml:"private_key_hex"`
	WalletAddress string `toml:"wallet_address"`
	IsMainnet     bool   `toml:"is_mainnet"`

	Symbol             string  `toml:"symbol"`
	AssetIndex         int     `toml:"asset_index"`
	GridLevels         int     `toml:"grid_levels"`
	GridSpacingPercent float64 `toml:"grid_spacing_percent"`
	OrderSizeBtc       float64 `toml:"order_size_btc"`
	SyncIntervalSeconds int    `toml:"sync_interval_seconds"`

	MaxPositionSizeBtc float64 `toml:"max_position_size_btc"`
	MaxDrawdownPercent float64 `toml:"max_drawdown_percent"`
	MinGridPrice       float64 `toml:"min_grid_price"`
	MaxGridPrice       float64 `toml:"max_grid_price"`

	StatusAddr string `toml:"status_addr"`
}

// Default returns the conservative baseline every field starts from
// before the file and environment overlays apply.
func Default() Config {
	return Config{
		IsMainnet:          false,
		Symbol:             "BTC",
		GridLevels:         10,
		GridSpacingPercent: decimal.NewFromFloat(1.0),
		OrderSizeBtc:       decimal.NewFromFloat(0.001),
		SyncInterval:       5 * time.Second,
		MaxPositionSizeBtc: decimal.NewFromFloat(0.05),
		MaxDrawdownPercent: decimal.NewFromFloat(15),
		MinGridPrice:       decimal.NewFromInt(10000),
		MaxGridPrice:       decimal.NewFromInt(200000),
		StatusAddr:         ":8080",
	}
}

// Load builds a Config from an optional TOML file path and the process
// environment, env taking precedence over the file, and validates the
// result. Loading a .env file (if present) into the process environment
// happens first.
func Load(tomlPath string) (Config, error) {
	// A missing .env file is not fatal; deployed environments set real
	// env vars directly instead.
	_ = godotenv.Overload()

	cfg := Default()

	if tomlPath != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(tomlPath, &fc); err != nil {
			return Config{}, errs.New(errs.KindConfigInvalid, "Load.decodeFile", err)
		}
		applyFileConfig(&cfg, fc)
	}

	applyEnv(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, errs.New(errs.KindConfigInvalid, "Load.validate", err)
	}
	return cfg, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.PrivateKeyHex != "" {
		cfg.PrivateKeyHex = fc.PrivateKeyHex
	}
	if fc.WalletAddress != "" {
		cfg.WalletAddress = fc.WalletAddress
	}
	cfg.IsMainnet = fc.IsMainnet
	if fc.Symbol != "" {
		cfg.Symbol = fc.Symbol
	}
	if fc.AssetIndex != 0 {
		cfg.AssetIndex = fc.AssetIndex
	}
	if fc.GridLevels != 0 {
		cfg.GridLevels = fc.GridLevels
	}
	if fc.GridSpacingPercent != 0 {
		cfg.GridSpacingPercent = decimal.NewFromFloat(fc.GridSpacingPercent)
	}
	if fc.OrderSizeBtc != 0 {
		cfg.OrderSizeBtc = decimal.NewFromFloat(fc.OrderSizeBtc)
	}
	if fc.SyncIntervalSeconds != 0 {
		cfg.SyncInterval = time.Duration(fc.SyncIntervalSeconds) * time.Second
	}
	if fc.MaxPositionSizeBtc != 0 {
		cfg.MaxPositionSizeBtc = decimal.NewFromFloat(fc.MaxPositionSizeBtc)
	}
	if fc.MaxDrawdownPercent != 0 {
		cfg.MaxDrawdownPercent = decimal.NewFromFloat(fc.MaxDrawdownPercent)
	}
	if fc.MinGridPrice != 0 {
		cfg.MinGridPrice = decimal.NewFromFloat(fc.MinGridPrice)
	}
	if fc.MaxGridPrice != 0 {
		cfg.MaxGridPrice = decimal.NewFromFloat(fc.MaxGridPrice)
	}
	if fc.StatusAddr != "" {
		cfg.StatusAddr = fc.StatusAddr
	}
}

func applyEnv(cfg *Config) {
	if v := trimmedEnv("HYPERLIQUID_PRIVATE_KEY"); v != "" {
		cfg.PrivateKeyHex = v
	}
	if v := trimmedEnv("HYPERLIQUID_WALLET_ADDRESS"); v != "" {
		cfg.WalletAddress = v
	}
	if v := os.Getenv("HYPERLIQUID_MAINNET"); v != "" {
		cfg.IsMainnet = v == "true"
	}
	if v := os.Getenv("TRADING_SYMBOL"); v != "" {
		cfg.Symbol = v
	}
	if v := os.Getenv("GRID_LEVELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GridLevels = n
		}
	}
	if v := os.Getenv("GRID_SPACING_PERCENT"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.GridSpacingPercent = d
		}
	}
	if v := os.Getenv("ORDER_SIZE_BTC"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.OrderSizeBtc = d
		}
	}
	if v := os.Getenv("SYNC_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SyncInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("MAX_POSITION_SIZE_BTC"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.MaxPositionSizeBtc = d
		}
	}
	if v := os.Getenv("MAX_DRAWDOWN_PERCENT"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.MaxDrawdownPercent = d
		}
	}
	if v := os.Getenv("MIN_GRID_PRICE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.MinGridPrice = d
		}
	}
	if v := os.Getenv("MAX_GRID_PRICE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.MaxGridPrice = d
		}
	}
	if v := os.Getenv("STATUS_ADDR"); v != "" {
		cfg.StatusAddr = v
	}
}

func trimmedEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	v = strings.Trim(v, "\"")
	v = strings.Trim(v, "'")
	return v
}

func validate(cfg Config) error {
	switch {
	case cfg.PrivateKeyHex == "":
		return errs.New(errs.KindConfigInvalid, "validate", errMissing("HYPERLIQUID_PRIVATE_KEY"))
	case cfg.Symbol == "":
		return errs.New(errs.KindConfigInvalid, "validate", errMissing("TRADING_SYMBOL"))
	case cfg.GridLevels < 4:
		return errs.New(errs.KindConfigInvalid, "validate", errBound("GridLevels", ">= 4"))
	case cfg.GridSpacingPercent.Sign() <= 0:
		return errs.New(errs.KindConfigInvalid, "validate", errBound("GridSpacingPercent", "> 0"))
	case cfg.OrderSizeBtc.Sign() <= 0:
		return errs.New(errs.KindConfigInvalid, "validate", errBound("OrderSizeBtc", "> 0"))
	case cfg.SyncInterval <= 0:
		return errs.New(errs.KindConfigInvalid, "validate", errBound("SyncInterval", "> 0"))
	case cfg.MaxPositionSizeBtc.Sign() <= 0:
		return errs.New(errs.KindConfigInvalid, "validate", errBound("MaxPositionSizeBtc", "> 0"))
	case cfg.MaxDrawdownPercent.Sign() <= 0:
		return errs.New(errs.KindConfigInvalid, "validate", errBound("MaxDrawdownPercent", "> 0"))
	case cfg.MinGridPrice.Sign() <= 0 || cfg.MaxGridPrice.LessThanOrEqual(cfg.MinGridPrice):
		return errs.New(errs.KindConfigInvalid, "validate", errBound("MinGridPrice/MaxGridPrice", "0 < min < max"))
	}
	return nil
}

func errMissing(name string) error {
	return &validationError{msg: name + " is required"}
}

func errBound(name, bound string) error {
	return &validationError{msg: name + " must satisfy " + bound}
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }
