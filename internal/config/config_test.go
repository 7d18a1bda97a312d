package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BROKER_MODE", "")
	t.Setenv("ASSETS_FILE", "")
	t.Setenv("ITERATION_DELAY", "")
	t.Setenv("CONFIRMATION_DELAY", "")
	t.Setenv("FUNDS_BUFFER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BrokerMode != BrokerPaper {
		t.Fatalf("broker mode: got %s", cfg.BrokerMode)
	}
	if cfg.IterationDelay != 5*time.Second || cfg.ConfirmationDelay != 30*time.Second {
		t.Fatalf("delays: got %s / %s", cfg.IterationDelay, cfg.ConfirmationDelay)
	}
	if cfg.FundsBuffer != 5 {
		t.Fatalf("funds buffer: got %f", cfg.FundsBuffer)
	}
	if len(cfg.Assets) != 6 || cfg.Assets[0].Symbol != "DOGE" {
		t.Fatalf("default assets: got %+v", cfg.Assets)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("X_DUR", "250ms")
	if got := envDuration("X_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("got %s", got)
	}
	t.Setenv("X_DUR", "30")
	if got := envDuration("X_DUR", time.Second); got != 30*time.Second {
		t.Fatalf("bare seconds: got %s", got)
	}
	t.Setenv("X_DUR", "soon")
	if got := envDuration("X_DUR", time.Second); got != time.Second {
		t.Fatalf("fallback: got %s", got)
	}
}

func TestParseFloatMap(t *testing.T) {
	m, err := parseFloatMap("doge=100, ETH=0.5,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m["DOGE"] != 100 || m["ETH"] != 0.5 || len(m) != 2 {
		t.Fatalf("got %v", m)
	}
	if _, err := parseFloatMap("DOGE"); err == nil {
		t.Fatal("expected error for missing '='")
	}
}

func TestLoadAssets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.yaml")
	body := "assets:\n  - symbol: doge\n    min_quantity: 1\n  - symbol: BTC\n    min_quantity: 0.000001\n    quantity_decimals: 6\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	assets, err := LoadAssets(path)
	if err != nil {
		t.Fatalf("LoadAssets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(assets))
	}
	if assets[0].Symbol != "DOGE" || assets[1].QuantityDecimals != 6 || assets[1].MinQuantity != 0.000001 {
		t.Fatalf("unexpected assets: %+v", assets)
	}

	if _, err := LoadAssets(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func validConfig() *Config {
	return &Config{
		BrokerMode:        BrokerPaper,
		LedgerBackend:     LedgerMemory,
		FailedTradeWindow: 10 * time.Minute,
		IterationDelay:    5 * time.Second,
		ConfirmationDelay: 30 * time.Second,
		WorkerStagger:     3 * time.Second,
		ShrinkFactor:      0.75,
		FundsBuffer:       5,
		APIKey:            "secret",
		MaxDailyTrades:    10,
		Assets:            []models.Asset{{Symbol: "DOGE", MinQuantity: 1}},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	c := validConfig()
	c.BrokerMode = BrokerLive
	c.LedgerBackend = "mongo"
	c.ShrinkFactor = 1.5
	c.PaperPriceFeed = "oracle"
	c.Assets = append(c.Assets, models.Asset{Symbol: "DOGE", MinQuantity: 1}, models.Asset{Symbol: "XLM"})

	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"BROKER_API_URL", "BROKER_API_TOKEN", "LEDGER_BACKEND", "SHRINK_FACTOR", "PAPER_PRICE_FEED", "DOGE listed twice", "XLM needs a positive min_quantity"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in: %v", want, err)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != slog.LevelDebug {
		t.Fatal("debug")
	}
	if ParseLevel("WARN") != slog.LevelWarn {
		t.Fatal("warn")
	}
	if ParseLevel("loud") != slog.LevelInfo {
		t.Fatal("fallback should be info")
	}
}
