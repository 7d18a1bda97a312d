package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

const (
	BrokerPaper = "paper"
	BrokerLive  = "live"

	LedgerMemory   = "memory"
	LedgerCSV      = "csv"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"

	PriceFeedStatic    = "static"
	PriceFeedCoinGecko = "coingecko"
)

type Config struct {
	// Brokerage
	BrokerMode     string
	BrokerAPIURL   string
	BrokerAPIToken string

	// Paper brokerage
	PaperInitialCash       float64
	PaperSeed              int64
	PaperFillProbability   float64
	PaperSlippagePercent   float64
	PaperVolatilityPercent float64
	PaperHoldings          map[string]float64
	PaperPrices            map[string]float64
	PaperPriceFeed         string
	CoinGeckoURL           string

	// Ledger
	LedgerBackend    string
	LedgerCSVPath    string
	LedgerSQLitePath string

	// Database (postgres ledger)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Trading loop
	FailedTradeWindow time.Duration
	IterationDelay    time.Duration
	ConfirmationDelay time.Duration
	WorkerStagger     time.Duration
	ShrinkThreshold   float64
	ShrinkFactor      float64
	FundsBuffer       float64
	CompareTolerance  float64

	// Risk Management
	MaxDailyTrades   int
	MaxOrderValueUSD float64

	// Assets
	AssetsFile string
	Assets     []models.Asset

	// Notifications and API
	WebhookURL           string
	NotifyOrders         bool
	BotName              string
	APIKey               string
	APIPort              int
	CORSAllowOrigin      string
	StatusReportInterval time.Duration
	LogLevel             string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Brokerage
		BrokerMode:     strings.ToLower(envStr("BROKER_MODE", BrokerPaper)),
		BrokerAPIURL:   envStr("BROKER_API_URL", ""),
		BrokerAPIToken: envStr("BROKER_API_TOKEN", ""),

		// Paper brokerage
		PaperInitialCash:       envFloat("PAPER_INITIAL_CASH", 1000),
		PaperSeed:              int64(envInt("PAPER_SEED", 0)),
		PaperFillProbability:   envFloat("PAPER_FILL_PROBABILITY", 0.9),
		PaperSlippagePercent:   envFloat("PAPER_SLIPPAGE_PERCENT", 0.2),
		PaperVolatilityPercent: envFloat("PAPER_VOLATILITY_PERCENT", 1.0),
		PaperHoldings:          envFloatMap("PAPER_HOLDINGS", map[string]float64{"DOGE": 1000, "XLM": 500, "ETH": 0.5}),
		PaperPrices:            envFloatMap("PAPER_PRICES", map[string]float64{"DOGE": 0.08, "XLM": 0.11, "BTC": 60000, "SHIB": 0.00002, "XTZ": 0.9, "ETH": 3000}),
		PaperPriceFeed:         strings.ToLower(envStr("PAPER_PRICE_FEED", PriceFeedStatic)),
		CoinGeckoURL:           envStr("COINGECKO_URL", ""),

		// Ledger
		LedgerBackend:    strings.ToLower(envStr("LEDGER_BACKEND", LedgerCSV)),
		LedgerCSVPath:    envStr("LEDGER_CSV_PATH", "data/trades.csv"),
		LedgerSQLitePath: envStr("LEDGER_SQLITE_PATH", "data/trades.db"),

		// Database
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "trahn_autotrader"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),

		// Trading loop
		FailedTradeWindow: envDuration("FAILED_TRADE_WINDOW", 10*time.Minute),
		IterationDelay:    envDuration("ITERATION_DELAY", 5*time.Second),
		ConfirmationDelay: envDuration("CONFIRMATION_DELAY", 30*time.Second),
		WorkerStagger:     envDuration("WORKER_STAGGER", 3*time.Second),
		ShrinkThreshold:   envFloat("SHRINK_THRESHOLD", 1.0),
		ShrinkFactor:      envFloat("SHRINK_FACTOR", 0.75),
		FundsBuffer:       envFloat("FUNDS_BUFFER", 5.0),
		CompareTolerance:  envFloat("COMPARE_TOLERANCE", 1e-9),

		// Risk Management
		MaxDailyTrades:   envInt("MAX_DAILY_TRADES", 0),
		MaxOrderValueUSD: envFloat("MAX_ORDER_VALUE_USD", 0),

		// Assets
		AssetsFile: envStr("ASSETS_FILE", ""),

		// Notifications and API
		WebhookURL:           envStr("WEBHOOK_URL", ""),
		NotifyOrders:         envBool("NOTIFY_ORDERS", true),
		BotName:              envStr("BOT_NAME", "TrahnAutoTrader"),
		APIKey:               envStr("API_KEY", ""),
		APIPort:              envInt("API_PORT", 3001),
		CORSAllowOrigin:      envStr("CORS_ALLOW_ORIGIN", "*"),
		StatusReportInterval: envDuration("STATUS_REPORT_INTERVAL", time.Hour),
		LogLevel:             envStr("LOG_LEVEL", "info"),
	}

	cfg.Assets = models.DefaultAssets()
	if cfg.AssetsFile != "" {
		assets, err := LoadAssets(cfg.AssetsFile)
		if err != nil {
			return nil, err
		}
		cfg.Assets = assets
	}

	return cfg, nil
}

type assetFile struct {
	Assets []models.Asset `yaml:"assets"`
}

// LoadAssets reads a YAML asset catalog of the form
//
//	assets:
//	  - symbol: DOGE
//	    min_quantity: 1
//	    quantity_decimals: 2
func LoadAssets(path string) ([]models.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assets file: %w", err)
	}
	var f assetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse assets file %s: %w", path, err)
	}
	for i := range f.Assets {
		f.Assets[i].Symbol = strings.ToUpper(strings.TrimSpace(f.Assets[i].Symbol))
	}
	return f.Assets, nil
}

func (c *Config) Validate() error {
	var errs []string

	switch c.BrokerMode {
	case BrokerPaper:
	case BrokerLive:
		if c.BrokerAPIURL == "" {
			errs = append(errs, "BROKER_API_URL is required for live trading")
		}
		if c.BrokerAPIToken == "" {
			errs = append(errs, "BROKER_API_TOKEN is required for live trading")
		}
	default:
		errs = append(errs, fmt.Sprintf("BROKER_MODE must be %q or %q, got %q", BrokerPaper, BrokerLive, c.BrokerMode))
	}

	switch c.PaperPriceFeed {
	case "", PriceFeedStatic, PriceFeedCoinGecko:
	default:
		errs = append(errs, fmt.Sprintf("PAPER_PRICE_FEED must be %q or %q, got %q", PriceFeedStatic, PriceFeedCoinGecko, c.PaperPriceFeed))
	}

	switch c.LedgerBackend {
	case LedgerMemory, LedgerPostgres:
	case LedgerCSV:
		if c.LedgerCSVPath == "" {
			errs = append(errs, "LEDGER_CSV_PATH is required for the csv ledger")
		}
	case LedgerSQLite:
		if c.LedgerSQLitePath == "" {
			errs = append(errs, "LEDGER_SQLITE_PATH is required for the sqlite ledger")
		}
	default:
		errs = append(errs, fmt.Sprintf("LEDGER_BACKEND %q is not one of memory, csv, sqlite, postgres", c.LedgerBackend))
	}
	if c.LedgerBackend == LedgerPostgres && c.DBUser == "" {
		errs = append(errs, "DB_USER is required for the postgres ledger")
	}

	if c.IterationDelay <= 0 || c.ConfirmationDelay <= 0 || c.FailedTradeWindow <= 0 {
		errs = append(errs, "ITERATION_DELAY, CONFIRMATION_DELAY and FAILED_TRADE_WINDOW must be positive")
	}
	if c.WorkerStagger < 0 {
		errs = append(errs, "WORKER_STAGGER must not be negative")
	}
	if c.ShrinkFactor <= 0 || c.ShrinkFactor > 1 {
		errs = append(errs, fmt.Sprintf("SHRINK_FACTOR must be in (0, 1], got %g", c.ShrinkFactor))
	}
	if c.FundsBuffer < 0 {
		errs = append(errs, "FUNDS_BUFFER must not be negative")
	}
	if c.PaperFillProbability < 0 || c.PaperFillProbability > 1 {
		errs = append(errs, "PAPER_FILL_PROBABILITY must be between 0 and 1")
	}

	if len(c.Assets) == 0 {
		errs = append(errs, "no assets configured")
	}
	seen := make(map[string]bool, len(c.Assets))
	for _, a := range c.Assets {
		switch {
		case a.Symbol == "":
			errs = append(errs, "asset with empty symbol")
		case seen[a.Symbol]:
			errs = append(errs, fmt.Sprintf("asset %s listed twice", a.Symbol))
		case a.MinQuantity <= 0:
			errs = append(errs, fmt.Sprintf("asset %s needs a positive min_quantity", a.Symbol))
		}
		seen[a.Symbol] = true
	}

	if c.IterationDelay >= c.ConfirmationDelay {
		slog.Warn("ITERATION_DELAY is not shorter than CONFIRMATION_DELAY",
			"iteration_delay", c.IterationDelay, "confirmation_delay", c.ConfirmationDelay)
	}
	if c.MaxDailyTrades == 0 && c.MaxOrderValueUSD == 0 {
		slog.Warn("MAX_DAILY_TRADES and MAX_ORDER_VALUE_USD are both 0, no per-order limits active")
	}
	if c.APIKey == "" {
		slog.Warn("API_KEY not set, REST API has no authentication")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Crypto Auto Trader Configuration ===")

	if c.BrokerMode == BrokerPaper {
		fmt.Println("════════════════════════════════════════")
		fmt.Println("  PAPER TRADING MODE ENABLED")
		fmt.Println("  Orders are simulated in process")
		fmt.Println("════════════════════════════════════════")
		fmt.Printf("Paper Initial Cash: $%.2f\n", c.PaperInitialCash)
		fmt.Printf("Paper Fill Probability: %.0f%%\n", c.PaperFillProbability*100)
		fmt.Printf("Paper Slippage: 0-%.1f%%\n", c.PaperSlippagePercent)
		fmt.Printf("Paper Price Feed: %s\n", c.PaperPriceFeed)
	} else {
		fmt.Println("  LIVE TRADING MODE")
		fmt.Printf("Brokerage: %s\n", c.BrokerAPIURL)
	}

	fmt.Println("--------------------------------------")
	fmt.Printf("Ledger: %s%s\n", c.LedgerBackend, ledgerLocation(c))
	fmt.Println("Assets:")
	for _, a := range c.Assets {
		fmt.Printf("  %-5s min %g\n", a.Symbol, a.MinQuantity)
	}
	fmt.Println("--------------------------------------")
	fmt.Println("Loop Timing:")
	fmt.Printf("  Iteration delay: %s\n", c.IterationDelay)
	fmt.Printf("  Confirmation delay: %s\n", c.ConfirmationDelay)
	fmt.Printf("  Worker stagger: %s\n", c.WorkerStagger)
	fmt.Printf("  Sell sizing: %.0f%% of surplus above $%.2f\n", c.ShrinkFactor*100, c.ShrinkThreshold)
	fmt.Printf("  Buy funds buffer: $%.2f\n", c.FundsBuffer)
	fmt.Printf("  Webhook: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// NewLogger builds the text logger for LOG_LEVEL.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(c.LogLevel)}))
}

func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

// envDuration accepts Go durations ("30s", "10m") or bare seconds ("30").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	return fallback
}

// envFloatMap parses "DOGE=100,ETH=0.5".
func envFloatMap(key string, fallback map[string]float64) map[string]float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	out, err := parseFloatMap(v)
	if err != nil {
		slog.Warn("ignoring malformed env map", "key", key, "err", err)
		return fallback
	}
	return out
}

func parseFloatMap(v string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, errors.New("expected SYMBOL=value in " + strconv.Quote(part))
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = f
	}
	return out, nil
}

func ledgerLocation(c *Config) string {
	switch c.LedgerBackend {
	case LedgerCSV:
		return " (" + c.LedgerCSVPath + ")"
	case LedgerSQLite:
		return " (" + c.LedgerSQLitePath + ")"
	case LedgerPostgres:
		return fmt.Sprintf(" (%s:%d/%s)", c.DBHost, c.DBPort, c.DBName)
	}
	return ""
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
