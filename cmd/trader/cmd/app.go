package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-autotrader/internal/broker"
	"github.com/kjannette/trahn-autotrader/internal/config"
	"github.com/kjannette/trahn-autotrader/internal/db"
	"github.com/kjannette/trahn-autotrader/internal/external"
	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/notifications"
	"github.com/kjannette/trahn-autotrader/internal/repository"
	"github.com/kjannette/trahn-autotrader/internal/risk"
	"github.com/kjannette/trahn-autotrader/internal/strategy"
	"github.com/kjannette/trahn-autotrader/internal/trading"
)

// app holds the components every command shares.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	broker  broker.Brokerage
	ledger  *ledger.Ledger
	sender  *notifications.Sender
	notify  trading.Notifiers
	catalog *trading.Catalog
	deps    trading.Deps
	params  trading.Params
	pool    *pgxpool.Pool
}

func newApp(ctx context.Context, printConfig bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if printConfig {
		cfg.Print()
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	a.broker = newBrokerage(ctx, cfg, logger)

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.ledger = ledger.New(store, ledger.WithLogger(logger))

	a.sender = notifications.NewSender(cfg.WebhookURL, cfg.BotName, logger)
	a.catalog = trading.NewCatalog(cfg.Assets)
	a.params = trading.Params{
		IterationDelay:    cfg.IterationDelay,
		ConfirmationDelay: cfg.ConfirmationDelay,
		Stagger:           cfg.WorkerStagger,
		FundsBuffer:       cfg.FundsBuffer,
		Sizing: strategy.SizingParams{
			ShrinkThreshold: cfg.ShrinkThreshold,
			ShrinkFactor:    cfg.ShrinkFactor,
			Tolerance:       cfg.CompareTolerance,
		},
	}
	a.deps = trading.Deps{
		Broker: a.broker,
		Ledger: a.ledger,
		Logger: logger,
	}

	limits := risk.Limits{MaxDailyTrades: cfg.MaxDailyTrades, MaxOrderValueUSD: cfg.MaxOrderValueUSD}
	if limits.Enabled() {
		a.deps.Guard = risk.NewGuardian(limits, a.ledger)
	}
	if cfg.NotifyOrders && a.sender.Enabled() {
		a.addNotifier(a.sender)
	}

	return a, nil
}

func newBrokerage(ctx context.Context, cfg *config.Config, logger *slog.Logger) broker.Brokerage {
	if cfg.BrokerMode == config.BrokerLive {
		return broker.NewRESTClient(cfg.BrokerAPIURL, cfg.BrokerAPIToken, broker.WithLogger(logger))
	}
	return broker.NewPaper(broker.PaperConfig{
		InitialCash:       cfg.PaperInitialCash,
		Holdings:          cfg.PaperHoldings,
		Prices:            paperPrices(ctx, cfg, logger),
		Seed:              cfg.PaperSeed,
		FillProbability:   cfg.PaperFillProbability,
		SlippagePercent:   cfg.PaperSlippagePercent,
		VolatilityPercent: cfg.PaperVolatilityPercent,
	})
}

// paperPrices overlays live spot prices on the configured paper prices when
// the coingecko feed is selected. A failed fetch keeps the static prices.
func paperPrices(ctx context.Context, cfg *config.Config, logger *slog.Logger) map[string]float64 {
	prices := make(map[string]float64, len(cfg.PaperPrices))
	for k, v := range cfg.PaperPrices {
		prices[k] = v
	}
	if cfg.PaperPriceFeed != config.PriceFeedCoinGecko {
		return prices
	}

	symbols := make([]string, 0, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		symbols = append(symbols, asset.Symbol)
	}
	spot, err := external.NewCoinGeckoClient(cfg.CoinGeckoURL, logger).SpotPrices(ctx, symbols)
	if err != nil {
		logger.Warn("spot price fetch failed, using static paper prices", "err", err)
		return prices
	}
	for sym, p := range spot {
		prices[sym] = p
	}
	logger.Info("paper prices seeded from coingecko", "assets", len(spot))
	return prices
}

func (a *app) openStore(ctx context.Context) (ledger.Store, error) {
	switch a.cfg.LedgerBackend {
	case config.LedgerMemory:
		return ledger.NewMemoryStore(), nil
	case config.LedgerSQLite:
		store, err := ledger.NewSQLiteStore(a.cfg.LedgerSQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.LedgerPostgres:
		pool, err := db.Connect(ctx, a.cfg.DSN(), a.logger)
		if err != nil {
			return nil, err
		}
		repo := repository.NewTradeRepo(pool, ledger.TradingDay)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		a.pool = pool
		return repo, nil
	default:
		store, err := ledger.NewCSVStore(a.cfg.LedgerCSVPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// addNotifier must run before orchestrator or buyer is called.
func (a *app) addNotifier(n trading.Notifier) {
	a.notify = append(a.notify, n)
	a.deps.Notify = a.notify
}

func (a *app) orchestrator() *trading.Orchestrator {
	return trading.NewOrchestrator(a.catalog, a.deps, a.params)
}

func (a *app) buyer() *trading.Buyer {
	return trading.NewBuyer(a.catalog, a.deps, a.params)
}

func (a *app) close() {
	if err := a.ledger.Close(); err != nil {
		a.logger.Warn("ledger close failed", "err", err)
	}
	if a.pool != nil {
		a.pool.Close()
		a.logger.Info("database pool closed")
	}
}
