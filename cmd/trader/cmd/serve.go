package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjannette/trahn-autotrader/internal/api"
	"github.com/kjannette/trahn-autotrader/internal/scheduler"
	"github.com/kjannette/trahn-autotrader/internal/telemetry"
)

const banner = `
╔══════════════════════════════════════╗
║       TRAHN Crypto Auto Trader       ║
║                                      ║
╚══════════════════════════════════════╝
`

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API and the status reporter",
	Long: `Serve starts the REST API used to start and stop sessions, place buys
and read the ledger. SIGINT or SIGTERM stops any running session, waits for
in-flight confirmations and shuts the server down.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Print(banner)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	// Sessions outlive requests and the signal; shutdown stops them explicitly.
	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	hub := telemetry.NewHub(a.logger)
	go hub.Run(sessionCtx)
	a.addNotifier(hub)

	orch := a.orchestrator()
	srv := api.NewServer(api.Deps{
		Market:       a.broker,
		Ledger:       a.ledger,
		Orchestrator: orch,
		Buyer:        a.buyer(),
	}, api.Options{
		Port:           a.cfg.APIPort,
		APIKey:         a.cfg.APIKey,
		CORSOrigin:     a.cfg.CORSAllowOrigin,
		FailedWindow:   a.cfg.FailedTradeWindow,
		WriteTimeout:   a.params.ConfirmationDelay + 30*time.Second,
		SessionContext: sessionCtx,
		Stream:         hub,
		Logger:         a.logger,
	})

	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	var reporter *scheduler.Reporter
	if a.sender.Enabled() {
		reporter = scheduler.NewReporter(a.ledger, a.sender, scheduler.ReporterConfig{
			Interval:         a.cfg.StatusReportInterval,
			Sessions:         orch.Status,
			OnlyWhileTrading: true,
		}, a.logger)
		reporter.Start()
	} else {
		a.logger.Info("status reporter skipped, no webhook configured")
	}

	a.logger.Info("all services started")

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		a.logger.Error("api server failed", "err", err)
	}
	a.logger.Info("shutting down gracefully")

	if orch.Stop() {
		a.logger.Info("waiting for workers to finish in-flight orders")
	}
	joinCtx, cancelJoin := context.WithTimeout(context.Background(), a.params.ConfirmationDelay+10*time.Second)
	if err := orch.Join(joinCtx); err != nil {
		a.logger.Warn("session did not finish cleanly", "err", err)
	}
	cancelJoin()
	cancelSessions()

	if reporter != nil {
		reporter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api shutdown failed", "err", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}
