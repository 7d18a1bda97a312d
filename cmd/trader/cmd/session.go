package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kjannette/trahn-autotrader/internal/trading"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run one trading session in the foreground",
	Long: `Session starts one worker per asset and waits for all of them to exit.
Ctrl-C sets the stop signal; workers finish any confirmation they are waiting
on before they exit. A second Ctrl-C terminates immediately.

Examples:
  trader session --assets DOGE,ETH --duration 8 --unit hours
  trader session -a BTC -d 30 -u minutes`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

var (
	sessionAssets   []string
	sessionDuration float64
	sessionUnit     string
)

func init() {
	rootCmd.AddCommand(sessionCmd)

	sessionCmd.Flags().StringSliceVarP(&sessionAssets, "assets", "a", nil, "comma separated asset symbols")
	sessionCmd.Flags().Float64VarP(&sessionDuration, "duration", "d", 1, "session length in units")
	sessionCmd.Flags().StringVarP(&sessionUnit, "unit", "u", string(trading.UnitHours), "seconds, minutes or hours")
	sessionCmd.MarkFlagRequired("assets")
}

func runSession(cmd *cobra.Command, args []string) error {
	unit, err := trading.ParseUnit(sessionUnit)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.close()

	orch := a.orchestrator()
	s, err := orch.Start(context.Background(), sessionAssets, sessionDuration, unit)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		// Restore default handling so a second signal kills the process.
		stop()
		a.logger.Info("stop requested, waiting for in-flight orders")
		s.Stop()
		<-s.Done()
	case <-s.Done():
	}

	joinErr := s.Wait(context.Background())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Status()); err != nil {
		return err
	}

	sum, err := a.ledger.TodaysChange(context.Background())
	if err == nil {
		fmt.Printf("Today's change: %+.2f (%d sells, %d buys)\n", sum.Change, sum.FilledSells, sum.FilledBuys)
	}
	return joinErr
}
