package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Print the trade ledger",
	Long: `Trades lists ledger records most recent first. Failed orders older than
the window are hidden.

Examples:
  trader trades
  trader trades --window 1h
  trader trades --day 2026-03-10`,
	Args: cobra.NoArgs,
	RunE: runTrades,
}

var (
	tradesWindow time.Duration
	tradesDay    string
)

func init() {
	rootCmd.AddCommand(tradesCmd)

	tradesCmd.Flags().DurationVarP(&tradesWindow, "window", "w", ledger.DefaultFailedWindow, "how long failed trades stay listed")
	tradesCmd.Flags().StringVar(&tradesDay, "day", "", "list every trade of one trading day (YYYY-MM-DD)")
}

func runTrades(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	var recs []models.TradeRecord
	if tradesDay != "" {
		if _, err := time.Parse("2006-01-02", tradesDay); err != nil {
			return fmt.Errorf("day: %w", err)
		}
		recs, err = a.ledger.ByDay(cmd.Context(), tradesDay)
	} else {
		recs, err = a.ledger.List(cmd.Context(), tradesWindow)
	}
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tID\tTYPE\tCRYPTO\tAMOUNT\tPRICE\tVALUE\tSTATUS")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Time.UTC().Format("2006-01-02 15:04:05"), r.ID, r.Type, r.Asset,
			r.Amount, r.Price, r.Value, r.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	sum, err := a.ledger.TodaysChange(cmd.Context())
	if err != nil {
		return fmt.Errorf("todays change: %w", err)
	}
	fmt.Printf("\n%d trades. Trading day %s change: %+.2f\n", len(recs), sum.TradingDay, sum.Change)
	return nil
}
