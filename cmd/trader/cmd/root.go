package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Autonomous crypto auto-trader",
	Long: `Trader runs one sell loop per asset against a brokerage account and
records every order it submits in a trade ledger.

Commands:
  serve    - run the REST API and status reporter
  session  - run one trading session in the foreground
  buy      - place a single buy order
  trades   - print the trade ledger

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

var logLevel string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}
