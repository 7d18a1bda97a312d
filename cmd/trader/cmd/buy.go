package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kjannette/trahn-autotrader/internal/trading"
)

var buyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Place one buy order and wait for its confirmation",
	Long: `Buy checks the asset minimum and the available cash, submits a market
buy, waits for the confirmation delay and records the outcome in the ledger.

Example:
  trader buy --asset DOGE --quantity 10`,
	Args: cobra.NoArgs,
	RunE: runBuy,
}

var (
	buyAsset    string
	buyQuantity float64
)

func init() {
	rootCmd.AddCommand(buyCmd)

	buyCmd.Flags().StringVarP(&buyAsset, "asset", "a", "", "asset symbol")
	buyCmd.Flags().Float64VarP(&buyQuantity, "quantity", "q", 0, "quantity to buy")
	buyCmd.MarkFlagRequired("asset")
	buyCmd.MarkFlagRequired("quantity")
}

func runBuy(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.buyer().Buy(cmd.Context(), buyAsset, buyQuantity)
	if err != nil {
		return fmt.Errorf("buy: %w", err)
	}

	fmt.Printf("%s %s: %s\n", res.Asset, res.Status, res.Message)
	if res.OrderID != "" {
		fmt.Printf("  order %s, %g @ %g (cost $%.2f)\n", res.OrderID, res.Quantity, res.Price, res.Cost)
	}
	if res.Status != trading.BuyFilled {
		return errors.New("buy did not fill")
	}
	return nil
}
