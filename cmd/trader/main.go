package main

import (
	"os"

	"github.com/kjannette/trahn-autotrader/cmd/trader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
