package cmd

import (
	"context"
	"github.com/michaelpento.lv/flasharb/utils"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	scenarioFile string
	debug        bool
)

var rootCmd = &cobra.Command{
	Use:   "flasharb",
	Short: "An atomic flash loan core with a cross-venue arbitrage strategy",
	Long: `A flash loan executor that borrows from a lending pool, runs a
two-hop cross-venue trade inside the loan callback, and repays principal
plus premium in one all-or-nothing unit.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (JSON)")
	rootCmd.PersistentFlags().StringVar(&scenarioFile, "scenario", "", "market scenario file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initLogging() {
	utils.InitLogger(debug)
}
