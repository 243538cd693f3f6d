package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the scenario trade as one atomic flash loan unit",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.GetLogger()
		h, err := loadHost(logger)
		if err != nil {
			return err
		}
		if err := h.startMetrics(cmd.Context()); err != nil {
			return err
		}

		trade := h.scenario.Trade
		tokenBorrow := common.HexToAddress(trade.TokenBorrow)
		tokenTarget := common.HexToAddress(trade.TokenTarget)
		amount := config.Amount(trade.Amount)
		minProfit := h.cfg.MinProfitAmount()
		if trade.MinProfit != "" {
			minProfit = config.Amount(trade.MinProfit)
		}

		err = h.strategy.ExecuteArbitrage(cmd.Context(), h.cfg.OwnerAddress(), tokenBorrow, tokenTarget, amount, minProfit)
		if err != nil {
			logger.Error("arbitrage aborted", zap.Error(err))
			return err
		}

		for _, name := range h.events.Names() {
			fmt.Println(name)
		}
		fmt.Printf("retained balance: %s units of %s\n",
			h.core.GetBalance(tokenBorrow).String(), tokenBorrow.Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
