package cmd

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"github.com/michaelpento.lv/flasharb/utils/monitor"
)

var (
	watch         bool
	watchInterval time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Estimate the round-trip profit of the scenario trade",
	Long: `Quotes the scenario trade across both venues and reports the
estimated profit after the pool premium. The estimate is advisory: live
execution settles at whatever the venues quote at that moment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.GetLogger()
		h, err := loadHost(logger)
		if err != nil {
			return err
		}

		trade := h.scenario.Trade
		tokenBorrow := common.HexToAddress(trade.TokenBorrow)
		tokenTarget := common.HexToAddress(trade.TokenTarget)
		amount := config.Amount(trade.Amount)

		ctx := cmd.Context()
		if err := h.startMetrics(ctx); err != nil {
			return err
		}

		var mon *monitor.SystemMonitor
		if watch {
			if mon, err = monitor.NewSystemMonitor(ctx, logger); err != nil {
				return err
			}
			defer mon.Cleanup()
			if h.cfg.PrometheusEnabled {
				if err := metrics.Register(mon.Collectors()...); err != nil {
					return err
				}
			}
		}

		limiter := rate.NewLimiter(rate.Every(watchInterval), 1)
		for {
			profit, profitable, err := h.strategy.SimulateArbitrage(ctx, tokenBorrow, tokenTarget, amount)
			if err != nil {
				return err
			}
			if profitable {
				fmt.Printf("profitable: +%s units against %s borrowed\n", profit.String(), amount.String())
			} else {
				fmt.Println("not profitable at current quotes")
			}

			if !watch {
				return nil
			}
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			logger.Debug("re-quoting",
				zap.Duration("interval", watchInterval),
				zap.Any("host", mon.Snapshot()))
		}
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&watch, "watch", false, "keep re-quoting on an interval")
	simulateCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "re-quote interval in watch mode")
	rootCmd.AddCommand(simulateCmd)
}
