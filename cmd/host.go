package cmd

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex/memdex"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/flashloan/arbitrage"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/pool"
	"github.com/michaelpento.lv/flasharb/registry"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

// coreSettleAddress is where the core settles when the config names none.
var coreSettleAddress = common.HexToAddress("0x00000000000000000000000000000000f1a5a2b1")

// host is a fully wired in-memory deployment: ledger, pool, venues, core,
// and strategy, seeded from a config and a market scenario.
type host struct {
	cfg      *config.Config
	scenario *config.Scenario
	ledger   *ledger.Ledger
	pool     *pool.LendingPool
	core     *flashloan.Core
	strategy *arbitrage.Strategy
	events   *flashloan.EventLog
	logger   *zap.Logger
}

// buildHost assembles the deployment. The scenario seeds balances and rate
// tables; the config supplies the principals and the economics.
func buildHost(cfg *config.Config, scenario *config.Scenario, logger *zap.Logger) (*host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := ledger.New(logger)
	for _, b := range scenario.Balances {
		if err := l.Mint(common.HexToAddress(b.Holder), common.HexToAddress(b.Token), config.Amount(b.Amount)); err != nil {
			return nil, fmt.Errorf("failed to seed balance for %s: %w", b.Holder, err)
		}
	}

	p, err := pool.New(cfg.PoolAddr(), cfg.FeeBps, l, logger)
	if err != nil {
		return nil, err
	}

	venues := make([]*memdex.Venue, 0, len(scenario.Venues))
	for _, sv := range scenario.Venues {
		v, err := memdex.New(sv.Name, common.HexToAddress(sv.Address), l, logger)
		if err != nil {
			return nil, err
		}
		for _, r := range sv.Rates {
			if err := v.SetRate(common.HexToAddress(r.TokenIn), common.HexToAddress(r.TokenOut), r.Num, r.Den); err != nil {
				return nil, err
			}
		}
		venues = append(venues, v)
	}

	coreAddr := coreSettleAddress
	if cfg.CoreAddress != "" {
		coreAddr = common.HexToAddress(cfg.CoreAddress)
	}

	events := flashloan.NewEventLog()
	core, err := flashloan.New(cfg.OwnerAddress(), coreAddr, registry.NewStatic(cfg.PoolAddr()), p, l, events, logger)
	if err != nil {
		return nil, err
	}

	strategy, err := arbitrage.New(core, venues[0], venues[1], cfg.SlippageBps, logger)
	if err != nil {
		return nil, err
	}

	return &host{
		cfg:      cfg,
		scenario: scenario,
		ledger:   l,
		pool:     p,
		core:     core,
		strategy: strategy,
		events:   events,
		logger:   logger,
	}, nil
}

// startMetrics exposes the host's collectors when the config enables the
// endpoint. The server runs until ctx is cancelled.
func (h *host) startMetrics(ctx context.Context) error {
	if !h.cfg.PrometheusEnabled {
		return nil
	}
	if err := metrics.Register(h.pool.Collectors()...); err != nil {
		return err
	}
	if err := metrics.Register(h.core.Collectors()...); err != nil {
		return err
	}
	if err := metrics.Register(h.strategy.Collectors()...); err != nil {
		return err
	}
	go func() {
		if err := metrics.Serve(ctx, h.cfg.PrometheusEndpoint, h.logger); err != nil {
			h.logger.Error("metrics endpoint stopped", zap.Error(err))
		}
	}()
	return nil
}

// loadHost reads the config and scenario flags and assembles the host.
func loadHost(logger *zap.Logger) (*host, error) {
	if err := config.LoadEnv(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if scenarioFile == "" {
		return nil, fmt.Errorf("--scenario is required")
	}
	scenario, err := config.LoadScenario(scenarioFile)
	if err != nil {
		return nil, err
	}
	return buildHost(cfg, scenario, logger)
}
