package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/pool"
	"github.com/michaelpento.lv/flasharb/utils/math"
)

// bps denominator for slippage arithmetic.
var bpsDen = big.NewInt(10000)

// swapDeadline bounds how stale a settlement may be.
const swapDeadline = 30 * time.Second

// Strategy specializes the core's callback into a two-hop cross-venue
// trade: borrow, swap the full principal out on one venue, swap the full
// proceeds back on the other, repay, keep the difference. The upstream
// "accept any nonzero output" floor is not inherited: slippage tolerance is
// a required construction parameter and both hops enforce quote-derived
// minimums.
type Strategy struct {
	core        *flashloan.Core
	routerOut   dex.Router
	routerBack  dex.Router
	slippageBps uint16
	feeBps      uint16
	logger      *zap.Logger
	metrics     struct {
		attempts    prometheus.Counter
		simulations prometheus.Counter
		profit      prometheus.Counter
	}
}

// New wires a strategy to its core and installs the arbitrage hook. The
// core must be dedicated to this strategy. slippageBps must be a nonzero
// fraction of 10000; there is deliberately no permissive default.
func New(core *flashloan.Core, routerOut, routerBack dex.Router, slippageBps uint16, logger *zap.Logger) (*Strategy, error) {
	if core == nil {
		return nil, fmt.Errorf("core cannot be nil")
	}
	if routerOut == nil || routerBack == nil {
		return nil, fmt.Errorf("both routers are required")
	}
	if slippageBps == 0 || slippageBps >= 10000 {
		return nil, fmt.Errorf("slippage tolerance must be in (0, 10000) bps, got %d", slippageBps)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Strategy{
		core:        core,
		routerOut:   routerOut,
		routerBack:  routerBack,
		slippageBps: slippageBps,
		feeBps:      pool.DefaultFeeBps,
		logger:      logger,
	}

	s.metrics.attempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbitrage_attempts_total",
		Help: "Number of arbitrage executions attempted",
	})
	s.metrics.simulations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbitrage_simulations_total",
		Help: "Number of advisory simulations served",
	})
	s.metrics.profit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbitrage_profit_units",
		Help: "Cumulative realized profit in borrow-asset units",
	})

	core.SetHook(s)
	return s, nil
}

// Collectors returns the strategy's metrics for registration with an exporter.
func (s *Strategy) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		s.metrics.attempts,
		s.metrics.simulations,
		s.metrics.profit,
	}
}

// ExecuteArbitrage borrows amount of tokenBorrow, runs the two-hop trade in
// the callback, and commits only if the round trip clears repayment plus
// minProfit. Owner-only; all-or-nothing.
func (s *Strategy) ExecuteArbitrage(ctx context.Context, caller, tokenBorrow, tokenTarget common.Address, amount, minProfit *big.Int) error {
	s.metrics.attempts.Inc()

	if tokenTarget == (common.Address{}) {
		return fmt.Errorf("%w: null target asset", flashloan.ErrInvalidArgument)
	}
	if tokenTarget == tokenBorrow {
		return fmt.Errorf("%w: target asset equals borrow asset", flashloan.ErrInvalidArgument)
	}
	if minProfit == nil || minProfit.Sign() < 0 {
		return fmt.Errorf("%w: negative minimum profit", flashloan.ErrInvalidArgument)
	}

	params, err := EncodeParams(tokenTarget, minProfit)
	if err != nil {
		return err
	}
	return s.core.RequestLoanWithParams(ctx, caller, tokenBorrow, amount, params)
}

// Execute is the callback hook. Empty params degrade to the base solvency
// behavior so a plain RequestLoan still works through a strategy core.
func (s *Strategy) Execute(ctx context.Context, op *flashloan.OperationContext) error {
	if len(op.Params) == 0 {
		if s.core.GetBalance(op.Asset).Cmp(op.Amount) < 0 {
			return fmt.Errorf("%w: principal no longer on hand", flashloan.ErrFundsNotReceived)
		}
		return nil
	}

	tokenTarget, minProfit, err := DecodeParams(op.Params)
	if err != nil {
		return err
	}

	self := s.core.Address()
	deadline := time.Now().Add(swapDeadline).Unix()

	// Hop one: the entire principal out to the target asset.
	outPath := []common.Address{op.Asset, tokenTarget}
	hopOut, err := s.swap(ctx, s.routerOut, op.Amount, outPath, self, deadline)
	if err != nil {
		return fmt.Errorf("outbound swap failed: %w", err)
	}

	// Hop two: the entire proceeds back to the borrow asset.
	backPath := []common.Address{tokenTarget, op.Asset}
	final, err := s.swap(ctx, s.routerBack, hopOut, backPath, self, deadline)
	if err != nil {
		return fmt.Errorf("return swap failed: %w", err)
	}

	if final.Cmp(op.TotalRepayment) < 0 {
		return fmt.Errorf("%w: round trip returned %s, repayment needs %s",
			flashloan.ErrInsufficientFunds, final.String(), op.TotalRepayment.String())
	}
	profit, err := math.CheckedSub(final, op.TotalRepayment)
	if err != nil {
		return err
	}
	if profit.Cmp(minProfit) < 0 {
		return fmt.Errorf("%w: profit %s under floor %s",
			flashloan.ErrProfitBelowMinimum, profit.String(), minProfit.String())
	}

	op.QueueEvent(flashloan.ArbitrageExecuted{
		Asset:       op.Asset,
		TokenTarget: tokenTarget,
		Amount:      math.Clone(op.Amount),
		Profit:      math.Clone(profit),
	})
	s.metrics.profit.Add(float64(profit.Uint64()))
	s.logger.Info("arbitrage round trip cleared",
		zap.String("asset", op.Asset.Hex()),
		zap.String("target", tokenTarget.Hex()),
		zap.String("amount", op.Amount.String()),
		zap.String("profit", profit.String()))
	return nil
}

// swap quotes the route, derives the slippage-bounded minimum output, and
// settles. The minimum never drops below one smallest unit.
func (s *Strategy) swap(ctx context.Context, router dex.Router, amountIn *big.Int, path []common.Address, to common.Address, deadline int64) (*big.Int, error) {
	quoted, err := router.GetAmountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}
	expected := quoted[len(quoted)-1]

	minOut := new(big.Int).Mul(expected, big.NewInt(int64(10000-int(s.slippageBps))))
	minOut.Div(minOut, bpsDen)
	if minOut.Sign() == 0 {
		minOut = big.NewInt(1)
	}

	amounts, err := router.SwapExactTokensForTokens(ctx, s.core.Address(), amountIn, minOut, path, to, deadline)
	if err != nil {
		return nil, err
	}
	return amounts[len(amounts)-1], nil
}

// SimulateArbitrage estimates the round trip with read-only quotes. The
// premium mirrors the pool's known fixed fee; live execution may diverge
// from the quoted prices, so the result is advisory only.
func (s *Strategy) SimulateArbitrage(ctx context.Context, tokenBorrow, tokenTarget common.Address, amount *big.Int) (*big.Int, bool, error) {
	s.metrics.simulations.Inc()

	if math.IsZero(amount) {
		return nil, false, fmt.Errorf("%w: zero amount", flashloan.ErrInvalidArgument)
	}

	premium := math.BpsOf(amount, s.feeBps)
	repayment, err := math.CheckedAdd(amount, premium)
	if err != nil {
		return nil, false, err
	}

	outQuote, err := s.routerOut.GetAmountsOut(ctx, amount, []common.Address{tokenBorrow, tokenTarget})
	if err != nil {
		return nil, false, fmt.Errorf("outbound quote failed: %w", err)
	}
	backQuote, err := s.routerBack.GetAmountsOut(ctx, outQuote[len(outQuote)-1], []common.Address{tokenTarget, tokenBorrow})
	if err != nil {
		return nil, false, fmt.Errorf("return quote failed: %w", err)
	}
	received := backQuote[len(backQuote)-1]

	if received.Cmp(repayment) <= 0 {
		return big.NewInt(0), false, nil
	}
	profit, err := math.CheckedSub(received, repayment)
	if err != nil {
		return nil, false, err
	}
	return profit, true, nil
}
