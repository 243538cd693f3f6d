package pool

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/utils/math"
)

// DefaultFeeBps is the pool's fixed flash premium (5 = 0.05%).
const DefaultFeeBps uint16 = 5

// Receiver is the single upcall the pool requires of a borrower. The pool
// invokes it synchronously inside Borrow, after funding the receiver and
// before pulling the repayment.
type Receiver interface {
	Address() common.Address
	HandleCallback(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, params []byte) (bool, error)
}

// Ledger is the settlement surface the pool needs, including the
// transaction boundary that makes a whole borrow all-or-nothing.
type Ledger interface {
	BalanceOf(holder, asset common.Address) *big.Int
	Transfer(from, to, asset common.Address, amount *big.Int) error
	TransferFrom(spender, from, to, asset common.Address, amount *big.Int) error
	WithTransaction(fn func() error) error
}

// LendingPool lends an asset atomically: it funds the receiver, invokes the
// receiver's callback, then pulls amount+premium through the allowance the
// callback granted. Any failure along the way rolls back every effect,
// including the initial transfer.
type LendingPool struct {
	address common.Address
	feeBps  uint16
	ledger  Ledger
	logger  *zap.Logger
	mu      sync.Mutex
	metrics struct {
		loanCount prometheus.Counter
		premiums  prometheus.Counter
		failures  prometheus.Counter
		latency   prometheus.Histogram
		liquidity *prometheus.GaugeVec
	}
}

// New creates a lending pool settling at address with the given premium.
func New(address common.Address, feeBps uint16, ledger Ledger, logger *zap.Logger) (*LendingPool, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	p := &LendingPool{
		address: address,
		feeBps:  feeBps,
		ledger:  ledger,
		logger:  logger,
	}

	p.metrics.loanCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pool_loans_total",
		Help: "Total number of flash loans served",
	})
	p.metrics.premiums = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pool_premiums_units",
		Help: "Total premiums collected in smallest asset units",
	})
	p.metrics.failures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pool_loan_failures_total",
		Help: "Total number of flash loans that rolled back",
	})
	p.metrics.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pool_loan_latency_seconds",
		Help:    "Latency of flash loan round trips",
		Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
	})
	p.metrics.liquidity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pool_liquidity_units",
		Help: "Current pool liquidity per asset",
	}, []string{"asset"})

	return p, nil
}

// Address returns the pool's settlement address.
func (p *LendingPool) Address() common.Address {
	return p.address
}

// FeeBps returns the pool's premium in basis points.
func (p *LendingPool) FeeBps() uint16 {
	return p.feeBps
}

// Collectors returns the pool's metrics for registration with an exporter.
func (p *LendingPool) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.metrics.loanCount,
		p.metrics.premiums,
		p.metrics.failures,
		p.metrics.latency,
		p.metrics.liquidity,
	}
}

// GetLiquidity returns the amount of asset currently available to lend.
func (p *LendingPool) GetLiquidity(asset common.Address) *big.Int {
	liq := p.ledger.BalanceOf(p.address, asset)
	p.metrics.liquidity.WithLabelValues(asset.Hex()).Set(float64(liq.Uint64()))
	return liq
}

// Borrow transfers amount of asset to the receiver, invokes its callback,
// then pulls amount+premium via the allowance the callback granted. The
// entire sequence runs in one ledger transaction: callback failure, a false
// return, or a failed pull undoes the loan itself. referralCode is carried
// for parity with the upstream gateway and recorded in logs only.
func (p *LendingPool) Borrow(ctx context.Context, receiver Receiver, asset common.Address, amount *big.Int, params []byte, referralCode uint16) error {
	start := time.Now()
	defer func() {
		p.metrics.latency.Observe(time.Since(start).Seconds())
	}()

	if receiver == nil {
		return fmt.Errorf("receiver cannot be nil")
	}
	if math.IsZero(amount) {
		return fmt.Errorf("invalid loan amount")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	premium := math.BpsOf(amount, p.feeBps)
	repayment, err := math.CheckedAdd(amount, premium)
	if err != nil {
		return fmt.Errorf("repayment amount: %w", err)
	}

	// One borrow per pool at a time; the receiver holds its own guard too.
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ledger.BalanceOf(p.address, asset).Cmp(amount) < 0 {
		p.metrics.failures.Inc()
		return fmt.Errorf("pool lacks liquidity for %s of %s", amount.String(), asset.Hex())
	}

	err = p.ledger.WithTransaction(func() error {
		if err := p.ledger.Transfer(p.address, receiver.Address(), asset, amount); err != nil {
			return fmt.Errorf("loan funding failed: %w", err)
		}

		ok, err := receiver.HandleCallback(ctx, p.address, asset, amount, premium, receiver.Address(), params)
		if err != nil {
			return fmt.Errorf("callback failed: %w", err)
		}
		if !ok {
			return fmt.Errorf("callback rejected the operation")
		}

		if err := p.ledger.TransferFrom(p.address, receiver.Address(), p.address, asset, repayment); err != nil {
			return fmt.Errorf("repayment pull failed: %w", err)
		}
		return nil
	})
	if err != nil {
		p.metrics.failures.Inc()
		p.logger.Warn("flash loan rolled back",
			zap.String("asset", asset.Hex()),
			zap.String("amount", amount.String()),
			zap.Uint16("referral_code", referralCode),
			zap.Error(err))
		return err
	}

	p.metrics.loanCount.Inc()
	p.metrics.premiums.Add(float64(premium.Uint64()))
	p.logger.Info("flash loan settled",
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()),
		zap.String("premium", premium.String()),
		zap.Uint16("referral_code", referralCode))
	return nil
}
