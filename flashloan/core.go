package flashloan

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/pool"
	"github.com/michaelpento.lv/flasharb/registry"
	"github.com/michaelpento.lv/flasharb/utils/math"
)

// Ledger is the balance surface the core needs. Transfers of the native
// asset to the core address are always accepted; receipt is nothing more
// than a balance increase.
type Ledger interface {
	BalanceOf(holder, asset common.Address) *big.Int
	Transfer(from, to, asset common.Address, amount *big.Int) error
	IncreaseAllowance(owner, spender, asset common.Address, delta *big.Int) error
}

// PoolGateway is phase one of the two-phase loan protocol: handing control
// to the lender. Phase two is the lender invoking HandleCallback through
// the pool.Receiver upcall the core itself implements.
type PoolGateway interface {
	Borrow(ctx context.Context, receiver pool.Receiver, asset common.Address, amount *big.Int, params []byte, referralCode uint16) error
}

// Core orchestrates one borrow-use-repay unit at a time: request, loan
// receipt, hook execution, repayment authorization. The pool address is
// resolved once at construction and cached for the core's lifetime; a pool
// migration requires a new core. A mutex held across each whole operation
// reconstructs the call exclusivity the original host provided.
type Core struct {
	owner   common.Address
	address common.Address
	pool    common.Address
	gateway PoolGateway
	ledger  Ledger
	hook    Hook
	events  EventSink
	logger  *zap.Logger
	metrics *coreMetrics

	mu      sync.Mutex
	state   State
	pending []Event
}

// New creates a core owned by owner, settling at address, borrowing from
// the pool the resolver names. The base hook re-checks solvency and nothing
// else; SetHook installs strategy behavior.
func New(owner, address common.Address, resolver registry.PoolResolver, gateway PoolGateway, ledger Ledger, events EventSink, logger *zap.Logger) (*Core, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway cannot be nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if events == nil {
		events = NewEventLog()
	}

	pool, err := resolver.ResolvePool()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pool: %w", err)
	}

	c := &Core{
		owner:   owner,
		address: address,
		pool:    pool,
		gateway: gateway,
		ledger:  ledger,
		events:  events,
		logger:  logger,
		metrics: newCoreMetrics(),
		state:   StateIdle,
	}
	c.hook = &solvencyHook{ledger: ledger, self: address}
	return c, nil
}

// Address returns the core's settlement address.
func (c *Core) Address() common.Address {
	return c.address
}

// Owner returns the current owner.
func (c *Core) Owner() common.Address {
	return c.owner
}

// Pool returns the cached pool address.
func (c *Core) Pool() common.Address {
	return c.pool
}

// Collectors returns the core's metrics for registration with an exporter.
func (c *Core) Collectors() []prometheus.Collector {
	return c.metrics.collectors()
}

// SetHook replaces the callback hook. Install before the first operation.
func (c *Core) SetHook(h Hook) {
	if h != nil {
		c.hook = h
	}
}

// RequestLoan borrows amount of asset and repays it plus premium within one
// atomic unit. Owner-only. Fails before any external call on a null asset
// or zero amount. The pool's failure, the callback's failure, or a failed
// repayment pull all fail this call as a single outcome, with the loan and
// every interim transfer undone.
func (c *Core) RequestLoan(ctx context.Context, caller, asset common.Address, amount *big.Int) error {
	return c.request(ctx, caller, asset, amount, nil)
}

// RequestLoanWithParams is RequestLoan carrying opaque params through the
// pool to the callback hook. Strategy extensions use it to smuggle their
// trade plan across the control-flow inversion.
func (c *Core) RequestLoanWithParams(ctx context.Context, caller, asset common.Address, amount *big.Int, params []byte) error {
	return c.request(ctx, caller, asset, amount, params)
}

func (c *Core) request(ctx context.Context, caller, asset common.Address, amount *big.Int, params []byte) error {
	start := time.Now()
	defer func() {
		c.metrics.latency.Observe(time.Since(start).Seconds())
	}()

	if caller != c.owner {
		c.metrics.fail("unauthorized")
		return fmt.Errorf("%w: caller %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	if asset == (common.Address{}) {
		c.metrics.fail("invalid_argument")
		return fmt.Errorf("%w: null asset", ErrInvalidArgument)
	}
	if math.IsZero(amount) {
		c.metrics.fail("invalid_argument")
		return fmt.Errorf("%w: zero amount", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.activeOps.Inc()
	defer c.metrics.activeOps.Dec()

	c.setState(StateRequesting)
	c.pending = c.pending[:0]
	c.queue(LoanRequested{Asset: asset, Amount: math.Clone(amount), Initiator: c.address})

	c.setState(StateAwaitingCallback)
	err := c.gateway.Borrow(ctx, c, asset, amount, params, 0)
	if err != nil {
		c.abort(err)
		return err
	}

	c.setState(StateIdle)
	c.flush()
	c.metrics.loans.Inc()
	c.metrics.volume.Add(float64(amount.Uint64()))
	c.metrics.observeSuccess(true)
	c.logger.Info("flash loan completed",
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

// HandleCallback is the lender's phase-two upcall. It is honored only when
// caller is the registered pool and initiator is this core itself; anything
// else is an adversarial call and fails closed. It deliberately does not
// take the guard mutex: the pool invokes it while RequestLoan holds it.
func (c *Core) HandleCallback(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, params []byte) (bool, error) {
	if caller != c.pool {
		c.metrics.fail("unauthorized")
		return false, fmt.Errorf("%w: callback from %s, expected pool %s", ErrUnauthorized, caller.Hex(), c.pool.Hex())
	}
	if initiator != c.address {
		c.metrics.fail("unauthorized")
		return false, fmt.Errorf("%w: initiator %s is not this core", ErrUnauthorized, initiator.Hex())
	}

	if c.ledger.BalanceOf(c.address, asset).Cmp(amount) < 0 {
		c.metrics.fail("funds_not_received")
		return false, fmt.Errorf("%w: balance below loan amount %s", ErrFundsNotReceived, amount.String())
	}

	totalRepayment, err := math.CheckedAdd(amount, premium)
	if err != nil {
		c.metrics.fail("overflow")
		return false, fmt.Errorf("total repayment: %w", err)
	}

	op := &OperationContext{
		Asset:          asset,
		Amount:         math.Clone(amount),
		Premium:        math.Clone(premium),
		TotalRepayment: totalRepayment,
		Initiator:      initiator,
		Params:         params,
	}

	c.setState(StateExecuting)
	if err := c.hook.Execute(ctx, op); err != nil {
		c.metrics.fail("hook")
		return false, fmt.Errorf("hook failed: %w", err)
	}

	if c.ledger.BalanceOf(c.address, asset).Cmp(totalRepayment) < 0 {
		c.metrics.fail("insufficient_funds")
		return false, fmt.Errorf("%w: need %s of %s", ErrInsufficientFunds, totalRepayment.String(), asset.Hex())
	}

	c.setState(StateRepaying)
	// Additive grant: the pool pulls exactly this delta, never a stale
	// overwritten figure.
	if err := c.ledger.IncreaseAllowance(c.address, c.pool, asset, totalRepayment); err != nil {
		c.metrics.fail("overflow")
		return false, fmt.Errorf("repayment authorization: %w", err)
	}

	c.queue(LoanExecuted{
		Asset:          asset,
		Amount:         math.Clone(amount),
		Premium:        math.Clone(premium),
		TotalRepayment: math.Clone(totalRepayment),
	})
	for _, ev := range op.followUps {
		c.queue(ev)
	}

	c.logger.Debug("callback authorized repayment",
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()),
		zap.String("premium", premium.String()),
		zap.String("total_repayment", totalRepayment.String()))
	return true, nil
}

// Withdraw transfers the core's entire balance of token to the owner.
// Owner-only; the zero address marker selects the native currency. Partial
// withdrawal does not exist.
func (c *Core) Withdraw(ctx context.Context, caller, token common.Address) error {
	if caller != c.owner {
		c.metrics.fail("unauthorized")
		return fmt.Errorf("%w: caller %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	balance := c.ledger.BalanceOf(c.address, token)
	if balance.Sign() == 0 {
		c.metrics.fail("nothing_to_withdraw")
		return fmt.Errorf("%w: token %s", ErrNoFundsToWithdraw, token.Hex())
	}

	if err := c.ledger.Transfer(c.address, c.owner, token, balance); err != nil {
		return fmt.Errorf("withdrawal transfer failed: %w", err)
	}

	c.events.Emit(FundsWithdrawn{Token: token, Amount: math.Clone(balance), Recipient: c.owner})
	c.metrics.withdrawals.Inc()
	c.logger.Info("funds withdrawn",
		zap.String("token", token.Hex()),
		zap.String("amount", balance.String()),
		zap.String("recipient", c.owner.Hex()))
	return nil
}

// GetBalance returns the core's balance of token, the native currency for
// the zero address marker. Pure query.
func (c *Core) GetBalance(token common.Address) *big.Int {
	return c.ledger.BalanceOf(c.address, token)
}

// queue buffers ev for the current unit; buffered events reach the sink
// only if the unit commits, so an aborted unit leaves the log untouched.
func (c *Core) queue(ev Event) {
	c.pending = append(c.pending, ev)
}

func (c *Core) flush() {
	for _, ev := range c.pending {
		c.events.Emit(ev)
	}
	c.pending = nil
}

func (c *Core) abort(cause error) {
	c.setState(StateAborted)
	c.pending = nil
	c.metrics.observeSuccess(false)
	c.logger.Warn("atomic unit aborted", zap.Error(cause))
	c.setState(StateIdle)
}

func (c *Core) setState(s State) {
	c.state = s
	c.metrics.stateGauge.Set(float64(s))
}

// solvencyHook is the base custom-logic hook: it re-checks that the
// principal is still on hand and does nothing else.
type solvencyHook struct {
	ledger Ledger
	self   common.Address
}

func (h *solvencyHook) Execute(_ context.Context, op *OperationContext) error {
	if h.ledger.BalanceOf(h.self, op.Asset).Cmp(op.Amount) < 0 {
		return fmt.Errorf("%w: principal no longer on hand", ErrFundsNotReceived)
	}
	return nil
}
