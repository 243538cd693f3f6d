package flashloan

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/pool"
	"github.com/michaelpento.lv/flasharb/registry"
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000001111")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000002222")
	coreAddr = common.HexToAddress("0x0000000000000000000000000000000000003333")
	poolAddr = common.HexToAddress("0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9")
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// units scales a whole-token amount to 18 decimals.
func units(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type fixture struct {
	core   *Core
	ledger *ledger.Ledger
	pool   *pool.LendingPool
	events *EventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	l := ledger.New(logger)
	p, err := pool.New(poolAddr, pool.DefaultFeeBps, l, logger)
	require.NoError(t, err)
	require.NoError(t, l.Mint(poolAddr, weth, units(1_000_000)))

	events := NewEventLog()
	core, err := New(owner, coreAddr, registry.NewStatic(poolAddr), p, l, events, logger)
	require.NoError(t, err)
	return &fixture{core: core, ledger: l, pool: p, events: events}
}

func TestRequestLoan(t *testing.T) {
	t.Run("PremiumExactlyConsumed", func(t *testing.T) {
		f := newFixture(t)
		// 1000 units at 5 bps: premium is 0.5 units. Pre-fund exactly that.
		premium := new(big.Int).Div(units(1), big.NewInt(2))
		require.NoError(t, f.ledger.Mint(coreAddr, weth, premium))

		require.NoError(t, f.core.RequestLoan(context.Background(), owner, weth, units(1000)))

		assert.Equal(t, "0", f.core.GetBalance(weth).String())
		assert.Equal(t, []string{"LoanRequested", "LoanExecuted"}, f.events.Names())

		executed := f.events.Events()[1].(LoanExecuted)
		assert.Equal(t, units(1000).String(), executed.Amount.String())
		assert.Equal(t, premium.String(), executed.Premium.String())
		assert.Equal(t, new(big.Int).Add(units(1000), premium).String(), executed.TotalRepayment.String())
	})

	t.Run("LargeAmount", func(t *testing.T) {
		f := newFixture(t)
		// 100000 units at 5 bps: premium is 50 units.
		require.NoError(t, f.ledger.Mint(coreAddr, weth, units(50)))

		require.NoError(t, f.core.RequestLoan(context.Background(), owner, weth, units(100000)))
		assert.Equal(t, "0", f.core.GetBalance(weth).String())
	})

	t.Run("SurplusStays", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.Mint(coreAddr, weth, units(10)))
		pre := f.core.GetBalance(weth)

		require.NoError(t, f.core.RequestLoan(context.Background(), owner, weth, units(1000)))

		// Post-balance = pre-balance - premium.
		premium := new(big.Int).Div(units(1), big.NewInt(2))
		want := new(big.Int).Sub(pre, premium)
		assert.Equal(t, want.String(), f.core.GetBalance(weth).String())
	})

	t.Run("NonOwnerRejected", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.Mint(coreAddr, weth, units(1)))
		pre := f.core.GetBalance(weth)

		err := f.core.RequestLoan(context.Background(), stranger, weth, units(1000))
		require.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, pre.String(), f.core.GetBalance(weth).String())
		assert.Empty(t, f.events.Names())
	})

	t.Run("ZeroAmountFailsBeforePool", func(t *testing.T) {
		f := newFixture(t)
		gw := &countingGateway{inner: f.pool}
		core, err := New(owner, coreAddr, registry.NewStatic(poolAddr), gw, f.ledger, f.events, zaptest.NewLogger(t))
		require.NoError(t, err)

		err = core.RequestLoan(context.Background(), owner, weth, big.NewInt(0))
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.Zero(t, gw.calls)
	})

	t.Run("NullAssetFailsBeforePool", func(t *testing.T) {
		f := newFixture(t)
		gw := &countingGateway{inner: f.pool}
		core, err := New(owner, coreAddr, registry.NewStatic(poolAddr), gw, f.ledger, f.events, zaptest.NewLogger(t))
		require.NoError(t, err)

		err = core.RequestLoan(context.Background(), owner, common.Address{}, units(1))
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.Zero(t, gw.calls)
	})

	t.Run("UnderfundedFullyRestored", func(t *testing.T) {
		f := newFixture(t)
		// Premium would be 0.5 units; fund less than that.
		short := new(big.Int).Div(units(1), big.NewInt(4))
		require.NoError(t, f.ledger.Mint(coreAddr, weth, short))
		poolPre := f.ledger.BalanceOf(poolAddr, weth)

		err := f.core.RequestLoan(context.Background(), owner, weth, units(1000))
		require.ErrorIs(t, err, ErrInsufficientFunds)

		assert.Equal(t, short.String(), f.core.GetBalance(weth).String())
		assert.Equal(t, poolPre.String(), f.ledger.BalanceOf(poolAddr, weth).String())
		assert.Empty(t, f.events.Names())
	})
}

// countingGateway counts Borrow calls before delegating.
type countingGateway struct {
	inner PoolGateway
	calls int
}

func (g *countingGateway) Borrow(ctx context.Context, receiver pool.Receiver, asset common.Address, amount *big.Int, params []byte, referralCode uint16) error {
	g.calls++
	return g.inner.Borrow(ctx, receiver, asset, amount, params, referralCode)
}

func TestHandleCallbackAuthorization(t *testing.T) {
	f := newFixture(t)

	t.Run("WrongCaller", func(t *testing.T) {
		ok, err := f.core.HandleCallback(context.Background(), stranger, weth, units(1), big.NewInt(0), coreAddr, nil)
		require.ErrorIs(t, err, ErrUnauthorized)
		assert.False(t, ok)
	})

	t.Run("WrongInitiator", func(t *testing.T) {
		ok, err := f.core.HandleCallback(context.Background(), poolAddr, weth, units(1), big.NewInt(0), stranger, nil)
		require.ErrorIs(t, err, ErrUnauthorized)
		assert.False(t, ok)
	})

	t.Run("FundsNotReceived", func(t *testing.T) {
		// Registered pool, right initiator, but no principal on hand.
		ok, err := f.core.HandleCallback(context.Background(), poolAddr, weth, units(1), big.NewInt(0), coreAddr, nil)
		require.ErrorIs(t, err, ErrFundsNotReceived)
		assert.False(t, ok)
	})
}

func TestWithdraw(t *testing.T) {
	t.Run("DrainsEntireBalance", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.Mint(coreAddr, weth, units(7)))

		require.NoError(t, f.core.Withdraw(context.Background(), owner, weth))
		assert.Equal(t, "0", f.core.GetBalance(weth).String())
		assert.Equal(t, units(7).String(), f.ledger.BalanceOf(owner, weth).String())
		assert.Equal(t, []string{"FundsWithdrawn"}, f.events.Names())

		t.Run("SecondWithdrawFails", func(t *testing.T) {
			err := f.core.Withdraw(context.Background(), owner, weth)
			require.ErrorIs(t, err, ErrNoFundsToWithdraw)
		})
	})

	t.Run("NonOwnerRejected", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.Mint(coreAddr, weth, units(1)))
		err := f.core.Withdraw(context.Background(), stranger, weth)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("NativeCurrency", func(t *testing.T) {
		f := newFixture(t)
		// Native receipt is just a balance increase, no ceremony.
		require.NoError(t, f.ledger.Mint(coreAddr, ledger.NativeAsset, big.NewInt(123)))

		require.NoError(t, f.core.Withdraw(context.Background(), owner, ledger.NativeAsset))
		assert.Equal(t, "123", f.ledger.BalanceOf(owner, ledger.NativeAsset).String())
	})
}

func TestGetBalance(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "0", f.core.GetBalance(weth).String())
	require.NoError(t, f.ledger.Mint(coreAddr, weth, big.NewInt(42)))
	assert.Equal(t, "42", f.core.GetBalance(weth).String())
}

func BenchmarkRequestLoan(b *testing.B) {
	logger := zaptest.NewLogger(b)
	l := ledger.New(logger)
	p, _ := pool.New(poolAddr, pool.DefaultFeeBps, l, logger)
	_ = l.Mint(poolAddr, weth, units(1_000_000))
	_ = l.Mint(coreAddr, weth, units(1_000_000_000_000))

	core, _ := New(owner, coreAddr, registry.NewStatic(poolAddr), p, l, NewEventLog(), logger)
	amount := units(1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := core.RequestLoan(context.Background(), owner, weth, amount); err != nil {
			b.Fatal(err)
		}
	}
}
