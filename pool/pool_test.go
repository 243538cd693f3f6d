package pool

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/utils/math"
)

var (
	poolAddr = common.HexToAddress("0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9")
	borrower = common.HexToAddress("0x00000000000000000000000000000000000b0220")
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// mockReceiver implements Receiver with scripted callback behavior.
type mockReceiver struct {
	addr       common.Address
	l          *ledger.Ledger
	approve    bool // grant the repayment allowance
	burn       *big.Int
	returnSelf bool
	callbackErr error
	seenPremium *big.Int
	seenParams  []byte
}

func (m *mockReceiver) Address() common.Address { return m.addr }

func (m *mockReceiver) HandleCallback(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, params []byte) (bool, error) {
	m.seenPremium = math.Clone(premium)
	m.seenParams = params
	if m.callbackErr != nil {
		return false, m.callbackErr
	}
	if m.burn != nil {
		// Simulate spending part of the borrowed funds irrecoverably.
		if err := m.l.Transfer(m.addr, common.HexToAddress("0xdead"), asset, m.burn); err != nil {
			return false, err
		}
	}
	if m.approve {
		repay := new(big.Int).Add(amount, premium)
		if err := m.l.IncreaseAllowance(m.addr, caller, asset, repay); err != nil {
			return false, err
		}
	}
	return !m.returnSelf, nil
}

func newPool(t *testing.T, liquidity int64) (*LendingPool, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(zaptest.NewLogger(t))
	p, err := New(poolAddr, DefaultFeeBps, l, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, l.Mint(poolAddr, weth, big.NewInt(liquidity)))
	return p, l
}

func TestBorrowSettles(t *testing.T) {
	p, l := newPool(t, 1_000_000)
	recv := &mockReceiver{addr: borrower, l: l, approve: true}

	// Pre-fund the borrower with exactly the premium: 100000 * 5bps = 50.
	require.NoError(t, l.Mint(borrower, weth, big.NewInt(50)))

	err := p.Borrow(context.Background(), recv, weth, big.NewInt(100000), []byte{0x1}, 0)
	require.NoError(t, err)

	assert.Equal(t, "0", l.BalanceOf(borrower, weth).String())
	assert.Equal(t, "1000050", l.BalanceOf(poolAddr, weth).String())
	assert.Equal(t, "50", recv.seenPremium.String())
	assert.Equal(t, []byte{0x1}, recv.seenParams)
	assert.Equal(t, "0", l.Allowance(borrower, poolAddr, weth).String())
}

func TestBorrowRollsBack(t *testing.T) {
	t.Run("CallbackError", func(t *testing.T) {
		p, l := newPool(t, 1_000_000)
		recv := &mockReceiver{addr: borrower, l: l, callbackErr: errors.New("strategy failed")}
		require.NoError(t, l.Mint(borrower, weth, big.NewInt(50)))

		err := p.Borrow(context.Background(), recv, weth, big.NewInt(100000), nil, 0)
		require.Error(t, err)
		assert.Equal(t, "50", l.BalanceOf(borrower, weth).String())
		assert.Equal(t, "1000000", l.BalanceOf(poolAddr, weth).String())
	})

	t.Run("CallbackReturnsFalse", func(t *testing.T) {
		p, l := newPool(t, 1_000_000)
		recv := &mockReceiver{addr: borrower, l: l, approve: true, returnSelf: true}
		require.NoError(t, l.Mint(borrower, weth, big.NewInt(50)))

		err := p.Borrow(context.Background(), recv, weth, big.NewInt(100000), nil, 0)
		require.Error(t, err)
		// Rollback also voids the allowance the callback granted.
		assert.Equal(t, "0", l.Allowance(borrower, poolAddr, weth).String())
		assert.Equal(t, "50", l.BalanceOf(borrower, weth).String())
	})

	t.Run("NoAllowanceGranted", func(t *testing.T) {
		p, l := newPool(t, 1_000_000)
		recv := &mockReceiver{addr: borrower, l: l, approve: false}
		require.NoError(t, l.Mint(borrower, weth, big.NewInt(50)))

		err := p.Borrow(context.Background(), recv, weth, big.NewInt(100000), nil, 0)
		require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
		assert.Equal(t, "50", l.BalanceOf(borrower, weth).String())
		assert.Equal(t, "1000000", l.BalanceOf(poolAddr, weth).String())
	})

	t.Run("BorrowerSpentTooMuch", func(t *testing.T) {
		p, l := newPool(t, 1_000_000)
		// Burns 100 of the loan but only holds the 50-unit premium: the
		// pull of amount+premium must fail and undo the burn too.
		recv := &mockReceiver{addr: borrower, l: l, approve: true, burn: big.NewInt(100)}
		require.NoError(t, l.Mint(borrower, weth, big.NewInt(50)))

		err := p.Borrow(context.Background(), recv, weth, big.NewInt(100000), nil, 0)
		require.Error(t, err)
		assert.Equal(t, "50", l.BalanceOf(borrower, weth).String())
		assert.Equal(t, "0", l.BalanceOf(common.HexToAddress("0xdead"), weth).String())
		assert.Equal(t, "1000000", l.BalanceOf(poolAddr, weth).String())
	})
}

func TestBorrowValidation(t *testing.T) {
	p, l := newPool(t, 100)
	recv := &mockReceiver{addr: borrower, l: l, approve: true}

	t.Run("ZeroAmount", func(t *testing.T) {
		err := p.Borrow(context.Background(), recv, weth, big.NewInt(0), nil, 0)
		require.Error(t, err)
	})

	t.Run("NilReceiver", func(t *testing.T) {
		err := p.Borrow(context.Background(), nil, weth, big.NewInt(1), nil, 0)
		require.Error(t, err)
	})

	t.Run("InsufficientLiquidity", func(t *testing.T) {
		err := p.Borrow(context.Background(), recv, weth, big.NewInt(101), nil, 0)
		require.Error(t, err)
	})
}

func TestGetLiquidity(t *testing.T) {
	p, _ := newPool(t, 12345)
	assert.Equal(t, "12345", p.GetLiquidity(weth).String())
}
