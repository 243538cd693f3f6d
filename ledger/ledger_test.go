package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
	carol = common.HexToAddress("0xca20100000000000000000000000000000000003")
	dai   = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

func TestTransfer(t *testing.T) {
	l := New(zaptest.NewLogger(t))
	require.NoError(t, l.Mint(alice, dai, big.NewInt(1000)))

	require.NoError(t, l.Transfer(alice, bob, dai, big.NewInt(400)))
	assert.Equal(t, "600", l.BalanceOf(alice, dai).String())
	assert.Equal(t, "400", l.BalanceOf(bob, dai).String())

	t.Run("InsufficientBalance", func(t *testing.T) {
		err := l.Transfer(alice, bob, dai, big.NewInt(601))
		require.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, "600", l.BalanceOf(alice, dai).String())
	})

	t.Run("NativeAsset", func(t *testing.T) {
		require.NoError(t, l.Mint(alice, NativeAsset, big.NewInt(10)))
		require.NoError(t, l.Transfer(alice, bob, NativeAsset, big.NewInt(10)))
		assert.Equal(t, "10", l.BalanceOf(bob, NativeAsset).String())
	})
}

func TestAllowance(t *testing.T) {
	l := New(zaptest.NewLogger(t))
	require.NoError(t, l.Mint(alice, dai, big.NewInt(1000)))

	t.Run("PullWithoutGrant", func(t *testing.T) {
		err := l.TransferFrom(bob, alice, carol, dai, big.NewInt(1))
		require.ErrorIs(t, err, ErrInsufficientAllowance)
	})

	t.Run("AdditiveGrants", func(t *testing.T) {
		require.NoError(t, l.IncreaseAllowance(alice, bob, dai, big.NewInt(100)))
		require.NoError(t, l.IncreaseAllowance(alice, bob, dai, big.NewInt(50)))
		assert.Equal(t, "150", l.Allowance(alice, bob, dai).String())
	})

	t.Run("PullConsumesAllowance", func(t *testing.T) {
		require.NoError(t, l.TransferFrom(bob, alice, carol, dai, big.NewInt(120)))
		assert.Equal(t, "30", l.Allowance(alice, bob, dai).String())
		assert.Equal(t, "120", l.BalanceOf(carol, dai).String())

		err := l.TransferFrom(bob, alice, carol, dai, big.NewInt(31))
		require.ErrorIs(t, err, ErrInsufficientAllowance)
	})
}

func TestWithTransaction(t *testing.T) {
	l := New(zaptest.NewLogger(t))
	require.NoError(t, l.Mint(alice, dai, big.NewInt(1000)))

	t.Run("Commit", func(t *testing.T) {
		err := l.WithTransaction(func() error {
			return l.Transfer(alice, bob, dai, big.NewInt(100))
		})
		require.NoError(t, err)
		assert.Equal(t, "900", l.BalanceOf(alice, dai).String())
		assert.Equal(t, "100", l.BalanceOf(bob, dai).String())
	})

	t.Run("RollbackRestoresEveryMutation", func(t *testing.T) {
		boom := errors.New("boom")
		err := l.WithTransaction(func() error {
			if err := l.Transfer(alice, bob, dai, big.NewInt(500)); err != nil {
				return err
			}
			if err := l.IncreaseAllowance(bob, carol, dai, big.NewInt(500)); err != nil {
				return err
			}
			if err := l.TransferFrom(carol, bob, carol, dai, big.NewInt(200)); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		assert.Equal(t, "900", l.BalanceOf(alice, dai).String())
		assert.Equal(t, "100", l.BalanceOf(bob, dai).String())
		assert.Equal(t, "0", l.BalanceOf(carol, dai).String())
		assert.Equal(t, "0", l.Allowance(bob, carol, dai).String())
	})

	t.Run("RollbackRemovesFreshEntries", func(t *testing.T) {
		fresh := common.HexToAddress("0xf2e5a00000000000000000000000000000000009")
		_ = l.WithTransaction(func() error {
			if err := l.Transfer(alice, fresh, dai, big.NewInt(1)); err != nil {
				return err
			}
			return errors.New("abort")
		})
		assert.Equal(t, "0", l.BalanceOf(fresh, dai).String())
	})
}

func BenchmarkTransfer(b *testing.B) {
	l := New(zaptest.NewLogger(b))
	_ = l.Mint(alice, dai, new(big.Int).Lsh(big.NewInt(1), 200))
	amount := big.NewInt(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = l.Transfer(alice, bob, dai, amount)
	}
}
