package testutils

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/ledger"
)

// RandomAddress derives a fresh address from a throwaway ECDSA key.
func RandomAddress(t *testing.T) common.Address {
	t.Helper()

	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// NewLedger builds a test ledger with the given holders funded. Balances
// maps holder to asset to amount.
func NewLedger(t *testing.T, balances map[common.Address]map[common.Address]*big.Int) *ledger.Ledger {
	t.Helper()

	l := ledger.New(zaptest.NewLogger(t))
	for holder, assets := range balances {
		for asset, amount := range assets {
			require.NoError(t, l.Mint(holder, asset, amount))
		}
	}
	return l
}
