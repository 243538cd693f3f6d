package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Router is the narrow exchange surface the arbitrage path needs: one state
// mutating swap and one read-only quote. The caller pays for the swap; the
// recipient receives the output leg.
type Router interface {
	// GetName returns the venue name.
	GetName() string

	// GetRouterAddress returns the venue's settlement address.
	GetRouterAddress() common.Address

	// SwapExactTokensForTokens swaps amountIn along path, failing if the
	// output would be below amountOutMin or the deadline (unix seconds,
	// 0 = none) has passed. Returns the per-hop amounts, input first.
	SwapExactTokensForTokens(ctx context.Context, caller common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) ([]*big.Int, error)

	// GetAmountsOut quotes amountIn along path with no state mutation.
	GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
}
