package arbitrage

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Trade parameters ride through the pool as opaque bytes and come back in
// the callback untouched, so they are ABI-encoded the same way the original
// gateway marshals them.
var paramsArguments = abi.Arguments{
	{Name: "tokenTarget", Type: mustType("address")},
	{Name: "minProfit", Type: mustType("uint256")},
}

func mustType(solidity string) abi.Type {
	t, err := abi.NewType(solidity, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %q: %v", solidity, err))
	}
	return t
}

// EncodeParams packs the trade plan for the borrow call.
func EncodeParams(tokenTarget common.Address, minProfit *big.Int) ([]byte, error) {
	return paramsArguments.Pack(tokenTarget, minProfit)
}

// DecodeParams unpacks a trade plan delivered to the callback.
func DecodeParams(data []byte) (common.Address, *big.Int, error) {
	values, err := paramsArguments.Unpack(data)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to decode arbitrage params: %w", err)
	}
	tokenTarget, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("unexpected tokenTarget type %T", values[0])
	}
	minProfit, ok := values[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("unexpected minProfit type %T", values[1])
	}
	return tokenTarget, minProfit, nil
}
