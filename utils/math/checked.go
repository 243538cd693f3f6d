package math

import (
	"errors"
	"math/big"
)

// Amounts are unsigned fixed-point integers in each asset's smallest native
// unit, capped at 2^256-1 to match the numeric envelope of the ledgers this
// core settles against. Every operation is checked: overflow and underflow
// are errors, never wraparound.

var (
	// ErrOverflow indicates a result above 2^256-1.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrUnderflow indicates a result below zero.
	ErrUnderflow = errors.New("arithmetic underflow")
)

// MaxAmount is the largest representable amount (2^256 - 1).
var MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// bpsDenominator converts basis points to a fraction (1 bps = 0.01%).
var bpsDenominator = big.NewInt(10000)

// CheckedAdd returns x + y or ErrOverflow if the sum exceeds MaxAmount.
func CheckedAdd(x, y *big.Int) (*big.Int, error) {
	if x == nil || y == nil || x.Sign() < 0 || y.Sign() < 0 {
		return nil, ErrUnderflow
	}
	sum := new(big.Int).Add(x, y)
	if sum.Cmp(MaxAmount) > 0 {
		return nil, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns x - y or ErrUnderflow if y exceeds x.
func CheckedSub(x, y *big.Int) (*big.Int, error) {
	if x == nil || y == nil || x.Sign() < 0 || y.Sign() < 0 {
		return nil, ErrUnderflow
	}
	if x.Cmp(y) < 0 {
		return nil, ErrUnderflow
	}
	return new(big.Int).Sub(x, y), nil
}

// BpsOf returns amount * bps / 10000 with integer floor. This is the
// premium rule shared by the pool and the strategy simulation.
func BpsOf(amount *big.Int, bps uint16) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Div(out, bpsDenominator)
}

// Clone returns an independent copy of x, treating nil as zero.
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(x)
}

// IsZero reports whether x is nil or zero.
func IsZero(x *big.Int) bool {
	return x == nil || x.Sign() == 0
}
