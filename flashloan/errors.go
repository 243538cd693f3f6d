package flashloan

import (
	"errors"

	"github.com/michaelpento.lv/flasharb/utils/math"
)

// Every failure inside a borrow-use-repay unit aborts the whole unit; these
// sentinels name the terminal cause. There is no local recovery and no
// retry: partial execution could leave an outstanding debt or stranded
// funds, so the core always fails closed.
var (
	// ErrUnauthorized covers a non-owner caller, a callback from anything
	// but the registered pool, and a foreign initiator.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidArgument covers a zero amount or a null asset.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrFundsNotReceived indicates the callback fired before the loan
	// principal arrived.
	ErrFundsNotReceived = errors.New("loan funds not received")

	// ErrInsufficientFunds indicates the balance cannot cover the total
	// repayment.
	ErrInsufficientFunds = errors.New("insufficient funds to repay loan")

	// ErrProfitBelowMinimum indicates the arbitrage cleared repayment but
	// missed the caller's profit floor.
	ErrProfitBelowMinimum = errors.New("profit below minimum")

	// ErrNoFundsToWithdraw indicates a withdrawal against a zero balance.
	ErrNoFundsToWithdraw = errors.New("no funds to withdraw")

	// ErrArithmeticOverflow and ErrArithmeticUnderflow surface checked
	// amount arithmetic failures.
	ErrArithmeticOverflow  = math.ErrOverflow
	ErrArithmeticUnderflow = math.ErrUnderflow
)
