package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State names where the core is inside one atomic unit. It exists for
// logging and metrics only: every failure path lands back in StateIdle with
// no other effect visible, so StateAborted is never observable from outside.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateAwaitingCallback
	StateExecuting
	StateRepaying
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateExecuting:
		return "executing"
	case StateRepaying:
		return "repaying"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// OperationContext is the callback's view of one atomic unit. It is created
// when the pool calls back in and ceases to exist at the unit's boundary.
type OperationContext struct {
	Asset          common.Address
	Amount         *big.Int
	Premium        *big.Int
	TotalRepayment *big.Int
	Initiator      common.Address
	Params         []byte

	followUps []Event
}

// QueueEvent schedules ev to be emitted after LoanExecuted, preserving the
// observable event order for hooks that report their own outcome.
func (op *OperationContext) QueueEvent(ev Event) {
	op.followUps = append(op.followUps, ev)
}

// Hook is the custom-logic extension point run inside the callback, after
// receipt of the principal and before the solvency gate. A hook that needs
// multiple sequential borrow cycles may issue further requests through its
// own collaborators; the base hook performs a no-op solvency re-check.
type Hook interface {
	Execute(ctx context.Context, op *OperationContext) error
}
