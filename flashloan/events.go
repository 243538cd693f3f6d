package flashloan

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Event is one observable fact about a completed state change. Events for a
// successful operation appear in order: LoanRequested, LoanExecuted, then
// any hook follow-ups such as ArbitrageExecuted.
type Event interface {
	Name() string
}

// LoanRequested is emitted when an owner-initiated request passes argument
// validation, before the pool is called.
type LoanRequested struct {
	Asset     common.Address
	Amount    *big.Int
	Initiator common.Address
}

func (LoanRequested) Name() string { return "LoanRequested" }

// LoanExecuted is emitted when the callback has authorized repayment.
type LoanExecuted struct {
	Asset          common.Address
	Amount         *big.Int
	Premium        *big.Int
	TotalRepayment *big.Int
}

func (LoanExecuted) Name() string { return "LoanExecuted" }

// ArbitrageExecuted is emitted after LoanExecuted when a two-hop trade
// cleared repayment and the profit floor.
type ArbitrageExecuted struct {
	Asset       common.Address
	TokenTarget common.Address
	Amount      *big.Int
	Profit      *big.Int
}

func (ArbitrageExecuted) Name() string { return "ArbitrageExecuted" }

// FundsWithdrawn is emitted when the owner drains a balance.
type FundsWithdrawn struct {
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
}

func (FundsWithdrawn) Name() string { return "FundsWithdrawn" }

// EventSink receives emitted events.
type EventSink interface {
	Emit(Event)
}

// EventLog is an in-memory EventSink recording events in emission order.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

// NewEventLog creates an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Emit appends ev to the log.
func (el *EventLog) Emit(ev Event) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.events = append(el.events, ev)
}

// Events returns a copy of the recorded events.
func (el *EventLog) Events() []Event {
	el.mu.Lock()
	defer el.mu.Unlock()
	out := make([]Event, len(el.events))
	copy(out, el.events)
	return out
}

// Names returns the recorded event names in order.
func (el *EventLog) Names() []string {
	el.mu.Lock()
	defer el.mu.Unlock()
	names := make([]string, len(el.events))
	for i, ev := range el.events {
		names[i] = ev.Name()
	}
	return names
}
