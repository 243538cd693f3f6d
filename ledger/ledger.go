package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/utils/math"
)

// NativeAsset is the marker for the native currency balance.
var NativeAsset = common.Address{}

var (
	// ErrInsufficientBalance indicates a transfer exceeding the sender balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance indicates a pull exceeding the granted allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Ledger is an in-memory multi-asset token ledger. Balances and allowances
// are keyed by (holder, asset) and (owner, spender, asset) respectively; the
// zero asset address tracks the native currency. Allowance grants are
// additive only: there is no overwrite operation, so no reset-then-set race
// can strand or inflate an authorization.
//
// Mutations made inside a transaction scope (see WithTransaction) are staged
// in an undo journal and survive only if the whole scope commits. This is
// the reconstructed all-or-nothing boundary the hosting chain used to
// provide.
type Ledger struct {
	mu         sync.Mutex
	txMu       sync.Mutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	journal    []func()
	inTx       bool
	logger     *zap.Logger
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
	asset   common.Address
}

// New creates an empty ledger.
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		logger:     logger,
	}
}

// BalanceOf returns the holder's balance of asset. The result is a copy.
func (l *Ledger) BalanceOf(holder, asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return math.Clone(l.balance(holder, asset))
}

// Allowance returns how much spender may still pull from owner in asset.
func (l *Ledger) Allowance(owner, spender, asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.allowances[allowanceKey{owner, spender, asset}]; ok {
		return math.Clone(a)
	}
	return big.NewInt(0)
}

// Mint credits amount of asset to holder. Used to seed scenario state and
// pool liquidity; there is no burn.
func (l *Ledger) Mint(holder, asset common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := math.CheckedAdd(l.balance(holder, asset), amount)
	if err != nil {
		return err
	}
	l.setBalance(holder, asset, next)
	return nil
}

// Transfer moves amount of asset from one holder to another. The caller is
// trusted to speak for the sender; allowance enforcement is TransferFrom's.
func (l *Ledger) Transfer(from, to, asset common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, asset, amount)
}

// TransferFrom moves amount from `from` to `to` on behalf of spender,
// consuming spender's allowance. Standard allowance semantics: the pull
// fails if the remaining allowance is below amount.
func (l *Ledger) TransferFrom(spender, from, to, asset common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{from, spender, asset}
	granted := l.allowances[key]
	if granted == nil || granted.Cmp(amount) < 0 {
		return fmt.Errorf("%w: spender %s has %s of %s, needs %s",
			ErrInsufficientAllowance, spender.Hex(), granted.String(), asset.Hex(), amount.String())
	}

	remaining, err := math.CheckedSub(granted, amount)
	if err != nil {
		return err
	}
	if err := l.transfer(from, to, asset, amount); err != nil {
		return err
	}
	l.setAllowance(key, remaining)
	return nil
}

// IncreaseAllowance grows spender's allowance from owner by delta. Grants
// are monotonically additive within a transaction scope.
func (l *Ledger) IncreaseAllowance(owner, spender, asset common.Address, delta *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{owner, spender, asset}
	current := l.allowances[key]
	if current == nil {
		current = big.NewInt(0)
	}
	next, err := math.CheckedAdd(current, delta)
	if err != nil {
		return err
	}
	l.setAllowance(key, next)
	return nil
}

// WithTransaction runs fn inside a journal scope. Any error from fn rolls
// back every ledger mutation made within the scope; a nil return commits
// them. Scopes are serialized: a second transaction blocks until the first
// finishes.
func (l *Ledger) WithTransaction(fn func() error) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	l.mu.Lock()
	l.inTx = true
	l.journal = l.journal[:0]
	l.mu.Unlock()

	err := fn()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		for i := len(l.journal) - 1; i >= 0; i-- {
			l.journal[i]()
		}
		l.logger.Debug("ledger transaction rolled back",
			zap.Int("entries", len(l.journal)), zap.Error(err))
	}
	l.journal = nil
	l.inTx = false
	return err
}

// transfer assumes l.mu is held.
func (l *Ledger) transfer(from, to, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return math.ErrUnderflow
	}
	fromBal := l.balance(from, asset)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			ErrInsufficientBalance, from.Hex(), fromBal.String(), asset.Hex(), amount.String())
	}
	debited, err := math.CheckedSub(fromBal, amount)
	if err != nil {
		return err
	}
	credited, err := math.CheckedAdd(l.balance(to, asset), amount)
	if err != nil {
		return err
	}
	l.setBalance(from, asset, debited)
	l.setBalance(to, asset, credited)
	return nil
}

// balance assumes l.mu is held and returns the live value (never nil).
func (l *Ledger) balance(holder, asset common.Address) *big.Int {
	if held, ok := l.balances[holder]; ok {
		if b, ok := held[asset]; ok {
			return b
		}
	}
	return big.NewInt(0)
}

// setBalance assumes l.mu is held and journals the prior value when inside
// a transaction scope.
func (l *Ledger) setBalance(holder, asset common.Address, value *big.Int) {
	held, ok := l.balances[holder]
	if !ok {
		held = make(map[common.Address]*big.Int)
		l.balances[holder] = held
	}
	if l.inTx {
		prev, had := held[asset]
		if had {
			prev = math.Clone(prev)
		}
		l.journal = append(l.journal, func() {
			if had {
				held[asset] = prev
			} else {
				delete(held, asset)
			}
		})
	}
	held[asset] = value
}

// setAllowance assumes l.mu is held and journals the prior value when
// inside a transaction scope.
func (l *Ledger) setAllowance(key allowanceKey, value *big.Int) {
	if l.inTx {
		prev, had := l.allowances[key]
		if had {
			prev = math.Clone(prev)
		}
		l.journal = append(l.journal, func() {
			if had {
				l.allowances[key] = prev
			} else {
				delete(l.allowances, key)
			}
		})
	}
	l.allowances[key] = value
}
