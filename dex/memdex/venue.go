package memdex

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/utils/math"
)

const quoteCacheSize = 1024

// Venue is an in-memory exchange router settling against a shared ledger.
// Each directed token pair carries a fixed num/den rate; a swap debits the
// caller, credits the venue, and pays the recipient out of the venue's own
// inventory. Quotes are memoized in an LRU keyed by a hash of the route and
// amount; bumping the rate table version invalidates prior entries.
type Venue struct {
	name    string
	address common.Address
	ledger  Ledger
	logger  *zap.Logger

	mu      sync.RWMutex
	rates   map[pairKey]rate
	version uint64
	quotes  *lru.Cache
}

// Ledger is the settlement surface a venue needs.
type Ledger interface {
	Transfer(from, to, asset common.Address, amount *big.Int) error
	BalanceOf(holder, asset common.Address) *big.Int
}

type pairKey struct {
	in  common.Address
	out common.Address
}

type rate struct {
	num *big.Int
	den *big.Int
}

// New creates a venue with an empty rate table.
func New(name string, address common.Address, ledger Ledger, logger *zap.Logger) (*Venue, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	quotes, err := lru.New(quoteCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote cache: %w", err)
	}
	return &Venue{
		name:    name,
		address: address,
		ledger:  ledger,
		logger:  logger,
		rates:   make(map[pairKey]rate),
		quotes:  quotes,
	}, nil
}

// GetName returns the venue name.
func (v *Venue) GetName() string {
	return v.name
}

// GetRouterAddress returns the venue's settlement address.
func (v *Venue) GetRouterAddress() common.Address {
	return v.address
}

// SetRate fixes the directed rate tokenIn -> tokenOut at num/den and
// invalidates cached quotes.
func (v *Venue) SetRate(tokenIn, tokenOut common.Address, num, den int64) error {
	if num <= 0 || den <= 0 {
		return fmt.Errorf("invalid rate %d/%d for %s", num, den, v.name)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rates[pairKey{tokenIn, tokenOut}] = rate{num: big.NewInt(num), den: big.NewInt(den)}
	v.version++
	return nil
}

// GetAmountsOut quotes amountIn along path with no state mutation.
func (v *Venue) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("invalid path length %d", len(path))
	}
	if math.IsZero(amountIn) {
		return nil, fmt.Errorf("invalid quote amount")
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	key := v.quoteKey(amountIn, path)
	if cached, ok := v.quotes.Get(key); ok {
		return cloneAmounts(cached.([]*big.Int)), nil
	}

	amounts := make([]*big.Int, len(path))
	amounts[0] = math.Clone(amountIn)
	for i := 0; i < len(path)-1; i++ {
		r, ok := v.rates[pairKey{path[i], path[i+1]}]
		if !ok {
			return nil, fmt.Errorf("%s: no market %s -> %s", v.name, path[i].Hex(), path[i+1].Hex())
		}
		out := new(big.Int).Mul(amounts[i], r.num)
		amounts[i+1] = out.Div(out, r.den)
	}

	v.quotes.Add(key, cloneAmounts(amounts))
	return amounts, nil
}

// SwapExactTokensForTokens swaps amountIn along path. The caller pays the
// input leg; the recipient receives the output leg from venue inventory.
func (v *Venue) SwapExactTokensForTokens(ctx context.Context, caller common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) ([]*big.Int, error) {
	if deadline != 0 && time.Now().Unix() > deadline {
		return nil, fmt.Errorf("%s: swap deadline passed", v.name)
	}

	amounts, err := v.GetAmountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}

	out := amounts[len(amounts)-1]
	if amountOutMin != nil && out.Cmp(amountOutMin) < 0 {
		return nil, fmt.Errorf("%s: output %s below minimum %s", v.name, out.String(), amountOutMin.String())
	}

	tokenIn, tokenOut := path[0], path[len(path)-1]
	if v.ledger.BalanceOf(v.address, tokenOut).Cmp(out) < 0 {
		return nil, fmt.Errorf("%s: insufficient %s inventory for output %s", v.name, tokenOut.Hex(), out.String())
	}
	if err := v.ledger.Transfer(caller, v.address, tokenIn, amountIn); err != nil {
		return nil, fmt.Errorf("%s: input settlement failed: %w", v.name, err)
	}
	if err := v.ledger.Transfer(v.address, to, tokenOut, out); err != nil {
		// Refund the input leg so a lone swap never half-settles.
		_ = v.ledger.Transfer(v.address, caller, tokenIn, amountIn)
		return nil, fmt.Errorf("%s: output settlement failed: %w", v.name, err)
	}

	v.logger.Debug("swap settled",
		zap.String("venue", v.name),
		zap.String("token_in", tokenIn.Hex()),
		zap.String("token_out", tokenOut.Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", out.String()))

	return amounts, nil
}

// quoteKey assumes v.mu is held (read or write).
func (v *Venue) quoteKey(amountIn *big.Int, path []common.Address) uint64 {
	h := xxhash.New()
	var ver [8]byte
	binary.BigEndian.PutUint64(ver[:], v.version)
	_, _ = h.Write(ver[:])
	for _, hop := range path {
		_, _ = h.Write(hop.Bytes())
	}
	_, _ = h.Write(amountIn.Bytes())
	return h.Sum64()
}

func cloneAmounts(in []*big.Int) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, a := range in {
		out[i] = math.Clone(a)
	}
	return out
}
