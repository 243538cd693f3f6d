package registry

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// PoolResolver resolves the current lending pool address. Consumers resolve
// once at construction and cache the result for their lifetime; a pool
// migration requires constructing a new consumer.
type PoolResolver interface {
	ResolvePool() (common.Address, error)
}

// ErrNoPool indicates the registry holds no pool address.
var ErrNoPool = errors.New("registry: no pool address configured")

// Static is a PoolResolver holding a fixed pool address.
type Static struct {
	pool common.Address
}

// NewStatic creates a resolver for a fixed pool address.
func NewStatic(pool common.Address) *Static {
	return &Static{pool: pool}
}

// ResolvePool returns the configured pool address.
func (s *Static) ResolvePool() (common.Address, error) {
	if s.pool == (common.Address{}) {
		return common.Address{}, ErrNoPool
	}
	return s.pool, nil
}
