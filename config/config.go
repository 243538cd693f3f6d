package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds the static wiring of one core instance. The pool address is
// immutable once a core is constructed from it; the owner is the only
// mutable principal; router addresses are fixed constants of the arbitrage
// variant.
type Config struct {
	// Principals and collaborators
	Owner       string `json:"owner"`
	CoreAddress string `json:"core_address"`
	PoolAddress string `json:"pool_address"`
	RouterOut   string `json:"router_out"`
	RouterBack  string `json:"router_back"`

	// Economics
	FeeBps      uint16 `json:"fee_bps"`
	SlippageBps uint16 `json:"slippage_bps"`
	MinProfit   string `json:"min_profit"`

	// Observability
	PrometheusEnabled  bool   `json:"prometheus_enabled"`
	PrometheusEndpoint string `json:"prometheus_endpoint"`
}

// LoadConfig reads path (JSON), then applies environment overrides. An
// empty path yields defaults plus environment.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		FeeBps: 5,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvOwner); v != "" {
		c.Owner = v
	}
	if v := os.Getenv(EnvPoolAddress); v != "" {
		c.PoolAddress = v
	}
	if v := os.Getenv(EnvSlippageBps); v != "" {
		if bps, err := strconv.ParseUint(v, 10, 16); err == nil {
			c.SlippageBps = uint16(bps)
		}
	}
	if v := os.Getenv(EnvMinProfit); v != "" {
		c.MinProfit = v
	}
}

// Validate rejects configurations a core cannot be safely built from.
// Slippage tolerance is required: the permissive upstream default is not
// honored here.
func (c *Config) Validate() error {
	var problems []string

	if !common.IsHexAddress(c.Owner) {
		problems = append(problems, "owner must be a hex address")
	}
	if !common.IsHexAddress(c.PoolAddress) {
		problems = append(problems, "pool_address must be a hex address")
	}
	if c.SlippageBps == 0 || c.SlippageBps >= 10000 {
		problems = append(problems, "slippage_bps must be in (0, 10000)")
	}
	if c.FeeBps >= 10000 {
		problems = append(problems, "fee_bps must be below 10000")
	}
	if c.MinProfit != "" {
		if _, ok := new(big.Int).SetString(c.MinProfit, 10); !ok {
			problems = append(problems, "min_profit must be a base-10 integer")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// OwnerAddress parses the configured owner. Call Validate first.
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Owner)
}

// PoolAddr parses the configured pool address. Call Validate first.
func (c *Config) PoolAddr() common.Address {
	return common.HexToAddress(c.PoolAddress)
}

// MinProfitAmount parses the configured profit floor, zero when unset.
func (c *Config) MinProfitAmount() *big.Int {
	if c.MinProfit == "" {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(c.MinProfit, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
