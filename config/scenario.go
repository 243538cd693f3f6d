package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	yaml "gopkg.in/yaml.v2"
)

// Scenario describes an in-memory market: token balances to seed, venue
// rate tables, and the trade to attempt. It exists so the simulate and run
// commands can exercise a full borrow-trade-repay cycle without any live
// collaborator.
type Scenario struct {
	Balances []ScenarioBalance `yaml:"balances"`
	Venues   []ScenarioVenue   `yaml:"venues"`
	Trade    ScenarioTrade     `yaml:"trade"`
}

type ScenarioBalance struct {
	Holder string `yaml:"holder"`
	Token  string `yaml:"token"`
	Amount string `yaml:"amount"`
}

type ScenarioVenue struct {
	Name    string         `yaml:"name"`
	Address string         `yaml:"address"`
	Rates   []ScenarioRate `yaml:"rates"`
}

type ScenarioRate struct {
	TokenIn  string `yaml:"token_in"`
	TokenOut string `yaml:"token_out"`
	Num      int64  `yaml:"num"`
	Den      int64  `yaml:"den"`
}

type ScenarioTrade struct {
	TokenBorrow string `yaml:"token_borrow"`
	TokenTarget string `yaml:"token_target"`
	Amount      string `yaml:"amount"`
	MinProfit   string `yaml:"min_profit"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks addresses and amounts before any state is seeded.
func (s *Scenario) Validate() error {
	if len(s.Venues) < 2 {
		return fmt.Errorf("scenario needs at least two venues, has %d", len(s.Venues))
	}
	for _, b := range s.Balances {
		if !common.IsHexAddress(b.Holder) || !common.IsHexAddress(b.Token) {
			return fmt.Errorf("balance entry %q/%q: holder and token must be hex addresses", b.Holder, b.Token)
		}
		if _, ok := new(big.Int).SetString(b.Amount, 10); !ok {
			return fmt.Errorf("balance amount %q must be a base-10 integer", b.Amount)
		}
	}
	for _, v := range s.Venues {
		if !common.IsHexAddress(v.Address) {
			return fmt.Errorf("venue %q: address must be a hex address", v.Name)
		}
		for _, r := range v.Rates {
			if r.Num <= 0 || r.Den <= 0 {
				return fmt.Errorf("venue %q: rate %d/%d must be positive", v.Name, r.Num, r.Den)
			}
		}
	}
	if !common.IsHexAddress(s.Trade.TokenBorrow) || !common.IsHexAddress(s.Trade.TokenTarget) {
		return fmt.Errorf("trade tokens must be hex addresses")
	}
	if _, ok := new(big.Int).SetString(s.Trade.Amount, 10); !ok {
		return fmt.Errorf("trade amount %q must be a base-10 integer", s.Trade.Amount)
	}
	return nil
}

// Amount returns a parsed scenario amount. Call Validate first.
func Amount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
