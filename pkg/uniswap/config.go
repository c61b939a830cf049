package uniswap

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config carries the protocol addresses and tuning the encoding and quoting
// layers need. It is constructed once at startup and passed by reference.
type Config struct {
	universalRouter common.Address
	quoter          common.Address
	hook            common.Address
	strategyStore   common.Address

	swapGasLimit       uint64
	slippagePercentage float64
	deadlineDuration   time.Duration
}

func NewConfig(universalRouter, quoter, hook, strategyStore common.Address, swapGasLimit uint64, slippagePercentage float64, deadlineDuration time.Duration) *Config {
	return &Config{
		universalRouter:    universalRouter,
		quoter:             quoter,
		hook:               hook,
		strategyStore:      strategyStore,
		swapGasLimit:       swapGasLimit,
		slippagePercentage: slippagePercentage,
		deadlineDuration:   deadlineDuration,
	}
}

func (c *Config) UniversalRouter() common.Address { return c.universalRouter }
func (c *Config) Quoter() common.Address          { return c.quoter }
func (c *Config) Hook() common.Address            { return c.hook }
func (c *Config) StrategyStore() common.Address   { return c.strategyStore }
func (c *Config) SwapGasLimit() uint64            { return c.swapGasLimit }
func (c *Config) Slippage() float64               { return c.slippagePercentage }
func (c *Config) Deadline() time.Duration         { return c.deadlineDuration }
