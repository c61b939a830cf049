package types

import (
	"math/big"
	"time"
)

// GasPriceSource tells callers where a snapshot came from so degraded data
// can be disclosed.
type GasPriceSource string

const (
	GasSourceAPI      GasPriceSource = "api"
	GasSourceCache    GasPriceSource = "cache"
	GasSourceFallback GasPriceSource = "fallback"
)

// GasCategory selects one of the oracle's price tiers.
type GasCategory string

const (
	GasCategorySafe     GasCategory = "safe"
	GasCategoryStandard GasCategory = "standard"
	GasCategoryFast     GasCategory = "fast"
)

// GasPriceData is a cached snapshot of the gas oracle. Prices are in Gwei.
type GasPriceData struct {
	SafeGwei     float64        `json:"safe_gwei"`
	StandardGwei float64        `json:"standard_gwei"`
	FastGwei     float64        `json:"fast_gwei"`
	BaseFeeGwei  float64        `json:"base_fee_gwei"`
	LastBlock    uint64         `json:"last_block"`
	UpdatedAt    time.Time      `json:"updated_at"`
	EthUsdPrice  float64        `json:"eth_usd_price"`
	Source       GasPriceSource `json:"source"`
}

// PriceFor returns the tier price in Gwei for a category, defaulting to the
// standard tier for unknown categories.
func (g GasPriceData) PriceFor(category GasCategory) float64 {
	switch category {
	case GasCategorySafe:
		return g.SafeGwei
	case GasCategoryFast:
		return g.FastGwei
	default:
		return g.StandardGwei
	}
}

// FeeEstimate is a formatted fee projection for a gas limit and tier.
type FeeEstimate struct {
	GasLimit     uint64      `json:"gas_limit"`
	GasPriceGwei float64     `json:"gas_price_gwei"`
	Category     GasCategory `json:"category"`
	FeeWei       *big.Int    `json:"fee_wei"`
	FeeEth       string      `json:"fee_eth"`
	FeeUsd       string      `json:"fee_usd"`
}
