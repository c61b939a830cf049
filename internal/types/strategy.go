package types

import (
	"math/big"

	gcommon "github.com/ethereum/go-ethereum/common"
)

// SavingsTokenType selects which leg of a swap savings are taken from.
type SavingsTokenType uint8

const (
	SavingsTokenInput    SavingsTokenType = 0
	SavingsTokenOutput   SavingsTokenType = 1
	SavingsTokenSpecific SavingsTokenType = 2
)

func (t SavingsTokenType) String() string {
	switch t {
	case SavingsTokenInput:
		return "INPUT"
	case SavingsTokenOutput:
		return "OUTPUT"
	case SavingsTokenSpecific:
		return "SPECIFIC"
	default:
		return "UNKNOWN"
	}
}

// SavingsStrategy is the per-user configuration read from the strategy
// contract. Percentages are in basis points (10000 = 100%). The struct is a
// snapshot of chain state; it is only mutated through a strategy-update
// transaction.
type SavingsStrategy struct {
	CurrentPercentage    uint64           `json:"current_percentage"` // bps, 0-10000
	AutoIncrement        uint64           `json:"auto_increment"`     // bps
	MaxPercentage        uint64           `json:"max_percentage"`     // bps
	GoalAmount           *big.Int         `json:"goal_amount"`        // smallest token unit
	RoundUpSavings       bool             `json:"round_up_savings"`
	EnableDCA            bool             `json:"enable_dca"`
	SavingsTokenType     SavingsTokenType `json:"savings_token_type"`
	SpecificSavingsToken gcommon.Address  `json:"specific_savings_token"`
}

// IsConfigured reports whether the user has an active strategy.
func (s *SavingsStrategy) IsConfigured() bool {
	return s != nil && s.CurrentPercentage > 0
}

// PercentageFloat converts the basis-point percentage to a percent value.
func (s *SavingsStrategy) PercentageFloat() float64 {
	if s == nil {
		return 0
	}
	return float64(s.CurrentPercentage) / 100
}

// StrategyValidationResult is the outcome of one validation pass.
// CanProceedWithSwap is the sole gate for fund movement: it is true iff the
// pass produced no hard errors. Warnings never block.
type StrategyValidationResult struct {
	IsValid            bool     `json:"is_valid"`
	NeedsSetup         bool     `json:"needs_setup"`
	Errors             []string `json:"errors"`
	Warnings           []string `json:"warnings"`
	CanProceedWithSwap bool     `json:"can_proceed_with_swap"`
}

// StrategySetupParams carries a user-facing strategy configuration request.
// Percentages are in percent here; conversion to basis points happens when
// the transaction is built. The goal amount is chain-managed and read back
// with the strategy, never written through setup.
type StrategySetupParams struct {
	Percentage     float64          `json:"percentage"`
	AutoIncrement  float64          `json:"auto_increment"`
	MaxPercentage  float64          `json:"max_percentage"`
	RoundUpSavings bool             `json:"round_up_savings"`
	EnableDCA      bool             `json:"enable_dca"`
	TokenType      SavingsTokenType `json:"token_type"`
	SpecificToken  gcommon.Address  `json:"specific_token"`
}
