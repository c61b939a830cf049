package types

import (
	"errors"

	"github.com/spendsave/savings-engine/internal/tokens"
)

// SwapRequest is built once per swap attempt and discarded when the
// transaction is submitted or abandoned.
type SwapRequest struct {
	FromToken          tokens.Token `json:"from_token"`
	ToToken            tokens.Token `json:"to_token"`
	InputAmount        string       `json:"input_amount"` // decimal string in display units
	SlippagePct        float64      `json:"slippage_pct"`
	OverridePercentage *float64     `json:"override_percentage,omitempty"` // percent, not bps
	DisableSavings     bool         `json:"disable_savings"`
	GasCategory        GasCategory  `json:"gas_category,omitempty"`
}

var (
	ErrSameToken     = errors.New("from and to tokens are identical")
	ErrInvalidAmount = errors.New("input amount must be greater than zero")
	ErrNoSigner      = errors.New("no wallet signer available")
)

// SwapStatus tracks one swap attempt through the orchestrator state machine.
type SwapStatus string

const (
	SwapStatusIdle       SwapStatus = "idle"
	SwapStatusValidating SwapStatus = "validating-strategy"
	SwapStatusPreparing  SwapStatus = "preparing"
	SwapStatusPending    SwapStatus = "pending"
	SwapStatusSuccess    SwapStatus = "success"
	SwapStatusError      SwapStatus = "error"
)

// SwapResult is what the orchestrator hands back as soon as a transaction
// has been submitted. Settlement confirmation arrives asynchronously.
type SwapResult struct {
	TxHash           string     `json:"tx_hash"`
	Status           SwapStatus `json:"status"`
	SavingsAmount    string     `json:"savings_amount"`
	ActualSwapAmount string     `json:"actual_swap_amount"`
	GasLimit         uint64     `json:"gas_limit"`
	UsingFallbackGas bool       `json:"using_fallback_gas"`
	UsedFallbackQuote bool      `json:"used_fallback_quote"`
	ExpectedOutput   string     `json:"expected_output"`
}

// SettlementResult is produced by the settlement validator from a mined
// receipt. It is advisory: the swap already succeeded on-chain by the time
// these flags are computed.
type SettlementResult struct {
	Settled      bool   `json:"settled"`
	HookExecuted bool   `json:"hook_executed"`
	GasOptimized bool   `json:"gas_optimized"`
	GasUsed      uint64 `json:"gas_used"`
	Error        string `json:"error,omitempty"`
}
