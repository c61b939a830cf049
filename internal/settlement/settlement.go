// Package settlement confirms swap transactions on chain and inspects their
// receipts for hook activity and gas efficiency.
package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	gcommon "github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/types"
)

// baselineGas is the cost of an unoptimized v4 swap with savings; receipts
// well under it indicate the batched settle/take path was taken.
const (
	baselineGas        = 250_000
	gasOptimizedFactor = 0.6
)

var (
	settleTopic = crypto.Keccak256Hash([]byte("Settle(address,address,uint256)"))
	takeTopic   = crypto.Keccak256Hash([]byte("Take(address,address,uint256)"))
)

// ReceiptWaiter blocks until a transaction is mined and returns its receipt.
type ReceiptWaiter interface {
	WaitMined(ctx context.Context, tx *gtypes.Transaction) (*gtypes.Receipt, error)
}

// senderWaiter adapts a bind backend when no sender is wired.
type senderWaiter struct {
	backend bind.DeployBackend
}

func (w senderWaiter) WaitMined(ctx context.Context, tx *gtypes.Transaction) (*gtypes.Receipt, error) {
	return bind.WaitMined(ctx, w.backend, tx)
}

// NewBackendWaiter wraps a bind backend as a ReceiptWaiter.
func NewBackendWaiter(backend bind.DeployBackend) ReceiptWaiter {
	return senderWaiter{backend: backend}
}

// Validator checks that a submitted swap actually settled through the
// savings hook. It reports findings rather than failing: a swap that mined
// is a swap that happened, whatever the hook did.
type Validator struct {
	waiter ReceiptWaiter
	hook   gcommon.Address
	logger *logrus.Logger
}

func NewValidator(waiter ReceiptWaiter, hook gcommon.Address, logger *logrus.Logger) (*Validator, error) {
	if waiter == nil {
		return nil, fmt.Errorf("receipt waiter cannot be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Validator{waiter: waiter, hook: hook, logger: logger}, nil
}

// Validate waits for the transaction to mine and inspects the receipt.
// It never returns an error; failures are folded into the result so the
// caller's settlement record is always written.
func (v *Validator) Validate(ctx context.Context, tx *gtypes.Transaction) types.SettlementResult {
	receipt, err := v.waiter.WaitMined(ctx, tx)
	if err != nil {
		v.logger.WithFields(logrus.Fields{
			"tx_hash": tx.Hash().Hex(),
			"error":   err,
		}).Warn("settlement validation could not obtain receipt")
		return types.SettlementResult{Error: fmt.Sprintf("fail to obtain receipt: %v", err)}
	}
	return v.Inspect(receipt)
}

// Inspect evaluates an already-fetched receipt.
func (v *Validator) Inspect(receipt *gtypes.Receipt) types.SettlementResult {
	result := types.SettlementResult{GasUsed: receipt.GasUsed}

	if receipt.Status != gtypes.ReceiptStatusSuccessful {
		result.Error = "transaction reverted"
		return result
	}

	for _, lg := range receipt.Logs {
		if lg == nil {
			continue
		}
		if v.hook != (gcommon.Address{}) && lg.Address == v.hook {
			result.HookExecuted = true
		}
		if len(lg.Topics) == 0 {
			continue
		}
		switch lg.Topics[0] {
		case settleTopic, takeTopic:
			result.Settled = true
		}
	}

	result.GasOptimized = float64(receipt.GasUsed) < baselineGas*gasOptimizedFactor

	v.logger.WithFields(logrus.Fields{
		"tx_hash":       receipt.TxHash.Hex(),
		"settled":       result.Settled,
		"hook_executed": result.HookExecuted,
		"gas_used":      result.GasUsed,
		"gas_optimized": result.GasOptimized,
	}).Info("settlement validated")
	return result
}
