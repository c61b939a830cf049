// Package dca reads and drains the on-chain dollar-cost-averaging queue the
// savings hook feeds.
package dca

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	gcommon "github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/types"
	"github.com/spendsave/savings-engine/pkg/uniswap"
)

const dcaABI = `[
	{
		"name": "enableDCA",
		"type": "function",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "targetToken", "type": "address"},
			{"name": "enabled", "type": "bool"}
		]
	},
	{
		"name": "executeDCA",
		"type": "function",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "index", "type": "uint256"}
		]
	},
	{
		"name": "processQueuedDCAs",
		"type": "function",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "maxCount", "type": "uint256"}
		]
	},
	{
		"name": "getUserTotalSaved",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "token", "type": "address"}
		],
		"outputs": [{"name": "amount", "type": "uint256"}]
	},
	{
		"name": "hasPendingDailySavings",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "user", "type": "address"}],
		"outputs": [{"name": "pending", "type": "bool"}]
	},
	{
		"name": "getDailySavingsStatus",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "token", "type": "address"}
		],
		"outputs": [
			{"name": "pendingAmount", "type": "uint256"},
			{"name": "lastExecution", "type": "uint256"},
			{"name": "nextExecution", "type": "uint256"},
			{"name": "canExecuteNow", "type": "bool"}
		]
	},
	{
		"name": "getDcaQueueLength",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "user", "type": "address"}],
		"outputs": [{"name": "length", "type": "uint256"}]
	},
	{
		"name": "getDcaQueueItem",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "index", "type": "uint256"}
		],
		"outputs": [
			{"name": "fromToken", "type": "address"},
			{"name": "toToken", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "executionTick", "type": "int24"},
			{"name": "deadline", "type": "uint256"},
			{"name": "executed", "type": "bool"},
			{"name": "customSlippageBps", "type": "uint256"}
		]
	}
]`

const executeGasLimit = 400_000

// TxSender submits DCA maintenance transactions.
type TxSender interface {
	From() gcommon.Address
	Submit(ctx context.Context, to gcommon.Address, data []byte, value *big.Int, gasLimit uint64, gasPriceWei *big.Int) (*gtypes.Transaction, error)
	WaitMined(ctx context.Context, tx *gtypes.Transaction) (*gtypes.Receipt, error)
}

// Client wraps the DCA contract behind typed reads and writes.
type Client struct {
	caller   uniswap.ContractCaller
	sender   TxSender
	contract gcommon.Address
	parsed   abi.ABI
	logger   *logrus.Logger
}

func NewClient(caller uniswap.ContractCaller, sender TxSender, contract gcommon.Address, logger *logrus.Logger) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	parsed, err := abi.JSON(strings.NewReader(dcaABI))
	if err != nil {
		return nil, fmt.Errorf("fail to parse DCA ABI: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		caller:   caller,
		sender:   sender,
		contract: contract,
		parsed:   parsed,
		logger:   logger,
	}, nil
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("fail to pack %s call: %w", method, err)
	}
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("fail to call %s: %w", method, err)
	}
	out, err := c.parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("fail to unpack %s result: %w", method, err)
	}
	return out, nil
}

// TotalSaved returns the lifetime savings for a user in the given token.
func (c *Client) TotalSaved(ctx context.Context, user, token gcommon.Address) (*big.Int, error) {
	out, err := c.call(ctx, "getUserTotalSaved", user, token)
	if err != nil {
		return nil, err
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected total saved type %T", out[0])
	}
	return amount, nil
}

// HasPendingDailySavings reports whether the scheduler should bother the
// user's queue at all.
func (c *Client) HasPendingDailySavings(ctx context.Context, user gcommon.Address) (bool, error) {
	out, err := c.call(ctx, "hasPendingDailySavings", user)
	if err != nil {
		return false, err
	}
	pending, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected pending flag type %T", out[0])
	}
	return pending, nil
}

// DailySavingsStatus returns the per-token execution window for a user.
func (c *Client) DailySavingsStatus(ctx context.Context, user, token gcommon.Address) (*types.DailySavingsStatus, error) {
	out, err := c.call(ctx, "getDailySavingsStatus", user, token)
	if err != nil {
		return nil, err
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("unexpected status tuple arity %d", len(out))
	}
	pending, _ := out[0].(*big.Int)
	last, _ := out[1].(*big.Int)
	next, _ := out[2].(*big.Int)
	canExecute, _ := out[3].(bool)

	return &types.DailySavingsStatus{
		Token:         token,
		PendingAmount: pending,
		LastExecution: bigToUint64(last),
		NextExecution: bigToUint64(next),
		CanExecuteNow: canExecute,
	}, nil
}

// QueueLength returns the number of entries in the user's DCA queue,
// executed ones included.
func (c *Client) QueueLength(ctx context.Context, user gcommon.Address) (uint64, error) {
	out, err := c.call(ctx, "getDcaQueueLength", user)
	if err != nil {
		return 0, err
	}
	length, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected queue length type %T", out[0])
	}
	return length.Uint64(), nil
}

// QueueItem reads one DCA queue entry.
func (c *Client) QueueItem(ctx context.Context, user gcommon.Address, index uint64) (*types.DCAQueueItem, error) {
	out, err := c.call(ctx, "getDcaQueueItem", user, new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	if len(out) != 7 {
		return nil, fmt.Errorf("unexpected queue item arity %d", len(out))
	}
	from, _ := out[0].(gcommon.Address)
	to, _ := out[1].(gcommon.Address)
	amount, _ := out[2].(*big.Int)
	tick, _ := out[3].(*big.Int)
	deadline, _ := out[4].(*big.Int)
	executed, _ := out[5].(bool)
	slippage, _ := out[6].(*big.Int)

	item := &types.DCAQueueItem{
		FromToken:         from,
		ToToken:           to,
		Amount:            amount,
		Deadline:          bigToUint64(deadline),
		Executed:          executed,
		CustomSlippageBps: bigToUint64(slippage),
	}
	if tick != nil {
		item.ExecutionTick = int32(tick.Int64())
	}
	return item, nil
}

// PendingItems returns the unexecuted entries of a user's queue.
func (c *Client) PendingItems(ctx context.Context, user gcommon.Address) ([]*types.DCAQueueItem, error) {
	length, err := c.QueueLength(ctx, user)
	if err != nil {
		return nil, err
	}
	var items []*types.DCAQueueItem
	for i := uint64(0); i < length; i++ {
		item, err := c.QueueItem(ctx, user, i)
		if err != nil {
			return nil, err
		}
		if !item.Executed {
			items = append(items, item)
		}
	}
	return items, nil
}

// SetEnabled submits an enableDCA transaction and waits for it to mine.
func (c *Client) SetEnabled(ctx context.Context, user, targetToken gcommon.Address, enabled bool) error {
	return c.submit(ctx, "enableDCA", user, targetToken, enabled)
}

// ExecuteOne triggers execution of a single queue entry.
func (c *Client) ExecuteOne(ctx context.Context, user gcommon.Address, index uint64) error {
	return c.submit(ctx, "executeDCA", user, new(big.Int).SetUint64(index))
}

// ProcessQueued drains up to maxCount pending entries for a user.
func (c *Client) ProcessQueued(ctx context.Context, user gcommon.Address, maxCount uint64) error {
	return c.submit(ctx, "processQueuedDCAs", user, new(big.Int).SetUint64(maxCount))
}

func (c *Client) submit(ctx context.Context, method string, args ...interface{}) error {
	if c.sender == nil {
		return types.ErrNoSigner
	}
	data, err := c.parsed.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("fail to pack %s calldata: %w", method, err)
	}
	tx, err := c.sender.Submit(ctx, c.contract, data, nil, executeGasLimit, nil)
	if err != nil {
		return fmt.Errorf("fail to submit %s: %w", method, err)
	}
	receipt, err := c.sender.WaitMined(ctx, tx)
	if err != nil {
		return fmt.Errorf("fail to wait for %s: %w", method, err)
	}
	if receipt.Status != gtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("%s reverted: %s", method, tx.Hash().Hex())
	}
	c.logger.WithFields(logrus.Fields{
		"method":  method,
		"tx_hash": tx.Hash().Hex(),
	}).Info("dca transaction mined")
	return nil
}

func bigToUint64(v *big.Int) uint64 {
	if v == nil {
		return 0
	}
	return v.Uint64()
}
