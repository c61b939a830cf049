package uniswap

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Universal Router command for a v4 swap.
const CommandV4Swap byte = 0x10

// v4 router actions, executed in sequence for an exact-input swap.
const (
	ActionSwapExactInSingle byte = 0x06
	ActionSettleAll         byte = 0x0c
	ActionTakeAll           byte = 0x0f
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic("uniswap: invalid abi type " + t)
	}
	return typ
}

// abiPoolKey mirrors the on-chain PoolKey struct for ABI packing. Field
// order and widths must match the contract exactly.
type abiPoolKey struct {
	Currency0   common.Address
	Currency1   common.Address
	Fee         *big.Int // uint24
	TickSpacing *big.Int // int24
	Hooks       common.Address
}

type abiSwapParams struct {
	PoolKey           abiPoolKey
	ZeroForOne        bool
	AmountSpecified   *big.Int // int256, negative for exact input
	SqrtPriceLimitX96 *big.Int // uint160
	HookData          []byte
}

func toABIPoolKey(key PoolKey) abiPoolKey {
	return abiPoolKey{
		Currency0:   key.Currency0,
		Currency1:   key.Currency1,
		Fee:         big.NewInt(int64(key.Fee)),
		TickSpacing: big.NewInt(int64(key.TickSpacing)),
		Hooks:       key.Hooks,
	}
}

var swapParamsArgs = abi.Arguments{
	{Name: "params", Type: mustTupleType([]abi.ArgumentMarshaling{
		{Name: "poolKey", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "currency0", Type: "address"},
			{Name: "currency1", Type: "address"},
			{Name: "fee", Type: "uint24"},
			{Name: "tickSpacing", Type: "int24"},
			{Name: "hooks", Type: "address"},
		}},
		{Name: "zeroForOne", Type: "bool"},
		{Name: "amountSpecified", Type: "int256"},
		{Name: "sqrtPriceLimitX96", Type: "uint160"},
		{Name: "hookData", Type: "bytes"},
	})},
}

var currencyAmountArgs = abi.Arguments{
	{Name: "currency", Type: mustNewType("address")},
	{Name: "amount", Type: mustNewType("uint256")},
}

var v4SwapInputArgs = abi.Arguments{
	{Name: "actions", Type: mustNewType("bytes")},
	{Name: "params", Type: mustNewType("bytes[]")},
}

func mustTupleType(components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType("tuple", "", components)
	if err != nil {
		panic("uniswap: invalid tuple type: " + err.Error())
	}
	return typ
}

// BuildCommands returns the Universal Router command byte sequence for a
// single v4 swap.
func BuildCommands() []byte {
	return []byte{CommandV4Swap}
}

// BuildActions returns the fixed three-action sequence: swap the exact
// input, settle the input currency, take the output currency.
func BuildActions() []byte {
	return []byte{ActionSwapExactInSingle, ActionSettleAll, ActionTakeAll}
}

// EncodeSwapParams ABI-encodes the exact-input-single swap tuple. amountIn
// is the positive input amount in smallest units; it is negated on the wire
// because the protocol expresses exact-input as a negative amountSpecified.
func EncodeSwapParams(key PoolKey, zeroForOne bool, amountIn *big.Int, sqrtPriceLimitX96 *big.Int, hookData []byte) ([]byte, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amountIn must be positive, got %v", amountIn)
	}
	if hookData == nil {
		hookData = []byte{}
	}

	data, err := swapParamsArgs.Pack(abiSwapParams{
		PoolKey:           toABIPoolKey(key),
		ZeroForOne:        zeroForOne,
		AmountSpecified:   new(big.Int).Neg(amountIn),
		SqrtPriceLimitX96: sqrtPriceLimitX96,
		HookData:          hookData,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to encode swap params: %w", err)
	}
	return data, nil
}

// EncodeSettleAll encodes the settle-all action parameters: pay up to
// maxAmount of the input currency.
func EncodeSettleAll(currency common.Address, maxAmount *big.Int) ([]byte, error) {
	data, err := currencyAmountArgs.Pack(currency, maxAmount)
	if err != nil {
		return nil, fmt.Errorf("fail to encode settle-all params: %w", err)
	}
	return data, nil
}

// EncodeTakeAll encodes the take-all action parameters: receive at least
// minAmount of the output currency.
func EncodeTakeAll(currency common.Address, minAmount *big.Int) ([]byte, error) {
	data, err := currencyAmountArgs.Pack(currency, minAmount)
	if err != nil {
		return nil, fmt.Errorf("fail to encode take-all params: %w", err)
	}
	return data, nil
}

// BuildV4SwapInput assembles the single router input: the action byte
// sequence plus one parameter blob per action.
func BuildV4SwapInput(swapParams, settleParams, takeParams []byte) ([]byte, error) {
	data, err := v4SwapInputArgs.Pack(BuildActions(), [][]byte{swapParams, settleParams, takeParams})
	if err != nil {
		return nil, fmt.Errorf("fail to encode v4 swap input: %w", err)
	}
	return data, nil
}

const executeABI = `[
	{
		"name": "execute",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "commands", "type": "bytes"},
			{"name": "inputs", "type": "bytes[]"},
			{"name": "deadline", "type": "uint256"}
		]
	}
]`

// EncodeExecute produces the full Universal Router calldata. Deadline is
// supplied by the caller; everything else is a pure function of its inputs,
// so identical swaps encode byte-for-byte identically.
func EncodeExecute(commands []byte, inputs [][]byte, deadline *big.Int) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(executeABI))
	if err != nil {
		return nil, fmt.Errorf("fail to parse execute ABI: %w", err)
	}
	data, err := parsed.Pack("execute", commands, inputs, deadline)
	if err != nil {
		return nil, fmt.Errorf("fail to pack execute calldata: %w", err)
	}
	return data, nil
}
