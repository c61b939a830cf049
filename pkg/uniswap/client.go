package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// ContractCaller is the read-only slice of an RPC client the quoter needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client performs on-chain reads against the quoter and token contracts.
type Client interface {
	QuoteExactInputSingle(ctx context.Context, key PoolKey, zeroForOne bool, amountIn *big.Int, hookData []byte) (*big.Int, error)
	GetAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	GetTokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
	ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error)
	Config() *Config
}

type client struct {
	caller ContractCaller
	cfg    *Config
	logger *logrus.Logger
}

// NewClient builds the on-chain read client.
func NewClient(caller ContractCaller, cfg *Config, logger *logrus.Logger) (Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &client{caller: caller, cfg: cfg, logger: logger}, nil
}

func (c *client) Config() *Config { return c.cfg }

const quoterABI = `[
	{
		"name": "quoteExactInputSingle",
		"type": "function",
		"inputs": [
			{"name": "params", "type": "tuple", "components": [
				{"name": "poolKey", "type": "tuple", "components": [
					{"name": "currency0", "type": "address"},
					{"name": "currency1", "type": "address"},
					{"name": "fee", "type": "uint24"},
					{"name": "tickSpacing", "type": "int24"},
					{"name": "hooks", "type": "address"}
				]},
				{"name": "zeroForOne", "type": "bool"},
				{"name": "exactAmount", "type": "uint128"},
				{"name": "hookData", "type": "bytes"}
			]}
		],
		"outputs": [
			{"name": "amountOut", "type": "uint256"},
			{"name": "gasEstimate", "type": "uint256"}
		]
	}
]`

type abiQuoteParams struct {
	PoolKey     abiPoolKey
	ZeroForOne  bool
	ExactAmount *big.Int
	HookData    []byte
}

// QuoteExactInputSingle asks the on-chain quoter what an exact-input swap
// would return, without executing it.
func (c *client) QuoteExactInputSingle(ctx context.Context, key PoolKey, zeroForOne bool, amountIn *big.Int, hookData []byte) (*big.Int, error) {
	parsed, err := abi.JSON(strings.NewReader(quoterABI))
	if err != nil {
		return nil, fmt.Errorf("fail to parse quoter ABI: %w", err)
	}
	if hookData == nil {
		hookData = []byte{}
	}

	data, err := parsed.Pack("quoteExactInputSingle", abiQuoteParams{
		PoolKey:     toABIPoolKey(key),
		ZeroForOne:  zeroForOne,
		ExactAmount: amountIn,
		HookData:    hookData,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to pack quote call: %w", err)
	}

	quoterAddr := c.cfg.Quoter()
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &quoterAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("fail to call quoter: %w", err)
	}

	out, err := parsed.Unpack("quoteExactInputSingle", raw)
	if err != nil {
		return nil, fmt.Errorf("fail to unpack quote result: %w", err)
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quote result type %T", out[0])
	}
	return amountOut, nil
}

const erc20ABI = `[
	{
		"name": "allowance",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "balanceOf",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "approve",
		"type": "function",
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "value", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	}
]`

func (c *client) GetAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.readUint256(ctx, token, "allowance", owner, spender)
}

func (c *client) GetTokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return c.readUint256(ctx, token, "balanceOf", holder)
}

// ApproveCalldata builds approve() calldata granting spender the given
// allowance.
func (c *client) ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("fail to parse ERC-20 ABI: %w", err)
	}
	data, err := parsed.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("fail to pack approve calldata: %w", err)
	}
	return data, nil
}

func (c *client) readUint256(ctx context.Context, contract common.Address, method string, args ...interface{}) (*big.Int, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("fail to parse ERC-20 ABI: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("fail to pack %s call: %w", method, err)
	}
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("fail to call %s: %w", method, err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("fail to unpack %s result: %w", method, err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, out[0])
	}
	return value, nil
}
