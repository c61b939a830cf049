package strategy

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	gcommon "github.com/ethereum/go-ethereum/common"

	"github.com/spendsave/savings-engine/internal/types"
	"github.com/spendsave/savings-engine/pkg/uniswap"
)

const strategyABI = `[
	{
		"name": "getUserSavingStrategy",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "user", "type": "address"}],
		"outputs": [
			{"name": "percentage", "type": "uint256"},
			{"name": "autoIncrement", "type": "uint256"},
			{"name": "maxPercentage", "type": "uint256"},
			{"name": "goalAmount", "type": "uint256"},
			{"name": "roundUpSavings", "type": "bool"},
			{"name": "enableDCA", "type": "bool"},
			{"name": "savingsTokenType", "type": "uint8"},
			{"name": "specificSavingsToken", "type": "address"}
		]
	},
	{
		"name": "setSavingStrategy",
		"type": "function",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "percentage", "type": "uint256"},
			{"name": "autoIncrement", "type": "uint256"},
			{"name": "maxPercentage", "type": "uint256"},
			{"name": "roundUpSavings", "type": "bool"},
			{"name": "savingsTokenType", "type": "uint8"},
			{"name": "specificSavingsToken", "type": "address"}
		]
	}
]`

// ContractReader reads savings strategies from the strategy store contract.
type ContractReader struct {
	caller uniswap.ContractCaller
	store  gcommon.Address
}

func NewContractReader(caller uniswap.ContractCaller, store gcommon.Address) (*ContractReader, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	return &ContractReader{caller: caller, store: store}, nil
}

func (r *ContractReader) GetUserSavingStrategy(ctx context.Context, user gcommon.Address) (*types.SavingsStrategy, error) {
	parsed, err := abi.JSON(strings.NewReader(strategyABI))
	if err != nil {
		return nil, fmt.Errorf("fail to parse strategy ABI: %w", err)
	}

	data, err := parsed.Pack("getUserSavingStrategy", user)
	if err != nil {
		return nil, fmt.Errorf("fail to pack strategy call: %w", err)
	}

	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.store, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("fail to read saving strategy: %w", err)
	}

	out, err := parsed.Unpack("getUserSavingStrategy", raw)
	if err != nil {
		return nil, fmt.Errorf("fail to unpack saving strategy: %w", err)
	}
	if len(out) != 8 {
		return nil, fmt.Errorf("unexpected strategy tuple arity %d", len(out))
	}

	percentage, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected percentage type %T", out[0])
	}
	autoIncrement, _ := out[1].(*big.Int)
	maxPercentage, _ := out[2].(*big.Int)
	goalAmount, _ := out[3].(*big.Int)
	roundUp, _ := out[4].(bool)
	enableDCA, _ := out[5].(bool)
	tokenType, _ := out[6].(uint8)
	specificToken, _ := out[7].(gcommon.Address)

	return &types.SavingsStrategy{
		CurrentPercentage:    percentage.Uint64(),
		AutoIncrement:        bigToUint64(autoIncrement),
		MaxPercentage:        bigToUint64(maxPercentage),
		GoalAmount:           goalAmount,
		RoundUpSavings:       roundUp,
		EnableDCA:            enableDCA,
		SavingsTokenType:     types.SavingsTokenType(tokenType),
		SpecificSavingsToken: specificToken,
	}, nil
}

// SetSavingStrategyCalldata builds the strategy-update calldata with all
// percentages already converted to basis points.
func SetSavingStrategyCalldata(user gcommon.Address, pctBps, autoIncBps, maxPctBps uint64, roundUp bool, tokenType types.SavingsTokenType, specificToken gcommon.Address) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(strategyABI))
	if err != nil {
		return nil, fmt.Errorf("fail to parse strategy ABI: %w", err)
	}
	data, err := parsed.Pack("setSavingStrategy",
		user,
		new(big.Int).SetUint64(pctBps),
		new(big.Int).SetUint64(autoIncBps),
		new(big.Int).SetUint64(maxPctBps),
		roundUp,
		uint8(tokenType),
		specificToken,
	)
	if err != nil {
		return nil, fmt.Errorf("fail to pack setSavingStrategy calldata: %w", err)
	}
	return data, nil
}

func bigToUint64(v *big.Int) uint64 {
	if v == nil {
		return 0
	}
	return v.Uint64()
}
