package uniswap

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Supported fee tiers in hundredths of a bip, and their fixed tick spacing.
const (
	FeeLowest   uint32 = 100   // 0.01%
	FeeLow      uint32 = 500   // 0.05%
	FeeMedium   uint32 = 3000  // 0.30%
	FeeHigh     uint32 = 10000 // 1.00%
)

var tickSpacingByFee = map[uint32]int32{
	FeeLowest: 1,
	FeeLow:    10,
	FeeMedium: 60,
	FeeHigh:   200,
}

// PoolKey identifies a v4 pool. Currency0 always sorts below Currency1 by
// address, so a key built from (A,B) equals one built from (B,A).
type PoolKey struct {
	Currency0   common.Address
	Currency1   common.Address
	Fee         uint32
	TickSpacing int32
	Hooks       common.Address
}

// TickSpacingForFee resolves the fixed tick spacing for a fee tier.
// Unsupported tiers are an error, never a silent default: a wrong spacing
// addresses a different (likely nonexistent) pool.
func TickSpacingForFee(fee uint32) (int32, error) {
	spacing, ok := tickSpacingByFee[fee]
	if !ok {
		return 0, fmt.Errorf("unsupported fee tier %d", fee)
	}
	return spacing, nil
}

// NewPoolKey builds the canonical pool key for a token pair, fee tier, and
// hook contract. Token order in the arguments does not matter.
func NewPoolKey(tokenA, tokenB common.Address, fee uint32, hooks common.Address) (PoolKey, error) {
	if tokenA == tokenB {
		return PoolKey{}, fmt.Errorf("pool requires two distinct currencies, got %s twice", tokenA.Hex())
	}

	spacing, err := TickSpacingForFee(fee)
	if err != nil {
		return PoolKey{}, err
	}

	currency0, currency1 := tokenA, tokenB
	if bytes.Compare(tokenB.Bytes(), tokenA.Bytes()) < 0 {
		currency0, currency1 = tokenB, tokenA
	}

	return PoolKey{
		Currency0:   currency0,
		Currency1:   currency1,
		Fee:         fee,
		TickSpacing: spacing,
		Hooks:       hooks,
	}, nil
}

// ZeroForOne reports the swap direction for an input token. Direction is a
// pure function of address ordering, never of caller intent.
func (k PoolKey) ZeroForOne(tokenIn common.Address) bool {
	return tokenIn == k.Currency0
}
