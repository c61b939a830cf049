package uniswap

import (
	"fmt"
	"math"
	"math/big"
)

// Absolute bounds on a pool's sqrt price ratio (Q64.96). A swap whose limit
// equals either bound reverts, so usable limits are strictly inside.
var (
	MinSqrtPriceX96 = big.NewInt(4295128739)
	MaxSqrtPriceX96 = mustBig("1461446703485210103287273052203988822378723970342")
)

const (
	// MaxSlippagePct is a safety ceiling; anything above it is a
	// configuration error upstream, not a runtime condition.
	MaxSlippagePct = 50.0

	ppmDenominator = 1_000_000
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("uniswap: invalid big integer constant " + s)
	}
	return v
}

// SqrtPriceLimit returns the slippage-protecting price bound for a swap
// direction. The limit sits just inside the extreme ratio on the side that
// protects the trader, offset proportionally to slippagePct with
// parts-per-million precision. Zero slippage still yields a bounded limit
// one unit inside the extreme, never the extreme itself.
func SqrtPriceLimit(zeroForOne bool, slippagePct float64) (*big.Int, error) {
	if slippagePct < 0 {
		return nil, fmt.Errorf("negative slippage %.4f%%", slippagePct)
	}
	if slippagePct > MaxSlippagePct {
		return nil, fmt.Errorf("slippage %.4f%% exceeds ceiling of %.0f%%", slippagePct, MaxSlippagePct)
	}

	ppm := big.NewInt(int64(math.Round(slippagePct * 10_000)))

	if zeroForOne {
		offset := new(big.Int).Div(new(big.Int).Mul(MinSqrtPriceX96, ppm), big.NewInt(ppmDenominator))
		if offset.Sign() == 0 {
			offset.SetInt64(1)
		}
		return new(big.Int).Add(MinSqrtPriceX96, offset), nil
	}

	offset := new(big.Int).Div(new(big.Int).Mul(MaxSqrtPriceX96, ppm), big.NewInt(ppmDenominator))
	if offset.Sign() == 0 {
		offset.SetInt64(1)
	}
	return new(big.Int).Sub(MaxSqrtPriceX96, offset), nil
}
