// Package savingsmath computes how an input amount splits between savings
// and the actual swap. Everything here is pure: amounts come in and go out
// as decimal strings fixed to six decimal places, with exact big.Rat
// arithmetic in between so the split invariant holds.
package savingsmath

import (
	"math/big"

	"github.com/spendsave/savings-engine/internal/types"
)

// scaleFactor fixes outputs at six decimal places.
var scaleFactor = big.NewInt(1_000_000)

// ComputeSavingsAmount returns the slice of inputAmount diverted to savings,
// as a 6-decimal string.
//
// Returns "0" when the input is not a positive decimal. Returns "0.000000"
// when savings are disabled for this swap or the effective percentage is
// zero. overridePct (percent) takes precedence over the strategy's
// basis-point percentage. With RoundUpSavings set the raw value is rounded
// up to the 6-decimal granularity, otherwise it is truncated.
func ComputeSavingsAmount(inputAmount string, strategy *types.SavingsStrategy, overridePct *float64, disableSavings bool) string {
	input, ok := parsePositive(inputAmount)
	if !ok {
		return "0"
	}
	if disableSavings {
		return formatScaled(big.NewInt(0))
	}
	return formatScaled(savingsScaled(input, effectivePercentage(strategy, overridePct), roundUp(strategy)))
}

// ComputeActualSwapAmount returns what is forwarded to the exchange:
// inputAmount minus the savings slice, as a 6-decimal string.
//
// With disableSavings the input is returned unchanged, byte for byte.
// Effective percentages above 100 are a configuration bug upstream; the
// result is clamped to zero rather than going negative.
func ComputeActualSwapAmount(inputAmount string, strategy *types.SavingsStrategy, overridePct *float64, disableSavings bool) string {
	if disableSavings {
		return inputAmount
	}
	input, ok := parsePositive(inputAmount)
	if !ok {
		return "0"
	}

	inputScaled := ratToScaled(input, false)
	saved := savingsScaled(input, effectivePercentage(strategy, overridePct), roundUp(strategy))

	actual := new(big.Int).Sub(inputScaled, saved)
	if actual.Sign() < 0 {
		actual.SetInt64(0)
	}
	return formatScaled(actual)
}

// ComputeOutputAmount projects the swap output: the actual swap amount
// multiplied by rate, as a 6-decimal string.
func ComputeOutputAmount(inputAmount string, rate float64, strategy *types.SavingsStrategy, overridePct *float64, disableSavings bool) string {
	actualStr := ComputeActualSwapAmount(inputAmount, strategy, overridePct, disableSavings)
	actual, ok := parsePositive(actualStr)
	if !ok {
		return "0"
	}

	rateRat := new(big.Rat).SetFloat64(rate)
	if rateRat == nil || rateRat.Sign() <= 0 {
		return formatScaled(big.NewInt(0))
	}
	out := new(big.Rat).Mul(actual, rateRat)
	return formatScaled(ratToScaled(out, false))
}

func effectivePercentage(strategy *types.SavingsStrategy, overridePct *float64) float64 {
	if overridePct != nil {
		return *overridePct
	}
	return strategy.PercentageFloat()
}

func roundUp(strategy *types.SavingsStrategy) bool {
	return strategy != nil && strategy.RoundUpSavings
}

// savingsScaled computes input * pct / 100 in 1e-6 units.
func savingsScaled(input *big.Rat, pct float64, up bool) *big.Int {
	if pct <= 0 {
		return big.NewInt(0)
	}
	pctRat := new(big.Rat).SetFloat64(pct)
	if pctRat == nil {
		return big.NewInt(0)
	}
	raw := new(big.Rat).Mul(input, new(big.Rat).Quo(pctRat, big.NewRat(100, 1)))
	return ratToScaled(raw, up)
}

// ratToScaled converts a non-negative rational to integer 1e-6 units,
// rounding up or truncating.
func ratToScaled(r *big.Rat, up bool) *big.Int {
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scaleFactor))
	q, rem := new(big.Int).QuoRem(scaled.Num(), scaled.Denom(), new(big.Int))
	if up && rem.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// formatScaled renders integer 1e-6 units as a fixed 6-decimal string.
func formatScaled(v *big.Int) string {
	q, r := new(big.Int).QuoRem(v, scaleFactor, new(big.Int))
	return q.Text(10) + "." + padFraction(r)
}

func padFraction(r *big.Int) string {
	s := new(big.Int).Abs(r).Text(10)
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}

func parsePositive(amount string) (*big.Rat, bool) {
	if amount == "" {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(amount)
	if !ok || r.Sign() <= 0 {
		return nil, false
	}
	return r, true
}
