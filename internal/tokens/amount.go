package tokens

import (
	"fmt"
	"math/big"
	"strings"
)

// ToBaseUnits converts a display-unit decimal string ("1.5") to smallest
// token units (1500000000000000000 for 18 decimals). Fractional digits
// beyond the token's precision are rejected rather than silently dropped.
func ToBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", amount)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scale))
	if !scaled.IsInt() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	return new(big.Int).Set(scaled.Num()), nil
}

// FromBaseUnits renders smallest token units as a display-unit decimal
// string with trailing zeros trimmed.
func FromBaseUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(v), scale, new(big.Int))

	sign := ""
	if v.Sign() < 0 {
		sign = "-"
	}
	if r.Sign() == 0 {
		return sign + q.Text(10)
	}

	frac := r.Text(10)
	for len(frac) < int(decimals) {
		frac = "0" + frac
	}
	frac = strings.TrimRight(frac, "0")
	return sign + q.Text(10) + "." + frac
}
