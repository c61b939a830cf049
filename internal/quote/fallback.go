package quote

import "github.com/spendsave/savings-engine/internal/tokens"

// approxUsd is the static approximate-price table used when live quoting is
// skipped (micro amounts) or has failed entirely. Values are deliberately
// coarse; consumers see UsedFallback and can disclose reduced precision.
var approxUsd = map[string]float64{
	"ETH":  2500,
	"WETH": 2500,
	"USDC": 1,
	"DAI":  1,
	"SAVE": 0.10,
}

// staticRate returns the approximate from→to exchange rate. Pairs with an
// unknown leg default to 1:1.
func staticRate(from, to tokens.Token) float64 {
	fromUsd, okFrom := approxUsd[from.Symbol]
	toUsd, okTo := approxUsd[to.Symbol]
	if !okFrom || !okTo || toUsd == 0 {
		return 1
	}
	return fromUsd / toUsd
}
