// Package tokens holds the fixed set of tokens the engine supports. It is a
// pure lookup table: symbol to address to decimals, no chain reads.
package tokens

import (
	"strings"

	gcommon "github.com/ethereum/go-ethereum/common"
)

// Token describes one supported asset. Native ETH uses the zero address,
// which is also how Uniswap v4 represents the native currency in pool keys.
type Token struct {
	Symbol   string          `json:"symbol"`
	Address  gcommon.Address `json:"address"`
	Decimals uint8           `json:"decimals"`
	Native   bool            `json:"native"`
}

// IsZero reports whether the token is the empty value.
func (t Token) IsZero() bool {
	return t.Symbol == ""
}

var supported = []Token{
	{Symbol: "ETH", Address: gcommon.Address{}, Decimals: 18, Native: true},
	{Symbol: "WETH", Address: gcommon.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18},
	{Symbol: "USDC", Address: gcommon.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6},
	{Symbol: "DAI", Address: gcommon.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Decimals: 18},
	{Symbol: "SAVE", Address: gcommon.HexToAddress("0x2d5805a423d6Ce771f06972ad4499f120902631A"), Decimals: 18},
}

var (
	bySymbol  map[string]Token
	byAddress map[gcommon.Address]Token
)

func init() {
	bySymbol = make(map[string]Token, len(supported))
	byAddress = make(map[gcommon.Address]Token, len(supported))
	for _, t := range supported {
		bySymbol[t.Symbol] = t
		byAddress[t.Address] = t
	}
}

// BySymbol looks a token up by its symbol, case-insensitively.
func BySymbol(symbol string) (Token, bool) {
	t, ok := bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// ByAddress looks a token up by its on-chain address.
func ByAddress(addr gcommon.Address) (Token, bool) {
	t, ok := byAddress[addr]
	return t, ok
}

// All returns the supported token set in registration order.
func All() []Token {
	out := make([]Token, len(supported))
	copy(out, supported)
	return out
}
