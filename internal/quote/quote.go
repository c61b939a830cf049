// Package quote obtains executable trade quotes from the on-chain quoter,
// with the workarounds thin liquidity demands: tiny amounts skip live
// quoting, small amounts are quoted scaled-up and scaled back down, and an
// exhausted retry budget degrades to a static approximation instead of an
// error.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/retry"
	"github.com/spendsave/savings-engine/internal/tokens"
	"github.com/spendsave/savings-engine/pkg/uniswap"
)

const (
	// Below microAmountThreshold (native units) the quoter is not even
	// asked: pool rounding makes the answer meaningless.
	microAmountThreshold = 0.001
	// Below smallAmountThreshold the quote is taken at the threshold
	// amount and scaled back down linearly.
	smallAmountThreshold = 0.01

	defaultDebounce = 800 * time.Millisecond
)

// ErrSuperseded reports that a newer quote request replaced this one before
// it resolved. Callers drop the stale request instead of showing its result.
var ErrSuperseded = errors.New("quote request superseded by a newer one")

// Quote is the result of one quoting pass.
type Quote struct {
	AmountOut    string   `json:"amount_out"`     // display units of the output token
	AmountOutWei *big.Int `json:"amount_out_wei"` // smallest units
	Rate         float64  `json:"rate"`           // output per input unit
	PriceImpact  float64  `json:"price_impact"`   // percent vs the reference rate
	FeeTier      uint32   `json:"fee_tier"`
	UsedFallback bool     `json:"used_fallback"`
	Approximate  bool     `json:"approximate"` // scaled-quote workaround applied
}

// Service wraps the uniswap client with retry, scaling, and fallback
// policies. Construct one per process and inject it; tests pass a mock
// client.
type Service struct {
	client   uniswap.Client
	logger   *logrus.Logger
	policy   retry.Policy
	debounce *Debouncer
}

func NewService(client uniswap.Client, debounce time.Duration, logger *logrus.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("uniswap client cannot be nil")
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Service{
		client:   client,
		logger:   logger,
		policy:   retry.DefaultPolicy(),
		debounce: NewDebouncer(debounce),
	}, nil
}

// DebouncedQuote waits out the debounce window before quoting, so a burst of
// requests (a user typing an amount) collapses into one quoter call. A
// request replaced by a newer one returns ErrSuperseded, never a stale quote.
func (s *Service) DebouncedQuote(ctx context.Context, from, to tokens.Token, amount string) (*Quote, error) {
	type outcome struct {
		q   *Quote
		err error
	}
	ch := make(chan outcome, 1)
	gen := s.debounce.Trigger(func(uint64) {
		q, err := s.GetQuote(ctx, from, to, amount)
		ch <- outcome{q, err}
	})

	// A superseded trigger never fires its callback, so poll the generation
	// while waiting instead of blocking on the channel alone.
	poll := s.debounce.delay
	if poll < time.Millisecond {
		poll = time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case out := <-ch:
			if !s.debounce.Current(gen) {
				return nil, ErrSuperseded
			}
			return out.q, out.err
		case <-ticker.C:
			if !s.debounce.Current(gen) {
				return nil, ErrSuperseded
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetQuote produces a quote for swapping amount of from into to. Structural
// problems (identical pair, malformed amount) are errors; quoting failures
// are not, and degrade to the static table with UsedFallback set.
func (s *Service) GetQuote(ctx context.Context, from, to tokens.Token, amount string) (*Quote, error) {
	if from.Address == to.Address {
		return nil, fmt.Errorf("cannot quote identical tokens %s", from.Symbol)
	}
	amountFloat, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}

	if amountFloat < microAmountThreshold {
		s.logger.WithFields(logrus.Fields{
			"pair":   from.Symbol + "/" + to.Symbol,
			"amount": amount,
		}).Debug("amount below micro threshold, using static pricing")
		return s.fallbackQuote(from, to, amountFloat), nil
	}

	quoteAmount := amountFloat
	scaled := false
	if amountFloat < smallAmountThreshold {
		quoteAmount = smallAmountThreshold
		scaled = true
	}

	key, err := s.poolKey(from, to)
	if err != nil {
		return nil, err
	}
	zeroForOne := key.ZeroForOne(from.Address)

	amountInWei, err := tokens.ToBaseUnits(formatAmount(quoteAmount, from.Decimals), from.Decimals)
	if err != nil {
		return nil, fmt.Errorf("fail to convert quote amount: %w", err)
	}

	var amountOutWei *big.Int
	quoteErr := retry.Do(ctx, s.policy, Classify, func(ctx context.Context) error {
		out, err := s.client.QuoteExactInputSingle(ctx, key, zeroForOne, amountInWei, nil)
		if err != nil {
			return err
		}
		if out == nil || out.Sign() == 0 {
			return fmt.Errorf("quoter returned zero output")
		}
		amountOutWei = out
		return nil
	})
	if quoteErr != nil {
		s.logger.WithError(quoteErr).WithFields(logrus.Fields{
			"pair":   from.Symbol + "/" + to.Symbol,
			"amount": amount,
		}).Warn("quote attempts exhausted, degrading to static pricing")
		return s.fallbackQuote(from, to, amountFloat), nil
	}

	if scaled {
		// Linear scale-back: approximate, but avoids the quoter's
		// rounding failures at the liquidity edge.
		ratio := new(big.Rat).SetFloat64(amountFloat / quoteAmount)
		outRat := new(big.Rat).Mul(new(big.Rat).SetInt(amountOutWei), ratio)
		amountOutWei = new(big.Int).Quo(outRat.Num(), outRat.Denom())
	}

	outStr := tokens.FromBaseUnits(amountOutWei, to.Decimals)
	rate := quoteRate(amountFloat, amountOutWei, to.Decimals)

	return &Quote{
		AmountOut:    outStr,
		AmountOutWei: amountOutWei,
		Rate:         rate,
		PriceImpact:  priceImpact(rate, staticRate(from, to)),
		FeeTier:      key.Fee,
		Approximate:  scaled,
	}, nil
}

// poolKey picks the fee tier for a pair: stable-stable pairs use the lowest
// tier, everything else the standard 0.30% tier.
func (s *Service) poolKey(from, to tokens.Token) (uniswap.PoolKey, error) {
	fee := uniswap.FeeMedium
	if isStable(from) && isStable(to) {
		fee = uniswap.FeeLowest
	}
	return uniswap.NewPoolKey(from.Address, to.Address, fee, s.client.Config().Hook())
}

func isStable(t tokens.Token) bool {
	return t.Symbol == "USDC" || t.Symbol == "DAI"
}

func (s *Service) fallbackQuote(from, to tokens.Token, amountFloat float64) *Quote {
	rate := staticRate(from, to)
	out := amountFloat * rate
	outStr := formatAmount(out, to.Decimals)
	outWei, err := tokens.ToBaseUnits(outStr, to.Decimals)
	if err != nil {
		outWei = big.NewInt(0)
	}
	return &Quote{
		AmountOut:    outStr,
		AmountOutWei: outWei,
		Rate:         rate,
		FeeTier:      uniswap.FeeMedium,
		UsedFallback: true,
	}
}

func parseAmount(amount string) (float64, error) {
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}
	f, _ := r.Float64()
	if f <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %q", amount)
	}
	return f, nil
}

func formatAmount(v float64, decimals uint8) string {
	if decimals > 18 {
		decimals = 18
	}
	return new(big.Rat).SetFloat64(v).FloatString(int(decimals))
}

func quoteRate(amountIn float64, amountOutWei *big.Int, outDecimals uint8) float64 {
	if amountIn <= 0 {
		return 0
	}
	outRat, ok := new(big.Rat).SetString(tokens.FromBaseUnits(amountOutWei, outDecimals))
	if !ok {
		return 0
	}
	out, _ := outRat.Float64()
	return out / amountIn
}

func priceImpact(realized, reference float64) float64 {
	if reference <= 0 || realized <= 0 {
		return 0
	}
	impact := (reference - realized) / reference * 100
	if impact < 0 {
		return 0
	}
	return impact
}
