package quote

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spendsave/savings-engine/internal/retry"
	"github.com/spendsave/savings-engine/internal/tokens"
	"github.com/spendsave/savings-engine/pkg/uniswap"
	"github.com/spendsave/savings-engine/test/mocks/uniswapclient"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testConfig() *uniswap.Config {
	return uniswap.NewConfig(
		gcommon.HexToAddress("0x1000000000000000000000000000000000000001"),
		gcommon.HexToAddress("0x1000000000000000000000000000000000000002"),
		gcommon.HexToAddress("0x1000000000000000000000000000000000000003"),
		gcommon.HexToAddress("0x1000000000000000000000000000000000000004"),
		300000, 0.5, 20*time.Minute,
	)
}

func newTestService(t *testing.T) (*Service, *uniswapclient.MockUniswapClient) {
	t.Helper()
	return newTestServiceDebounce(t, time.Millisecond)
}

func newTestServiceDebounce(t *testing.T, debounce time.Duration) (*Service, *uniswapclient.MockUniswapClient) {
	t.Helper()
	client := &uniswapclient.MockUniswapClient{Cfg: testConfig()}
	svc, err := NewService(client, debounce, testLogger())
	require.NoError(t, err)
	svc.policy = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond}
	return svc, client
}

func mustToken(t *testing.T, symbol string) tokens.Token {
	t.Helper()
	token, ok := tokens.BySymbol(symbol)
	require.True(t, ok)
	return token
}

func TestGetQuoteRejectsIdenticalPair(t *testing.T) {
	svc, _ := newTestService(t)
	eth := mustToken(t, "ETH")

	_, err := svc.GetQuote(context.Background(), eth, eth, "1.0")
	require.Error(t, err)
}

func TestGetQuoteRejectsBadAmount(t *testing.T) {
	svc, _ := newTestService(t)
	eth := mustToken(t, "ETH")
	usdc := mustToken(t, "USDC")

	_, err := svc.GetQuote(context.Background(), eth, usdc, "zero")
	require.Error(t, err)
	_, err = svc.GetQuote(context.Background(), eth, usdc, "-1")
	require.Error(t, err)
}

func TestGetQuoteMicroAmountSkipsQuoter(t *testing.T) {
	svc, client := newTestService(t)
	eth := mustToken(t, "ETH")
	usdc := mustToken(t, "USDC")

	q, err := svc.GetQuote(context.Background(), eth, usdc, "0.0005")
	require.NoError(t, err)
	require.True(t, q.UsedFallback)
	require.Equal(t, 2500.0, q.Rate)
	client.AssertNotCalled(t, "QuoteExactInputSingle",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetQuoteLiveQuote(t *testing.T) {
	svc, client := newTestService(t)
	eth := mustToken(t, "ETH")
	usdc := mustToken(t, "USDC")

	// 1 ETH in, 2600 USDC out.
	oneEth, _ := new(big.Int).SetString("1000000000000000000", 10)
	client.On("QuoteExactInputSingle", mock.Anything, mock.Anything, mock.Anything, oneEth, mock.Anything).
		Return(big.NewInt(2_600_000_000), nil)

	q, err := svc.GetQuote(context.Background(), eth, usdc, "1")
	require.NoError(t, err)
	require.False(t, q.UsedFallback)
	require.False(t, q.Approximate)
	require.Equal(t, "2600", q.AmountOut)
	require.InDelta(t, 2600.0, q.Rate, 0.001)
	require.Equal(t, uniswap.FeeMedium, q.FeeTier)
	require.Equal(t, 0.0, q.PriceImpact, "better-than-reference rates report zero impact")
}

func TestGetQuoteSmallAmountScalesDown(t *testing.T) {
	svc, client := newTestService(t)
	eth := mustToken(t, "ETH")
	usdc := mustToken(t, "USDC")

	// Service must quote at the 0.01 threshold, not the raw 0.005.
	thresholdWei, _ := new(big.Int).SetString("10000000000000000", 10)
	client.On("QuoteExactInputSingle", mock.Anything, mock.Anything, mock.Anything, thresholdWei, mock.Anything).
		Return(big.NewInt(25_000_000), nil) // 25 USDC for 0.01 ETH

	q, err := svc.GetQuote(context.Background(), eth, usdc, "0.005")
	require.NoError(t, err)
	require.True(t, q.Approximate)
	require.Equal(t, "12.5", q.AmountOut, "result is scaled linearly back down")
}

func TestGetQuoteFallsBackAfterRetries(t *testing.T) {
	svc, client := newTestService(t)
	eth := mustToken(t, "ETH")
	usdc := mustToken(t, "USDC")

	client.On("QuoteExactInputSingle", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset by peer")).Times(3)

	q, err := svc.GetQuote(context.Background(), eth, usdc, "1")
	require.NoError(t, err, "thin liquidity must not surface as an error")
	require.True(t, q.UsedFallback)
	require.Equal(t, 2500.0, q.Rate)
	client.AssertExpectations(t)
}

func TestGetQuoteFatalErrorSkipsRetries(t *testing.T) {
	svc, client := newTestService(t)
	eth := mustToken(t, "ETH")
	usdc := mustToken(t, "USDC")

	client.On("QuoteExactInputSingle", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("abi: incompatible type for argument")).Once()

	q, err := svc.GetQuote(context.Background(), eth, usdc, "1")
	require.NoError(t, err)
	require.True(t, q.UsedFallback)
	client.AssertExpectations(t)
}

func TestGetQuoteStablePairUsesLowestFee(t *testing.T) {
	svc, client := newTestService(t)
	usdc := mustToken(t, "USDC")
	dai := mustToken(t, "DAI")

	client.On("QuoteExactInputSingle", mock.Anything,
		mock.MatchedBy(func(key uniswap.PoolKey) bool { return key.Fee == uniswap.FeeLowest }),
		mock.Anything, mock.Anything, mock.Anything).
		Return(big.NewInt(998_000_000_000_000_000), nil)

	q, err := svc.GetQuote(context.Background(), usdc, dai, "1")
	require.NoError(t, err)
	require.Equal(t, uniswap.FeeLowest, q.FeeTier)
}

func TestClassify(t *testing.T) {
	require.Equal(t, retry.ClassFatal, Classify(errors.New("abi: incompatible type")))
	require.Equal(t, retry.ClassFatal, Classify(errors.New("missing signer for transaction")))
	require.Equal(t, retry.ClassRetryable, Classify(errors.New("i/o timeout")))
	require.Equal(t, retry.ClassRetryable, Classify(errors.New("rate limit exceeded")))
	require.Equal(t, retry.ClassUnknown, Classify(errors.New("something else entirely")))
}

func TestDebouncedQuoteReturnsResult(t *testing.T) {
	svc, client := newTestService(t)
	eth := mustToken(t, "ETH")
	usdc := mustToken(t, "USDC")

	client.On("QuoteExactInputSingle", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(big.NewInt(2_600_000_000), nil)

	q, err := svc.DebouncedQuote(context.Background(), eth, usdc, "1")
	require.NoError(t, err)
	require.Equal(t, "2600", q.AmountOut)
}

func TestDebouncedQuoteSupersededByNewerRequest(t *testing.T) {
	svc, client := newTestServiceDebounce(t, 100*time.Millisecond)
	eth := mustToken(t, "ETH")
	usdc := mustToken(t, "USDC")

	client.On("QuoteExactInputSingle", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(big.NewInt(2_600_000_000), nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.DebouncedQuote(context.Background(), eth, usdc, "1")
		errCh <- err
	}()

	// Replace the first request before its window elapses.
	time.Sleep(20 * time.Millisecond)
	q, err := svc.DebouncedQuote(context.Background(), eth, usdc, "2")
	require.NoError(t, err)
	require.NotNil(t, q)

	require.ErrorIs(t, <-errCh, ErrSuperseded)
}

func TestDebouncedQuoteContextCancelled(t *testing.T) {
	svc, _ := newTestServiceDebounce(t, time.Minute)
	eth := mustToken(t, "ETH")
	usdc := mustToken(t, "USDC")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.DebouncedQuote(ctx, eth, usdc, "1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestDebouncerCoalescesAndSupersedes(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var fired atomic.Uint64
	var lastGen atomic.Uint64

	d.Trigger(func(gen uint64) { fired.Add(1); lastGen.Store(gen) })
	d.Trigger(func(gen uint64) { fired.Add(1); lastGen.Store(gen) })
	final := d.Trigger(func(gen uint64) { fired.Add(1); lastGen.Store(gen) })

	time.Sleep(60 * time.Millisecond)

	require.Equal(t, uint64(1), fired.Load(), "bursts collapse into one callback")
	require.Equal(t, final, lastGen.Load())
	require.True(t, d.Current(final))
	require.False(t, d.Current(final-1), "older generations are superseded")
}
