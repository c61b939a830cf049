package swap

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	gcommon "github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spendsave/savings-engine/internal/quote"
	"github.com/spendsave/savings-engine/internal/tokens"
	"github.com/spendsave/savings-engine/internal/types"
	"github.com/spendsave/savings-engine/pkg/uniswap"
)

var (
	swapUser   = gcommon.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")
	routerAddr = gcommon.HexToAddress("0x5555555555555555555555555555555555555555")
	hookAddr   = gcommon.HexToAddress("0x6666666666666666666666666666666666666666")
)

type mockValidator struct{ mock.Mock }

func (m *mockValidator) Validate(ctx context.Context, user gcommon.Address, req *types.SwapRequest) (*types.StrategyValidationResult, *types.SavingsStrategy, error) {
	args := m.Called(ctx, user, req)
	var result *types.StrategyValidationResult
	if args.Get(0) != nil {
		result = args.Get(0).(*types.StrategyValidationResult)
	}
	var strat *types.SavingsStrategy
	if args.Get(1) != nil {
		strat = args.Get(1).(*types.SavingsStrategy)
	}
	return result, strat, args.Error(2)
}

type mockQuoter struct{ mock.Mock }

func (m *mockQuoter) GetQuote(ctx context.Context, from, to tokens.Token, amount string) (*quote.Quote, error) {
	args := m.Called(ctx, from, to, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quote.Quote), args.Error(1)
}

type mockTxSender struct{ mock.Mock }

func (m *mockTxSender) From() gcommon.Address {
	return gcommon.HexToAddress("0x1111111111111111111111111111111111111111")
}

func (m *mockTxSender) Submit(ctx context.Context, to gcommon.Address, data []byte, value *big.Int, gasLimit uint64, gasPriceWei *big.Int) (*gtypes.Transaction, error) {
	args := m.Called(ctx, to, data, value, gasLimit, gasPriceWei)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gtypes.Transaction), args.Error(1)
}

type mockApprover struct{ mock.Mock }

func (m *mockApprover) GetAllowance(ctx context.Context, token, owner, spender gcommon.Address) (*big.Int, error) {
	args := m.Called(ctx, token, owner, spender)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockApprover) ApproveCalldata(spender gcommon.Address, amount *big.Int) ([]byte, error) {
	args := m.Called(spender, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockEstimator struct{ mock.Mock }

func (m *mockEstimator) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(uint64), args.Error(1)
}

type stubGasPricer struct{ data types.GasPriceData }

func (s stubGasPricer) GasPrices(ctx context.Context) types.GasPriceData { return s.data }

func testConfig() *uniswap.Config {
	return uniswap.NewConfig(routerAddr, gcommon.Address{}, hookAddr, gcommon.Address{}, 300_000, 0.5, 20*time.Minute)
}

func passingValidation() *types.StrategyValidationResult {
	return &types.StrategyValidationResult{IsValid: true, CanProceedWithSwap: true}
}

func testStrategy() *types.SavingsStrategy {
	return &types.SavingsStrategy{CurrentPercentage: 1000}
}

func testQuote() *quote.Quote {
	out, _ := new(big.Int).SetString("2340000000", 10) // 2340 USDC
	return &quote.Quote{AmountOut: "2340", AmountOutWei: out, Rate: 2600, FeeTier: uniswap.FeeMedium}
}

func ethToUSDC(amount string) *types.SwapRequest {
	eth, _ := tokens.BySymbol("ETH")
	usdc, _ := tokens.BySymbol("USDC")
	return &types.SwapRequest{FromToken: eth, ToToken: usdc, InputAmount: amount, SlippagePct: 0.5}
}

func newTestOrchestrator(t *testing.T, v StrategyValidator, q Quoter, e GasEstimator, s TxSender) *Orchestrator {
	t.Helper()
	return newTestOrchestratorApprover(t, v, q, &mockApprover{}, e, s)
}

func newTestOrchestratorApprover(t *testing.T, v StrategyValidator, q Quoter, a TokenApprover, e GasEstimator, s TxSender) *Orchestrator {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	o, err := NewOrchestrator(testConfig(), v, q, a, e, stubGasPricer{types.GasPriceData{StandardGwei: 5, EthUsdPrice: 2500}}, s, nil, nil, nil, logger)
	require.NoError(t, err)
	return o
}

func TestExecuteSwapGuards(t *testing.T) {
	o := newTestOrchestrator(t, &mockValidator{}, &mockQuoter{}, nil, &mockTxSender{})

	eth, _ := tokens.BySymbol("ETH")
	_, err := o.ExecuteSwap(context.Background(), swapUser, &types.SwapRequest{FromToken: eth, ToToken: eth, InputAmount: "1"})
	assert.ErrorIs(t, err, types.ErrSameToken)

	_, err = o.ExecuteSwap(context.Background(), swapUser, ethToUSDC("0"))
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = o.ExecuteSwap(context.Background(), swapUser, ethToUSDC("abc"))
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	noSender := newTestOrchestrator(t, &mockValidator{}, &mockQuoter{}, nil, &mockTxSender{})
	noSender.sender = nil
	_, err = noSender.ExecuteSwap(context.Background(), swapUser, ethToUSDC("1"))
	assert.ErrorIs(t, err, types.ErrNoSigner)
}

func TestExecuteSwapBlockedByStrategy(t *testing.T) {
	v := &mockValidator{}
	v.On("Validate", mock.Anything, swapUser, mock.Anything).
		Return(&types.StrategyValidationResult{Errors: []string{"savings percentage exceeds 50%"}}, testStrategy(), nil)

	o := newTestOrchestrator(t, v, &mockQuoter{}, nil, &mockTxSender{})
	_, err := o.ExecuteSwap(context.Background(), swapUser, ethToUSDC("1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 50%")
}

func TestExecuteSwapSubmitsWithSavingsSplit(t *testing.T) {
	v := &mockValidator{}
	v.On("Validate", mock.Anything, swapUser, mock.Anything).
		Return(passingValidation(), testStrategy(), nil)

	// 10% savings on 1.0 ETH leaves 0.9 to swap.
	q := &mockQuoter{}
	q.On("GetQuote", mock.Anything, mock.Anything, mock.Anything, "0.900000").
		Return(testQuote(), nil)

	tx := gtypes.NewTransaction(0, routerAddr, big.NewInt(0), 300_000, big.NewInt(1), nil)
	s := &mockTxSender{}
	s.On("Submit", mock.Anything, routerAddr,
		mock.MatchedBy(func(data []byte) bool {
			// Universal Router execute selector.
			return len(data) > 4 && data[0] == 0x35 && data[1] == 0x93 && data[2] == 0x56 && data[3] == 0x4c
		}),
		mock.MatchedBy(func(value *big.Int) bool {
			// Native input: tx value is the post-savings amount in wei.
			want, _ := new(big.Int).SetString("900000000000000000", 10)
			return value.Cmp(want) == 0
		}),
		mock.Anything, mock.Anything).
		Return(tx, nil)

	o := newTestOrchestrator(t, v, q, nil, s)
	result, err := o.ExecuteSwap(context.Background(), swapUser, ethToUSDC("1.0"))
	require.NoError(t, err)

	assert.Equal(t, types.SwapStatusPending, result.Status)
	assert.Equal(t, tx.Hash().Hex(), result.TxHash)
	assert.Equal(t, "0.100000", result.SavingsAmount)
	assert.Equal(t, "0.900000", result.ActualSwapAmount)
	assert.Equal(t, "2340", result.ExpectedOutput)
	assert.True(t, result.UsingFallbackGas)
	s.AssertExpectations(t)
	q.AssertExpectations(t)
}

func usdcToETH(amount string) *types.SwapRequest {
	usdc, _ := tokens.BySymbol("USDC")
	eth, _ := tokens.BySymbol("ETH")
	return &types.SwapRequest{FromToken: usdc, ToToken: eth, InputAmount: amount, SlippagePct: 0.5}
}

func TestExecuteSwapERC20InputApprovesWhenAllowanceShort(t *testing.T) {
	v := &mockValidator{}
	v.On("Validate", mock.Anything, swapUser, mock.Anything).
		Return(passingValidation(), testStrategy(), nil)
	q := &mockQuoter{}
	q.On("GetQuote", mock.Anything, mock.Anything, mock.Anything, "0.900000").
		Return(&quote.Quote{AmountOut: "0.00034", AmountOutWei: big.NewInt(340_000_000_000_000), Rate: 0.00038}, nil)

	usdc, _ := tokens.BySymbol("USDC")
	senderAddr := gcommon.HexToAddress("0x1111111111111111111111111111111111111111")
	approveData := []byte{0x09, 0x5e, 0xa7, 0xb3, 0xff}

	// 0.9 USDC in base units.
	wantAmount := big.NewInt(900_000)
	a := &mockApprover{}
	a.On("GetAllowance", mock.Anything, usdc.Address, senderAddr, routerAddr).
		Return(big.NewInt(0), nil)
	a.On("ApproveCalldata", routerAddr, mock.MatchedBy(func(amt *big.Int) bool {
		return amt.Cmp(wantAmount) == 0
	})).Return(approveData, nil)

	approveTx := gtypes.NewTransaction(0, usdc.Address, big.NewInt(0), approveGasLimit, big.NewInt(1), approveData)
	swapTx := gtypes.NewTransaction(1, routerAddr, big.NewInt(0), 300_000, big.NewInt(1), nil)
	s := &mockTxSender{}
	s.On("Submit", mock.Anything, usdc.Address, approveData, mock.Anything, uint64(approveGasLimit), mock.Anything).
		Return(approveTx, nil).Once()
	s.On("Submit", mock.Anything, routerAddr, mock.Anything, mock.MatchedBy(func(value *big.Int) bool {
		// ERC-20 input: no native value rides the swap.
		return value != nil && value.Sign() == 0
	}), mock.Anything, mock.Anything).
		Return(swapTx, nil).Once()

	o := newTestOrchestratorApprover(t, v, q, a, nil, s)
	result, err := o.ExecuteSwap(context.Background(), swapUser, usdcToETH("1.0"))
	require.NoError(t, err)
	assert.Equal(t, swapTx.Hash().Hex(), result.TxHash)
	a.AssertExpectations(t)
	s.AssertExpectations(t)
}

func TestExecuteSwapERC20InputSkipsApproveWhenCovered(t *testing.T) {
	v := &mockValidator{}
	v.On("Validate", mock.Anything, swapUser, mock.Anything).
		Return(passingValidation(), testStrategy(), nil)
	q := &mockQuoter{}
	q.On("GetQuote", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&quote.Quote{AmountOut: "0.00034", AmountOutWei: big.NewInt(340_000_000_000_000), Rate: 0.00038}, nil)

	a := &mockApprover{}
	a.On("GetAllowance", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(big.NewInt(1_000_000_000), nil)

	swapTx := gtypes.NewTransaction(0, routerAddr, big.NewInt(0), 300_000, big.NewInt(1), nil)
	s := &mockTxSender{}
	s.On("Submit", mock.Anything, routerAddr, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(swapTx, nil).Once()

	o := newTestOrchestratorApprover(t, v, q, a, nil, s)
	_, err := o.ExecuteSwap(context.Background(), swapUser, usdcToETH("1.0"))
	require.NoError(t, err)
	a.AssertNotCalled(t, "ApproveCalldata", mock.Anything, mock.Anything)
	s.AssertExpectations(t)
}

func TestExecuteSwapAllowanceReadErrorFails(t *testing.T) {
	v := &mockValidator{}
	v.On("Validate", mock.Anything, swapUser, mock.Anything).
		Return(passingValidation(), testStrategy(), nil)
	q := &mockQuoter{}
	q.On("GetQuote", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&quote.Quote{AmountOut: "0.00034", AmountOutWei: big.NewInt(340_000_000_000_000)}, nil)

	a := &mockApprover{}
	a.On("GetAllowance", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	s := &mockTxSender{}
	o := newTestOrchestratorApprover(t, v, q, a, nil, s)
	_, err := o.ExecuteSwap(context.Background(), swapUser, usdcToETH("1.0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowance")
	s.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteSwapUsesLiveGasEstimate(t *testing.T) {
	v := &mockValidator{}
	v.On("Validate", mock.Anything, swapUser, mock.Anything).
		Return(passingValidation(), testStrategy(), nil)
	q := &mockQuoter{}
	q.On("GetQuote", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(testQuote(), nil)
	e := &mockEstimator{}
	e.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(200_000), nil)

	tx := gtypes.NewTransaction(0, routerAddr, big.NewInt(0), 240_000, big.NewInt(1), nil)
	s := &mockTxSender{}
	s.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, uint64(240_000), mock.Anything).
		Return(tx, nil)

	o := newTestOrchestrator(t, v, q, e, s)
	result, err := o.ExecuteSwap(context.Background(), swapUser, ethToUSDC("1.0"))
	require.NoError(t, err)
	assert.False(t, result.UsingFallbackGas)
	assert.Equal(t, uint64(240_000), result.GasLimit)
	s.AssertExpectations(t)
}

func TestExecuteSwapEstimateFailureFallsBack(t *testing.T) {
	v := &mockValidator{}
	v.On("Validate", mock.Anything, swapUser, mock.Anything).
		Return(passingValidation(), testStrategy(), nil)
	q := &mockQuoter{}
	q.On("GetQuote", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(testQuote(), nil)
	e := &mockEstimator{}
	e.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(0), errors.New("execution reverted"))

	// 1 ETH swap sizes medium; input-side savings adds its overhead.
	wantLimit := uint64(gasLimitMedium + gasOverheadSavings)
	tx := gtypes.NewTransaction(0, routerAddr, big.NewInt(0), wantLimit, big.NewInt(1), nil)
	s := &mockTxSender{}
	s.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, wantLimit, mock.Anything).
		Return(tx, nil)

	o := newTestOrchestrator(t, v, q, e, s)
	result, err := o.ExecuteSwap(context.Background(), swapUser, ethToUSDC("1.0"))
	require.NoError(t, err)
	assert.True(t, result.UsingFallbackGas)
	s.AssertExpectations(t)
}

func TestExecuteSwapSubmitErrorClassified(t *testing.T) {
	v := &mockValidator{}
	v.On("Validate", mock.Anything, swapUser, mock.Anything).
		Return(passingValidation(), testStrategy(), nil)
	q := &mockQuoter{}
	q.On("GetQuote", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(testQuote(), nil)
	s := &mockTxSender{}
	s.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("insufficient funds for gas * price + value"))

	o := newTestOrchestrator(t, v, q, nil, s)
	_, err := o.ExecuteSwap(context.Background(), swapUser, ethToUSDC("1.0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds to cover the swap and gas")
}

func TestGasLimitHeuristicBuckets(t *testing.T) {
	o := newTestOrchestrator(t, &mockValidator{}, &mockQuoter{}, nil, &mockTxSender{})
	strat := &types.SavingsStrategy{}

	cases := []struct {
		amount float64
		want   uint64
	}{
		{0.005, gasLimitMicro},
		{0.05, gasLimitSmall},
		{0.5, gasLimitMedium},
		{5, gasLimitLarge},
	}
	for _, tc := range cases {
		limit, fallback := o.gasLimit(context.Background(), swapUser, ethToUSDC("1"), strat, tc.amount, nil, nil)
		assert.True(t, fallback)
		assert.Equal(t, tc.want, limit, "amount %v", tc.amount)
	}
}

func TestGasLimitOverheads(t *testing.T) {
	o := newTestOrchestrator(t, &mockValidator{}, &mockQuoter{}, nil, &mockTxSender{})
	strat := &types.SavingsStrategy{
		CurrentPercentage: 1000,
		SavingsTokenType:  types.SavingsTokenOutput,
		EnableDCA:         true,
	}

	limit, _ := o.gasLimit(context.Background(), swapUser, ethToUSDC("1"), strat, 5, nil, nil)
	assert.Equal(t, uint64(gasLimitLarge+gasOverheadSavings+gasOverheadOutSide+gasOverheadDCA), limit)

	disabled := ethToUSDC("1")
	disabled.DisableSavings = true
	limit, _ = o.gasLimit(context.Background(), swapUser, disabled, strat, 5, nil, nil)
	assert.Equal(t, uint64(gasLimitLarge), limit)
}

func TestApplySlippage(t *testing.T) {
	out := big.NewInt(1_000_000)
	assert.Equal(t, int64(995_000), applySlippage(out, 0.5).Int64())
	assert.Equal(t, int64(1_000_000), applySlippage(out, 0).Int64())
	assert.Equal(t, int64(0), applySlippage(nil, 0.5).Int64())
}

func TestClassifyTxError(t *testing.T) {
	cases := map[string]string{
		"insufficient funds for transfer":  "insufficient funds",
		"user denied transaction":          "rejected by the wallet",
		"gas required exceeds allowance":   "gas estimate exceeds",
		"unknown account":                  "signer is unavailable",
		"execution reverted: TooLittleReceived": "slippage tolerance",
		"something odd":                    "swap submission failed",
	}
	for in, want := range cases {
		assert.Contains(t, classifyTxError(errors.New(in)), want, in)
	}
	assert.Empty(t, classifyTxError(nil))
}
