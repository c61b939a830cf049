package strategy

import (
	"context"
	"errors"
	"math/big"
	"testing"

	gcommon "github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spendsave/savings-engine/internal/tokens"
	"github.com/spendsave/savings-engine/internal/types"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) GetUserSavingStrategy(ctx context.Context, user gcommon.Address) (*types.SavingsStrategy, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SavingsStrategy), args.Error(1)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) From() gcommon.Address {
	return gcommon.HexToAddress("0x1111111111111111111111111111111111111111")
}

func (m *mockSender) Submit(ctx context.Context, to gcommon.Address, data []byte, value *big.Int, gasLimit uint64, gasPriceWei *big.Int) (*gtypes.Transaction, error) {
	args := m.Called(ctx, to, data, value, gasLimit, gasPriceWei)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gtypes.Transaction), args.Error(1)
}

func (m *mockSender) WaitMined(ctx context.Context, tx *gtypes.Transaction) (*gtypes.Receipt, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gtypes.Receipt), args.Error(1)
}

type mockEnabler struct {
	mock.Mock
}

func (m *mockEnabler) SetEnabled(ctx context.Context, user, targetToken gcommon.Address, enabled bool) error {
	args := m.Called(ctx, user, targetToken, enabled)
	return args.Error(0)
}

var testUser = gcommon.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")

func newTestService(t *testing.T, reader ChainReader, sender TxSender) *Service {
	t.Helper()
	return newTestServiceDCA(t, reader, sender, nil)
}

func newTestServiceDCA(t *testing.T, reader ChainReader, sender TxSender, dca DCAEnabler) *Service {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	svc, err := NewService(reader, sender, nil, dca, gcommon.HexToAddress("0x2222222222222222222222222222222222222222"), logger)
	require.NoError(t, err)
	return svc
}

func ethRequest(amount string) *types.SwapRequest {
	eth, _ := tokens.BySymbol("ETH")
	usdc, _ := tokens.BySymbol("USDC")
	return &types.SwapRequest{FromToken: eth, ToToken: usdc, InputAmount: amount}
}

func TestValidateSavingsDisabledSkipsChain(t *testing.T) {
	reader := &mockReader{}
	svc := newTestService(t, reader, nil)

	req := ethRequest("1.0")
	req.DisableSavings = true

	result, strat, err := svc.Validate(context.Background(), testUser, req)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.CanProceedWithSwap)
	assert.Nil(t, strat)
	assert.Equal(t, StateValid, svc.State())
	reader.AssertNotCalled(t, "GetUserSavingStrategy", mock.Anything, mock.Anything)
}

func TestValidateNoWalletSkipsChain(t *testing.T) {
	reader := &mockReader{}
	svc := newTestService(t, reader, nil)

	result, _, err := svc.Validate(context.Background(), gcommon.Address{}, ethRequest("1.0"))
	require.NoError(t, err)
	assert.True(t, result.CanProceedWithSwap)
	reader.AssertNotCalled(t, "GetUserSavingStrategy", mock.Anything, mock.Anything)
}

func TestValidateUnconfiguredNeedsSetup(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetUserSavingStrategy", mock.Anything, testUser).
		Return(&types.SavingsStrategy{CurrentPercentage: 0}, nil)
	svc := newTestService(t, reader, nil)

	result, strat, err := svc.Validate(context.Background(), testUser, ethRequest("1.0"))
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.True(t, result.NeedsSetup)
	assert.False(t, result.CanProceedWithSwap, "an unconfigured strategy must not move funds")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "no savings strategy configured")
	assert.NotNil(t, strat)
	assert.Equal(t, StateNeedsSetup, svc.State())
}

func TestValidateHighPercentageBlocks(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetUserSavingStrategy", mock.Anything, testUser).
		Return(&types.SavingsStrategy{CurrentPercentage: 6000}, nil)
	svc := newTestService(t, reader, nil)

	result, _, err := svc.Validate(context.Background(), testUser, ethRequest("1.0"))
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.False(t, result.CanProceedWithSwap)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "exceeds 50%")
	assert.Equal(t, StateInvalid, svc.State())
}

func TestValidateLowPercentageWarnsOnly(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetUserSavingStrategy", mock.Anything, testUser).
		Return(&types.SavingsStrategy{CurrentPercentage: 50}, nil)
	svc := newTestService(t, reader, nil)

	result, _, err := svc.Validate(context.Background(), testUser, ethRequest("100"))
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.CanProceedWithSwap)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateSpecificTokenUnsetBlocks(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetUserSavingStrategy", mock.Anything, testUser).
		Return(&types.SavingsStrategy{
			CurrentPercentage: 1000,
			SavingsTokenType:  types.SavingsTokenSpecific,
		}, nil)
	svc := newTestService(t, reader, nil)

	result, _, err := svc.Validate(context.Background(), testUser, ethRequest("1.0"))
	require.NoError(t, err)
	assert.False(t, result.CanProceedWithSwap)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "specific savings token")
}

func TestValidateNegligibleSavingsWarns(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetUserSavingStrategy", mock.Anything, testUser).
		Return(&types.SavingsStrategy{CurrentPercentage: 1000}, nil)
	svc := newTestService(t, reader, nil)

	// 10% of 0.005 ETH is 0.0005, under the negligible floor.
	result, _, err := svc.Validate(context.Background(), testUser, ethRequest("0.005"))
	require.NoError(t, err)
	assert.True(t, result.CanProceedWithSwap)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "negligible")
}

func TestValidateReaderErrorPropagates(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetUserSavingStrategy", mock.Anything, testUser).
		Return(nil, errors.New("connection refused"))
	svc := newTestService(t, reader, nil)

	_, _, err := svc.Validate(context.Background(), testUser, ethRequest("1.0"))
	require.Error(t, err)
	assert.Equal(t, StateInvalid, svc.State())
}

func TestSetupSubmitsAndRevalidates(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetUserSavingStrategy", mock.Anything, testUser).
		Return(&types.SavingsStrategy{CurrentPercentage: 1000}, nil)

	tx := gtypes.NewTransaction(0, gcommon.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil)
	sender := &mockSender{}
	sender.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, uint64(setupGasLimit), mock.Anything).
		Return(tx, nil)
	sender.On("WaitMined", mock.Anything, tx).
		Return(&gtypes.Receipt{Status: gtypes.ReceiptStatusSuccessful}, nil)

	svc := newTestService(t, reader, sender)

	strat, err := svc.Setup(context.Background(), testUser, types.StrategySetupParams{
		Percentage:    10,
		MaxPercentage: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), strat.CurrentPercentage)
	assert.Equal(t, StateIdle, svc.State())
	sender.AssertExpectations(t)
}

func TestSetupRevertedReceipt(t *testing.T) {
	reader := &mockReader{}
	tx := gtypes.NewTransaction(0, gcommon.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil)
	sender := &mockSender{}
	sender.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tx, nil)
	sender.On("WaitMined", mock.Anything, tx).
		Return(&gtypes.Receipt{Status: gtypes.ReceiptStatusFailed}, nil)

	svc := newTestService(t, reader, sender)

	_, err := svc.Setup(context.Background(), testUser, types.StrategySetupParams{Percentage: 10, MaxPercentage: 25})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reverted")
	assert.Equal(t, StateIdle, svc.State(), "failed setup returns to idle so the user can retry")
}

func TestSetupRejectsBadParams(t *testing.T) {
	svc := newTestService(t, &mockReader{}, &mockSender{})

	_, err := svc.Setup(context.Background(), testUser, types.StrategySetupParams{Percentage: 60, MaxPercentage: 70})
	require.Error(t, err)

	_, err = svc.Setup(context.Background(), testUser, types.StrategySetupParams{Percentage: 20, MaxPercentage: 10})
	require.Error(t, err)

	_, err = svc.Setup(context.Background(), testUser, types.StrategySetupParams{
		Percentage:    10,
		MaxPercentage: 25,
		TokenType:     types.SavingsTokenSpecific,
	})
	require.Error(t, err)
}

func TestSetupEnablesDCA(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetUserSavingStrategy", mock.Anything, testUser).
		Return(&types.SavingsStrategy{CurrentPercentage: 1000, EnableDCA: true}, nil)

	tx := gtypes.NewTransaction(0, gcommon.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil)
	sender := &mockSender{}
	sender.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tx, nil)
	sender.On("WaitMined", mock.Anything, tx).
		Return(&gtypes.Receipt{Status: gtypes.ReceiptStatusSuccessful}, nil)

	enabler := &mockEnabler{}
	enabler.On("SetEnabled", mock.Anything, testUser, gcommon.Address{}, true).Return(nil)

	svc := newTestServiceDCA(t, reader, sender, enabler)
	strat, err := svc.Setup(context.Background(), testUser, types.StrategySetupParams{
		Percentage:    10,
		MaxPercentage: 25,
		EnableDCA:     true,
	})
	require.NoError(t, err)
	assert.True(t, strat.EnableDCA)
	enabler.AssertExpectations(t)
}

func TestSetupEnableDCAFailureSurfaces(t *testing.T) {
	reader := &mockReader{}
	tx := gtypes.NewTransaction(0, gcommon.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil)
	sender := &mockSender{}
	sender.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tx, nil)
	sender.On("WaitMined", mock.Anything, tx).
		Return(&gtypes.Receipt{Status: gtypes.ReceiptStatusSuccessful}, nil)

	enabler := &mockEnabler{}
	enabler.On("SetEnabled", mock.Anything, testUser, gcommon.Address{}, true).
		Return(errors.New("execution reverted"))

	svc := newTestServiceDCA(t, reader, sender, enabler)
	_, err := svc.Setup(context.Background(), testUser, types.StrategySetupParams{
		Percentage:    10,
		MaxPercentage: 25,
		EnableDCA:     true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enable dca")
	assert.Equal(t, StateIdle, svc.State())
}

func TestSetupEnableDCAWithoutManager(t *testing.T) {
	sender := &mockSender{}
	svc := newTestService(t, &mockReader{}, sender)

	_, err := svc.Setup(context.Background(), testUser, types.StrategySetupParams{
		Percentage:    10,
		MaxPercentage: 25,
		EnableDCA:     true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dca manager is not configured")
	sender.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSetupNoSender(t *testing.T) {
	svc := newTestService(t, &mockReader{}, nil)
	_, err := svc.Setup(context.Background(), testUser, types.StrategySetupParams{Percentage: 10, MaxPercentage: 25})
	assert.ErrorIs(t, err, types.ErrNoSigner)
}

func TestSetSavingStrategyCalldata(t *testing.T) {
	data, err := SetSavingStrategyCalldata(testUser, 1000, 50, 2500, true, types.SavingsTokenInput, gcommon.Address{})
	require.NoError(t, err)
	// selector + 7 static words
	assert.Len(t, data, 4+7*32)
}

func TestPctToBps(t *testing.T) {
	assert.Equal(t, uint64(1000), pctToBps(10))
	assert.Equal(t, uint64(50), pctToBps(0.5))
	assert.Equal(t, uint64(0), pctToBps(0))
	assert.Equal(t, uint64(0), pctToBps(-3))
}
