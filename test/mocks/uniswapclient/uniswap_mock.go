package uniswapclient

import (
	"context"
	"math/big"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/spendsave/savings-engine/pkg/uniswap"
)

type MockUniswapClient struct {
	mock.Mock
	Cfg *uniswap.Config
}

func (m *MockUniswapClient) QuoteExactInputSingle(ctx context.Context, key uniswap.PoolKey, zeroForOne bool, amountIn *big.Int, hookData []byte) (*big.Int, error) {
	args := m.Called(ctx, key, zeroForOne, amountIn, hookData)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockUniswapClient) GetAllowance(ctx context.Context, token, owner, spender gcommon.Address) (*big.Int, error) {
	args := m.Called(ctx, token, owner, spender)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockUniswapClient) GetTokenBalance(ctx context.Context, token, holder gcommon.Address) (*big.Int, error) {
	args := m.Called(ctx, token, holder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockUniswapClient) ApproveCalldata(spender gcommon.Address, amount *big.Int) ([]byte, error) {
	args := m.Called(spender, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockUniswapClient) Config() *uniswap.Config {
	return m.Cfg
}
