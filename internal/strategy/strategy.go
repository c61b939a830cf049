package strategy

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	gcommon "github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/types"
)

// Validation state of the strategy service. The service moves through these
// as swaps are validated and strategies are written on chain.
type State string

const (
	StateIdle            State = "idle"
	StateValidating      State = "validating"
	StateValid           State = "valid"
	StateNeedsSetup      State = "needs-setup"
	StateInvalid         State = "invalid"
	StateSettingStrategy State = "setting-strategy"
)

const (
	// Percentage bounds in basis points.
	warnLowBps = 100  // below 1% savings are barely worth the gas
	errHighBps = 5000 // above 50% the strategy is treated as misconfigured

	negligibleEth = 0.001
	setupGasLimit = 150_000
)

// ChainReader reads a user's savings strategy from chain.
type ChainReader interface {
	GetUserSavingStrategy(ctx context.Context, user gcommon.Address) (*types.SavingsStrategy, error)
}

// TxSender submits and awaits strategy-update transactions.
type TxSender interface {
	From() gcommon.Address
	Submit(ctx context.Context, to gcommon.Address, data []byte, value *big.Int, gasLimit uint64, gasPriceWei *big.Int) (*gtypes.Transaction, error)
	WaitMined(ctx context.Context, tx *gtypes.Transaction) (*gtypes.Receipt, error)
}

// GasPricer supplies the current gas price for strategy-update transactions.
type GasPricer interface {
	GasPrices(ctx context.Context) types.GasPriceData
}

// DCAEnabler toggles DCA queueing on the manager contract. *dca.Client
// satisfies it.
type DCAEnabler interface {
	SetEnabled(ctx context.Context, user, targetToken gcommon.Address, enabled bool) error
}

// Service validates savings strategies against swap requests and writes
// strategy updates on chain.
type Service struct {
	reader ChainReader
	sender TxSender
	gas    GasPricer
	dca    DCAEnabler
	store  gcommon.Address
	logger *logrus.Logger

	mu    sync.Mutex
	state State
}

func NewService(reader ChainReader, sender TxSender, gas GasPricer, dca DCAEnabler, store gcommon.Address, logger *logrus.Logger) (*Service, error) {
	if reader == nil {
		return nil, fmt.Errorf("chain reader cannot be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		reader: reader,
		sender: sender,
		gas:    gas,
		dca:    dca,
		store:  store,
		logger: logger,
		state:  StateIdle,
	}, nil
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Validate checks whether the user's on-chain strategy permits the given swap.
// A request with savings disabled, or without a connected wallet, short-circuits
// to a passing result without touching the chain.
func (s *Service) Validate(ctx context.Context, user gcommon.Address, req *types.SwapRequest) (*types.StrategyValidationResult, *types.SavingsStrategy, error) {
	s.setState(StateValidating)

	result := &types.StrategyValidationResult{CanProceedWithSwap: true}

	if req != nil && req.DisableSavings {
		result.IsValid = true
		s.setState(StateValid)
		return result, nil, nil
	}
	if user == (gcommon.Address{}) {
		result.IsValid = true
		s.setState(StateValid)
		return result, nil, nil
	}

	strat, err := s.reader.GetUserSavingStrategy(ctx, user)
	if err != nil {
		s.setState(StateInvalid)
		return nil, nil, fmt.Errorf("fail to read saving strategy for %s: %w", user.Hex(), err)
	}

	if !strat.IsConfigured() {
		result.IsValid = false
		result.NeedsSetup = true
		result.Errors = append(result.Errors,
			"no savings strategy configured, set one up before swapping")
		result.CanProceedWithSwap = false
		s.setState(StateNeedsSetup)
		return result, strat, nil
	}

	if strat.CurrentPercentage > errHighBps {
		result.Errors = append(result.Errors,
			"savings percentage exceeds 50%, update the strategy before swapping")
	}
	if strat.CurrentPercentage < warnLowBps {
		result.Warnings = append(result.Warnings,
			"savings percentage is below 1%, savings may not cover gas costs")
	}
	if strat.SavingsTokenType == types.SavingsTokenSpecific && strat.SpecificSavingsToken == (gcommon.Address{}) {
		result.Errors = append(result.Errors,
			"specific savings token is not set")
	}
	if req != nil && req.FromToken.Native {
		if negligible(req.InputAmount, strat.PercentageFloat()) {
			result.Warnings = append(result.Warnings,
				"savings amount is negligible for this swap size")
		}
	}

	result.IsValid = len(result.Errors) == 0
	result.CanProceedWithSwap = result.IsValid
	if result.IsValid {
		s.setState(StateValid)
	} else {
		s.setState(StateInvalid)
	}
	return result, strat, nil
}

// Setup writes a new savings strategy on chain, waits for it to mine, then
// re-reads the strategy to confirm it took effect.
func (s *Service) Setup(ctx context.Context, user gcommon.Address, params types.StrategySetupParams) (*types.SavingsStrategy, error) {
	if s.sender == nil {
		return nil, types.ErrNoSigner
	}
	if params.Percentage < 0 || params.Percentage > 50 {
		return nil, fmt.Errorf("savings percentage %.2f out of range [0, 50]", params.Percentage)
	}
	if params.MaxPercentage < params.Percentage {
		return nil, fmt.Errorf("max percentage %.2f below current percentage %.2f", params.MaxPercentage, params.Percentage)
	}
	if params.TokenType == types.SavingsTokenSpecific && params.SpecificToken == (gcommon.Address{}) {
		return nil, fmt.Errorf("specific savings token required for token type %s", params.TokenType)
	}
	if params.EnableDCA && s.dca == nil {
		return nil, fmt.Errorf("dca manager is not configured")
	}

	data, err := SetSavingStrategyCalldata(
		user,
		pctToBps(params.Percentage),
		pctToBps(params.AutoIncrement),
		pctToBps(params.MaxPercentage),
		params.RoundUpSavings,
		params.TokenType,
		params.SpecificToken,
	)
	if err != nil {
		return nil, err
	}

	s.setState(StateSettingStrategy)

	var gasPriceWei *big.Int
	if s.gas != nil {
		gp := s.gas.GasPrices(ctx)
		gasPriceWei = gweiToWei(gp.StandardGwei)
	}

	// Setup always hands back to idle: failures are retryable, and the
	// next Validate drives the state from fresh chain reads.
	tx, err := s.sender.Submit(ctx, s.store, data, nil, setupGasLimit, gasPriceWei)
	if err != nil {
		s.setState(StateIdle)
		return nil, fmt.Errorf("fail to submit strategy update: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user":    user.Hex(),
		"tx_hash": tx.Hash().Hex(),
	}).Info("strategy update submitted")

	receipt, err := s.sender.WaitMined(ctx, tx)
	if err != nil {
		s.setState(StateIdle)
		return nil, fmt.Errorf("fail to wait for strategy update: %w", err)
	}
	if receipt.Status != gtypes.ReceiptStatusSuccessful {
		s.setState(StateIdle)
		return nil, fmt.Errorf("strategy update reverted: %s", tx.Hash().Hex())
	}

	if params.EnableDCA {
		if err := s.dca.SetEnabled(ctx, user, params.SpecificToken, true); err != nil {
			s.setState(StateIdle)
			return nil, fmt.Errorf("strategy updated but fail to enable dca: %w", err)
		}
	}

	strat, err := s.reader.GetUserSavingStrategy(ctx, user)
	if err != nil {
		s.setState(StateIdle)
		return nil, fmt.Errorf("fail to re-read saving strategy: %w", err)
	}
	s.setState(StateIdle)
	return strat, nil
}

func pctToBps(pct float64) uint64 {
	if pct <= 0 {
		return 0
	}
	return uint64(pct*100 + 0.5)
}

func gweiToWei(gwei float64) *big.Int {
	if gwei <= 0 {
		return nil
	}
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9)).Int(nil)
	return wei
}

func negligible(amount string, savingsPct float64) bool {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return false
	}
	return v*savingsPct/100 < negligibleEth
}
