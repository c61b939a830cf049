// Package swap orchestrates the full swap-with-savings pipeline: strategy
// validation, the savings split, quoting, v4 calldata assembly, gas sizing,
// submission, and settlement hand-off.
package swap

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ethereum/go-ethereum"
	gcommon "github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/quote"
	"github.com/spendsave/savings-engine/internal/savingsmath"
	"github.com/spendsave/savings-engine/internal/settlement"
	"github.com/spendsave/savings-engine/internal/tasks"
	"github.com/spendsave/savings-engine/internal/tokens"
	"github.com/spendsave/savings-engine/internal/types"
	"github.com/spendsave/savings-engine/pkg/uniswap"
)

// Fallback gas limits by swap size (ETH-equivalent input value). Applied
// when the node declines to estimate, which thin v4 pools do routinely.
const (
	gasLimitMicro  = 180_000 // < 0.01 ETH
	gasLimitSmall  = 220_000 // < 0.1 ETH
	gasLimitMedium = 280_000 // < 1 ETH
	gasLimitLarge  = 350_000

	gasOverheadSavings  = 40_000 // hook takes the savings cut
	gasOverheadOutSide  = 25_000 // output-side or specific-token savings re-route
	gasOverheadDCA      = 30_000 // hook queues a DCA entry
	gasEstimateHeadroom = 1.2

	approveGasLimit = 60_000

	fallbackSettleWait = 10 * time.Minute
)

// StrategyValidator re-checks the user's on-chain strategy right before
// funds move.
type StrategyValidator interface {
	Validate(ctx context.Context, user gcommon.Address, req *types.SwapRequest) (*types.StrategyValidationResult, *types.SavingsStrategy, error)
}

// Quoter produces the expected output for the post-savings swap amount.
type Quoter interface {
	GetQuote(ctx context.Context, from, to tokens.Token, amount string) (*quote.Quote, error)
}

// TokenApprover checks and grants the router's ERC-20 allowance for the
// input token. uniswap.Client satisfies it.
type TokenApprover interface {
	GetAllowance(ctx context.Context, token, owner, spender gcommon.Address) (*big.Int, error)
	ApproveCalldata(spender gcommon.Address, amount *big.Int) ([]byte, error)
}

// GasEstimator is the live-estimate slice of an RPC client.
type GasEstimator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// GasPricer supplies gas tiers and the ETH/USD reference used for sizing.
type GasPricer interface {
	GasPrices(ctx context.Context) types.GasPriceData
}

// TxSender signs and broadcasts the assembled transaction.
type TxSender interface {
	From() gcommon.Address
	Submit(ctx context.Context, to gcommon.Address, data []byte, value *big.Int, gasLimit uint64, gasPriceWei *big.Int) (*gtypes.Transaction, error)
}

// TaskEnqueuer hands settlement validation to the worker. *asynq.Client
// satisfies it.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Orchestrator runs one swap end to end and returns as soon as the
// transaction is accepted by the node.
type Orchestrator struct {
	cfg       *uniswap.Config
	validator StrategyValidator
	quoter    Quoter
	approver  TokenApprover
	estimator GasEstimator
	gas       GasPricer
	sender    TxSender
	queue     TaskEnqueuer
	settler   *settlement.Validator
	metrics   statsd.ClientInterface
	logger    *logrus.Logger
}

func NewOrchestrator(
	cfg *uniswap.Config,
	validator StrategyValidator,
	quoter Quoter,
	approver TokenApprover,
	estimator GasEstimator,
	gas GasPricer,
	sender TxSender,
	queue TaskEnqueuer,
	settler *settlement.Validator,
	metrics statsd.ClientInterface,
	logger *logrus.Logger,
) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("uniswap config cannot be nil")
	}
	if validator == nil {
		return nil, fmt.Errorf("strategy validator cannot be nil")
	}
	if quoter == nil {
		return nil, fmt.Errorf("quoter cannot be nil")
	}
	if approver == nil {
		return nil, fmt.Errorf("token approver cannot be nil")
	}
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		cfg:       cfg,
		validator: validator,
		quoter:    quoter,
		approver:  approver,
		estimator: estimator,
		gas:       gas,
		sender:    sender,
		queue:     queue,
		settler:   settler,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// ExecuteSwap validates, prices, assembles, and submits one swap. The
// returned result carries the pending transaction hash; confirmation and
// hook verification happen asynchronously.
func (o *Orchestrator) ExecuteSwap(ctx context.Context, user gcommon.Address, req *types.SwapRequest) (*types.SwapResult, error) {
	if req == nil {
		return nil, fmt.Errorf("swap request cannot be nil")
	}
	if req.FromToken.Address == req.ToToken.Address {
		return nil, types.ErrSameToken
	}
	amountFloat, err := strconv.ParseFloat(req.InputAmount, 64)
	if err != nil || amountFloat <= 0 {
		return nil, types.ErrInvalidAmount
	}
	if o.sender == nil {
		return nil, types.ErrNoSigner
	}

	validation, strat, err := o.validator.Validate(ctx, user, req)
	if err != nil {
		return nil, fmt.Errorf("fail to validate saving strategy: %w", err)
	}
	if !validation.CanProceedWithSwap {
		o.count("swap.blocked", "reason:strategy")
		return nil, fmt.Errorf("strategy blocks swap: %s", strings.Join(validation.Errors, "; "))
	}

	savingsAmount := savingsmath.ComputeSavingsAmount(req.InputAmount, strat, req.OverridePercentage, req.DisableSavings)
	actualAmount := savingsmath.ComputeActualSwapAmount(req.InputAmount, strat, req.OverridePercentage, req.DisableSavings)

	q, err := o.quoter.GetQuote(ctx, req.FromToken, req.ToToken, actualAmount)
	if err != nil {
		return nil, fmt.Errorf("fail to quote swap: %w", err)
	}

	calldata, amountInWei, minOutWei, err := o.buildCalldata(user, req, q, actualAmount)
	if err != nil {
		return nil, fmt.Errorf("fail to build swap calldata: %w", err)
	}

	value := big.NewInt(0)
	if req.FromToken.Native {
		value = amountInWei
	}

	gasPriceWei := o.gasPrice(ctx, req.GasCategory)
	if !req.FromToken.Native {
		if err := o.ensureAllowance(ctx, req.FromToken, amountInWei, gasPriceWei); err != nil {
			return nil, err
		}
	}

	gasLimit, usingFallbackGas := o.gasLimit(ctx, user, req, strat, amountFloat, calldata, value)

	tx, err := o.sender.Submit(ctx, o.cfg.UniversalRouter(), calldata, value, gasLimit, gasPriceWei)
	if err != nil {
		o.count("swap.submit_failed", "category:"+errorCategory(err))
		return nil, fmt.Errorf("%s: %w", classifyTxError(err), err)
	}

	swapID := uuid.New().String()
	result := &types.SwapResult{
		TxHash:            tx.Hash().Hex(),
		Status:            types.SwapStatusPending,
		SavingsAmount:     savingsAmount,
		ActualSwapAmount:  actualAmount,
		GasLimit:          gasLimit,
		UsingFallbackGas:  usingFallbackGas,
		UsedFallbackQuote: q.UsedFallback,
		ExpectedOutput:    q.AmountOut,
	}

	o.count("swap.submitted",
		"pair:"+req.FromToken.Symbol+"_"+req.ToToken.Symbol,
		"fallback_gas:"+strconv.FormatBool(usingFallbackGas),
	)
	o.logger.WithFields(logrus.Fields{
		"swap_id":   swapID,
		"tx_hash":   result.TxHash,
		"pair":      req.FromToken.Symbol + "/" + req.ToToken.Symbol,
		"savings":   savingsAmount,
		"gas_limit": gasLimit,
		"min_out":   minOutWei.String(),
	}).Info("swap submitted")

	o.scheduleSettlement(swapID, user, tx)
	return result, nil
}

// buildCalldata assembles the Universal Router execute call for a single
// exact-input v4 swap routed through the savings hook.
func (o *Orchestrator) buildCalldata(user gcommon.Address, req *types.SwapRequest, q *quote.Quote, actualAmount string) ([]byte, *big.Int, *big.Int, error) {
	fee := uniswap.FeeMedium
	if isStable(req.FromToken) && isStable(req.ToToken) {
		fee = uniswap.FeeLowest
	}
	key, err := uniswap.NewPoolKey(req.FromToken.Address, req.ToToken.Address, fee, o.cfg.Hook())
	if err != nil {
		return nil, nil, nil, err
	}
	zeroForOne := key.ZeroForOne(req.FromToken.Address)

	slippage := req.SlippagePct
	if slippage <= 0 {
		slippage = o.cfg.Slippage()
	}
	sqrtLimit, err := uniswap.SqrtPriceLimit(zeroForOne, slippage)
	if err != nil {
		return nil, nil, nil, err
	}

	var hookData []byte
	if user != (gcommon.Address{}) {
		hookData, err = uniswap.EncodeHookData(user)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	amountInWei, err := tokens.ToBaseUnits(actualAmount, req.FromToken.Decimals)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fail to convert swap amount: %w", err)
	}
	minOutWei := applySlippage(q.AmountOutWei, slippage)

	swapParams, err := uniswap.EncodeSwapParams(key, zeroForOne, amountInWei, sqrtLimit, hookData)
	if err != nil {
		return nil, nil, nil, err
	}
	settleParams, err := uniswap.EncodeSettleAll(req.FromToken.Address, amountInWei)
	if err != nil {
		return nil, nil, nil, err
	}
	takeParams, err := uniswap.EncodeTakeAll(req.ToToken.Address, minOutWei)
	if err != nil {
		return nil, nil, nil, err
	}

	input, err := uniswap.BuildV4SwapInput(swapParams, settleParams, takeParams)
	if err != nil {
		return nil, nil, nil, err
	}

	deadline := big.NewInt(time.Now().Add(o.cfg.Deadline()).Unix())
	calldata, err := uniswap.EncodeExecute(uniswap.BuildCommands(), [][]byte{input}, deadline)
	if err != nil {
		return nil, nil, nil, err
	}
	return calldata, amountInWei, minOutWei, nil
}

// ensureAllowance submits an approve for the input token when the router's
// allowance does not cover the swap. The approve and the swap ride
// consecutive nonces from the same account, so the node serializes them.
func (o *Orchestrator) ensureAllowance(ctx context.Context, token tokens.Token, amountInWei, gasPriceWei *big.Int) error {
	router := o.cfg.UniversalRouter()
	allowance, err := o.approver.GetAllowance(ctx, token.Address, o.sender.From(), router)
	if err != nil {
		return fmt.Errorf("fail to read %s allowance: %w", token.Symbol, err)
	}
	if allowance.Cmp(amountInWei) >= 0 {
		return nil
	}

	data, err := o.approver.ApproveCalldata(router, amountInWei)
	if err != nil {
		return fmt.Errorf("fail to build approve calldata: %w", err)
	}
	tx, err := o.sender.Submit(ctx, token.Address, data, nil, approveGasLimit, gasPriceWei)
	if err != nil {
		o.count("swap.approve_failed", "token:"+token.Symbol)
		return fmt.Errorf("%s: %w", classifyTxError(err), err)
	}

	o.logger.WithFields(logrus.Fields{
		"token":   token.Symbol,
		"tx_hash": tx.Hash().Hex(),
	}).Info("approval submitted")
	return nil
}

// gasLimit asks the node first; when that fails it falls back to sizing by
// swap value plus overheads for the hook work the estimate would have seen.
func (o *Orchestrator) gasLimit(ctx context.Context, user gcommon.Address, req *types.SwapRequest, strat *types.SavingsStrategy, amountFloat float64, calldata []byte, value *big.Int) (uint64, bool) {
	if o.estimator != nil {
		router := o.cfg.UniversalRouter()
		from := user
		if o.sender != nil {
			from = o.sender.From()
		}
		estimate, err := o.estimator.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &router,
			Value: value,
			Data:  calldata,
		})
		if err == nil && estimate > 0 {
			return uint64(float64(estimate) * gasEstimateHeadroom), false
		}
		if err != nil {
			o.logger.WithError(err).Debug("live gas estimate unavailable, sizing heuristically")
		}
	}

	limit := uint64(gasLimitLarge)
	switch ethEquiv := o.ethEquivalent(ctx, req.FromToken, amountFloat); {
	case ethEquiv < 0.01:
		limit = gasLimitMicro
	case ethEquiv < 0.1:
		limit = gasLimitSmall
	case ethEquiv < 1:
		limit = gasLimitMedium
	}

	if strat.IsConfigured() && !req.DisableSavings {
		limit += gasOverheadSavings
		if strat.SavingsTokenType != types.SavingsTokenInput {
			limit += gasOverheadOutSide
		}
		if strat.EnableDCA {
			limit += gasOverheadDCA
		}
	}
	return limit, true
}

func (o *Orchestrator) gasPrice(ctx context.Context, category types.GasCategory) *big.Int {
	if o.gas == nil {
		return nil
	}
	data := o.gas.GasPrices(ctx)
	gwei := data.PriceFor(category)
	if gwei <= 0 {
		return nil
	}
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9)).Int(nil)
	return wei
}

// ethEquivalent converts a swap amount to ETH terms for gas sizing. The
// rough static prices are fine here; the answer only picks a bucket.
func (o *Orchestrator) ethEquivalent(ctx context.Context, token tokens.Token, amount float64) float64 {
	if token.Native || token.Symbol == "WETH" {
		return amount
	}
	ethUsd := gasPriceEthUsd(ctx, o.gas)
	usd := amount
	if token.Symbol == "SAVE" {
		usd = amount * 0.10
	}
	return usd / ethUsd
}

func gasPriceEthUsd(ctx context.Context, gas GasPricer) float64 {
	if gas != nil {
		if data := gas.GasPrices(ctx); data.EthUsdPrice > 0 {
			return data.EthUsdPrice
		}
	}
	return 2500
}

// scheduleSettlement prefers the durable queue; without one (or when redis
// is down) it degrades to an in-process wait so the settlement record is
// still produced.
func (o *Orchestrator) scheduleSettlement(swapID string, user gcommon.Address, tx *gtypes.Transaction) {
	if o.queue != nil {
		task, err := tasks.NewSettlementTask(swapID, tx.Hash().Hex(), user.Hex())
		if err == nil {
			if _, err = o.queue.Enqueue(task); err == nil {
				return
			}
		}
		o.logger.WithError(err).Warn("fail to enqueue settlement task, validating in-process")
	}
	if o.settler == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fallbackSettleWait)
		defer cancel()
		result := o.settler.Validate(ctx, tx)
		o.logger.WithFields(logrus.Fields{
			"swap_id": swapID,
			"settled": result.Settled,
		}).Info("in-process settlement validation finished")
	}()
}

func (o *Orchestrator) count(name string, tags ...string) {
	_ = o.metrics.Incr(name, tags, 1)
}

func applySlippage(amountOut *big.Int, slippagePct float64) *big.Int {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return big.NewInt(0)
	}
	ppm := int64(slippagePct * 10_000)
	if ppm < 0 {
		ppm = 0
	}
	if ppm > 1_000_000 {
		ppm = 1_000_000
	}
	min := new(big.Int).Mul(amountOut, big.NewInt(1_000_000-ppm))
	return min.Div(min, big.NewInt(1_000_000))
}

func isStable(t tokens.Token) bool {
	return t.Symbol == "USDC" || t.Symbol == "DAI"
}
