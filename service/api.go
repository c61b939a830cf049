// Package service exposes the engine over HTTP and runs the background
// worker that confirms settlements and drains DCA queues.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/config"
	"github.com/spendsave/savings-engine/internal/gasoracle"
	"github.com/spendsave/savings-engine/internal/quote"
	"github.com/spendsave/savings-engine/internal/strategy"
	"github.com/spendsave/savings-engine/internal/swap"
	"github.com/spendsave/savings-engine/internal/tokens"
	"github.com/spendsave/savings-engine/internal/types"
	"github.com/spendsave/savings-engine/storage"
)

const defaultHistoryPageSize = 20

type CustomValidator struct {
	validator *validator.Validate
}

func (v *CustomValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// DCAReader is the queue-inspection slice of the DCA client the API serves.
type DCAReader interface {
	PendingItems(ctx context.Context, user gcommon.Address) ([]*types.DCAQueueItem, error)
	TotalSaved(ctx context.Context, user, token gcommon.Address) (*big.Int, error)
}

type ApiService struct {
	cfg        *config.Config
	runner     *swap.Orchestrator
	quoter     *quote.Service
	strategies *strategy.Service
	oracle     *gasoracle.Client
	dcaReader  DCAReader
	db         storage.DatabaseStorage
	metrics    statsd.ClientInterface
	logger     *logrus.Logger
	echo       *echo.Echo
}

func NewApiService(
	cfg *config.Config,
	runner *swap.Orchestrator,
	quoter *quote.Service,
	strategies *strategy.Service,
	oracle *gasoracle.Client,
	dcaReader DCAReader,
	db storage.DatabaseStorage,
	metrics statsd.ClientInterface,
	logger *logrus.Logger,
) (*ApiService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if runner == nil || quoter == nil || strategies == nil || oracle == nil {
		return nil, fmt.Errorf("engine services cannot be nil")
	}
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &ApiService{
		cfg:        cfg,
		runner:     runner,
		quoter:     quoter,
		strategies: strategies,
		oracle:     oracle,
		dcaReader:  dcaReader,
		db:         db,
		metrics:    metrics,
		logger:     logger,
		echo:       e,
	}
	s.registerRoutes()
	return s, nil
}

func (s *ApiService) registerRoutes() {
	e := s.echo
	e.GET("/healthz", s.HealthCheck)
	e.POST("/swap", s.ExecuteSwap)
	e.GET("/quote", s.GetQuote)
	e.GET("/gas", s.GetGas)
	e.GET("/strategy/:address", s.GetStrategy)
	e.POST("/strategy", s.SetupStrategy)
	e.GET("/history/:address", s.GetHistory)
	e.GET("/dca/:address/queue", s.GetDCAQueue)
}

func (s *ApiService) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.WithField("addr", addr).Info("api server starting")
	return s.echo.Start(addr)
}

func (s *ApiService) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *ApiService) HealthCheck(c echo.Context) error {
	return c.String(http.StatusOK, "savings-engine is running")
}

// SwapRequestBody is the /swap payload.
type SwapRequestBody struct {
	UserAddress        string   `json:"user_address" validate:"required"`
	FromToken          string   `json:"from_token" validate:"required"`
	ToToken            string   `json:"to_token" validate:"required"`
	InputAmount        string   `json:"input_amount" validate:"required"`
	SlippagePct        float64  `json:"slippage_pct" validate:"gte=0,lte=50"`
	OverridePercentage *float64 `json:"override_percentage,omitempty"`
	DisableSavings     bool     `json:"disable_savings"`
	GasCategory        string   `json:"gas_category"`
}

func (s *ApiService) ExecuteSwap(c echo.Context) error {
	var body SwapRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "fail to parse request")
	}
	if err := c.Validate(&body); err != nil {
		return err
	}

	from, ok := tokens.BySymbol(body.FromToken)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown token %s", body.FromToken))
	}
	to, ok := tokens.BySymbol(body.ToToken)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown token %s", body.ToToken))
	}
	if !gcommon.IsHexAddress(body.UserAddress) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user address")
	}
	user := gcommon.HexToAddress(body.UserAddress)

	req := &types.SwapRequest{
		FromToken:          from,
		ToToken:            to,
		InputAmount:        body.InputAmount,
		SlippagePct:        body.SlippagePct,
		OverridePercentage: body.OverridePercentage,
		DisableSavings:     body.DisableSavings,
		GasCategory:        types.GasCategory(body.GasCategory),
	}

	result, err := s.runner.ExecuteSwap(c.Request().Context(), user, req)
	if err != nil {
		s.logger.WithError(err).WithField("user", user.Hex()).Warn("swap failed")
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	s.recordSwap(c.Request().Context(), user, body, result)
	_ = s.metrics.Incr("api.swap", []string{"pair:" + from.Symbol + "_" + to.Symbol}, 1)
	return c.JSON(http.StatusOK, result)
}

// recordSwap persists the history row. Persistence failures are logged,
// not surfaced: the transaction is already on its way.
func (s *ApiService) recordSwap(ctx context.Context, user gcommon.Address, body SwapRequestBody, result *types.SwapResult) {
	if s.db == nil {
		return
	}
	_, err := s.db.CreateSwapRecord(ctx, types.SwapRecord{
		UserAddress:      user.Hex(),
		TxHash:           result.TxHash,
		FromToken:        body.FromToken,
		ToToken:          body.ToToken,
		InputAmount:      body.InputAmount,
		SavingsAmount:    result.SavingsAmount,
		ActualSwapAmount: result.ActualSwapAmount,
		Status:           types.StatusPending,
		Metadata: map[string]interface{}{
			"expected_output":     result.ExpectedOutput,
			"gas_limit":           result.GasLimit,
			"using_fallback_gas":  result.UsingFallbackGas,
			"used_fallback_quote": result.UsedFallbackQuote,
		},
	})
	if err != nil {
		s.logger.WithError(err).WithField("tx_hash", result.TxHash).Error("fail to record swap")
	}
}

func (s *ApiService) GetQuote(c echo.Context) error {
	fromSym := c.QueryParam("from")
	toSym := c.QueryParam("to")
	amount := c.QueryParam("amount")
	if fromSym == "" || toSym == "" || amount == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "from, to and amount are required")
	}
	from, ok := tokens.BySymbol(fromSym)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown token %s", fromSym))
	}
	to, ok := tokens.BySymbol(toSym)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown token %s", toSym))
	}

	q, err := s.quoter.DebouncedQuote(c.Request().Context(), from, to, amount)
	if err != nil {
		if errors.Is(err, quote.ErrSuperseded) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, q)
}

func (s *ApiService) GetGas(c echo.Context) error {
	ctx := c.Request().Context()
	gasLimit := uint64(21_000)
	if raw := c.QueryParam("gas_limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid gas_limit")
		}
		gasLimit = parsed
	}
	category := types.GasCategory(c.QueryParam("category"))
	if category == "" {
		category = types.GasCategoryStandard
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"prices":   s.oracle.GasPrices(ctx),
		"estimate": s.oracle.EstimateFee(ctx, gasLimit, category),
	})
}

func (s *ApiService) GetStrategy(c echo.Context) error {
	address := c.Param("address")
	if !gcommon.IsHexAddress(address) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid address")
	}
	user := gcommon.HexToAddress(address)

	result, strat, err := s.strategies.Validate(c.Request().Context(), user, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"validation": result,
		"strategy":   strat,
	})
}

// StrategySetupBody is the /strategy payload. Percentages are percent
// values, not basis points.
type StrategySetupBody struct {
	UserAddress    string  `json:"user_address" validate:"required"`
	Percentage     float64 `json:"percentage" validate:"gte=0,lte=50"`
	AutoIncrement  float64 `json:"auto_increment" validate:"gte=0,lte=10"`
	MaxPercentage  float64 `json:"max_percentage" validate:"gte=0,lte=50"`
	RoundUpSavings bool    `json:"round_up_savings"`
	EnableDCA      bool    `json:"enable_dca"`
	TokenType      uint8   `json:"token_type" validate:"lte=2"`
	SpecificToken  string  `json:"specific_token"`
}

func (s *ApiService) SetupStrategy(c echo.Context) error {
	var body StrategySetupBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "fail to parse request")
	}
	if err := c.Validate(&body); err != nil {
		return err
	}
	if !gcommon.IsHexAddress(body.UserAddress) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user address")
	}

	params := types.StrategySetupParams{
		Percentage:     body.Percentage,
		AutoIncrement:  body.AutoIncrement,
		MaxPercentage:  body.MaxPercentage,
		RoundUpSavings: body.RoundUpSavings,
		EnableDCA:      body.EnableDCA,
		TokenType:      types.SavingsTokenType(body.TokenType),
	}
	if body.SpecificToken != "" {
		if !gcommon.IsHexAddress(body.SpecificToken) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid specific token address")
		}
		params.SpecificToken = gcommon.HexToAddress(body.SpecificToken)
	}

	strat, err := s.strategies.Setup(c.Request().Context(), gcommon.HexToAddress(body.UserAddress), params)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, strat)
}

func (s *ApiService) GetHistory(c echo.Context) error {
	if s.db == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "history storage not configured")
	}
	address := c.Param("address")
	if !gcommon.IsHexAddress(address) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid address")
	}

	take := defaultHistoryPageSize
	if raw := c.QueryParam("take"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			take = parsed
		}
	}
	skip := 0
	if raw := c.QueryParam("skip"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			skip = parsed
		}
	}

	records, err := s.db.GetSwapHistory(c.Request().Context(), address, take, skip)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fail to load swap history")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"history": records,
		"take":    take,
		"skip":    skip,
	})
}

func (s *ApiService) GetDCAQueue(c echo.Context) error {
	if s.dcaReader == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "dca not configured")
	}
	address := c.Param("address")
	if !gcommon.IsHexAddress(address) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid address")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()
	items, err := s.dcaReader.PendingItems(ctx, gcommon.HexToAddress(address))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pending": items,
		"count":   len(items),
	})
}
