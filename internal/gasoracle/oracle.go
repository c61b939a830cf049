// Package gasoracle supplies ETH/token USD prices and tiered gas prices
// from a block-explorer API, degrading to cached and then hard-coded values
// when the API misbehaves. Reads never fail: a stale estimate beats blocking
// the swap flow.
package gasoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/tokens"
	"github.com/spendsave/savings-engine/internal/types"
)

const (
	// FallbackEthUsd is used when no price was ever fetched.
	FallbackEthUsd = 2500.0
	// FallbackGasGwei centers the fallback tier set.
	FallbackGasGwei = 5.0

	defaultCacheTTL = 5 * time.Minute
	httpTimeout     = 5 * time.Second

	redisGasKey = "gasoracle:snapshot"
	redisEthKey = "gasoracle:eth_usd"
)

// staticTokenUsd is the symbol-based fallback price table consulted after
// the per-address cache and the stable/wrapped special cases.
var staticTokenUsd = map[string]float64{
	"USDC": 1.0,
	"DAI":  1.0,
	"SAVE": 0.10,
}

type Config struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type pricePoint struct {
	value     float64
	updatedAt time.Time
}

// Client is an explicitly constructed oracle with its own caches; tests
// inject a fresh instance instead of sharing module-level state.
type Client struct {
	cfg        Config
	httpClient *http.Client
	redis      *redis.Client
	logger     *logrus.Logger

	mu          sync.Mutex
	ethPrice    pricePoint
	tokenPrices map[string]pricePoint
	gas         types.GasPriceData
	hasGas      bool
}

// NewClient builds an oracle client. rdb may be nil; the Redis snapshot
// mirror is then skipped.
func NewClient(cfg Config, rdb *redis.Client, logger *logrus.Logger) *Client {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: httpTimeout},
		redis:       rdb,
		logger:      logger,
		tokenPrices: make(map[string]pricePoint),
	}
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type ethPriceResult struct {
	EthUsd          string `json:"ethusd"`
	EthUsdTimestamp string `json:"ethusd_timestamp"`
}

type gasOracleResult struct {
	LastBlock       string `json:"LastBlock"`
	SafeGasPrice    string `json:"SafeGasPrice"`
	ProposeGasPrice string `json:"ProposeGasPrice"`
	FastGasPrice    string `json:"FastGasPrice"`
	SuggestBaseFee  string `json:"suggestBaseFee"`
	GasUsedRatio    string `json:"gasUsedRatio"`
}

// EthPrice returns the ETH/USD price: cache when fresh, then the API, then
// the stale cache, then the fixed fallback.
func (c *Client) EthPrice(ctx context.Context) float64 {
	c.mu.Lock()
	cached := c.ethPrice
	c.mu.Unlock()

	if cached.value > 0 && time.Since(cached.updatedAt) < c.cfg.CacheTTL {
		return cached.value
	}

	price, err := c.fetchEthPrice(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("fail to fetch ETH price, degrading")
		if cached.value > 0 {
			return cached.value
		}
		if v, ok := c.redisFloat(ctx, redisEthKey); ok {
			return v
		}
		return FallbackEthUsd
	}

	c.mu.Lock()
	c.ethPrice = pricePoint{value: price, updatedAt: time.Now()}
	c.mu.Unlock()
	c.redisSet(ctx, redisEthKey, price)
	return price
}

// TokenPrice returns a best-effort USD price for a supported token. Stables
// and wrapped ETH are special-cased, then the per-symbol cache, then the
// static fallback table, then zero for fully unknown tokens.
func (c *Client) TokenPrice(ctx context.Context, token tokens.Token) float64 {
	switch token.Symbol {
	case "USDC", "DAI":
		return 1.0
	case "ETH", "WETH":
		return c.EthPrice(ctx)
	}

	c.mu.Lock()
	cached, ok := c.tokenPrices[token.Symbol]
	c.mu.Unlock()
	if ok && time.Since(cached.updatedAt) < c.cfg.CacheTTL {
		return cached.value
	}

	if v, ok := staticTokenUsd[token.Symbol]; ok {
		c.mu.Lock()
		c.tokenPrices[token.Symbol] = pricePoint{value: v, updatedAt: time.Now()}
		c.mu.Unlock()
		return v
	}
	return 0
}

// GasPrices returns the tiered gas snapshot: API, then cache, then the
// Redis mirror, then hard-coded tiers.
func (c *Client) GasPrices(ctx context.Context) types.GasPriceData {
	data, err := c.fetchGasPrices(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("fail to fetch gas oracle, degrading")

		c.mu.Lock()
		cached, hasCached := c.gas, c.hasGas
		c.mu.Unlock()
		if hasCached {
			cached.Source = types.GasSourceCache
			return cached
		}
		if snap, ok := c.redisGasSnapshot(ctx); ok {
			snap.Source = types.GasSourceCache
			return snap
		}
		return c.fallbackGas(ctx)
	}

	data.EthUsdPrice = c.EthPrice(ctx)
	data.Source = types.GasSourceAPI

	c.mu.Lock()
	// updatedAt must be monotonic across successful fetches
	if data.UpdatedAt.Before(c.gas.UpdatedAt) {
		data.UpdatedAt = c.gas.UpdatedAt
	}
	c.gas = data
	c.hasGas = true
	c.mu.Unlock()

	if c.redis != nil {
		if payload, err := json.Marshal(data); err == nil {
			if err := c.redis.Set(ctx, redisGasKey, payload, c.cfg.CacheTTL).Err(); err != nil {
				c.logger.WithError(err).Debug("fail to mirror gas snapshot to redis")
			}
		}
	}
	return data
}

// EstimateFee prices a gas limit at one of the oracle tiers, with ETH and
// USD renderings from the cached ETH price.
func (c *Client) EstimateFee(ctx context.Context, gasLimit uint64, category types.GasCategory) types.FeeEstimate {
	gas := c.GasPrices(ctx)
	priceGwei := gas.PriceFor(category)

	feeWei := new(big.Int).Mul(
		big.NewInt(int64(priceGwei*1e9)),
		new(big.Int).SetUint64(gasLimit),
	)
	feeEth, _ := new(big.Float).Quo(new(big.Float).SetInt(feeWei), big.NewFloat(1e18)).Float64()

	return types.FeeEstimate{
		GasLimit:     gasLimit,
		GasPriceGwei: priceGwei,
		Category:     category,
		FeeWei:       feeWei,
		FeeEth:       strconv.FormatFloat(feeEth, 'f', 8, 64),
		FeeUsd:       strconv.FormatFloat(feeEth*gas.EthUsdPrice, 'f', 2, 64),
	}
}

func (c *Client) fallbackGas(ctx context.Context) types.GasPriceData {
	ethUsd := FallbackEthUsd
	c.mu.Lock()
	if c.ethPrice.value > 0 {
		ethUsd = c.ethPrice.value
	}
	c.mu.Unlock()

	return types.GasPriceData{
		SafeGwei:     FallbackGasGwei * 0.8,
		StandardGwei: FallbackGasGwei,
		FastGwei:     FallbackGasGwei * 1.4,
		BaseFeeGwei:  FallbackGasGwei * 0.8,
		UpdatedAt:    time.Now(),
		EthUsdPrice:  ethUsd,
		Source:       types.GasSourceFallback,
	}
}

func (c *Client) fetchEthPrice(ctx context.Context) (float64, error) {
	var result ethPriceResult
	if err := c.call(ctx, url.Values{"module": {"stats"}, "action": {"ethprice"}}, &result); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(result.EthUsd, 64)
	if err != nil {
		return 0, fmt.Errorf("fail to parse ethusd %q: %w", result.EthUsd, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive ethusd price: %f", price)
	}
	return price, nil
}

func (c *Client) fetchGasPrices(ctx context.Context) (types.GasPriceData, error) {
	var result gasOracleResult
	if err := c.call(ctx, url.Values{"module": {"gastracker"}, "action": {"gasoracle"}}, &result); err != nil {
		return types.GasPriceData{}, err
	}

	safe, err := strconv.ParseFloat(result.SafeGasPrice, 64)
	if err != nil {
		return types.GasPriceData{}, fmt.Errorf("fail to parse safe gas price: %w", err)
	}
	standard, err := strconv.ParseFloat(result.ProposeGasPrice, 64)
	if err != nil {
		return types.GasPriceData{}, fmt.Errorf("fail to parse propose gas price: %w", err)
	}
	fast, err := strconv.ParseFloat(result.FastGasPrice, 64)
	if err != nil {
		return types.GasPriceData{}, fmt.Errorf("fail to parse fast gas price: %w", err)
	}
	baseFee, err := strconv.ParseFloat(result.SuggestBaseFee, 64)
	if err != nil {
		return types.GasPriceData{}, fmt.Errorf("fail to parse base fee: %w", err)
	}
	lastBlock, _ := strconv.ParseUint(result.LastBlock, 10, 64)

	return types.GasPriceData{
		SafeGwei:     safe,
		StandardGwei: standard,
		FastGwei:     fast,
		BaseFeeGwei:  baseFee,
		LastBlock:    lastBlock,
		UpdatedAt:    time.Now(),
	}, nil
}

func (c *Client) call(ctx context.Context, query url.Values, result interface{}) error {
	query.Set("apikey", c.cfg.APIKey)
	endpoint := c.cfg.BaseURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("fail to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fail to call explorer API: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Debug("fail to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("explorer API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fail to read response body: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("fail to decode API envelope: %w", err)
	}
	if envelope.Status != "1" {
		return fmt.Errorf("explorer API status %q", envelope.Status)
	}
	if envelope.Message != "OK" {
		return fmt.Errorf("explorer API message %q", envelope.Message)
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("fail to decode API result: %w", err)
	}
	return nil
}

func (c *Client) redisSet(ctx context.Context, key string, value float64) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, key, value, c.cfg.CacheTTL).Err(); err != nil {
		c.logger.WithError(err).Debug("fail to mirror price to redis")
	}
}

func (c *Client) redisFloat(ctx context.Context, key string) (float64, bool) {
	if c.redis == nil {
		return 0, false
	}
	v, err := c.redis.Get(ctx, key).Float64()
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *Client) redisGasSnapshot(ctx context.Context) (types.GasPriceData, bool) {
	if c.redis == nil {
		return types.GasPriceData{}, false
	}
	payload, err := c.redis.Get(ctx, redisGasKey).Bytes()
	if err != nil {
		return types.GasPriceData{}, false
	}
	var snap types.GasPriceData
	if err := json.Unmarshal(payload, &snap); err != nil {
		return types.GasPriceData{}, false
	}
	return snap, true
}
