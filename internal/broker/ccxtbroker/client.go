package ccxtbroker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"ezyquant-execute/internal/broker"
	"ezyquant-execute/internal/config"
	"ezyquant-execute/internal/realtime"
)

// exchangeAPI 为本包使用到的 ccxt 方法子集，便于测试替换。
type exchangeAPI interface {
	FetchTicker(symbol string, options ...ccxt.FetchTickerOptions) (ccxt.Ticker, error)
	FetchOrderBook(symbol string, options ...ccxt.FetchOrderBookOptions) (ccxt.OrderBook, error)
	FetchOHLCV(symbol string, options ...ccxt.FetchOHLCVOptions) ([]ccxt.OHLCV, error)
	FetchBalance(params ...interface{}) (ccxt.Balances, error)
	FetchOpenOrders(options ...ccxt.FetchOpenOrdersOptions) ([]ccxt.Order, error)
	CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error)
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
	CancelOrder(id string, options ...ccxt.CancelOrderOptions) (ccxt.Order, error)
}

// Client 通过 ccxt 实现 broker.Client，所有调用带重试。
type Client struct {
	name     string
	cfg      config.BrokerConfig
	realtime config.RealtimeConfig
	symbols  []string
	logger   *zap.Logger
	exchange exchangeAPI

	loadMarkets   func() error
	marketsMu     sync.Mutex
	marketsLoaded bool
}

var _ broker.Client = (*Client)(nil)

// NewClient 根据 cfg.Exchange 构造 ccxt 交易所实例。symbols 用于组装持仓。
func NewClient(cfg config.BrokerConfig, rt config.RealtimeConfig, symbols []string, logger *zap.Logger) (*Client, error) {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
		},
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	name := strings.ToLower(strings.TrimSpace(cfg.Exchange))
	var (
		api  exchangeAPI
		load func() error
	)
	switch name {
	case "binance":
		ex := ccxt.NewBinance(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		api = ex
		load = func() error {
			_, err := ex.LoadMarkets()
			return err
		}
	case "binanceusdm":
		ex := ccxt.NewBinanceusdm(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		api = ex
		load = func() error {
			_, err := ex.LoadMarkets()
			return err
		}
	default:
		return nil, fmt.Errorf("ccxtbroker: 不支持的交易所 %q", cfg.Exchange)
	}

	return newClient(name, api, load, cfg, rt, symbols, logger), nil
}

func newClient(name string, api exchangeAPI, load func() error, cfg config.BrokerConfig, rt config.RealtimeConfig, symbols []string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if load == nil {
		load = func() error { return nil }
	}
	return &Client{
		name:        name,
		cfg:         cfg,
		realtime:    rt,
		symbols:     append([]string(nil), symbols...),
		logger:      logger.With(zap.String("broker", name)),
		exchange:    api,
		loadMarkets: load,
	}
}

// Name 返回交易所名称。
func (c *Client) Name() string {
	return c.name
}

// SubscribeBidAsk 配置了推送地址时使用 websocket，否则轮询订单簿。
func (c *Client) SubscribeBidAsk(ctx context.Context, symbol string) (broker.Subscription, error) {
	if c.realtime.StreamURL != "" {
		stream := realtime.NewBookTickerStream(c.realtime.StreamURL, symbol, c.logger)
		stream.Start(context.WithoutCancel(ctx))
		return stream, nil
	}
	poller, err := realtime.NewPoller(ctx, symbol, c.realtime.PollInterval, c.fetchBidAsk, c.logger)
	if err != nil {
		return nil, err
	}
	return poller, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	if err := c.callWithRetry(ctx, "load_markets", c.loadMarkets); err != nil {
		return err
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载")
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		start := time.Now()
		err := fn()
		latency := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("券商调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", latency),
				)
			}
			return nil
		}

		normalized, retry := classifyError(err)
		if errors.Is(normalized, broker.ErrMaintenance) {
			c.logger.Warn("券商维护中", zap.String("operation", operation), zap.Error(normalized))
			return normalized
		}
		if !retry || attempt >= maxAttempts {
			c.logger.Error("券商调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", latency),
				zap.Error(normalized),
			)
			return normalized
		}

		wait := min(delay, maxDelay)
		c.logger.Warn("券商调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalized),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = min(delay*2, maxDelay)
	}
}
