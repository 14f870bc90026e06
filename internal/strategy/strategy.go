// Package strategy 提供内置的执行算法，每个 tick 对每个标的调用一次。
package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ezyquant-execute/internal/broker"
	"ezyquant-execute/internal/config"
)

// ErrInvalidSignal 表示信号值不能用作目标比例。
var ErrInvalidSignal = errors.New("strategy: signal is not a number")

// Context 为算法所需的标的上下文，由 execution.SymbolContext 实现。
type Context interface {
	Symbol() string
	SignalFloat() (float64, bool)
	Logger() *zap.Logger
	Candles(ctx context.Context, interval string, limit int) ([]broker.Candle, error)
	CancelAllOrders(ctx context.Context) (broker.CancelResult, error)
	TargetPctPort(ctx context.Context, pct float64) (*broker.Order, error)
}

// Strategy 为一种执行算法。
type Strategy interface {
	Name() string
	Execute(ctx context.Context, c Context) error
}

// New 按配置创建算法。
func New(cfg config.ExecutionConfig) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "", "rebalance":
		return Rebalancer{}, nil
	case "trend_rebalance":
		return NewTrendRebalancer(cfg.TrendPeriod, cfg.TrendInterval)
	default:
		return nil, fmt.Errorf("strategy: 未知算法 %q", cfg.Strategy)
	}
}

func targetPct(c Context) (float64, error) {
	pct, ok := c.SignalFloat()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidSignal, c.Symbol())
	}
	return pct, nil
}

// rebalance 先撤销本标的全部委托，再调整到目标比例。
func rebalance(ctx context.Context, c Context, pct float64) error {
	result, err := c.CancelAllOrders(ctx)
	if err != nil {
		return err
	}
	if !result.Empty() {
		c.Logger().Debug("已撤销未成交委托", zap.Int("cancelled", len(result.Cancelled())))
	}

	order, err := c.TargetPctPort(ctx, pct)
	if err != nil {
		return err
	}
	if order == nil {
		c.Logger().Debug("已在目标仓位", zap.Float64("pct", pct))
	}
	return nil
}
