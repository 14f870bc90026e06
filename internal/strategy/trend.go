package strategy

import (
	"context"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"
)

// TrendRebalancer 在收盘价跌破均线时把目标比例降为 0，否则按信号调仓。
type TrendRebalancer struct {
	period   int
	interval string
}

// NewTrendRebalancer 创建带均线过滤的调仓算法。
func NewTrendRebalancer(period int, interval string) (*TrendRebalancer, error) {
	if period < 2 {
		return nil, fmt.Errorf("strategy: 均线周期必须不小于2, got %d", period)
	}
	if interval == "" {
		interval = "1d"
	}
	return &TrendRebalancer{period: period, interval: interval}, nil
}

func (t *TrendRebalancer) Name() string { return "trend_rebalance" }

func (t *TrendRebalancer) Execute(ctx context.Context, c Context) error {
	pct, err := targetPct(c)
	if err != nil {
		return err
	}

	candles, err := c.Candles(ctx, t.interval, t.period+1)
	if err != nil {
		return err
	}
	if len(candles) < t.period {
		c.Logger().Warn("K线数量不足，跳过本次调仓",
			zap.Int("need", t.period),
			zap.Int("got", len(candles)),
		)
		return nil
	}

	closes := make([]float64, len(candles))
	for i, candle := range candles {
		closes[i] = candle.Close
	}
	sma := talib.Sma(closes, t.period)
	lastSMA := sma[len(sma)-1]
	lastClose := closes[len(closes)-1]
	if math.IsNaN(lastSMA) || lastSMA <= 0 {
		return fmt.Errorf("strategy: 均线无效 %s sma=%v", c.Symbol(), lastSMA)
	}

	if lastClose < lastSMA {
		c.Logger().Info("收盘价低于均线，目标仓位置零",
			zap.Float64("close", lastClose),
			zap.Float64("sma", lastSMA),
			zap.Float64("signal", pct),
		)
		pct = 0
	}
	return rebalance(ctx, c, pct)
}
