package execution

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"ezyquant-execute/internal/broker"
	"ezyquant-execute/internal/pricing"
)

// SymbolContext 为单个标的的执行上下文，供用户算法在每个 tick 中调用。
// 不支持并发使用。
type SymbolContext struct {
	*AccountContext

	symbol string
	signal any
	stop   func()
	logger *zap.Logger

	// Data 在上下文生命周期内保存用户自定义状态。
	Data map[string]any

	sub       broker.Subscription
	subFailed bool
}

// ForSymbol 创建标的上下文。stop 由调度器提供，调用后不再开始新的 tick。
func (a *AccountContext) ForSymbol(symbol string, signal any, stop func()) *SymbolContext {
	if stop == nil {
		stop = func() {}
	}
	return &SymbolContext{
		AccountContext: a,
		symbol:         symbol,
		signal:         signal,
		stop:           stop,
		logger:         a.logger.With(zap.String("symbol", symbol)),
		Data:           make(map[string]any),
	}
}

// Symbol 返回代码。
func (c *SymbolContext) Symbol() string { return c.symbol }

// Signal 返回本次运行的信号值。
func (c *SymbolContext) Signal() any { return c.signal }

// SignalFloat 将信号值转换为 float64。
func (c *SymbolContext) SignalFloat() (float64, bool) {
	switch v := c.signal.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Stop 请求调度器在当前 tick 结束后停止。
func (c *SymbolContext) Stop() { c.stop() }

// Logger 返回带标的字段的日志。
func (c *SymbolContext) Logger() *zap.Logger { return c.logger }

// Close 关闭买卖盘订阅，可重复调用。
func (c *SymbolContext) Close() error {
	if c.sub == nil {
		return nil
	}
	err := c.sub.Close()
	c.sub = nil
	return err
}

// Quote 查询最新行情。
func (c *SymbolContext) Quote(ctx context.Context) (broker.Quote, error) {
	quote, err := c.client.GetQuote(ctx, c.symbol)
	if err != nil {
		return broker.Quote{}, fmt.Errorf("execution: 查询行情失败 %s: %w", c.symbol, err)
	}
	return quote, nil
}

// MarketPrice 返回最新成交价。
func (c *SymbolContext) MarketPrice(ctx context.Context) (float64, error) {
	quote, err := c.Quote(ctx)
	if err != nil {
		return 0, err
	}
	if quote.Last <= 0 {
		return 0, fmt.Errorf("%w: %s last=%v", ErrNoQuote, c.symbol, quote.Last)
	}
	return quote.Last, nil
}

// Candles 查询最近 limit 根K线，按时间升序。
func (c *SymbolContext) Candles(ctx context.Context, interval string, limit int) ([]broker.Candle, error) {
	candles, err := c.client.GetCandles(ctx, c.symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("execution: 查询K线失败 %s: %w", c.symbol, err)
	}
	return candles, nil
}

// BestBid 返回买一价，优先使用实时订阅。
func (c *SymbolContext) BestBid(ctx context.Context) (float64, error) {
	return c.bestPrice(ctx, broker.SideSell)
}

// BestAsk 返回卖一价，优先使用实时订阅。
func (c *SymbolContext) BestAsk(ctx context.Context) (float64, error) {
	return c.bestPrice(ctx, broker.SideBuy)
}

func (c *SymbolContext) bestPrice(ctx context.Context, side broker.Side) (float64, error) {
	if sub := c.subscription(ctx); sub != nil {
		if bidAsk, ok := sub.Latest(); ok {
			price := bidAsk.BestBid()
			if side == broker.SideBuy {
				price = bidAsk.BestAsk()
			}
			if price > 0 {
				return price, nil
			}
		}
	}

	quote, err := c.Quote(ctx)
	if err != nil {
		return 0, err
	}
	price := quote.Bid
	if side == broker.SideBuy {
		price = quote.Ask
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: %s bid=%v ask=%v", ErrNoQuote, c.symbol, quote.Bid, quote.Ask)
	}
	return price, nil
}

func (c *SymbolContext) subscription(ctx context.Context) broker.Subscription {
	if c.sub != nil || c.subFailed {
		return c.sub
	}
	sub, err := c.client.SubscribeBidAsk(ctx, c.symbol)
	if err != nil {
		c.subFailed = true
		c.logger.Warn("订阅买卖盘失败，改用行情快照", zap.Error(err))
		return nil
	}
	c.sub = sub
	return sub
}

// Position 返回当前持仓，没有持仓时为零值。
func (c *SymbolContext) Position(ctx context.Context) (broker.Position, error) {
	portfolio, err := c.Portfolio(ctx)
	if err != nil {
		return broker.Position{}, err
	}
	pos, _ := portfolio.Find(c.symbol)
	return pos, nil
}

// Volume 返回持仓股数。
func (c *SymbolContext) Volume(ctx context.Context) (float64, error) {
	pos, err := c.Position(ctx)
	if err != nil {
		return 0, err
	}
	return pos.Volume, nil
}

// CostPrice 返回持仓均价。
func (c *SymbolContext) CostPrice(ctx context.Context) (float64, error) {
	pos, err := c.Position(ctx)
	if err != nil {
		return 0, err
	}
	return pos.AveragePrice, nil
}

// MarketValue 为持仓股数乘以最新价。
func (c *SymbolContext) MarketValue(ctx context.Context) (float64, error) {
	volume, err := c.Volume(ctx)
	if err != nil {
		return 0, err
	}
	if volume == 0 {
		return 0, nil
	}
	price, err := c.MarketPrice(ctx)
	if err != nil {
		return 0, err
	}
	return volume * price, nil
}

// Buy 以指定价格买入，股数按手取整，取整为 0 时不下单。
func (c *SymbolContext) Buy(ctx context.Context, volume, price float64) (*broker.Order, error) {
	return c.place(ctx, broker.SideBuy, volume, price)
}

// Sell 以指定价格卖出。
func (c *SymbolContext) Sell(ctx context.Context, volume, price float64) (*broker.Order, error) {
	return c.place(ctx, broker.SideSell, volume, price)
}

// BuyValue 按金额在卖一价买入。
func (c *SymbolContext) BuyValue(ctx context.Context, value float64) (*broker.Order, error) {
	ask, err := c.BestAsk(ctx)
	if err != nil {
		return nil, err
	}
	price, err := pricing.BuySlip(ask, c.opts.SlippageSteps)
	if err != nil {
		return nil, err
	}
	return c.place(ctx, broker.SideBuy, value/ask, price)
}

// SellValue 按金额在买一价卖出。
func (c *SymbolContext) SellValue(ctx context.Context, value float64) (*broker.Order, error) {
	bid, err := c.BestBid(ctx)
	if err != nil {
		return nil, err
	}
	price, err := pricing.SellSlip(bid, c.opts.SlippageSteps)
	if err != nil {
		return nil, err
	}
	return c.place(ctx, broker.SideSell, value/bid, price)
}

// BuyPctPort 买入组合价值的 pct 比例。
func (c *SymbolContext) BuyPctPort(ctx context.Context, pct float64) (*broker.Order, error) {
	port, err := c.PortValue(ctx)
	if err != nil {
		return nil, err
	}
	return c.BuyValue(ctx, pct*port)
}

// SellPctPort 卖出组合价值的 pct 比例。
func (c *SymbolContext) SellPctPort(ctx context.Context, pct float64) (*broker.Order, error) {
	port, err := c.PortValue(ctx)
	if err != nil {
		return nil, err
	}
	return c.SellValue(ctx, pct*port)
}

// BuyPctPosition 买入当前持仓股数的 pct 比例。
func (c *SymbolContext) BuyPctPosition(ctx context.Context, pct float64) (*broker.Order, error) {
	volume, err := c.Volume(ctx)
	if err != nil {
		return nil, err
	}
	ask, err := c.BestAsk(ctx)
	if err != nil {
		return nil, err
	}
	price, err := pricing.BuySlip(ask, c.opts.SlippageSteps)
	if err != nil {
		return nil, err
	}
	return c.place(ctx, broker.SideBuy, pct*volume, price)
}

// SellPctPosition 卖出当前持仓股数的 pct 比例。
func (c *SymbolContext) SellPctPosition(ctx context.Context, pct float64) (*broker.Order, error) {
	volume, err := c.Volume(ctx)
	if err != nil {
		return nil, err
	}
	bid, err := c.BestBid(ctx)
	if err != nil {
		return nil, err
	}
	price, err := pricing.SellSlip(bid, c.opts.SlippageSteps)
	if err != nil {
		return nil, err
	}
	return c.place(ctx, broker.SideSell, pct*volume, price)
}

// TargetValue 将持仓市值调整到 value，每次最多一笔委托。
func (c *SymbolContext) TargetValue(ctx context.Context, value float64) (*broker.Order, error) {
	current, err := c.MarketValue(ctx)
	if err != nil {
		return nil, err
	}
	delta := value - current
	c.logger.Debug("调整目标市值",
		zap.Float64("target", value),
		zap.Float64("current", current),
		zap.Float64("delta", delta),
	)
	switch {
	case delta > 0:
		return c.BuyValue(ctx, delta)
	case delta < 0:
		return c.SellValue(ctx, math.Abs(delta))
	default:
		return nil, nil
	}
}

// TargetPctPort 将持仓市值调整到组合价值的 pct 比例。
func (c *SymbolContext) TargetPctPort(ctx context.Context, pct float64) (*broker.Order, error) {
	port, err := c.PortValue(ctx)
	if err != nil {
		return nil, err
	}
	return c.TargetValue(ctx, pct*port)
}

// CancelOrders 撤销本标的中满足 filter 的可撤委托，没有匹配时不调用券商。
func (c *SymbolContext) CancelOrders(ctx context.Context, filter OrderFilter) (broker.CancelResult, error) {
	if filter == nil {
		filter = All
	}
	orders, err := c.client.GetOpenOrders(ctx, c.account, c.symbol)
	if err != nil {
		return broker.CancelResult{}, fmt.Errorf("execution: 查询委托失败 %s: %w", c.symbol, err)
	}
	return c.cancelMatching(ctx, c.symbol, orders, filter)
}

// CancelAllOrders 撤销本标的全部委托。
func (c *SymbolContext) CancelAllOrders(ctx context.Context) (broker.CancelResult, error) {
	return c.CancelOrders(ctx, All)
}

// CancelBuyOrders 撤销本标的买单。
func (c *SymbolContext) CancelBuyOrders(ctx context.Context) (broker.CancelResult, error) {
	return c.CancelOrders(ctx, BySide(broker.SideBuy))
}

// CancelSellOrders 撤销本标的卖单。
func (c *SymbolContext) CancelSellOrders(ctx context.Context) (broker.CancelResult, error) {
	return c.CancelOrders(ctx, BySide(broker.SideSell))
}

// CancelOrdersAt 撤销委托价等于 price 的委托。
func (c *SymbolContext) CancelOrdersAt(ctx context.Context, price float64) (broker.CancelResult, error) {
	return c.CancelOrders(ctx, AtPrice(price))
}

// CancelOrdersBelow 撤销委托价低于 price 的委托。
func (c *SymbolContext) CancelOrdersBelow(ctx context.Context, price float64) (broker.CancelResult, error) {
	return c.CancelOrders(ctx, Below(price))
}

// CancelOrdersAbove 撤销委托价高于 price 的委托。
func (c *SymbolContext) CancelOrdersAbove(ctx context.Context, price float64) (broker.CancelResult, error) {
	return c.CancelOrders(ctx, Above(price))
}
