// Package paper 提供内存撮合的模拟券商，用于演练与测试，不会触达真实交易所。
package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ezyquant-execute/internal/broker"
	"ezyquant-execute/internal/realtime"
)

const (
	statusPending   = "pending"
	statusMatched   = "matched"
	statusCancelled = "cancelled"
)

type holding struct {
	volume   float64
	avgPrice float64
}

// Broker 用最近一次行情撮合限价单：买价不低于卖一或卖价不高于买一时立即全部成交，否则挂单。
type Broker struct {
	logger       *zap.Logger
	pollInterval time.Duration
	market       broker.Client

	mu       sync.Mutex
	cash     float64
	reserved float64
	holdings map[string]*holding
	quotes   map[string]broker.Quote
	orders   map[string]*broker.Order
	orderSeq []string
	sellHeld map[string]int64
}

var _ broker.Client = (*Broker)(nil)

// Option 调整模拟券商。
type Option func(*Broker)

// WithMarketData 使用真实券商的行情与K线。
func WithMarketData(client broker.Client) Option {
	return func(b *Broker) { b.market = client }
}

// WithPollInterval 设置买卖盘轮询间隔。
func WithPollInterval(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// New 创建模拟券商。
func New(initialCash float64, logger *zap.Logger, opts ...Option) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Broker{
		logger:       logger.With(zap.String("broker", "paper")),
		pollInterval: time.Second,
		cash:         initialCash,
		holdings:     make(map[string]*holding),
		quotes:       make(map[string]broker.Quote),
		orders:       make(map[string]*broker.Order),
		sellHeld:     make(map[string]int64),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name 返回 paper。
func (b *Broker) Name() string { return "paper" }

// SetQuote 更新行情并尝试撮合挂单。
func (b *Broker) SetQuote(q broker.Quote) {
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now().UTC()
	}
	key := normalize(q.Symbol)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[key] = q
	for _, no := range b.orderSeq {
		o := b.orders[no]
		if o.CanCancel && normalize(o.Symbol) == key {
			b.tryFill(o, q)
		}
	}
}

// SetPosition 直接设置持仓，用于初始化。
func (b *Broker) SetPosition(symbol string, volume, avgPrice float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdings[normalize(symbol)] = &holding{volume: volume, avgPrice: avgPrice}
}

// GetQuote 优先使用外部行情，否则返回本地行情。
func (b *Broker) GetQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	if b.market != nil {
		q, err := b.market.GetQuote(ctx, symbol)
		if err != nil {
			return broker.Quote{}, err
		}
		b.SetQuote(q)
		return q, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quotes[normalize(symbol)]
	if !ok {
		return broker.Quote{}, fmt.Errorf("%w: %s", broker.ErrUnknownSymbol, symbol)
	}
	return q, nil
}

// GetCandles 仅在配置了外部行情时可用。
func (b *Broker) GetCandles(ctx context.Context, symbol string, interval string, limit int) ([]broker.Candle, error) {
	if b.market == nil {
		return nil, fmt.Errorf("%w: paper broker has no candles", broker.ErrNotSupported)
	}
	return b.market.GetCandles(ctx, symbol, interval, limit)
}

// SubscribeBidAsk 轮询 GetQuote 生成买卖盘。
func (b *Broker) SubscribeBidAsk(ctx context.Context, symbol string) (broker.Subscription, error) {
	fetch := func(ctx context.Context, symbol string) (broker.BidAsk, error) {
		q, err := b.GetQuote(ctx, symbol)
		if err != nil {
			return broker.BidAsk{}, err
		}
		return broker.BidAsk{
			Symbol:    q.Symbol,
			Bids:      []broker.Level{{Price: q.Bid}},
			Asks:      []broker.Level{{Price: q.Ask}},
			UpdatedAt: q.Timestamp,
		}, nil
	}
	poller, err := realtime.NewPoller(ctx, symbol, b.pollInterval, fetch, b.logger)
	if err != nil {
		return nil, err
	}
	return poller, nil
}

// GetAccountInfo 返回现金、扣除挂单冻结后的购买力与总权益。
func (b *Broker) GetAccountInfo(ctx context.Context, account broker.Account) (broker.AccountInfo, error) {
	if err := account.Validate(); err != nil {
		return broker.AccountInfo{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return broker.AccountInfo{
		CashBalance:   b.cash,
		LineAvailable: b.cash - b.reserved,
		EquityBalance: b.cash + b.marketValueLocked(),
		Timestamp:     time.Now().UTC(),
	}, nil
}

// GetPortfolio 按最新价估值持仓。
func (b *Broker) GetPortfolio(ctx context.Context, account broker.Account) (broker.Portfolio, error) {
	if err := account.Validate(); err != nil {
		return broker.Portfolio{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var p broker.Portfolio
	for symbol, h := range b.holdings {
		if h.volume == 0 {
			continue
		}
		price := b.quotes[symbol].Last
		if price <= 0 {
			price = h.avgPrice
		}
		pos := broker.Position{
			Symbol:          symbol,
			Volume:          h.volume,
			AvailableVolume: h.volume - float64(b.sellHeld[symbol]),
			AveragePrice:    h.avgPrice,
			MarketPrice:     price,
			MarketValue:     h.volume * price,
			CostValue:       h.volume * h.avgPrice,
		}
		pos.UnrealizedPnL = pos.MarketValue - pos.CostValue
		p.Positions = append(p.Positions, pos)
		p.TotalMarketValue += pos.MarketValue
		p.TotalCostValue += pos.CostValue
		p.TotalProfit += pos.UnrealizedPnL
	}
	return p, nil
}

// GetOpenOrders 返回可撤委托，symbol 为空时返回全部。
func (b *Broker) GetOpenOrders(ctx context.Context, account broker.Account, symbol string) ([]broker.Order, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []broker.Order
	for _, no := range b.orderSeq {
		o := b.orders[no]
		if !o.CanCancel {
			continue
		}
		if symbol != "" && normalize(o.Symbol) != normalize(symbol) {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

// PlaceOrder 校验资金与可卖股数后登记委托，满足价格条件时立即成交。
func (b *Broker) PlaceOrder(ctx context.Context, account broker.Account, req broker.PlaceOrderRequest) (broker.Order, error) {
	if err := account.Validate(); err != nil {
		return broker.Order{}, err
	}
	if req.Volume <= 0 {
		return broker.Order{}, &broker.RejectError{Code: "invalid_volume", Reason: fmt.Sprintf("volume=%d", req.Volume)}
	}
	if req.Price <= 0 {
		return broker.Order{}, &broker.RejectError{Code: "invalid_price", Reason: fmt.Sprintf("price=%v", req.Price)}
	}

	key := normalize(req.Symbol)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch req.Side {
	case broker.SideBuy:
		cost := float64(req.Volume) * req.Price
		if cost > b.cash-b.reserved+1e-9 {
			return broker.Order{}, &broker.RejectError{Code: "insufficient_cash", Reason: fmt.Sprintf("need %.2f, line %.2f", cost, b.cash-b.reserved)}
		}
	case broker.SideSell:
		available := int64(0)
		if h, ok := b.holdings[key]; ok {
			available = int64(h.volume) - b.sellHeld[key]
		}
		if req.Volume > available {
			return broker.Order{}, &broker.RejectError{Code: "insufficient_volume", Reason: fmt.Sprintf("need %d, available %d", req.Volume, available)}
		}
	default:
		return broker.Order{}, &broker.RejectError{Code: "invalid_side", Reason: string(req.Side)}
	}

	order := &broker.Order{
		OrderNo:   uuid.NewString(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Price:     req.Price,
		Volume:    req.Volume,
		Balance:   req.Volume,
		Status:    statusPending,
		PriceType: req.PriceType,
		Validity:  req.Validity,
		CanCancel: true,
		EnteredAt: time.Now().UTC(),
	}
	b.orders[order.OrderNo] = order
	b.orderSeq = append(b.orderSeq, order.OrderNo)
	b.reserve(order)

	if q, ok := b.quotes[key]; ok {
		b.tryFill(order, q)
	}

	b.logger.Info("模拟委托",
		zap.String("order_no", order.OrderNo),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Int64("volume", order.Volume),
		zap.Float64("price", order.Price),
		zap.String("status", order.Status),
	)
	return *order, nil
}

// CancelOrders 逐笔撤单，已成交或不存在的委托记为失败。
func (b *Broker) CancelOrders(ctx context.Context, account broker.Account, orderNos []string) (broker.CancelResult, error) {
	if err := account.Validate(); err != nil {
		return broker.CancelResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	result := broker.CancelResult{Outcomes: make([]broker.CancelOutcome, 0, len(orderNos))}
	for _, no := range orderNos {
		o, ok := b.orders[no]
		switch {
		case !ok:
			result.Outcomes = append(result.Outcomes, broker.CancelOutcome{OrderNo: no, Err: &broker.RejectError{Code: "order_not_found", Reason: no}})
		case !o.CanCancel:
			result.Outcomes = append(result.Outcomes, broker.CancelOutcome{OrderNo: no, Err: &broker.RejectError{Code: "not_cancellable", Reason: o.Status}})
		default:
			b.release(o)
			o.CanCancel = false
			o.Status = statusCancelled
			result.Outcomes = append(result.Outcomes, broker.CancelOutcome{OrderNo: no})
		}
	}
	return result, nil
}

// 以下方法要求持有 b.mu。

func (b *Broker) tryFill(o *broker.Order, q broker.Quote) {
	var fillPrice float64
	switch o.Side {
	case broker.SideBuy:
		if q.Ask <= 0 || o.Price < q.Ask {
			return
		}
		fillPrice = q.Ask
	case broker.SideSell:
		if q.Bid <= 0 || o.Price > q.Bid {
			return
		}
		fillPrice = q.Bid
	default:
		return
	}

	b.release(o)
	key := normalize(o.Symbol)
	h, ok := b.holdings[key]
	if !ok {
		h = &holding{}
		b.holdings[key] = h
	}
	volume := float64(o.Volume)
	if o.Side == broker.SideBuy {
		cost := h.volume*h.avgPrice + volume*fillPrice
		h.volume += volume
		h.avgPrice = cost / h.volume
		b.cash -= volume * fillPrice
	} else {
		h.volume -= volume
		b.cash += volume * fillPrice
		if h.volume <= 0 {
			h.volume, h.avgPrice = 0, 0
		}
	}

	o.Matched = o.Volume
	o.Balance = 0
	o.Status = statusMatched
	o.CanCancel = false
}

func (b *Broker) reserve(o *broker.Order) {
	if o.Side == broker.SideBuy {
		b.reserved += float64(o.Volume) * o.Price
		return
	}
	b.sellHeld[normalize(o.Symbol)] += o.Volume
}

func (b *Broker) release(o *broker.Order) {
	if o.Side == broker.SideBuy {
		b.reserved -= float64(o.Volume) * o.Price
		if b.reserved < 0 {
			b.reserved = 0
		}
		return
	}
	key := normalize(o.Symbol)
	b.sellHeld[key] -= o.Volume
	if b.sellHeld[key] <= 0 {
		delete(b.sellHeld, key)
	}
}

func (b *Broker) marketValueLocked() float64 {
	var total float64
	for symbol, h := range b.holdings {
		price := b.quotes[symbol].Last
		if price <= 0 {
			price = h.avgPrice
		}
		total += h.volume * price
	}
	return total
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
