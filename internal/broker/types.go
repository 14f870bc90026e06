package broker

import (
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Side 表示委托方向。
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Opposite 返回反方向。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseSide 容忍大小写差异。
func ParseSide(s string) Side {
	if strings.EqualFold(strings.TrimSpace(s), string(SideSell)) {
		return SideSell
	}
	return SideBuy
}

// PriceType 表示价格类型。
type PriceType string

const (
	PriceLimit  PriceType = "Limit"
	PriceATO    PriceType = "ATO"
	PriceATC    PriceType = "ATC"
	PriceMarket PriceType = "MP-MKT"
)

// Validity 表示委托有效期。
type Validity string

const (
	ValidityDay Validity = "Day"
	ValidityIOC Validity = "IOC"
	ValidityFOK Validity = "FOK"
)

// Quote 为单个标的的行情快照。
type Quote struct {
	Symbol    string
	Last      float64
	Bid       float64
	Ask       float64
	Open      float64
	High      float64
	Low       float64
	PrevClose float64
	Volume    float64
	Timestamp time.Time
}

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Position 为单个标的的持仓。
type Position struct {
	Symbol          string
	Volume          float64
	AvailableVolume float64
	AveragePrice    float64
	MarketPrice     float64
	MarketValue     float64
	CostValue       float64
	UnrealizedPnL   float64
}

// Portfolio 汇总账户持仓。
type Portfolio struct {
	Positions        []Position
	TotalMarketValue float64
	TotalCostValue   float64
	TotalProfit      float64
}

// Find 按代码查找持仓。
func (p Portfolio) Find(symbol string) (Position, bool) {
	for _, pos := range p.Positions {
		if strings.EqualFold(pos.Symbol, symbol) {
			return pos, true
		}
	}
	return Position{}, false
}

// AccountInfo 描述账户资金。
type AccountInfo struct {
	CashBalance   float64
	LineAvailable float64
	EquityBalance float64
	CreditLimit   float64
	Timestamp     time.Time
}

// Order 为券商返回的委托记录。
type Order struct {
	OrderNo   string
	Symbol    string
	Side      Side
	Price     float64
	Volume    int64
	Matched   int64
	Balance   int64
	Status    string
	PriceType PriceType
	Validity  Validity
	CanCancel bool
	EnteredAt time.Time
}

// PlaceOrderRequest 为下单参数，Volume 必须已按手取整。
type PlaceOrderRequest struct {
	Symbol        string
	Side          Side
	Volume        int64
	Price         float64
	PriceType     PriceType
	Validity      Validity
	QtyOpen       int64
	BypassWarning bool
	ValidTillDate string
}

// CancelOutcome 记录单笔撤单结果。
type CancelOutcome struct {
	OrderNo string
	Err     error
}

// CancelResult 为批量撤单结果，允许部分失败。
type CancelResult struct {
	Outcomes []CancelOutcome
}

// Empty 表示没有提交任何撤单。
func (r CancelResult) Empty() bool {
	return len(r.Outcomes) == 0
}

// Cancelled 返回撤单成功的委托号。
func (r CancelResult) Cancelled() []string {
	out := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o.OrderNo)
		}
	}
	return out
}

// Err 合并所有失败原因，全部成功时返回 nil。
func (r CancelResult) Err() error {
	var err error
	for _, o := range r.Outcomes {
		err = multierr.Append(err, o.Err)
	}
	return err
}

// Level 为盘口单档。
type Level struct {
	Price  float64
	Volume float64
}

// BidAsk 为买卖盘快照，档位按优先级排列。
type BidAsk struct {
	Symbol    string
	Bids      []Level
	Asks      []Level
	UpdatedAt time.Time
}

// BestBid 返回买一价，无数据时为 0。
func (b BidAsk) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk 返回卖一价，无数据时为 0。
func (b BidAsk) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}
