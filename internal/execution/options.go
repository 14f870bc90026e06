package execution

import (
	"errors"
	"fmt"
	"strings"

	"ezyquant-execute/internal/broker"
	"ezyquant-execute/internal/pricing"
)

var (
	// ErrNoQuote 表示拿不到有效价格。
	ErrNoQuote = errors.New("execution: no valid quote")
	// ErrInsufficientVolume 表示可卖股数不足。
	ErrInsufficientVolume = errors.New("execution: insufficient volume")
	// ErrInsufficientCash 表示可用资金不足。
	ErrInsufficientCash = errors.New("execution: insufficient cash")
)

// OrderMode 决定可卖股数或资金不足时的处理方式。
type OrderMode string

const (
	// OrderModeNone 不做预检查，由券商决定是否拒单。
	OrderModeNone OrderMode = "none"
	// OrderModeSkip 不足时静默跳过。
	OrderModeSkip OrderMode = "skip"
	// OrderModeRaise 不足时返回错误且不下单。
	OrderModeRaise OrderMode = "raise"
	// OrderModeAvailable 缩减到可用数量后下单。
	OrderModeAvailable OrderMode = "available"
)

// ParseOrderMode 解析下单模式，空字符串视为 none。
func ParseOrderMode(s string) (OrderMode, error) {
	switch OrderMode(strings.ToLower(strings.TrimSpace(s))) {
	case OrderModeNone, "":
		return OrderModeNone, nil
	case OrderModeSkip:
		return OrderModeSkip, nil
	case OrderModeRaise:
		return OrderModeRaise, nil
	case OrderModeAvailable:
		return OrderModeAvailable, nil
	default:
		return "", fmt.Errorf("execution: 不支持的下单模式 %q", s)
	}
}

// Recorder 接收下单与撤单事件，通常由指标模块实现。
type Recorder interface {
	OrderPlaced(symbol string, side broker.Side, volume int64)
	OrderSkipped(symbol string, reason string)
	OrdersCancelled(symbol string, cancelled, failed int)
}

type nopRecorder struct{}

func (nopRecorder) OrderPlaced(string, broker.Side, int64) {}

func (nopRecorder) OrderSkipped(string, string) {}

func (nopRecorder) OrdersCancelled(string, int, int) {}

// Options 控制下单参数。
type Options struct {
	SlippageSteps int
	RoundMode     pricing.RoundMode
	OrderMode     OrderMode
	PriceType     broker.PriceType
	Validity      broker.Validity
	Recorder      Recorder
}

func (o Options) withDefaults() Options {
	if o.RoundMode == "" {
		o.RoundMode = pricing.RoundDown
	}
	if o.OrderMode == "" {
		o.OrderMode = OrderModeNone
	}
	if o.PriceType == "" {
		o.PriceType = broker.PriceLimit
	}
	if o.Validity == "" {
		o.Validity = broker.ValidityDay
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	return o
}
