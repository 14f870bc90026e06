package ccxtbroker

import (
	"context"
	"fmt"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"ezyquant-execute/internal/broker"
)

// GetOpenOrders 获取未成交委托，symbol 为空时返回全部。
func (c *Client) GetOpenOrders(ctx context.Context, account broker.Account, symbol string) ([]broker.Order, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}

	var raw []ccxt.Order
	err := c.callWithRetry(ctx, "fetch_open_orders", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		var opts []ccxt.FetchOpenOrdersOptions
		if symbol != "" {
			opts = append(opts, ccxt.WithFetchOpenOrdersSymbol(symbol))
		}
		result, err := c.exchange.FetchOpenOrders(opts...)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ccxtbroker: 获取未成交委托失败: %w", err)
	}

	orders := make([]broker.Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, convertOrder(o))
	}
	return orders, nil
}

// PlaceOrder 提交委托。下单不重试，避免重复成交。
func (c *Client) PlaceOrder(ctx context.Context, account broker.Account, req broker.PlaceOrderRequest) (broker.Order, error) {
	if err := account.Validate(); err != nil {
		return broker.Order{}, err
	}
	if req.Volume <= 0 {
		return broker.Order{}, &broker.RejectError{Code: "invalid_volume", Reason: fmt.Sprintf("volume=%d", req.Volume)}
	}
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return broker.Order{}, err
	}

	side := strings.ToLower(string(req.Side))
	amount := float64(req.Volume)
	params := map[string]interface{}{}
	if tif := timeInForce(req.Validity); tif != "" {
		params["timeInForce"] = tif
	}

	var (
		raw ccxt.Order
		err error
	)
	switch req.PriceType {
	case broker.PriceLimit, "":
		raw, err = c.exchange.CreateLimitOrder(req.Symbol, side, amount, req.Price, ccxt.WithCreateLimitOrderParams(params))
	case broker.PriceMarket:
		delete(params, "timeInForce")
		raw, err = c.exchange.CreateMarketOrder(req.Symbol, side, amount, ccxt.WithCreateMarketOrderParams(params))
	default:
		return broker.Order{}, fmt.Errorf("%w: price type %s", broker.ErrNotSupported, req.PriceType)
	}
	if err != nil {
		normalized, _ := classifyError(err)
		c.logger.Error("下单失败",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.Int64("volume", req.Volume),
			zap.Float64("price", req.Price),
			zap.Error(normalized),
		)
		return broker.Order{}, fmt.Errorf("ccxtbroker: 下单失败: %w", normalized)
	}

	order := convertOrder(raw)
	if order.Symbol == "" {
		order.Symbol = req.Symbol
	}
	if order.Volume == 0 {
		order.Volume = req.Volume
	}
	order.PriceType = req.PriceType
	c.logger.Info("委托已提交",
		zap.String("order_no", order.OrderNo),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(req.Side)),
		zap.Int64("volume", req.Volume),
		zap.Float64("price", req.Price),
	)
	return order, nil
}

// CancelOrders 逐笔撤单，单笔失败记录在结果中。
func (c *Client) CancelOrders(ctx context.Context, account broker.Account, orderNos []string) (broker.CancelResult, error) {
	if err := account.Validate(); err != nil {
		return broker.CancelResult{}, err
	}
	if len(orderNos) == 0 {
		return broker.CancelResult{}, nil
	}

	index, err := c.openOrderSymbols(ctx, account)
	if err != nil {
		return broker.CancelResult{}, err
	}

	result := broker.CancelResult{Outcomes: make([]broker.CancelOutcome, 0, len(orderNos))}
	for _, no := range orderNos {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		var opts []ccxt.CancelOrderOptions
		if symbol, ok := index[no]; ok {
			opts = append(opts, ccxt.WithCancelOrderSymbol(symbol))
		}
		_, cancelErr := c.exchange.CancelOrder(no, opts...)
		if cancelErr != nil {
			cancelErr, _ = classifyError(cancelErr)
		}
		result.Outcomes = append(result.Outcomes, broker.CancelOutcome{OrderNo: no, Err: cancelErr})
	}
	return result, nil
}

func (c *Client) openOrderSymbols(ctx context.Context, account broker.Account) (map[string]string, error) {
	orders, err := c.GetOpenOrders(ctx, account, "")
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(orders))
	for _, o := range orders {
		index[o.OrderNo] = o.Symbol
	}
	return index, nil
}

func convertOrder(o ccxt.Order) broker.Order {
	status := strings.ToLower(derefString(o.Status))
	amount := derefFloat(o.Amount)
	filled := derefFloat(o.Filled)
	remaining := amount - filled
	if o.Remaining != nil {
		remaining = *o.Remaining
	}

	order := broker.Order{
		OrderNo:   derefString(o.Id),
		Symbol:    derefString(o.Symbol),
		Side:      broker.ParseSide(derefString(o.Side)),
		Price:     derefFloat(o.Price),
		Volume:    int64(amount),
		Matched:   int64(filled),
		Balance:   int64(remaining),
		Status:    status,
		PriceType: broker.PriceLimit,
		Validity:  validityFromTIF(derefString(o.TimeInForce)),
		CanCancel: status == "" || status == "open",
	}
	if strings.EqualFold(derefString(o.Type), "market") {
		order.PriceType = broker.PriceMarket
	}
	if o.Timestamp != nil {
		order.EnteredAt = time.UnixMilli(*o.Timestamp).UTC()
	}
	return order
}

func timeInForce(v broker.Validity) string {
	switch v {
	case broker.ValidityIOC:
		return "IOC"
	case broker.ValidityFOK:
		return "FOK"
	case broker.ValidityDay:
		return "GTC"
	default:
		return ""
	}
}

func validityFromTIF(tif string) broker.Validity {
	switch strings.ToUpper(tif) {
	case "IOC":
		return broker.ValidityIOC
	case "FOK":
		return broker.ValidityFOK
	default:
		return broker.ValidityDay
	}
}
