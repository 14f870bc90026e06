package execution

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ezyquant-execute/internal/broker"
	"ezyquant-execute/internal/pricing"
)

func (c *SymbolContext) place(ctx context.Context, side broker.Side, rawVolume, price float64) (*broker.Order, error) {
	volume := pricing.RoundLot(rawVolume, c.opts.RoundMode)
	if volume <= 0 {
		c.logger.Debug("取整后股数为0，不下单",
			zap.String("side", string(side)),
			zap.Float64("raw_volume", rawVolume),
		)
		return nil, nil
	}

	volume, err := c.applyOrderMode(ctx, side, volume, price)
	if err != nil {
		return nil, err
	}
	if volume <= 0 {
		return nil, nil
	}

	req := broker.PlaceOrderRequest{
		Symbol:    c.symbol,
		Side:      side,
		Volume:    volume,
		Price:     price,
		PriceType: c.opts.PriceType,
		Validity:  c.opts.Validity,
	}
	order, err := c.client.PlaceOrder(ctx, c.account, req)
	if err != nil {
		return nil, fmt.Errorf("execution: 下单失败 %s %s %d@%.2f: %w", c.symbol, side, volume, price, err)
	}

	c.opts.Recorder.OrderPlaced(c.symbol, side, volume)
	c.logger.Info("已下单",
		zap.String("order_no", order.OrderNo),
		zap.String("side", string(side)),
		zap.Int64("volume", volume),
		zap.Float64("price", price),
	)
	return &order, nil
}

// applyOrderMode 根据下单模式处理可卖股数或购买力不足的情况。
func (c *SymbolContext) applyOrderMode(ctx context.Context, side broker.Side, volume int64, price float64) (int64, error) {
	if c.opts.OrderMode == OrderModeNone {
		return volume, nil
	}

	var (
		available int64
		shortErr  error
	)
	if side == broker.SideSell {
		pos, err := c.Position(ctx)
		if err != nil {
			return 0, err
		}
		available = pricing.RoundDownLot(pos.AvailableVolume)
		shortErr = ErrInsufficientVolume
	} else {
		line, err := c.LineAvailable(ctx)
		if err != nil {
			return 0, err
		}
		if price <= 0 {
			return 0, fmt.Errorf("%w: %s price=%v", ErrNoQuote, c.symbol, price)
		}
		available = pricing.RoundDownLot(line / price)
		shortErr = ErrInsufficientCash
	}

	if volume <= available {
		return volume, nil
	}

	switch c.opts.OrderMode {
	case OrderModeRaise:
		return 0, fmt.Errorf("%w: %s %s 需要 %d 可用 %d", shortErr, c.symbol, side, volume, available)
	case OrderModeAvailable:
		if available <= 0 {
			c.opts.Recorder.OrderSkipped(c.symbol, "no_available")
		}
		c.logger.Info("按可用数量下单",
			zap.String("side", string(side)),
			zap.Int64("requested", volume),
			zap.Int64("available", available),
		)
		return available, nil
	default:
		c.opts.Recorder.OrderSkipped(c.symbol, "insufficient")
		c.logger.Info("数量不足，跳过下单",
			zap.String("side", string(side)),
			zap.Int64("requested", volume),
			zap.Int64("available", available),
		)
		return 0, nil
	}
}
