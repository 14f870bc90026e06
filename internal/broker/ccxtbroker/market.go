package ccxtbroker

import (
	"context"
	"fmt"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"ezyquant-execute/internal/broker"
)

const bidAskDepth = 5

// GetQuote 获取最新行情。
func (c *Client) GetQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	var raw ccxt.Ticker
	err := c.callWithRetry(ctx, "fetch_ticker", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		ticker, err := c.exchange.FetchTicker(symbol)
		if err != nil {
			return err
		}
		raw = ticker
		return nil
	})
	if err != nil {
		return broker.Quote{}, fmt.Errorf("ccxtbroker: 获取行情失败 %s: %w", symbol, err)
	}
	return convertTicker(symbol, raw), nil
}

// GetCandles 获取 K 线，interval 为 ccxt timeframe，如 1m、1d。
func (c *Client) GetCandles(ctx context.Context, symbol string, interval string, limit int) ([]broker.Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, "fetch_ohlcv_"+interval, func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(interval),
			ccxt.WithFetchOHLCVLimit(int64(limit)),
		)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ccxtbroker: 获取K线失败 %s: %w", symbol, err)
	}

	candles := make([]broker.Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, broker.Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}
	return candles, nil
}

func (c *Client) fetchBidAsk(ctx context.Context, symbol string) (broker.BidAsk, error) {
	var raw ccxt.OrderBook
	err := c.callWithRetry(ctx, "fetch_order_book", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		book, err := c.exchange.FetchOrderBook(symbol, ccxt.WithFetchOrderBookLimit(bidAskDepth))
		if err != nil {
			return err
		}
		raw = book
		return nil
	})
	if err != nil {
		return broker.BidAsk{}, fmt.Errorf("ccxtbroker: 获取买卖盘失败 %s: %w", symbol, err)
	}
	return convertOrderBook(symbol, raw), nil
}

func convertTicker(symbol string, t ccxt.Ticker) broker.Quote {
	q := broker.Quote{
		Symbol:    symbol,
		Last:      derefFloat(t.Last),
		Bid:       derefFloat(t.Bid),
		Ask:       derefFloat(t.Ask),
		Open:      derefFloat(t.Open),
		High:      derefFloat(t.High),
		Low:       derefFloat(t.Low),
		PrevClose: derefFloat(t.PreviousClose),
		Volume:    derefFloat(t.BaseVolume),
		Timestamp: time.Now().UTC(),
	}
	if q.Last == 0 {
		q.Last = derefFloat(t.Close)
	}
	if t.Timestamp != nil {
		q.Timestamp = time.UnixMilli(*t.Timestamp).UTC()
	}
	return q
}

func convertOrderBook(symbol string, ob ccxt.OrderBook) broker.BidAsk {
	out := broker.BidAsk{
		Symbol:    symbol,
		Bids:      convertLevels(ob.Bids),
		Asks:      convertLevels(ob.Asks),
		UpdatedAt: time.Now().UTC(),
	}
	if ob.Timestamp != nil {
		out.UpdatedAt = time.UnixMilli(*ob.Timestamp).UTC()
	}
	return out
}

func convertLevels(raw [][]float64) []broker.Level {
	levels := make([]broker.Level, 0, len(raw))
	for _, level := range raw {
		if len(level) < 2 {
			continue
		}
		levels = append(levels, broker.Level{Price: level[0], Volume: level[1]})
	}
	return levels
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
