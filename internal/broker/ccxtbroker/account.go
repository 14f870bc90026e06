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

// GetAccountInfo 以计价币余额作为现金。交易所账户由 API Key 决定，account 仅做校验。
func (c *Client) GetAccountInfo(ctx context.Context, account broker.Account) (broker.AccountInfo, error) {
	if err := account.Validate(); err != nil {
		return broker.AccountInfo{}, err
	}

	balances, err := c.fetchBalance(ctx)
	if err != nil {
		return broker.AccountInfo{}, err
	}

	quote := strings.ToUpper(c.cfg.QuoteCurrency)
	info := broker.AccountInfo{
		CashBalance:   lookupBalance(balances.Total, quote),
		LineAvailable: lookupBalance(balances.Free, quote),
		Timestamp:     time.Now().UTC(),
	}
	info.EquityBalance = info.CashBalance
	return info, nil
}

// GetPortfolio 将配置标的的基础币余额折算为持仓，成本价交易所不提供，记为 0。
func (c *Client) GetPortfolio(ctx context.Context, account broker.Account) (broker.Portfolio, error) {
	if err := account.Validate(); err != nil {
		return broker.Portfolio{}, err
	}

	balances, err := c.fetchBalance(ctx)
	if err != nil {
		return broker.Portfolio{}, err
	}

	var portfolio broker.Portfolio
	for _, symbol := range c.symbols {
		base := baseCurrency(symbol)
		volume := lookupBalance(balances.Total, base)
		if volume == 0 {
			continue
		}

		quote, err := c.GetQuote(ctx, symbol)
		if err != nil {
			return broker.Portfolio{}, err
		}

		pos := broker.Position{
			Symbol:          symbol,
			Volume:          volume,
			AvailableVolume: lookupBalance(balances.Free, base),
			MarketPrice:     quote.Last,
			MarketValue:     volume * quote.Last,
		}
		portfolio.Positions = append(portfolio.Positions, pos)
		portfolio.TotalMarketValue += pos.MarketValue
	}

	c.logger.Debug("已获取持仓", zap.Int("positions", len(portfolio.Positions)))
	return portfolio, nil
}

func (c *Client) fetchBalance(ctx context.Context) (ccxt.Balances, error) {
	var balances ccxt.Balances
	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		result, err := c.exchange.FetchBalance()
		if err != nil {
			return err
		}
		balances = result
		return nil
	})
	if err != nil {
		return ccxt.Balances{}, fmt.Errorf("ccxtbroker: 获取账户余额失败: %w", err)
	}
	return balances, nil
}

func lookupBalance(values map[string]*float64, code string) float64 {
	if values == nil {
		return 0
	}
	return derefFloat(values[code])
}

// baseCurrency 从 BTC/USDT:USDT 中取出 BTC。
func baseCurrency(symbol string) string {
	s := symbol
	if idx := strings.Index(s, "/"); idx > 0 {
		s = s[:idx]
	}
	return strings.ToUpper(strings.TrimSpace(s))
}
