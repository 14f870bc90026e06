package execution

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ezyquant-execute/internal/broker"
)

// AccountContext 封装账户级别的查询与撤单，多个 SymbolContext 共享同一个实例。
type AccountContext struct {
	client  broker.Client
	account broker.Account
	opts    Options
	logger  *zap.Logger
}

// NewAccountContext 校验账户后创建上下文。
func NewAccountContext(client broker.Client, account broker.Account, opts Options, logger *zap.Logger) (*AccountContext, error) {
	if client == nil {
		return nil, fmt.Errorf("execution: client 不能为空")
	}
	if err := account.Validate(); err != nil {
		return nil, fmt.Errorf("execution: 账户无效: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountContext{
		client:  client,
		account: account,
		opts:    opts.withDefaults(),
		logger:  logger.With(zap.String("account", account.String())),
	}, nil
}

// Account 返回账户。
func (a *AccountContext) Account() broker.Account {
	return a.account
}

// AccountInfo 查询资金信息。
func (a *AccountContext) AccountInfo(ctx context.Context) (broker.AccountInfo, error) {
	info, err := a.client.GetAccountInfo(ctx, a.account)
	if err != nil {
		return broker.AccountInfo{}, fmt.Errorf("execution: 查询账户资金失败: %w", err)
	}
	return info, nil
}

// Portfolio 查询全部持仓。
func (a *AccountContext) Portfolio(ctx context.Context) (broker.Portfolio, error) {
	portfolio, err := a.client.GetPortfolio(ctx, a.account)
	if err != nil {
		return broker.Portfolio{}, fmt.Errorf("execution: 查询持仓失败: %w", err)
	}
	return portfolio, nil
}

// CashBalance 返回现金余额。
func (a *AccountContext) CashBalance(ctx context.Context) (float64, error) {
	info, err := a.AccountInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.CashBalance, nil
}

// LineAvailable 返回可用购买力。
func (a *AccountContext) LineAvailable(ctx context.Context) (float64, error) {
	info, err := a.AccountInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.LineAvailable, nil
}

// TotalMarketValue 返回持仓总市值。
func (a *AccountContext) TotalMarketValue(ctx context.Context) (float64, error) {
	portfolio, err := a.Portfolio(ctx)
	if err != nil {
		return 0, err
	}
	return portfolio.TotalMarketValue, nil
}

// PortValue 为现金余额加持仓总市值，两项并发查询。
func (a *AccountContext) PortValue(ctx context.Context) (float64, error) {
	var (
		info      broker.AccountInfo
		portfolio broker.Portfolio
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = a.AccountInfo(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		portfolio, err = a.Portfolio(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	return info.CashBalance + portfolio.TotalMarketValue, nil
}

// OpenOrders 返回账户下全部未成交委托。
func (a *AccountContext) OpenOrders(ctx context.Context) ([]broker.Order, error) {
	orders, err := a.client.GetOpenOrders(ctx, a.account, "")
	if err != nil {
		return nil, fmt.Errorf("execution: 查询委托失败: %w", err)
	}
	return orders, nil
}

// CancelAllOrders 撤销账户下全部可撤委托。
func (a *AccountContext) CancelAllOrders(ctx context.Context) (broker.CancelResult, error) {
	orders, err := a.OpenOrders(ctx)
	if err != nil {
		return broker.CancelResult{}, err
	}
	return a.cancelMatching(ctx, "", orders, All)
}

func (a *AccountContext) cancelMatching(ctx context.Context, symbol string, orders []broker.Order, filter OrderFilter) (broker.CancelResult, error) {
	orderNos := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.CanCancel && filter(o) {
			orderNos = append(orderNos, o.OrderNo)
		}
	}
	if len(orderNos) == 0 {
		return broker.CancelResult{}, nil
	}

	result, err := a.client.CancelOrders(ctx, a.account, orderNos)
	if err != nil {
		return broker.CancelResult{}, fmt.Errorf("execution: 撤单失败: %w", err)
	}

	failed := 0
	for _, outcome := range result.Outcomes {
		if outcome.Err == nil {
			continue
		}
		failed++
		a.logger.Warn("撤单部分失败",
			zap.String("symbol", symbol),
			zap.String("order_no", outcome.OrderNo),
			zap.Error(outcome.Err),
		)
	}
	a.opts.Recorder.OrdersCancelled(symbol, len(result.Outcomes)-failed, failed)
	a.logger.Info("已提交撤单",
		zap.String("symbol", symbol),
		zap.Strings("order_nos", orderNos),
		zap.Int("failed", failed),
	)
	return result, nil
}
