package broker

import "context"

// Client 是执行层所依赖的券商接口，仅暴露下单与查询所需的最小集合。
type Client interface {
	Name() string
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetCandles(ctx context.Context, symbol string, interval string, limit int) ([]Candle, error)
	GetPortfolio(ctx context.Context, account Account) (Portfolio, error)
	GetAccountInfo(ctx context.Context, account Account) (AccountInfo, error)
	GetOpenOrders(ctx context.Context, account Account, symbol string) ([]Order, error)
	PlaceOrder(ctx context.Context, account Account, req PlaceOrderRequest) (Order, error)
	CancelOrders(ctx context.Context, account Account, orderNos []string) (CancelResult, error)
	SubscribeBidAsk(ctx context.Context, symbol string) (Subscription, error)
}

// Subscription 持有实时买卖盘订阅，Latest 返回最近一次推送。
type Subscription interface {
	Latest() (BidAsk, bool)
	Close() error
}
