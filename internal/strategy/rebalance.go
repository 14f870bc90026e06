package strategy

import "context"

// Rebalancer 将每个标的市值调整为组合价值乘以信号值。
type Rebalancer struct{}

func (Rebalancer) Name() string { return "rebalance" }

func (Rebalancer) Execute(ctx context.Context, c Context) error {
	pct, err := targetPct(c)
	if err != nil {
		return err
	}
	return rebalance(ctx, c, pct)
}
