package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ezyquant-execute/internal/broker"
	"ezyquant-execute/internal/config"
	"ezyquant-execute/internal/execution"
	"ezyquant-execute/internal/metrics"
	"ezyquant-execute/internal/pricing"
	"ezyquant-execute/internal/scheduler"
	"ezyquant-execute/internal/strategy"
)

// App 聚合核心依赖并驱动一次执行窗口。
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	client  broker.Client
	metrics *metrics.Metrics
	now     func() time.Time
}

// New 创建 App 实例。
func New(cfg *config.Config, client broker.Client, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		client: client,
		now:    time.Now,
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}
	return a
}

// Run 在配置的时间窗口内按信号执行算法，收到退出信号时正常返回。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("执行系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("broker", a.client.Name()),
		zap.String("strategy", a.cfg.Execution.Strategy),
		zap.Int("signals", len(a.cfg.Signals)),
	)

	acct, err := a.accountContext()
	if err != nil {
		return err
	}
	strat, err := strategy.New(a.cfg.Execution)
	if err != nil {
		return err
	}
	opts, err := a.schedulerOptions()
	if err != nil {
		return err
	}

	factory := func(ctx context.Context, symbol string, value any, stop *scheduler.Signal) (*execution.SymbolContext, error) {
		return acct.ForSymbol(symbol, value, stop.Set), nil
	}
	sched, err := scheduler.New[*execution.SymbolContext](opts, factory, a.logger)
	if err != nil {
		return err
	}
	callback := func(ctx context.Context, c *execution.SymbolContext) error {
		return strat.Execute(ctx, c)
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()

	g.Go(func() error {
		defer stopServe()
		return sched.Run(gctx, a.signals(), callback)
	})
	if a.metrics != nil {
		srv := metrics.NewServer(a.metrics, a.cfg.Metrics.Port, a.logger)
		g.Go(func() error {
			return srv.Run(serveCtx)
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		}
		return fmt.Errorf("执行异常退出: %w", err)
	}
	return nil
}

func (a *App) accountContext() (*execution.AccountContext, error) {
	kind, err := broker.ParseAccountKind(a.cfg.Broker.AccountKind)
	if err != nil {
		return nil, err
	}
	roundMode, err := pricing.ParseRoundMode(a.cfg.Execution.RoundMode)
	if err != nil {
		return nil, err
	}
	orderMode, err := execution.ParseOrderMode(a.cfg.Execution.OrderMode)
	if err != nil {
		return nil, err
	}

	opts := execution.Options{
		SlippageSteps: a.cfg.Execution.SlippageSteps,
		RoundMode:     roundMode,
		OrderMode:     orderMode,
		PriceType:     broker.PriceType(a.cfg.Execution.PriceType),
		Validity:      broker.Validity(a.cfg.Execution.Validity),
	}
	if a.metrics != nil {
		opts.Recorder = a.metrics
	}

	account := broker.Account{
		Kind:   kind,
		Number: a.cfg.Broker.AccountNo,
		PIN:    a.cfg.Broker.PIN,
	}
	return execution.NewAccountContext(a.client, account, opts, a.logger)
}

// schedulerOptions 以配置时区的当天日期换算开始与结束时间。
func (a *App) schedulerOptions() (scheduler.Options, error) {
	loc, err := time.LoadLocation(a.cfg.Scheduler.Timezone)
	if err != nil {
		return scheduler.Options{}, fmt.Errorf("加载时区失败: %w", err)
	}
	today := a.now().In(loc)

	opts := scheduler.Options{Interval: a.cfg.Scheduler.Interval}
	if a.cfg.Scheduler.StartTime != "" {
		start, err := scheduler.ParseTimeOfDay(a.cfg.Scheduler.StartTime)
		if err != nil {
			return scheduler.Options{}, err
		}
		opts.Start = start.On(today)
	}
	if a.cfg.Scheduler.EndTime != "" {
		end, err := scheduler.ParseTimeOfDay(a.cfg.Scheduler.EndTime)
		if err != nil {
			return scheduler.Options{}, err
		}
		opts.End = end.On(today)
	}
	if a.metrics != nil {
		opts.Observer = a.metrics
	}
	return opts, nil
}

func (a *App) signals() scheduler.Signals {
	out := make(scheduler.Signals, 0, len(a.cfg.Signals))
	for _, s := range a.cfg.Signals {
		out = append(out, scheduler.Entry{Symbol: s.Symbol, Value: s.Value})
	}
	return out
}
