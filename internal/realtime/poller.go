package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ezyquant-execute/internal/broker"
)

// FetchFunc 拉取一次买卖盘。
type FetchFunc func(ctx context.Context, symbol string) (broker.BidAsk, error)

// Poller 在没有推送通道时以固定间隔轮询买卖盘。
type Poller struct {
	symbol   string
	interval time.Duration
	fetch    FetchFunc
	logger   *zap.Logger

	mu     sync.RWMutex
	latest broker.BidAsk
	ready  bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ broker.Subscription = (*Poller)(nil)

// NewPoller 同步拉取首个快照后启动后台轮询。
func NewPoller(ctx context.Context, symbol string, interval time.Duration, fetch FetchFunc, logger *zap.Logger) (*Poller, error) {
	if fetch == nil {
		return nil, fmt.Errorf("realtime: fetch 不能为空")
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Poller{
		symbol:   symbol,
		interval: interval,
		fetch:    fetch,
		logger:   logger.With(zap.String("symbol", symbol)),
	}

	first, err := fetch(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("realtime: 首次拉取买卖盘失败: %w", err)
	}
	p.store(first)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.wg.Add(1)
	go p.loop(loopCtx)

	return p, nil
}

// Latest 返回最近一次轮询结果。
func (p *Poller) Latest() (broker.BidAsk, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.ready
}

// Close 停止轮询。
func (p *Poller) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
	})
	return nil
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bidAsk, err := p.fetch(ctx, p.symbol)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Warn("轮询买卖盘失败", zap.Error(err))
				continue
			}
			p.store(bidAsk)
		}
	}
}

func (p *Poller) store(bidAsk broker.BidAsk) {
	p.mu.Lock()
	p.latest = bidAsk
	p.ready = true
	p.mu.Unlock()
}
