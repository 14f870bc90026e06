package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAlreadyRunning 表示同一个调度器被并发 Run。
var ErrAlreadyRunning = errors.New("scheduler: already running")

// State 为调度器状态。
type State int32

const (
	StateIdle State = iota
	StateWaitingForStart
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForStart:
		return "waiting_for_start"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Observer 接收调度过程中的观测数据。
type Observer interface {
	ObserveState(state string)
	ObserveTick(elapsed time.Duration)
	ObserveCallbackError(symbol string)
}

type nopObserver struct{}

func (nopObserver) ObserveState(string) {}

func (nopObserver) ObserveTick(time.Duration) {}

func (nopObserver) ObserveCallbackError(string) {}

// Options 控制执行窗口。Start 为零值时立即开始，End 为零值时没有截止时间。
type Options struct {
	Interval time.Duration
	Start    time.Time
	End      time.Time
	Observer Observer
}

// Factory 为标的创建执行上下文，stop 供回调主动结束本次运行。
type Factory[C io.Closer] func(ctx context.Context, symbol string, value any, stop *Signal) (C, error)

// Callback 为用户算法，每个 tick 对每个标的调用一次。
type Callback[C io.Closer] func(ctx context.Context, c C) error

// Scheduler 按固定间隔驱动回调，直到截止时间、ctx 取消或 Stop。
type Scheduler[C io.Closer] struct {
	opts     Options
	factory  Factory[C]
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	state   atomic.Int32
	running atomic.Bool

	mu   sync.Mutex
	stop *Signal
}

// New 创建调度器。
func New[C io.Closer](opts Options, factory Factory[C], logger *zap.Logger) (*Scheduler[C], error) {
	if factory == nil {
		return nil, errors.New("scheduler: factory 不能为空")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval 必须大于0, got %s", opts.Interval)
	}
	if !opts.Start.IsZero() && !opts.End.IsZero() && !opts.End.After(opts.Start) {
		return nil, fmt.Errorf("scheduler: 结束时间 %s 不晚于开始时间 %s", opts.End.Format(time.TimeOnly), opts.Start.Format(time.TimeOnly))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Scheduler[C]{
		opts:     opts,
		factory:  factory,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}, nil
}

// State 返回当前状态。
func (s *Scheduler[C]) State() State {
	return State(s.state.Load())
}

// Stop 请求结束当前运行，不打断正在执行的回调。
func (s *Scheduler[C]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.stop.Set()
	}
}

// Run 执行一次完整的调度。首个 tick 立即执行，之后每 Interval 一次；
// 回调返回错误时立即原样返回。上下文按标的缓存，结束时统一关闭。
func (s *Scheduler[C]) Run(ctx context.Context, signals Signals, cb Callback[C]) (err error) {
	if cb == nil {
		return errors.New("scheduler: callback 不能为空")
	}
	if err := signals.Validate(); err != nil {
		return err
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	logger := s.logger.With(zap.String("run_id", uuid.NewString()))
	stop := NewSignal()
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	contexts := make(map[string]C, len(signals))
	var deadline *time.Timer
	unbridge := context.AfterFunc(ctx, stop.Set)

	defer func() {
		unbridge()
		if deadline != nil {
			deadline.Stop()
		}
		stop.Set()

		s.setState(StateDraining)
		for _, e := range signals {
			c, ok := contexts[e.Symbol]
			if !ok {
				continue
			}
			if closeErr := c.Close(); closeErr != nil {
				logger.Warn("关闭执行上下文失败", zap.String("symbol", e.Symbol), zap.Error(closeErr))
			}
		}
		s.setState(StateStopped)

		if err != nil {
			logger.Error("调度异常结束", zap.Error(err))
		} else {
			logger.Info("调度结束")
		}
	}()

	s.setState(StateWaitingForStart)
	now := s.now()
	if !s.opts.End.IsZero() && !s.opts.End.After(now) {
		logger.Warn("已过结束时间，跳过本次调度", zap.Time("end", s.opts.End))
		return nil
	}
	if !s.opts.Start.IsZero() && s.opts.Start.After(now) {
		logger.Info("等待开始时间",
			zap.Time("start", s.opts.Start),
			zap.Float64("seconds", SecondsUntil(now, s.opts.Start)),
		)
		if !SleepUntil(stop, now, s.opts.Start) {
			return ctx.Err()
		}
	}

	if !s.opts.End.IsZero() {
		deadline = time.AfterFunc(s.opts.End.Sub(s.now()), stop.Set)
	}

	s.setState(StateRunning)
	logger.Info("调度开始",
		zap.Strings("symbols", signals.Symbols()),
		zap.Duration("interval", s.opts.Interval),
	)

	for tick := 1; ; tick++ {
		started := time.Now()
		for _, e := range signals {
			c, ok := contexts[e.Symbol]
			if !ok {
				c, err = s.factory(ctx, e.Symbol, e.Value, stop)
				if err != nil {
					return fmt.Errorf("scheduler: 创建执行上下文失败 %s: %w", e.Symbol, err)
				}
				contexts[e.Symbol] = c
			}

			if err = cb(ctx, c); err != nil {
				s.observer.ObserveCallbackError(e.Symbol)
				logger.Error("回调执行失败",
					zap.Int("tick", tick),
					zap.String("symbol", e.Symbol),
					zap.Error(err),
				)
				return err
			}
		}
		elapsed := time.Since(started)
		s.observer.ObserveTick(elapsed)
		logger.Debug("tick 完成", zap.Int("tick", tick), zap.Duration("elapsed", elapsed))

		if stop.Wait(s.opts.Interval) {
			break
		}
	}

	return ctx.Err()
}

func (s *Scheduler[C]) setState(state State) {
	s.state.Store(int32(state))
	s.observer.ObserveState(state.String())
}
