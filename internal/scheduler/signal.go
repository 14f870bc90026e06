package scheduler

import (
	"sync"
	"time"
)

// Signal 为一次性的协作取消标志，可被多个 goroutine 安全地重复设置。
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal 创建未设置的信号。
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set 设置信号，重复调用无副作用。
func (s *Signal) Set() {
	s.once.Do(func() { close(s.ch) })
}

// IsSet 非阻塞地检查信号。
func (s *Signal) IsSet() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Wait 最多等待 timeout，信号被设置时立即返回 true，超时返回 false。
func (s *Signal) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		return s.IsSet()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ch:
		return true
	case <-timer.C:
		return s.IsSet()
	}
}

// Done 返回信号设置时关闭的通道。
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}
