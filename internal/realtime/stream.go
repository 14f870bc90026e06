package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ezyquant-execute/internal/broker"
)

const (
	defaultReadTimeout = 30 * time.Second
	minBackoff         = time.Second
	maxBackoff         = 30 * time.Second
)

// BookTickerStream 订阅单个标的的最优买卖价推送，断线后自动重连。
type BookTickerStream struct {
	url         string
	symbol      string
	logger      *zap.Logger
	dialer      websocket.Dialer
	readTimeout time.Duration

	mu     sync.RWMutex
	latest broker.BidAsk
	ready  bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ broker.Subscription = (*BookTickerStream)(nil)

// NewBookTickerStream 创建订阅，baseURL 形如 wss://stream.binance.com:9443/ws。
func NewBookTickerStream(baseURL, symbol string, logger *zap.Logger) *BookTickerStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	url := strings.TrimRight(baseURL, "/") + "/" + StreamName(symbol) + "@bookTicker"
	return &BookTickerStream{
		url:         url,
		symbol:      symbol,
		logger:      logger.With(zap.String("symbol", symbol)),
		dialer:      websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		readTimeout: defaultReadTimeout,
	}
}

// StreamName 将 BTC/USDT:USDT 这类代码转换为推送流名称 btcusdt。
func StreamName(symbol string) string {
	s := strings.TrimSpace(symbol)
	if idx := strings.Index(s, ":"); idx > 0 {
		s = s[:idx]
	}
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	return strings.ToLower(s)
}

// Start 在后台维持连接，直到 ctx 结束或调用 Close。
func (s *BookTickerStream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.runLoop(ctx)
}

// Latest 返回最近一次推送。
func (s *BookTickerStream) Latest() (broker.BidAsk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.ready
}

// Close 停止订阅并等待后台协程退出，可重复调用。
func (s *BookTickerStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
	return nil
}

func (s *BookTickerStream) runLoop(ctx context.Context) {
	defer s.wg.Done()
	backoff := minBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn("买卖盘推送断开，准备重连", zap.Duration("wait", backoff), zap.Error(err))
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *BookTickerStream) consume(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("realtime: 连接推送失败: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	conn.SetReadLimit(1 << 20)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	})

	s.logger.Info("买卖盘推送已连接", zap.String("url", s.url))

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("realtime: 读取推送失败: %w", err)
		}

		bidAsk, err := parseBookTicker(s.symbol, msg)
		if err != nil {
			s.logger.Debug("忽略无法解析的推送", zap.Error(err))
			continue
		}
		s.store(bidAsk)
	}
}

func (s *BookTickerStream) store(bidAsk broker.BidAsk) {
	s.mu.Lock()
	s.latest = bidAsk
	s.ready = true
	s.mu.Unlock()
}

type bookTickerMessage struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func parseBookTicker(symbol string, msg []byte) (broker.BidAsk, error) {
	var raw bookTickerMessage
	if err := json.Unmarshal(msg, &raw); err != nil {
		return broker.BidAsk{}, fmt.Errorf("realtime: 解析推送失败: %w", err)
	}
	if raw.BidPrice == "" || raw.AskPrice == "" {
		return broker.BidAsk{}, errors.New("realtime: 推送缺少买卖价")
	}

	bid, err := parseLevel(raw.BidPrice, raw.BidQty)
	if err != nil {
		return broker.BidAsk{}, err
	}
	ask, err := parseLevel(raw.AskPrice, raw.AskQty)
	if err != nil {
		return broker.BidAsk{}, err
	}

	return broker.BidAsk{
		Symbol:    symbol,
		Bids:      []broker.Level{bid},
		Asks:      []broker.Level{ask},
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func parseLevel(price, qty string) (broker.Level, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return broker.Level{}, fmt.Errorf("realtime: 价格格式错误 %q: %w", price, err)
	}
	level := broker.Level{Price: p.InexactFloat64()}
	if qty != "" {
		q, err := decimal.NewFromString(qty)
		if err != nil {
			return broker.Level{}, fmt.Errorf("realtime: 数量格式错误 %q: %w", qty, err)
		}
		level.Volume = q.InexactFloat64()
	}
	return level, nil
}
