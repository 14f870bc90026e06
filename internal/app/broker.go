package app

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ezyquant-execute/internal/broker"
	"ezyquant-execute/internal/broker/ccxtbroker"
	"ezyquant-execute/internal/broker/paper"
	"ezyquant-execute/internal/config"
)

// NewBroker 按 broker.driver 创建券商客户端。
func NewBroker(cfg *config.Config, logger *zap.Logger) (broker.Client, error) {
	symbols := make([]string, 0, len(cfg.Signals))
	for _, s := range cfg.Signals {
		symbols = append(symbols, s.Symbol)
	}

	switch strings.ToLower(cfg.Broker.Driver) {
	case "ccxt":
		client, err := ccxtbroker.NewClient(cfg.Broker, cfg.Realtime, symbols, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "paper", "":
		opts := []paper.Option{paper.WithPollInterval(cfg.Realtime.PollInterval)}
		if cfg.Paper.MarketData {
			market, err := ccxtbroker.NewClient(cfg.Broker, cfg.Realtime, symbols, logger)
			if err != nil {
				return nil, err
			}
			opts = append(opts, paper.WithMarketData(market))
		}
		pb := paper.New(cfg.Paper.InitialCash, logger, opts...)
		for _, q := range cfg.Paper.Quotes {
			pb.SetQuote(broker.Quote{Symbol: q.Symbol, Last: q.Last, Bid: q.Bid, Ask: q.Ask})
		}
		return pb, nil
	default:
		return nil, fmt.Errorf("未知券商驱动 %q", cfg.Broker.Driver)
	}
}
