package paper

import (
	"context"
	"errors"
	"testing"
	"time"

	"ezyquant-execute/internal/broker"
)

var testAccount = broker.Account{Kind: broker.KindMarketRep, Number: "0001"}

func newTestBroker() *Broker {
	b := New(10000, nil, WithPollInterval(10*time.Millisecond))
	b.SetQuote(broker.Quote{Symbol: "PTT", Last: 10, Bid: 9.95, Ask: 10})
	return b
}

func TestPlaceOrder_BuyFillsAtAsk(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	order, err := b.PlaceOrder(ctx, testAccount, broker.PlaceOrderRequest{
		Symbol: "PTT", Side: broker.SideBuy, Volume: 300, Price: 10.1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != statusMatched || order.CanCancel {
		t.Fatalf("expected immediate fill, got %+v", order)
	}
	if order.OrderNo == "" {
		t.Fatalf("expected order number")
	}

	info, err := b.GetAccountInfo(ctx, testAccount)
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	if info.CashBalance != 7000 {
		t.Fatalf("expected cash 7000, got %v", info.CashBalance)
	}
	if info.EquityBalance != 10000 {
		t.Fatalf("expected equity 10000, got %v", info.EquityBalance)
	}

	portfolio, err := b.GetPortfolio(ctx, testAccount)
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	pos, ok := portfolio.Find("ptt")
	if !ok || pos.Volume != 300 || pos.AveragePrice != 10 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if portfolio.TotalMarketValue != 3000 {
		t.Fatalf("expected market value 3000, got %v", portfolio.TotalMarketValue)
	}
}

func TestPlaceOrder_RestsAndFillsOnQuote(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	order, err := b.PlaceOrder(ctx, testAccount, broker.PlaceOrderRequest{
		Symbol: "PTT", Side: broker.SideBuy, Volume: 100, Price: 9.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !order.CanCancel {
		t.Fatalf("expected resting order")
	}

	info, _ := b.GetAccountInfo(ctx, testAccount)
	if info.LineAvailable != 9050 {
		t.Fatalf("expected line 9050 after reserve, got %v", info.LineAvailable)
	}

	open, _ := b.GetOpenOrders(ctx, testAccount, "PTT")
	if len(open) != 1 {
		t.Fatalf("expected 1 open order, got %d", len(open))
	}

	b.SetQuote(broker.Quote{Symbol: "PTT", Last: 9.5, Bid: 9.45, Ask: 9.5})

	open, _ = b.GetOpenOrders(ctx, testAccount, "")
	if len(open) != 0 {
		t.Fatalf("expected order filled, still open: %+v", open)
	}
	info, _ = b.GetAccountInfo(ctx, testAccount)
	if info.CashBalance != 9050 || info.LineAvailable != 9050 {
		t.Fatalf("unexpected account after fill: %+v", info)
	}
}

func TestPlaceOrder_Rejects(t *testing.T) {
	b := newTestBroker()
	b.SetPosition("PTT", 100, 9)
	ctx := context.Background()

	tests := []struct {
		name string
		req  broker.PlaceOrderRequest
		code string
	}{
		{"zero volume", broker.PlaceOrderRequest{Symbol: "PTT", Side: broker.SideBuy, Volume: 0, Price: 10}, "invalid_volume"},
		{"no cash", broker.PlaceOrderRequest{Symbol: "PTT", Side: broker.SideBuy, Volume: 2000, Price: 10}, "insufficient_cash"},
		{"no shares", broker.PlaceOrderRequest{Symbol: "PTT", Side: broker.SideSell, Volume: 200, Price: 10}, "insufficient_volume"},
		{"unknown position", broker.PlaceOrderRequest{Symbol: "AOT", Side: broker.SideSell, Volume: 100, Price: 60}, "insufficient_volume"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.PlaceOrder(ctx, testAccount, tt.req)
			var rejectErr *broker.RejectError
			if !errors.As(err, &rejectErr) {
				t.Fatalf("expected reject, got %v", err)
			}
			if rejectErr.Code != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, rejectErr.Code)
			}
		})
	}
}

func TestPlaceOrder_SellHoldReducesAvailable(t *testing.T) {
	b := newTestBroker()
	b.SetPosition("PTT", 300, 9)
	ctx := context.Background()

	if _, err := b.PlaceOrder(ctx, testAccount, broker.PlaceOrderRequest{
		Symbol: "PTT", Side: broker.SideSell, Volume: 200, Price: 11,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	portfolio, _ := b.GetPortfolio(ctx, testAccount)
	pos, _ := portfolio.Find("PTT")
	if pos.AvailableVolume != 100 {
		t.Fatalf("expected available 100, got %v", pos.AvailableVolume)
	}

	_, err := b.PlaceOrder(ctx, testAccount, broker.PlaceOrderRequest{
		Symbol: "PTT", Side: broker.SideSell, Volume: 200, Price: 11,
	})
	if !broker.IsRejected(err) {
		t.Fatalf("expected reject for held shares, got %v", err)
	}
}

func TestCancelOrders_PartialOutcomes(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	resting, err := b.PlaceOrder(ctx, testAccount, broker.PlaceOrderRequest{
		Symbol: "PTT", Side: broker.SideBuy, Volume: 100, Price: 9,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	filled, err := b.PlaceOrder(ctx, testAccount, broker.PlaceOrderRequest{
		Symbol: "PTT", Side: broker.SideBuy, Volume: 100, Price: 10,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	result, err := b.CancelOrders(ctx, testAccount, []string{resting.OrderNo, filled.OrderNo, "missing"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := result.Cancelled(); len(got) != 1 || got[0] != resting.OrderNo {
		t.Fatalf("unexpected cancelled list %v", got)
	}
	if result.Err() == nil {
		t.Fatalf("expected combined error for failed cancels")
	}

	info, _ := b.GetAccountInfo(ctx, testAccount)
	if info.LineAvailable != info.CashBalance {
		t.Fatalf("expected reserve released, got %+v", info)
	}
}

func TestGetQuote_UnknownSymbol(t *testing.T) {
	b := newTestBroker()
	if _, err := b.GetQuote(context.Background(), "AOT"); !errors.Is(err, broker.ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
	if _, err := b.GetCandles(context.Background(), "PTT", "1d", 10); !errors.Is(err, broker.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

func TestValidatesAccount(t *testing.T) {
	b := newTestBroker()
	bad := broker.Account{Kind: broker.KindInvestor, Number: "0001"}
	if _, err := b.GetPortfolio(context.Background(), bad); err == nil {
		t.Fatalf("expected error for investor without PIN")
	}
}

func TestSubscribeBidAsk(t *testing.T) {
	b := newTestBroker()
	sub, err := b.SubscribeBidAsk(context.Background(), "PTT")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	bidAsk, ok := sub.Latest()
	if !ok {
		t.Fatalf("expected first snapshot")
	}
	if bidAsk.BestBid() != 9.95 || bidAsk.BestAsk() != 10 {
		t.Fatalf("unexpected bid/ask %+v", bidAsk)
	}

	if _, err := b.SubscribeBidAsk(context.Background(), "AOT"); err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
}
