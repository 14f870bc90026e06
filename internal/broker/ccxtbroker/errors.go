package ccxtbroker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"ezyquant-execute/internal/broker"
)

// IsRetryable 判断错误是否为可重试的网络类错误。
func IsRetryable(err error) bool {
	_, retry := classifyError(err)
	return retry
}

// classifyError 将 ccxt 错误映射为 broker 的错误语义，并给出是否重试。
func classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		message := strings.TrimSpace(ccxtErr.Message)
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", broker.ErrMaintenance, message), false
		case ccxt.BadSymbolErrType:
			return fmt.Errorf("%w: %s", broker.ErrUnknownSymbol, message), false
		case ccxt.InsufficientFundsErrType:
			return &broker.RejectError{Code: "insufficient_funds", Reason: message}, false
		case ccxt.InvalidOrderErrType:
			return &broker.RejectError{Code: "invalid_order", Reason: message}, false
		case ccxt.OrderNotFoundErrType:
			return &broker.RejectError{Code: "order_not_found", Reason: message}, false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}
