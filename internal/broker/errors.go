package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrMaintenance 表示券商处于维护状态，需要上层跳过交易。
	ErrMaintenance = errors.New("broker on maintenance")
	// ErrUnknownSymbol 表示券商不认识该代码。
	ErrUnknownSymbol = errors.New("broker: unknown symbol")
	// ErrNotSupported 表示当前实现不支持该操作。
	ErrNotSupported = errors.New("broker: operation not supported")
)

// RejectError 为券商拒单，例如可卖股数不足或资金不足。
type RejectError struct {
	Code   string
	Reason string
}

func (e *RejectError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("broker: order rejected: %s", e.Reason)
	}
	return fmt.Sprintf("broker: order rejected [%s]: %s", e.Code, e.Reason)
}

// IsRejected 判断错误链中是否包含拒单。
func IsRejected(err error) bool {
	var rejectErr *RejectError
	return errors.As(err, &rejectErr)
}
