package broker

import (
	"errors"
	"fmt"
	"strings"
)

// AccountKind 区分投资者账户与经纪人代客账户。
type AccountKind string

const (
	KindInvestor  AccountKind = "investor"
	KindMarketRep AccountKind = "market_rep"
)

// ParseAccountKind 解析账户类型。
func ParseAccountKind(s string) (AccountKind, error) {
	switch AccountKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindInvestor, "":
		return KindInvestor, nil
	case KindMarketRep, "marketrep":
		return KindMarketRep, nil
	default:
		return "", fmt.Errorf("broker: 未知账户类型 %q", s)
	}
}

// Account 为下单所用的账户身份。投资者下单需要 PIN，
// 经纪人账户不需要 PIN，但每个请求都必须显式携带账号。
type Account struct {
	Kind   AccountKind
	Number string
	PIN    string
}

// Validate 在构造上下文时校验一次。
func (a Account) Validate() error {
	if a.Number == "" {
		return errors.New("broker: 账号不能为空")
	}
	switch a.Kind {
	case KindInvestor:
		if a.PIN == "" {
			return errors.New("broker: 投资者账户需要 PIN")
		}
	case KindMarketRep:
	default:
		return fmt.Errorf("broker: 未知账户类型 %q", a.Kind)
	}
	return nil
}

// RequiresPIN 报告下单/撤单是否需要附带 PIN。
func (a Account) RequiresPIN() bool {
	return a.Kind == KindInvestor
}

// String 不输出 PIN。
func (a Account) String() string {
	return fmt.Sprintf("%s:%s", a.Kind, a.Number)
}
