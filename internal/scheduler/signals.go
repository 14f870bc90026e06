package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateSymbol 表示信号表中出现重复标的。
var ErrDuplicateSymbol = errors.New("scheduler: duplicate symbol")

// Entry 为单个标的的信号，Value 对调度器不透明。
type Entry struct {
	Symbol string
	Value  any
}

// Signals 为有序信号表，迭代顺序即调用顺序。
type Signals []Entry

// Validate 检查代码非空且不重复（大小写不敏感）。
func (s Signals) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for i, e := range s {
		symbol := strings.TrimSpace(e.Symbol)
		if symbol == "" {
			return fmt.Errorf("scheduler: 第 %d 个信号缺少代码", i)
		}
		key := strings.ToUpper(symbol)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateSymbol, symbol)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Symbols 按顺序返回全部代码。
func (s Signals) Symbols() []string {
	out := make([]string, 0, len(s))
	for _, e := range s {
		out = append(out, e.Symbol)
	}
	return out
}
