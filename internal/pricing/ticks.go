package pricing

import (
	"sync"

	"github.com/shopspring/decimal"
)

// band 描述一个价格区间 [start, stop) 及其最小变动价位。
type band struct {
	start string
	stop  string
	step  string
}

var bands = []band{
	{start: "0.01", stop: "2", step: "0.01"},
	{start: "2", stop: "5", step: "0.02"},
	{start: "5", stop: "10", step: "0.05"},
	{start: "10", stop: "25", step: "0.1"},
	{start: "25", stop: "100", step: "0.25"},
	{start: "100", stop: "200", step: "0.5"},
	{start: "200", stop: "400", step: "1"},
	{start: "400", stop: "800", step: "2"},
}

const (
	// TabulatedLimit 以上的价格不再查表，按 2 的步长直接计算。
	TabulatedLimit = 750.0
	// HighBandStep 为 400 以上价格的最小变动价位。
	HighBandStep = 2.0
)

var (
	tickOnce  sync.Once
	tickTable []float64
)

// TickTable 返回全部有效报价，严格递增，只构建一次。
// 返回的切片为共享只读数据，调用方不得修改。
func TickTable() []float64 {
	tickOnce.Do(func() {
		tickTable = buildTickTable()
	})
	return tickTable
}

func buildTickTable() []float64 {
	prices := make([]float64, 0, 1024)
	for _, b := range bands {
		start := decimal.RequireFromString(b.start)
		stop := decimal.RequireFromString(b.stop)
		step := decimal.RequireFromString(b.step)
		for v := start; v.LessThan(stop); v = v.Add(step) {
			prices = append(prices, v.Round(2).InexactFloat64())
		}
	}
	return prices
}

// tickAt 返回索引处的价格，超出表尾时按最高档步长继续外推。
func tickAt(table []float64, idx int) float64 {
	if idx < 0 {
		idx = 0
	}
	last := len(table) - 1
	if idx <= last {
		return table[idx]
	}
	return table[last] + HighBandStep*float64(idx-last)
}
