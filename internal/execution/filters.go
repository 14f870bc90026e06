package execution

import (
	"math"

	"ezyquant-execute/internal/broker"
)

const priceTolerance = 1e-9

// OrderFilter 选择需要撤销的委托。
type OrderFilter func(broker.Order) bool

// All 匹配全部委托。
func All(broker.Order) bool { return true }

// BySide 按方向匹配。
func BySide(side broker.Side) OrderFilter {
	return func(o broker.Order) bool { return o.Side == side }
}

// AtPrice 匹配委托价等于 price。
func AtPrice(price float64) OrderFilter {
	return func(o broker.Order) bool { return math.Abs(o.Price-price) < priceTolerance }
}

// Below 匹配委托价低于 price。
func Below(price float64) OrderFilter {
	return func(o broker.Order) bool { return o.Price < price-priceTolerance }
}

// Above 匹配委托价高于 price。
func Above(price float64) OrderFilter {
	return func(o broker.Order) bool { return o.Price > price+priceTolerance }
}
