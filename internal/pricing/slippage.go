package pricing

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrInvalidPrice 表示滑点计算收到了非正价格。
var ErrInvalidPrice = errors.New("pricing: price should be greater than 0")

type slipKey struct {
	price float64
	steps int
	up    bool
}

var slipCache sync.Map

// BuySlip 滑点越大价格越高，买单越容易成交。
func BuySlip(price float64, steps int) (float64, error) {
	return SlipUp(price, steps)
}

// SellSlip 滑点越大价格越低，卖单越容易成交。
func SellSlip(price float64, steps int) (float64, error) {
	return SlipDown(price, -steps)
}

// SlipUp 先将价格向上取整到有效报价，再移动 steps 档。
func SlipUp(price float64, steps int) (float64, error) {
	return slip(price, steps, true)
}

// SlipDown 先将价格向下取整到有效报价，再移动 steps 档。
func SlipDown(price float64, steps int) (float64, error) {
	return slip(price, steps, false)
}

func slip(price float64, steps int, up bool) (float64, error) {
	if math.IsNaN(price) {
		return price, nil
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidPrice, price)
	}

	key := slipKey{price: price, steps: steps, up: up}
	if cached, ok := slipCache.Load(key); ok {
		return cached.(float64), nil
	}

	result := resolve(price, steps, up)
	slipCache.Store(key, result)
	return result, nil
}

func resolve(price float64, steps int, up bool) float64 {
	if price > TabulatedLimit {
		base := RoundDownEven(price)
		if up {
			base = RoundUpEven(price)
		}
		return base + HighBandStep*float64(steps)
	}

	table := TickTable()
	var idx int
	if up {
		// 第一个 >= price 的位置
		idx = sort.SearchFloat64s(table, price) + steps
	} else {
		// 第一个 > price 的位置，再退一格
		idx = sort.Search(len(table), func(i int) bool { return table[i] > price }) + steps - 1
	}
	return tickAt(table, idx)
}
