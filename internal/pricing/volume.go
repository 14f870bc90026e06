package pricing

import (
	"fmt"
	"math"
	"strings"
)

// LotSize 为最小交易单位（股）。
const LotSize = 100

const roundEpsilon = 1e-8

// RoundMode 控制取整方向。
type RoundMode string

const (
	RoundDown    RoundMode = "down"
	RoundUp      RoundMode = "up"
	RoundNearest RoundMode = "nearest"
)

// ParseRoundMode 解析取整模式，大小写不敏感。
func ParseRoundMode(s string) (RoundMode, error) {
	switch RoundMode(strings.ToLower(strings.TrimSpace(s))) {
	case RoundDown:
		return RoundDown, nil
	case RoundUp:
		return RoundUp, nil
	case RoundNearest, "":
		return RoundNearest, nil
	default:
		return "", fmt.Errorf("pricing: 不支持的取整模式 %q", s)
	}
}

// RoundLot 将股数按 100 股一手取整。
func RoundLot(volume float64, mode RoundMode) int64 {
	switch mode {
	case RoundDown:
		return RoundDownLot(volume)
	case RoundUp:
		return RoundUpLot(volume)
	default:
		if floorMod(volume, LotSize) >= LotSize/2 {
			return RoundUpLot(volume)
		}
		return RoundDownLot(volume)
	}
}

// RoundDownLot 向下取整到 100 的倍数，epsilon 用于吸收浮点误差。
func RoundDownLot(volume float64) int64 {
	return int64(math.Floor((volume+roundEpsilon)/LotSize) * LotSize)
}

// RoundUpLot 向上取整到 100 的倍数，恰好整手时原样返回。
func RoundUpLot(volume float64) int64 {
	if floorMod(volume, LotSize) == 0 {
		return int64(volume)
	}
	return RoundDownLot(volume) + LotSize
}

// RoundDownEven 向下取整到偶数。
func RoundDownEven(f float64) float64 {
	return math.Floor((f+roundEpsilon)/2) * 2
}

// RoundUpEven 向上取整到偶数。
func RoundUpEven(f float64) float64 {
	if floorMod(f, 2) == 0 {
		return f
	}
	return RoundDownEven(f) + 2
}

// floorMod 与除数同号的取模。
func floorMod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r != 0 && (r < 0) != (m < 0) {
		r += m
	}
	return r
}
