package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay 为不带日期的时刻。
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay 解析 HH:MM 或 HH:MM:SS。
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("scheduler: 无法解析时刻 %q", s)
}

// On 返回 day 所在日期、day 时区下的该时刻。
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, t.Second, 0, day.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// SecondsUntil 返回距 target 的秒数，已过去时为负。
func SecondsUntil(now, target time.Time) float64 {
	return target.Sub(now).Seconds()
}

// SleepUntil 睡眠到 target 或信号被设置。已过去的时刻不睡眠。
// 返回 false 表示被信号打断。
func SleepUntil(stop *Signal, now, target time.Time) bool {
	delay := target.Sub(now)
	if delay <= 0 {
		return !stop.IsSet()
	}
	return !stop.Wait(delay)
}
