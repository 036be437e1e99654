// Package period 将日历日期映射到赛季周次。
package period

import (
	"fmt"
	"strings"
	"time"

	"gridnews/pkg/contract"
)

// Resolve 计算 date 所在的周次：floor(days/7)+1，夹紧到 [1, count]。
// 纯函数且全域有定义：早于 seasonStart 返回 1，远超赛季返回 count。
// 日期按各自时区截断到年月日后计算天数，不做时区换算；调用方负责统一参考时区。
func Resolve(date, seasonStart time.Time, count int) int {
	if count < 1 {
		return 1
	}
	days := daysBetween(seasonStart, date)
	if days < 0 {
		return 1
	}
	p := days/7 + 1
	if p > count {
		return count
	}
	return p
}

// daysBetween 以日历日计算 to-from（可为负）。
func daysBetween(from, to time.Time) int {
	a := civil(from)
	b := civil(to)
	return int(b.Sub(a).Hours() / 24)
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Strategy: 周次策略（有限封闭集合，由配置枚举选择）。
type Strategy interface {
	Period(date time.Time) int
}

// DateBased 以赛季首日为锚点按日期推算。
type DateBased struct {
	SeasonStart time.Time
	Count       int
}

func (s DateBased) Period(date time.Time) int { return Resolve(date, s.SeasonStart, s.Count) }

// Manual 固定周次（补录/回放场景），同样夹紧到 [1, Count]。
type Manual struct {
	Fixed int
	Count int
}

func (s Manual) Period(time.Time) int {
	switch {
	case s.Count < 1 || s.Fixed < 1:
		return 1
	case s.Fixed > s.Count:
		return s.Count
	default:
		return s.Fixed
	}
}

// 策略名。
const (
	KindDate   = "date"
	KindManual = "manual"
)

// New 按配置枚举构造策略；未知名称返回 ErrInvalidInput。
func New(kind string, seasonStart time.Time, count, manual int) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindDate:
		return DateBased{SeasonStart: seasonStart, Count: count}, nil
	case KindManual:
		if manual < 1 || manual > count {
			return nil, fmt.Errorf("manual period %d outside [1,%d]: %w", manual, count, contract.ErrInvalidInput)
		}
		return Manual{Fixed: manual, Count: count}, nil
	default:
		return nil, contract.NewInputError("period_strategy", kind, "want date|manual")
	}
}
