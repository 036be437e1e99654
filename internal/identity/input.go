package identity

import (
	"strconv"
	"strings"
	"time"

	"gridnews/pkg/contract"
)

// 允许的年份窗口。
const (
	minYear = 2020
	maxYear = 2035
)

// ParseDate 校验命令行日期（YYYYMMDD）。失败时返回 field=date 的 InputError。
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != 8 || !allDigits(s) {
		return time.Time{}, contract.NewInputError("date", s, "invalid date format, want YYYYMMDD")
	}
	y, _ := strconv.Atoi(s[0:4])
	m, _ := strconv.Atoi(s[4:6])
	d, _ := strconv.Atoi(s[6:8])
	if y < minYear || y > maxYear {
		return time.Time{}, contract.NewInputError("date", s, "year must be between 2020 and 2035")
	}
	if m < 1 || m > 12 {
		return time.Time{}, contract.NewInputError("date", s, "invalid month")
	}
	if d < 1 || d > 31 {
		return time.Time{}, contract.NewInputError("date", s, "invalid day")
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date 会把 2/30 归一到 3/2，借此识别不存在的日期
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, contract.NewInputError("date", s, "date does not exist")
	}
	return t, nil
}

// ParseMode 将命令行 mode（day|week）映射为 Mode。
func ParseMode(s string) (contract.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "":
		return contract.ModeSub, nil
	case "week":
		return contract.ModeAggregate, nil
	default:
		return "", contract.NewInputError("mode", s, "want day|week")
	}
}

// New 组装身份：sub 模式以日期为 SubKey，aggregate 模式不带 SubKey。
func New(year, period int, mode contract.Mode, date time.Time) contract.RunIdentity {
	id := contract.RunIdentity{Year: year, Period: period, Mode: mode}
	if mode == contract.ModeSub {
		id.SubKey = SubKeyOf(date)
	}
	return id
}
