package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// 比赛记录 Fields 的键名（Stage 1 写入，Stage 2/3 读取）。
const (
	FieldGameID          = "game_id"
	FieldAwayTeam        = "away_team"
	FieldAwayAbbr        = "away_abbr"
	FieldAwayScore       = "away_score"
	FieldAwayRecord      = "away_record"
	FieldHomeTeam        = "home_team"
	FieldHomeAbbr        = "home_abbr"
	FieldHomeScore       = "home_score"
	FieldHomeRecord      = "home_record"
	FieldGameDateISO     = "game_date_iso"
	FieldGameDateDisplay = "game_date_display"
	FieldRecapURL        = "recap_url"
	FieldStadium         = "stadium"
	FieldTVNetwork       = "tv_network"
)

// FieldString 读取字符串字段；非字符串的标量按 %v 输出，缺失返回空串。
func FieldString(f map[string]any, key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FieldInt 读取整数字段。兼容 JSON 往返后的 float64、json.Number 与数字字符串。
func FieldInt(f map[string]any, key string) (int, bool) {
	switch v := f[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}
