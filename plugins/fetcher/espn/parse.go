package espn

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"gridnews/pkg/contract"
)

type scoreboard struct {
	Events []event `json:"events"`
}

type event struct {
	ID           string        `json:"id"`
	Date         string        `json:"date"`
	Status       *status       `json:"status"`
	Competitions []competition `json:"competitions"`
}

type status struct {
	Type struct {
		Completed bool   `json:"completed"`
		State     string `json:"state"`
	} `json:"type"`
}

type competition struct {
	Competitors []competitor `json:"competitors"`
	Venue       struct {
		FullName string `json:"fullName"`
	} `json:"venue"`
	Broadcasts []struct {
		Names []string `json:"names"`
	} `json:"broadcasts"`
}

type competitor struct {
	HomeAway string          `json:"homeAway"`
	Score    json.RawMessage `json:"score"`
	Team     struct {
		DisplayName  string `json:"displayName"`
		Abbreviation string `json:"abbreviation"`
	} `json:"team"`
	Records []struct {
		Summary string `json:"summary"`
	} `json:"records"`
}

type summary struct {
	Article *struct {
		Story string `json:"story"`
	} `json:"article"`
}

// completed: 缺少状态时按已完赛处理。
func (e event) completed() bool {
	return e.Status == nil || e.Status.Type.Completed || e.Status.Type.State == "post"
}

const na = "N/A"

// parse 把单个 event 转为 BaseRecord；返回开赛时间供单日过滤。
func (f *Fetcher) parse(ev event) (contract.BaseRecord, time.Time, bool) {
	if ev.ID == "" || len(ev.Competitions) == 0 {
		return contract.BaseRecord{}, time.Time{}, false
	}
	when, err := parseTime(ev.Date)
	if err != nil {
		return contract.BaseRecord{}, time.Time{}, false
	}
	c := ev.Competitions[0]
	home, away, ok := sides(c.Competitors)
	if !ok {
		return contract.BaseRecord{}, time.Time{}, false
	}
	fields := map[string]any{
		contract.FieldGameID:          ev.ID,
		contract.FieldAwayTeam:        away.Team.DisplayName,
		contract.FieldAwayAbbr:        away.Team.Abbreviation,
		contract.FieldAwayRecord:      record(away),
		contract.FieldHomeTeam:        home.Team.DisplayName,
		contract.FieldHomeAbbr:        home.Team.Abbreviation,
		contract.FieldHomeRecord:      record(home),
		contract.FieldGameDateISO:     when.UTC().Format(time.RFC3339),
		contract.FieldGameDateDisplay: when.In(f.loc).Format("Mon 1/2 3:04PM") + " " + zoneAbbr(f.loc),
		contract.FieldRecapURL:        "https://www.espn.com/nfl/recap?gameId=" + ev.ID,
		contract.FieldStadium:         na,
		contract.FieldTVNetwork:       na,
	}
	if n, ok := score(away.Score); ok {
		fields[contract.FieldAwayScore] = n
	}
	if n, ok := score(home.Score); ok {
		fields[contract.FieldHomeScore] = n
	}
	if c.Venue.FullName != "" {
		fields[contract.FieldStadium] = c.Venue.FullName
	}
	if len(c.Broadcasts) > 0 && len(c.Broadcasts[0].Names) > 0 {
		fields[contract.FieldTVNetwork] = c.Broadcasts[0].Names[0]
	}
	return contract.BaseRecord{ID: ev.ID, Fields: fields}, when, true
}

// sides 按 homeAway 区分主客；缺失时沿用接口顺序（主队在前）。
func sides(cs []competitor) (home, away competitor, ok bool) {
	if len(cs) != 2 {
		return competitor{}, competitor{}, false
	}
	home, away = cs[0], cs[1]
	if cs[0].HomeAway == "away" || cs[1].HomeAway == "home" {
		home, away = cs[1], cs[0]
	}
	return home, away, true
}

func record(c competitor) string {
	if len(c.Records) > 0 && c.Records[0].Summary != "" {
		return c.Records[0].Summary
	}
	return na
}

// score 兼容字符串与数字两种形态。
func score(raw json.RawMessage) (int, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// parseTime 接受 RFC3339 与 ESPN 的无秒格式（2025-10-30T20:15Z）。
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04Z07:00", s)
}

// zoneAbbr: 美东时区统一显示 ET，其余使用 IANA 名称。
func zoneAbbr(loc *time.Location) string {
	switch loc.String() {
	case "America/New_York", "US/Eastern":
		return "ET"
	default:
		return loc.String()
	}
}

// StripHTML 提取 HTML 片段中的可见文本，空白折叠为单个空格。
func StripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var buf bytes.Buffer
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF 或解析错误都以已收集文本收尾
			return strings.Join(strings.Fields(buf.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); isHidden(name) {
				skip++
			}
			buf.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); isHidden(name) && skip > 0 {
				skip--
			}
			buf.WriteByte(' ')
		case html.SelfClosingTagToken:
			buf.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				buf.Write(z.Text())
			}
		}
	}
}

func isHidden(tag []byte) bool {
	switch string(tag) {
	case "script", "style", "noscript":
		return true
	}
	return false
}
