// Package quality 对增强记录做发布前的数据质量检查：日期、战绩、标签与比分。
// error 级问题阻止发布；warning 与 info 仅供复核。
package quality

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gridnews/pkg/contract"
)

// Severity: 问题级别。
type Severity string

const (
	SevError   Severity = "error"
	SevWarning Severity = "warning"
	SevInfo    Severity = "info"
)

// 默认阈值。
const (
	DefaultMaxScore  = 60
	DefaultNailBiter = 3
	DefaultBlowout   = 21
	// 整周视图中周四/周一场次的上限与周日场次的下限。
	maxThursday = 2
	maxMonday   = 2
	minSunday   = 8
)

// Options: 零值即默认。Period/Mode 取自运行身份。
type Options struct {
	Period    int
	Mode      contract.Mode
	MaxScore  int
	NailBiter int
	Blowout   int
}

// Issue: 单个问题。ID 为比赛 id；跨比赛的问题为 "multiple"，结构问题为空。
type Issue struct {
	Severity Severity
	ID       string
	Field    string
	Message  string
}

func (i Issue) String() string {
	id := i.ID
	if id == "" {
		id = "-"
	}
	return fmt.Sprintf("[%s] game %s %s: %s", strings.ToUpper(string(i.Severity)), id, i.Field, i.Message)
}

// Report: 按检查顺序排列的问题列表。
type Report struct {
	Issues []Issue
}

// Count 返回指定级别的问题数。
func (r Report) Count(sev Severity) int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == sev {
			n++
		}
	}
	return n
}

// Of 返回指定级别的问题（保持顺序）。
func (r Report) Of(sev Severity) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == sev {
			out = append(out, is)
		}
	}
	return out
}

// Err 在存在 error 级问题时返回 *Error（Unwrap 为 ErrSchemaViolation）。
func (r Report) Err() error {
	errs := r.Of(SevError)
	if len(errs) == 0 {
		return nil
	}
	return &Error{Issues: errs}
}

// Error 汇总 error 级问题。
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.String())
	}
	return fmt.Sprintf("quality check failed: %d error(s): %s", len(e.Issues), strings.Join(parts, "; "))
}

func (e *Error) Unwrap() error { return contract.ErrSchemaViolation }

var (
	displayRe = regexp.MustCompile(`^(Mon|Tue|Wed|Thu|Fri|Sat|Sun) \d{1,2}/\d{1,2} \d{1,2}:\d{2}(AM|PM) \S+$`)
	recordRe  = regexp.MustCompile(`^\d{1,2}-\d{1,2}(-\d{1,2})?$`)
)

// Check 检查全部记录；纯函数，不修改输入。
func Check(recs []contract.AugmentedRecord, opts Options) Report {
	if opts.MaxScore <= 0 {
		opts.MaxScore = DefaultMaxScore
	}
	if opts.NailBiter <= 0 {
		opts.NailBiter = DefaultNailBiter
	}
	if opts.Blowout <= 0 {
		opts.Blowout = DefaultBlowout
	}
	c := &checker{opts: opts}
	if len(recs) == 0 {
		c.add(SevWarning, "", "structure", "no games in newsletter")
		return c.rep
	}
	c.dates(recs)
	for _, r := range recs {
		c.records(r)
		c.scores(r)
		c.tags(r)
	}
	return c.rep
}

type checker struct {
	opts Options
	rep  Report
}

func (c *checker) add(sev Severity, id, field, msg string) {
	c.rep.Issues = append(c.rep.Issues, Issue{Severity: sev, ID: id, Field: field, Message: msg})
}

// dates: 格式校验；整周视图再检查各日场次分布。缺失字段只记 info。
func (c *checker) dates(recs []contract.AugmentedRecord) {
	days := map[string]int{}
	for _, r := range recs {
		if iso := contract.FieldString(r.Fields, contract.FieldGameDateISO); iso == "" {
			c.add(SevInfo, r.ID, contract.FieldGameDateISO, "kickoff time not provided")
		} else if _, ok := parseKickoff(iso); !ok {
			c.add(SevError, r.ID, contract.FieldGameDateISO, fmt.Sprintf("invalid timestamp %q", iso))
		}
		disp := contract.FieldString(r.Fields, contract.FieldGameDateDisplay)
		switch {
		case disp == "" || disp == "N/A":
			continue
		case !displayRe.MatchString(disp):
			c.add(SevError, r.ID, contract.FieldGameDateDisplay, fmt.Sprintf("invalid date format %q", disp))
		default:
			days[disp[:3]]++
		}
	}
	if c.opts.Mode != contract.ModeAggregate || len(days) == 0 {
		return
	}
	if n := days["Thu"]; n > maxThursday {
		c.add(SevWarning, "multiple", contract.FieldGameDateDisplay, fmt.Sprintf("unusual: %d Thursday games", n))
	}
	if n := days["Mon"]; n > maxMonday {
		c.add(SevWarning, "multiple", contract.FieldGameDateDisplay, fmt.Sprintf("unusual: %d Monday games", n))
	}
	if n := days["Sun"]; n < minSunday && c.opts.Period > 1 {
		c.add(SevWarning, "multiple", contract.FieldGameDateDisplay, fmt.Sprintf("only %d Sunday games, check dates", n))
	}
}

func parseKickoff(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// record 表示一条已解析的 W-L(-T) 战绩。
type record struct{ w, l, t int }

func (r record) games() int { return r.w + r.l + r.t }

// pct 为胜率，平局计半场。
func (r record) pct() float64 {
	if r.games() == 0 {
		return 0
	}
	return (float64(r.w) + float64(r.t)/2) / float64(r.games())
}

func parseRecord(s string) (record, bool) {
	if !recordRe.MatchString(s) {
		return record{}, false
	}
	parts := strings.Split(s, "-")
	var n [3]int
	for i, p := range parts {
		n[i], _ = strconv.Atoi(p)
	}
	return record{w: n[0], l: n[1], t: n[2]}, true
}

func (c *checker) records(r contract.AugmentedRecord) {
	for _, side := range []struct{ key, team string }{
		{contract.FieldAwayRecord, contract.FieldAwayTeam},
		{contract.FieldHomeRecord, contract.FieldHomeTeam},
	} {
		s := strings.TrimSpace(contract.FieldString(r.Fields, side.key))
		if s == "" || s == "N/A" {
			c.add(SevInfo, r.ID, side.key, "record not provided for "+contract.FieldString(r.Fields, side.team))
			continue
		}
		rec, ok := parseRecord(s)
		if !ok {
			c.add(SevError, r.ID, side.key, fmt.Sprintf("invalid record format %q", s))
			continue
		}
		// 球队场次不会多于已进行的周数
		if c.opts.Period > 1 && rec.games() > c.opts.Period {
			c.add(SevWarning, r.ID, side.key, fmt.Sprintf("record %s has %d games but it is only period %d", s, rec.games(), c.opts.Period))
		}
	}
}

func scores(r contract.AugmentedRecord) (away, home int, ok bool) {
	a, aok := contract.FieldInt(r.Fields, contract.FieldAwayScore)
	h, hok := contract.FieldInt(r.Fields, contract.FieldHomeScore)
	return a, h, aok && hok
}

func (c *checker) scores(r contract.AugmentedRecord) {
	a, h, ok := scores(r)
	if !ok {
		return
	}
	switch {
	case a < 0 || h < 0:
		c.add(SevError, r.ID, "scores", fmt.Sprintf("negative score %d-%d", a, h))
		return
	case a > c.opts.MaxScore || h > c.opts.MaxScore:
		c.add(SevWarning, r.ID, "scores", fmt.Sprintf("unusually high score %d-%d", a, h))
	}
	if a == h {
		c.add(SevWarning, r.ID, "scores", fmt.Sprintf("tied game %d-%d, verify result", a, h))
	}
}

// tags: 标签需与比分和战绩相符。
func (c *checker) tags(r contract.AugmentedRecord) {
	a, h, ok := scores(r)
	if !ok {
		return
	}
	has := make(map[string]bool, len(r.Tags))
	for _, t := range r.Tags {
		has[t] = true
	}
	diff := a - h
	if diff < 0 {
		diff = -diff
	}
	if has["nail-biter"] && diff > c.opts.NailBiter {
		c.add(SevWarning, r.ID, "tags", fmt.Sprintf("'nail-biter' tag but %d-point difference", diff))
	}
	if has["blowout"] && diff < c.opts.Blowout {
		c.add(SevWarning, r.ID, "tags", fmt.Sprintf("'blowout' tag but only %d-point difference", diff))
	}
	if !has["nail-biter"] && diff <= c.opts.NailBiter && diff > 0 {
		c.add(SevInfo, r.ID, "tags", fmt.Sprintf("%d-point game might deserve 'nail-biter'", diff))
	}
	if !has["upset"] || diff == 0 {
		return
	}
	ar, aok := parseRecord(contract.FieldString(r.Fields, contract.FieldAwayRecord))
	hr, hok := parseRecord(contract.FieldString(r.Fields, contract.FieldHomeRecord))
	if !aok || !hok {
		return
	}
	winner, loser := ar, hr
	if h > a {
		winner, loser = hr, ar
	}
	if winner.pct() > loser.pct() {
		c.add(SevWarning, r.ID, "tags", "'upset' tag but the winner had the better record")
	}
}

// Summary 返回 "N errors, N warnings, N info"。
func (r Report) Summary() string {
	return fmt.Sprintf("%d errors, %d warnings, %d info", r.Count(SevError), r.Count(SevWarning), r.Count(SevInfo))
}

// Sorted 返回按级别（error → warning → info）稳定排序的副本。
func (r Report) Sorted() []Issue {
	out := append([]Issue(nil), r.Issues...)
	rank := map[Severity]int{SevError: 0, SevWarning: 1, SevInfo: 2}
	sort.SliceStable(out, func(i, j int) bool { return rank[out[i].Severity] < rank[out[j].Severity] })
	return out
}
