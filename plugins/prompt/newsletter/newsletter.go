package newsletter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"unicode/utf8"

	"gridnews/pkg/contract"
)

// Options 为“比赛周报摘要” PromptBuilder 的配置。
// InlineSystemTemplate / SystemTemplatePath 二选一，均为空时使用内置默认模板。
type Options struct {
	InlineSystemTemplate string `json:"inline_system_template"`
	SystemTemplatePath   string `json:"system_template_path"`
	// PeriodName: user 消息中的周期称呼，默认 "Week"。
	PeriodName string `json:"period_name"`
	// MaxSummaryChars: 写入模板的摘要长度上限，默认 1500。
	MaxSummaryChars int `json:"max_summary_chars"`
	// MaxNarrativeBytes: 单场战报截断上限（字节），0 表示不截断。
	MaxNarrativeBytes int `json:"max_narrative_bytes"`
	// Tags: 允许的标签词表；为空使用内置五个标签。
	Tags []string `json:"tags"`
}

// DefaultTags 与抽取器的封闭词表一致。
var DefaultTags = []string{"upset", "nail-biter", "comeback", "blowout", "game-of-week"}

// Builder: 以 BaseRecordSet 构造 ChatPrompt（system+user）。
// 运行期不做 I/O；模板在构造期解析并渲染。
type Builder struct {
	sys        string
	periodName string
	maxNarr    int
}

type templateData struct {
	Tags            []string
	MaxSummaryChars int
}

// New 创建 PromptBuilder。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.PeriodName == "" {
		o.PeriodName = "Week"
	}
	if o.MaxSummaryChars <= 0 {
		o.MaxSummaryChars = 1500
	}
	if len(o.Tags) == 0 {
		o.Tags = DefaultTags
	}
	if o.MaxNarrativeBytes < 0 {
		return nil, contract.NewInputError("max_narrative_bytes", strconv.Itoa(o.MaxNarrativeBytes), "must be >= 0")
	}

	// 加载 system 模板（构造期 I/O）。
	src := defaultSystemTemplate
	if o.InlineSystemTemplate != "" {
		src = o.InlineSystemTemplate
	} else if o.SystemTemplatePath != "" {
		b, err := os.ReadFile(o.SystemTemplatePath)
		if err != nil {
			return nil, contract.NewInputError("system_template_path", o.SystemTemplatePath, err.Error())
		}
		src = string(b)
	}
	tpl, err := template.New("system").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, contract.NewInputError("system_template", "", "parse: "+err.Error())
	}
	var sb bytes.Buffer
	if err := tpl.Execute(&sb, templateData{Tags: o.Tags, MaxSummaryChars: o.MaxSummaryChars}); err != nil {
		return nil, fmt.Errorf("system template render: %w", err)
	}
	return &Builder{sys: sb.String(), periodName: o.PeriodName, maxNarr: o.MaxNarrativeBytes}, nil
}

// System 返回渲染后的 system 提示词。
func (b *Builder) System() string { return b.sys }

// Build: 基于记录集构造 ChatPrompt（system+user）。
func (b *Builder) Build(ctx context.Context, set contract.BaseRecordSet) (contract.Prompt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if len(set.Records) == 0 {
		return nil, fmt.Errorf("prompt: %w: empty record set", contract.ErrInvariantViolation)
	}

	var games bytes.Buffer
	games.Grow(4096 * len(set.Records))
	for i, r := range set.Records {
		if r.ID == "" {
			return nil, fmt.Errorf("prompt: %w: record %d without id", contract.ErrInvariantViolation, i)
		}
		writeGame(&games, i+1, r, b.maxNarr)
	}

	var uw bytes.Buffer
	uw.Grow(games.Len() + 512)
	writeHeader(&uw, len(set.Records), b.periodName, set.Identity.Period)
	uw.Write(games.Bytes())
	uw.WriteString(rule)
	uw.WriteByte('\n')

	return contract.ChatPrompt([]contract.Message{
		{Role: "system", Content: b.sys},
		{Role: "user", Content: uw.String()},
	}), nil
}

// EstimateOverheadTokens: 估算与记录无关的固定提示词开销（system + user 头尾）。
func (b *Builder) EstimateOverheadTokens(estimate contract.TokenEstimator) int {
	if estimate == nil {
		return 0
	}
	var fixed bytes.Buffer
	writeHeader(&fixed, 0, b.periodName, 0)
	fixed.WriteString(rule)
	return estimate(b.sys) + estimate(fixed.String())
}

var rule = strings.Repeat("-", 70) + "\n"

func writeHeader(w *bytes.Buffer, n int, periodName string, period int) {
	fmt.Fprintf(w, "Here are %d NFL games from %s %d. For each game, the metadata (scores, records, teams, etc.) is already provided from ESPN's API.\n\n", n, periodName, period)
	w.WriteString("Your task: Generate ONLY the summary and badges for each game.\n\n")
	w.WriteString(rule)
}

// writeGame 输出单场比赛块：GAME i: id + 元数据 + 战报全文。
func writeGame(w *bytes.Buffer, i int, r contract.BaseRecord, maxNarr int) {
	f := r.Fields
	s := func(k string) string { return contract.FieldString(f, k) }
	date := s(contract.FieldGameDateDisplay)
	if date == "" {
		date = s(contract.FieldGameDateISO)
	}
	fmt.Fprintf(w, "\nGAME %d: %s\n", i, r.ID)
	fmt.Fprintf(w, "Away Team: %s (%s) - %s - Record: %s\n", s(contract.FieldAwayTeam), s(contract.FieldAwayAbbr), s(contract.FieldAwayScore), s(contract.FieldAwayRecord))
	fmt.Fprintf(w, "Home Team: %s (%s) - %s - Record: %s\n", s(contract.FieldHomeTeam), s(contract.FieldHomeAbbr), s(contract.FieldHomeScore), s(contract.FieldHomeRecord))
	fmt.Fprintf(w, "Date: %s\n", date)
	fmt.Fprintf(w, "Stadium: %s\n", s(contract.FieldStadium))
	fmt.Fprintf(w, "TV Network: %s\n", s(contract.FieldTVNetwork))
	w.WriteString("\nRECAP ARTICLE:\n")
	narr := strings.TrimSpace(r.Narrative)
	if narr == "" {
		narr = "(no recap available)"
	}
	w.WriteString(clip(narr, maxNarr))
	w.WriteByte('\n')
}

// clip 按字节上限截断，不切断 UTF-8 字符。
func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// 静态接口断言
var _ contract.PromptBuilder = (*Builder)(nil)
