package html

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gridnews/pkg/contract"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// Options: 模板覆盖与展示参数。模板文件为空时使用内置模板。
type Options struct {
	TemplateFile      string `json:"template_file"`
	IndexTemplateFile string `json:"index_template_file"`
	PeriodName        string `json:"period_name"` // 默认 "Week"
	// IconBaseURL: 队徽前缀，生成 {base}/images/{ABBR}.png；为空则不输出图标。
	IconBaseURL string `json:"icon_base_url"`
}

// Renderer 以 html/template 渲染单期周报与归档索引页。
type Renderer struct {
	page       *template.Template
	index      *template.Template
	periodName string
	iconBase   string
}

// New 在构造期解析模板。
func New(opts *Options) (*Renderer, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.PeriodName == "" {
		o.PeriodName = "Week"
	}
	page, err := load("newsletter", o.TemplateFile, "templates/newsletter.html.tmpl")
	if err != nil {
		return nil, err
	}
	index, err := load("index", o.IndexTemplateFile, "templates/index.html.tmpl")
	if err != nil {
		return nil, err
	}
	return &Renderer{page: page, index: index, periodName: o.PeriodName, iconBase: strings.TrimRight(o.IconBaseURL, "/")}, nil
}

func load(name, file, embedded string) (*template.Template, error) {
	var src []byte
	var err error
	if file != "" {
		src, err = os.ReadFile(file)
	} else {
		src, err = builtin.ReadFile(embedded)
	}
	if err == nil {
		var t *template.Template
		if t, err = template.New(name).Option("missingkey=error").Parse(string(src)); err == nil {
			return t, nil
		}
	}
	// 用户提供的模板读取或解析失败属于配置错误
	if file != "" {
		return nil, contract.NewInputError(name+"_template_file", file, err.Error())
	}
	return nil, fmt.Errorf("%s template: %w", name, err)
}

// Badge: 标签的展示形态。
type Badge struct {
	Class string
	Label string
}

var badgeMap = map[string]Badge{
	"nail-biter":   {"badge-nailbiter", "Nail-Biter"},
	"comeback":     {"badge-comeback", "Comeback"},
	"blowout":      {"badge-blowout", "Blowout"},
	"upset":        {"badge-upset", "Upset"},
	"game-of-week": {"badge-game-of-week", "Game of the Week"},
}

// Side: 一方球队。
type Side struct {
	Team, Abbr, Score, Record, Icon, Class string
}

// Game: 模板中的单场比赛。
type Game struct {
	ID       string
	Away     Side
	Home     Side
	Summary  string
	RecapURL string
	Badges   []Badge
	Meta     []string
	when     string
}

// Page: 单期页面数据。
type Page struct {
	SiteTitle   string
	Title       string
	GameCount   int
	UpsetCount  int
	GeneratedAt string
	Provider    string
	Games       []Game
}

// Title 返回周期标题："Week N" 或 "Week N · Sunday"。
func (r *Renderer) Title(id contract.RunIdentity) string {
	t := fmt.Sprintf("%s %d", r.periodName, id.Period)
	if id.Mode != contract.ModeSub {
		return t
	}
	d, err := time.Parse("20060102", id.SubKey)
	if err != nil {
		return t
	}
	return t + " · " + d.Weekday().String()
}

// RenderArtifact 渲染单期 HTML。比赛按开赛时间排序，缺失时间的排在最后并保持原序。
func (r *Renderer) RenderArtifact(ctx context.Context, set contract.AugmentedRecordSet, meta contract.ArtifactMeta, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := Page{
		SiteTitle: meta.SiteTitle,
		Title:     meta.Title,
		GameCount: len(set.Records),
		Provider:  set.Generation.Provider,
	}
	if p.Title == "" {
		p.Title = r.Title(set.Identity)
	}
	if !set.Generation.GeneratedAt.IsZero() {
		p.GeneratedAt = set.Generation.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")
	}
	for _, rec := range set.Records {
		g := r.game(rec)
		if slices.Contains(rec.Tags, "upset") {
			p.UpsetCount++
		}
		p.Games = append(p.Games, g)
	}
	slices.SortStableFunc(p.Games, func(a, b Game) int {
		switch {
		case a.when == b.when:
			return 0
		case a.when == "":
			return 1
		case b.when == "":
			return -1
		default:
			return strings.Compare(a.when, b.when)
		}
	})
	return execute(r.page, p, w)
}

func (r *Renderer) game(rec contract.AugmentedRecord) Game {
	f := rec.Fields
	s := func(k string) string { return contract.FieldString(f, k) }
	g := Game{
		ID:       rec.ID,
		Away:     Side{Team: s(contract.FieldAwayTeam), Abbr: s(contract.FieldAwayAbbr), Score: s(contract.FieldAwayScore), Record: s(contract.FieldAwayRecord)},
		Home:     Side{Team: s(contract.FieldHomeTeam), Abbr: s(contract.FieldHomeAbbr), Score: s(contract.FieldHomeScore), Record: s(contract.FieldHomeRecord)},
		Summary:  rec.Summary,
		RecapURL: s(contract.FieldRecapURL),
		when:     s(contract.FieldGameDateISO),
	}
	as, aok := contract.FieldInt(f, contract.FieldAwayScore)
	hs, hok := contract.FieldInt(f, contract.FieldHomeScore)
	if aok && hok {
		g.Away.Class, g.Home.Class = outcome(as, hs), outcome(hs, as)
	}
	if r.iconBase != "" {
		if g.Away.Abbr != "" {
			g.Away.Icon = r.iconBase + "/images/" + g.Away.Abbr + ".png"
		}
		if g.Home.Abbr != "" {
			g.Home.Icon = r.iconBase + "/images/" + g.Home.Abbr + ".png"
		}
	}
	for _, t := range rec.Tags {
		if b, ok := badgeMap[t]; ok {
			g.Badges = append(g.Badges, b)
		}
	}
	for _, m := range []string{s(contract.FieldGameDateDisplay), s(contract.FieldStadium), s(contract.FieldTVNetwork)} {
		if m != "" {
			g.Meta = append(g.Meta, m)
		}
	}
	return g
}

func outcome(own, other int) string {
	switch {
	case own > other:
		return "winner"
	case own < other:
		return "loser"
	default:
		return "tie"
	}
}

// IndexGroup: 索引页上的一个周期分组（保持 Render 的最近优先顺序）。
type IndexGroup struct {
	Title string
	Items []contract.SummaryItem
}

type indexPage struct {
	SiteTitle string
	Groups    []IndexGroup
}

// RenderIndex 渲染归档索引页。
func (r *Renderer) RenderIndex(ctx context.Context, siteTitle string, items []contract.SummaryItem, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := indexPage{SiteTitle: siteTitle}
	for _, it := range items {
		title := fmt.Sprintf("%s %d - %d", r.periodName, it.Period, it.Year)
		if n := len(p.Groups); n == 0 || p.Groups[n-1].Title != title {
			p.Groups = append(p.Groups, IndexGroup{Title: title})
		}
		g := &p.Groups[len(p.Groups)-1]
		g.Items = append(g.Items, it)
	}
	return execute(r.index, p, w)
}

// execute 先渲染到缓冲区，模板出错时不向 w 写出半截内容。
func execute(t *template.Template, data any, w io.Writer) error {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", t.Name(), err)
	}
	_, err := buf.WriteTo(w)
	return err
}

var _ contract.Renderer = (*Renderer)(nil)
