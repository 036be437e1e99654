// Package espn 从 ESPN 公共接口抓取一周（或一天）的比赛与战报。
package espn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"gridnews/internal/diag"
	"gridnews/internal/rate"
	"gridnews/pkg/contract"
)

const comp = "fetcher.espn"

// Options: 抓取配置。零值即默认。
type Options struct {
	BaseURL        string `json:"base_url"`    // 默认 https://site.api.espn.com/apis/site/v2/sports/football/nfl
	SeasonType     int    `json:"season_type"` // 1=季前 2=常规赛 3=季后赛，默认 2
	Concurrency    int    `json:"concurrency"` // 战报并发，默认 5
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxRetries     int    `json:"max_retries"` // 默认 3；<0 关闭重试
	RPM            int    `json:"rpm"`         // 0 表示不限速
	Timezone       string `json:"timezone"`    // 单日过滤与展示时区，默认 America/New_York
	SkipRecaps     bool   `json:"skip_recaps"`
	// IncludeUnfinished: 默认只保留已完赛的比赛。
	IncludeUnfinished bool `json:"include_unfinished"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://site.api.espn.com/apis/site/v2/sports/football/nfl"
	}
	if o.SeasonType == 0 {
		o.SeasonType = 2
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 15
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.Timezone == "" {
		o.Timezone = "America/New_York"
	}
}

// Fetcher 实现 contract.Fetcher。
type Fetcher struct {
	hc         *http.Client
	base       string
	seasonType int
	limit      int
	retry      rate.RetryPolicy
	gate       rate.Gate
	loc        *time.Location
	skipRecaps bool
	unfinished bool
	log        *diag.Logger
}

const gateKey rate.LimitKey = "espn"

// New 构造抓取器；时区非法返回 InputError。
func New(opts *Options) (*Fetcher, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.defaults()
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return nil, contract.NewInputError("timezone", o.Timezone, err.Error())
	}
	if o.SeasonType < 1 || o.SeasonType > 3 {
		return nil, contract.NewInputError("season_type", strconv.Itoa(o.SeasonType), "want 1..3")
	}
	f := &Fetcher{
		hc:         &http.Client{Timeout: time.Duration(o.TimeoutSeconds) * time.Second},
		base:       strings.TrimRight(o.BaseURL, "/"),
		seasonType: o.SeasonType,
		limit:      o.Concurrency,
		loc:        loc,
		skipRecaps: o.SkipRecaps,
		unfinished: o.IncludeUnfinished,
		log:        diag.Nop(),
	}
	if o.MaxRetries > 0 {
		f.retry = rate.RetryPolicy{MaxRetries: o.MaxRetries, InitialInterval: 500 * time.Millisecond, MaxElapsed: time.Minute}
	}
	if o.RPM > 0 {
		f.gate = rate.NewGate(map[rate.LimitKey]rate.Limits{gateKey: {RPM: o.RPM}}, nil)
	}
	return f, nil
}

// WithLogger 设置日志器（nil 忽略）。
func (f *Fetcher) WithLogger(l *diag.Logger) *Fetcher {
	if l != nil {
		f.log = l
	}
	return f
}

// Fetch 抓取 (year, period) 的比赛；单日模式仅保留本地日期等于 SubKey 的比赛。
// 战报抓取失败只记日志，不影响结果。
func (f *Fetcher) Fetch(ctx context.Context, id contract.RunIdentity, _ time.Time) ([]contract.BaseRecord, error) {
	run := id.String()
	tm := f.log.StartWith(comp, "scoreboard", run)
	var sb scoreboard
	q := url.Values{}
	q.Set("seasontype", strconv.Itoa(f.seasonType))
	q.Set("week", strconv.Itoa(id.Period))
	q.Set("year", strconv.Itoa(id.Year))
	if err := f.getJSON(ctx, f.base+"/scoreboard?"+q.Encode(), &sb); err != nil {
		f.log.ErrorWith(comp, string(diag.Classify(err)), "scoreboard: "+err.Error(), nil, run)
		return nil, fmt.Errorf("espn scoreboard: %w", err)
	}

	recs := make([]contract.BaseRecord, 0, len(sb.Events))
	for _, ev := range sb.Events {
		if !f.unfinished && !ev.completed() {
			continue
		}
		rec, when, ok := f.parse(ev)
		if !ok {
			f.log.Warn(comp, string(diag.CodeSchema), "event skipped", run, map[string]string{"event": ev.ID})
			continue
		}
		if id.Mode == contract.ModeSub && when.In(f.loc).Format("20060102") != id.SubKey {
			continue
		}
		recs = append(recs, rec)
	}
	tm.Finish("scoreboard done", int64(len(recs)))
	if len(recs) == 0 || f.skipRecaps {
		return recs, nil
	}

	rt := f.log.StartWith(comp, "recaps", run)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.limit)
	for i := range recs {
		g.Go(func() error {
			text, err := f.recap(gctx, recs[i].ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				f.log.Warn(comp, string(diag.Classify(err)), "recap skipped", run, map[string]string{"event": recs[i].ID, "err": err.Error()})
				return nil
			}
			recs[i].Narrative = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("espn recaps: %w", err)
	}
	rt.Finish("recaps done", int64(len(recs)))
	return recs, nil
}

// recap 取 summary 接口的 article.story 并转为纯文本；没有文章时返回空串。
func (f *Fetcher) recap(ctx context.Context, eventID string) (string, error) {
	var sum summary
	if err := f.getJSON(ctx, f.base+"/summary?event="+url.QueryEscape(eventID), &sum); err != nil {
		return "", err
	}
	if sum.Article == nil || sum.Article.Story == "" {
		return "", nil
	}
	return StripHTML(sum.Article.Story), nil
}

// getJSON: 限速 + 重试 + 解码。4xx（429 除外）不重试。
func (f *Fetcher) getJSON(ctx context.Context, u string, v any) error {
	_, err := rate.Do(ctx, f.retry, func(ctx context.Context) (struct{}, error) {
		if f.gate != nil {
			if err := rate.Admit(ctx, f.gate, rate.Ask{Key: gateKey, Requests: 1}, func(rpm, _ int) {
				f.log.DebugStart(comp, "gate wait", "", map[string]string{"rpm_avail": strconv.Itoa(rpm)})
			}); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, f.get(ctx, u, v)
	})
	return err
}

func (f *Fetcher) get(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return &StatusError{Status: resp.StatusCode, Msg: strings.TrimSpace(string(slurp))}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// StatusError: 非 2xx 响应。429 归入 ErrRateLimited。
type StatusError struct {
	Status int
	Msg    string
}

func (e *StatusError) Error() string           { return fmt.Sprintf("espn upstream %d: %s", e.Status, e.Msg) }
func (e *StatusError) UpstreamStatus() int     { return e.Status }
func (e *StatusError) UpstreamMessage() string { return e.Msg }
func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusTooManyRequests {
		return contract.ErrRateLimited
	}
	return nil
}

var (
	_ contract.Fetcher       = (*Fetcher)(nil)
	_ contract.UpstreamError = (*StatusError)(nil)
)
