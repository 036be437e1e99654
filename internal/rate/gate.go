package rate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"gridnews/pkg/contract"
)

// LimitKey: 限流分组键。大模型为 client:sha256(key) 或 provider 名；ESPN 抓取为固定键。
type LimitKey string

// Limits: 每分组的限额。0 表示该维度不启用。
type Limits struct {
	RPM             int // 每分钟请求数（桶容量同值）
	TPM             int // 每分钟 token 数
	MaxTokensPerReq int // 单次提示词估算 token 上限
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // >=1
	Tokens   int // 估算 token，>=0；抓取请求为 0
}

// Gate: 按分组键放行请求（并发安全）。
type Gate interface {
	// Wait 阻塞直到两个维度的额度同时可用或 ctx 取消。
	// 超出单请求上限或桶容量（永远无法满足）时立即返回 ErrBudgetExceeded。
	Wait(ctx context.Context, a Ask) error
	// Try 非阻塞；不足时不消耗任何额度。
	Try(a Ask) bool
}

// Snapshoter: 诊断接口，返回当前可用请求数与 token 数（向下取整）。
type Snapshoter interface {
	Snapshot(key LimitKey) (rpmAvail, tpmAvail int)
}

// NewGate 从静态配置构造闸门；clk 为空则使用 time.Now。未配置的键不限额。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	for k, lim := range m {
		g.m[k] = newEntry(lim)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

// entry: 每分组两只令牌桶；nil 表示该维度关闭。桶初始为满。
type entry struct {
	lim Limits
	req *xrate.Limiter
	tok *xrate.Limiter
}

func newEntry(lim Limits) *entry {
	return &entry{lim: lim, req: perMinute(lim.RPM), tok: perMinute(lim.TPM)}
}

func perMinute(n int) *xrate.Limiter {
	if n <= 0 {
		return nil
	}
	return xrate.NewLimiter(xrate.Limit(float64(n)/60), n)
}

func (g *gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		e = newEntry(Limits{})
		g.m[key] = e
	}
	return e
}

// check 校验申请本身；返回的错误与当前额度无关。
func (e *entry) check(a Ask) error {
	if a.Requests <= 0 || a.Tokens < 0 {
		return fmt.Errorf("%w: gate ask requests=%d tokens=%d", contract.ErrInvariantViolation, a.Requests, a.Tokens)
	}
	if e.lim.MaxTokensPerReq > 0 && a.Tokens > e.lim.MaxTokensPerReq {
		return fmt.Errorf("%w: ask %d tokens, limit %d per request", contract.ErrBudgetExceeded, a.Tokens, e.lim.MaxTokensPerReq)
	}
	if e.lim.RPM > 0 && a.Requests > e.lim.RPM {
		return fmt.Errorf("%w: ask %d requests, rpm %d", contract.ErrBudgetExceeded, a.Requests, e.lim.RPM)
	}
	if e.lim.TPM > 0 && a.Tokens > e.lim.TPM {
		return fmt.Errorf("%w: ask %d tokens, tpm %d", contract.ErrBudgetExceeded, a.Tokens, e.lim.TPM)
	}
	return nil
}

// grant: 两个维度上的一次预订。
type grant struct {
	req, tok *xrate.Reservation
}

// reserve 在 now 时刻同时预订两个维度，返回需等待的时长（取两者较大值）。
func (e *entry) reserve(now time.Time, a Ask) (grant, time.Duration) {
	var g grant
	var d time.Duration
	if e.req != nil {
		g.req = e.req.ReserveN(now, a.Requests)
		d = max(d, g.req.DelayFrom(now))
	}
	if e.tok != nil && a.Tokens > 0 {
		g.tok = e.tok.ReserveN(now, a.Tokens)
		d = max(d, g.tok.DelayFrom(now))
	}
	return g, d
}

// cancel 归还尚未生效的额度。
func (g grant) cancel(now time.Time) {
	if g.req != nil {
		g.req.CancelAt(now)
	}
	if g.tok != nil {
		g.tok.CancelAt(now)
	}
}

func (g *gate) Try(a Ask) bool {
	e := g.get(a.Key)
	if e.check(a) != nil {
		return false
	}
	now := g.clk()
	gr, d := e.reserve(now, a)
	if d > 0 {
		gr.cancel(now)
		return false
	}
	return true
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	e := g.get(a.Key)
	if err := e.check(a); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := g.clk()
	gr, d := e.reserve(now, a)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		gr.cancel(g.clk())
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *gate) Snapshot(key LimitKey) (rpmAvail, tpmAvail int) {
	e := g.get(key)
	now := g.clk()
	return avail(e.req, now), avail(e.tok, now)
}

// Admit 先非阻塞尝试；额度不足时以当前快照回调 onWait（不支持快照时为 -1），再阻塞等待。
func Admit(ctx context.Context, g Gate, a Ask, onWait func(rpmAvail, tpmAvail int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.Try(a) {
		return nil
	}
	if onWait != nil {
		rpm, tpm := -1, -1
		if s, ok := g.(Snapshoter); ok {
			rpm, tpm = s.Snapshot(a.Key)
		}
		onWait(rpm, tpm)
	}
	return g.Wait(ctx, a)
}

func avail(l *xrate.Limiter, now time.Time) int {
	if l == nil {
		return 0
	}
	v := l.TokensAt(now)
	if v < 0 {
		return 0
	}
	return int(math.Floor(v))
}

var (
	_ Gate       = (*gate)(nil)
	_ Snapshoter = (*gate)(nil)
)
