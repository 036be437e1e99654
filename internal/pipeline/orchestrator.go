// Package pipeline 串联三个阶段：单次计算运行身份，按状态机推进，不做重试。
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gridnews/internal/diag"
	"gridnews/internal/identity"
	"gridnews/internal/period"
	"gridnews/pkg/contract"
)

// Job: 传给每个阶段的不可变运行描述；三个阶段看到同一个值。
type Job struct {
	Identity contract.RunIdentity
	Date     time.Time
	Provider string
}

// Stage: 单个阶段体。返回 nil、ErrNoData（仅阶段一）或其他错误。
type Stage interface {
	Name() string
	Run(ctx context.Context, job Job) error
}

// StageFunc 将函数适配为 Stage。
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, job Job) error
}

func (f StageFunc) Name() string                          { return f.StageName }
func (f StageFunc) Run(ctx context.Context, job Job) error { return f.Fn(ctx, job) }

// Request: 一次调用的原始入参（未校验）。
type Request struct {
	Date     string // YYYYMMDD
	Mode     string // day|week，空为 day
	Provider string // 空则使用 DefaultProvider
}

// Result: 运行结果。ExitCode 为权威退出码。
type Result struct {
	State    State
	ExitCode int
	Identity contract.RunIdentity
	Err      error
	Trace    []Transition
}

func (r *Result) move(sig Signal) {
	from := r.State
	r.State = Next(from, sig)
	r.Trace = append(r.Trace, Transition{From: from, To: r.State, Signal: sig})
}

// Orchestrator: 三阶段编排器。
type Orchestrator struct {
	Stages   [3]Stage
	Resolver period.Strategy
	Scheme   identity.Scheme
	// SeasonYear: 身份中的 year 取配置的赛季年，而非日期所在年。
	SeasonYear int
	// Providers: 可选 provider 名；DefaultProvider 在请求未指定时使用。
	Providers       []string
	DefaultProvider string
	Logger          *diag.Logger
	Terminal        *diag.Terminal
}

// Prepare 校验入参并计算运行身份（仅一次）；不运行任何阶段。
func (o *Orchestrator) Prepare(req Request) (Job, error) {
	date, err := identity.ParseDate(req.Date)
	if err != nil {
		return Job{}, err
	}
	mode, err := identity.ParseMode(req.Mode)
	if err != nil {
		return Job{}, err
	}
	prov := strings.TrimSpace(req.Provider)
	if prov == "" {
		prov = o.DefaultProvider
	}
	if !o.knownProvider(prov) {
		return Job{}, contract.NewInputError("provider", prov, "not configured; want one of "+strings.Join(o.Providers, ", "))
	}
	if o.Resolver == nil || o.SeasonYear <= 0 {
		return Job{}, fmt.Errorf("%w: orchestrator missing resolver or season year", contract.ErrInvariantViolation)
	}
	id := identity.New(o.SeasonYear, o.Resolver.Period(date), mode, date)
	if _, err := o.Scheme.Derive(id); err != nil {
		return Job{}, err
	}
	return Job{Identity: id, Date: date, Provider: prov}, nil
}

func (o *Orchestrator) knownProvider(name string) bool {
	if name == "" {
		return false
	}
	for _, p := range o.Providers {
		if p == name {
			return true
		}
	}
	return false
}

// Run 执行一次完整运行。
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	res := Result{State: Idle}
	log := o.Logger
	if log == nil {
		log = diag.Nop()
	}
	t0 := time.Now()

	job, err := o.Prepare(req)
	if err != nil {
		res.Err = err
		sig := SignalOf(err)
		if sig != SigInputError {
			// 身份不变量或装配缺陷同样在任何阶段之前终止
			sig = SigStageError
		}
		res.move(sig)
		res.ExitCode = res.State.ExitCode()
		code := diag.Classify(err)
		log.ErrorWithKV("orchestrator", string(code), err.Error(), &t0, "", map[string]string{"date": req.Date, "mode": req.Mode})
		diag.IncError("orchestrator", string(code))
		return res
	}
	res.Identity = job.Identity
	run := job.Identity.String()
	o.Terminal.RunStart(run, job.Provider)
	log.StartWithKV("orchestrator", "run start", run, map[string]string{"provider": job.Provider})

	res.move(SigOk)
	for i := 0; i < len(o.Stages) && res.State == running[i]; i++ {
		err := o.runStage(ctx, log, i, job)
		sig := SignalOf(err)
		if err != nil {
			res.Err = fmt.Errorf("stage %d (%s): %w", i+1, stageName(o.Stages[i]), err)
		}
		res.move(sig)
		if res.State == Failed && sig == SigNoData {
			res.Err = fmt.Errorf("%w: %w", contract.ErrInvariantViolation, res.Err)
		}
	}
	res.ExitCode = res.State.ExitCode()
	o.Terminal.RunFinish(string(res.State), res.ExitCode)
	log.InfoFinish("orchestrator", "run "+string(res.State), t0, int64(len(res.Trace)))
	diag.IncOp("orchestrator", string(res.State), resultLabel(res.State))
	return res
}

// RunStage 只运行第 n 个阶段（1..3），供单阶段命令使用；不经过状态机推进。
// 退出码按 diag.ExitCode：NoData→1，InvalidInput→3，其余错误→2。
func (o *Orchestrator) RunStage(ctx context.Context, req Request, n int) (contract.RunIdentity, int, error) {
	if n < 1 || n > len(o.Stages) {
		err := contract.NewInputError("stage", fmt.Sprint(n), "want 1..3")
		return contract.RunIdentity{}, diag.ExitInvalid, err
	}
	log := o.Logger
	if log == nil {
		log = diag.Nop()
	}
	job, err := o.Prepare(req)
	if err != nil {
		if SignalOf(err) != SigInputError {
			return contract.RunIdentity{}, diag.ExitFailed, err
		}
		return contract.RunIdentity{}, diag.ExitInvalid, err
	}
	run := job.Identity.String()
	o.Terminal.RunStart(run, job.Provider)
	err = o.runStage(ctx, log, n-1, job)
	if err != nil {
		err = fmt.Errorf("stage %d (%s): %w", n, stageName(o.Stages[n-1]), err)
	}
	code := diag.ExitCode(err)
	if err != nil && code == diag.ExitInvalid {
		// 阶段运行中的输入错误按失败处理
		code = diag.ExitFailed
	}
	o.Terminal.RunFinish(stageName(o.Stages[n-1]), code)
	return job.Identity, code, err
}

func resultLabel(s State) string {
	if s == Succeeded || s == NoData {
		return "success"
	}
	return "error"
}

func stageName(s Stage) string {
	if s == nil {
		return "missing"
	}
	return s.Name()
}

func (o *Orchestrator) runStage(ctx context.Context, log *diag.Logger, i int, job Job) error {
	st := o.Stages[i]
	comp := "stage." + stageName(st)
	run := job.Identity.String()
	o.Terminal.StageStart(i+1, stageName(st))
	timer := log.StartWith(comp, "start", run)
	var err error
	if st == nil {
		err = fmt.Errorf("%w: stage %d not configured", contract.ErrInvariantViolation, i+1)
	} else {
		err = st.Run(ctx, job)
	}
	switch SignalOf(err) {
	case SigOk:
		timer.Finish("finish", 0)
		diag.IncOp(comp, "finish", "success")
		o.Terminal.StageFinish("ok")
	case SigNoData:
		timer.Finish("no data", 0)
		diag.IncOp(comp, "finish", "no_data")
		o.Terminal.StageFinish("no-data")
	default:
		code := diag.Classify(err)
		began := timer.Began()
		log.ErrorWithKV(comp, string(code), err.Error(), &began, run, upstreamKV(err))
		diag.IncOp(comp, "error", "error")
		diag.IncError(comp, string(code))
		o.Terminal.StageFinish("fail")
	}
	return err
}
