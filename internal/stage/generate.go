package stage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gridnews/internal/diag"
	"gridnews/internal/extract"
	"gridnews/internal/identity"
	"gridnews/internal/merge"
	"gridnews/internal/pipeline"
	"gridnews/internal/prompt"
	"gridnews/internal/quality"
	"gridnews/internal/rate"
	"gridnews/pkg/contract"
)

// Provider: 一个已装配的大模型后端。Gate 为 nil 时不限流。
type Provider struct {
	Name       string
	Client     contract.LLMClient
	Gate       rate.Gate
	Key        rate.LimitKey
	MaxRetries int
}

// Generate: 阶段二。base.json → 提示词 → 模型 → 抽取/合并 → augmented.json。
// 校验失败时原始响应写入调试文件，augmented.json 不被写出。
type Generate struct {
	Providers     map[string]Provider
	Prompt        contract.PromptBuilder
	Extractor     *extract.Extractor
	Scheme        identity.Scheme
	Read          contract.Reader
	Work          contract.Writer
	BytesPerToken int
	MaxTokens     int
	RetryInitial  time.Duration
	Now           func() time.Time
	Logger        *diag.Logger
}

func (s *Generate) Name() string { return "generate" }

func (s *Generate) Run(ctx context.Context, job pipeline.Job) error {
	paths, err := s.Scheme.Derive(job.Identity)
	if err != nil {
		return err
	}
	base, err := readJSON[contract.BaseRecordSet](ctx, s.Read, paths.BaseFile())
	if err != nil {
		return err
	}
	if len(base.Records) == 0 {
		return fmt.Errorf("%w: %s holds no records", contract.ErrInvariantViolation, paths.BaseFile())
	}
	if base.Identity != job.Identity {
		return fmt.Errorf("%w: %s belongs to %s", contract.ErrInvariantViolation, paths.BaseFile(), base.Identity)
	}
	pv, ok := s.Providers[job.Provider]
	if !ok || pv.Client == nil {
		return contract.NewInputError("provider", job.Provider, "provider not configured")
	}
	run := job.Identity.String()

	p, err := s.Prompt.Build(ctx, base)
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}
	tokens, err := prompt.Check(s.Prompt, p, s.BytesPerToken, s.MaxTokens)
	if err != nil {
		return err
	}
	s.Logger.DebugStart("stage.generate", "prompt built", run, map[string]string{
		"provider": pv.Name, "records": strconv.Itoa(len(base.Records)), "tokens": strconv.Itoa(tokens),
	})

	policy := rate.RetryPolicy{
		MaxRetries:      pv.MaxRetries,
		InitialInterval: s.RetryInitial,
		Notify: func(err error, wait time.Duration) {
			s.Logger.Warn("llm."+pv.Name, string(diag.Classify(err)), "retrying: "+err.Error(), run,
				map[string]string{"wait": wait.String()})
		},
	}
	raw, err := rate.Do(ctx, policy, func(ctx context.Context) (contract.Raw, error) {
		if pv.Gate != nil {
			ask := rate.Ask{Key: pv.Key, Requests: 1, Tokens: tokens}
			if err := rate.Admit(ctx, pv.Gate, ask, func(rpm, tpm int) {
				s.Logger.DebugStart("llm."+pv.Name, "gate wait", run, map[string]string{
					"rpm_avail": strconv.Itoa(rpm), "tpm_avail": strconv.Itoa(tpm),
				})
			}); err != nil {
				return contract.Raw{}, err
			}
		}
		return pv.Client.Invoke(ctx, base, p)
	})
	if err != nil {
		return fmt.Errorf("invoke %s: %w", pv.Name, err)
	}

	payload, err := s.Extractor.Extract(raw.Text)
	if err != nil {
		return s.dump(ctx, paths, raw, err)
	}
	if err := payload.Err(); err != nil {
		return s.dump(ctx, paths, raw, err)
	}
	at := now(s.Now)
	meta := contract.GenerationMeta{GeneratedAt: at, Provider: pv.Name}
	if mn, ok := pv.Client.(contract.ModelNamer); ok {
		meta.Model = mn.Model()
	}
	recs, rep := merge.Merge(base.Records, payload.Entries, meta)
	if len(rep.Orphans) > 0 {
		s.Logger.Warn("stage.generate", "orphan", "generated entries without a base record dropped", run,
			map[string]string{"ids": fmt.Sprint(rep.Orphans)})
	}
	if err := rep.Err(); err != nil {
		return s.dump(ctx, paths, raw, err)
	}
	if err := s.checkQuality(job, recs); err != nil {
		return err
	}
	set := contract.AugmentedRecordSet{Identity: job.Identity, Generation: meta, Records: recs}
	if err := writeJSON(ctx, s.Work, paths.AugmentedFile(), set); err != nil {
		return err
	}
	s.Logger.InfoFinish("stage.generate", "augmented written: "+string(paths.AugmentedFile()), at, int64(len(recs)))
	return nil
}

// checkQuality 运行发布前质量检查：warning 记告警，info 记调试，error 级问题使本阶段失败。
func (s *Generate) checkQuality(job pipeline.Job, recs []contract.AugmentedRecord) error {
	qr := quality.Check(recs, quality.Options{Period: job.Identity.Period, Mode: job.Identity.Mode})
	run := job.Identity.String()
	for _, is := range qr.Issues {
		kv := map[string]string{"game": is.ID, "field": is.Field}
		switch is.Severity {
		case quality.SevWarning:
			s.Logger.Warn("stage.generate", "quality", is.Message, run, kv)
		case quality.SevInfo:
			s.Logger.DebugStart("stage.generate", "quality: "+is.Message, run, kv)
		}
	}
	return qr.Err()
}

// dump 保存原始响应供排查；返回的错误始终保留 cause。
func (s *Generate) dump(ctx context.Context, paths identity.Paths, raw contract.Raw, cause error) error {
	id := paths.DebugFile(now(s.Now))
	body := "# " + cause.Error() + "\n\n" + raw.Text
	if err := writeBytes(ctx, s.Work, id, []byte(body)); err != nil {
		s.Logger.Warn("stage.generate", string(diag.Classify(err)), "debug dump failed: "+err.Error(), "", nil)
		return cause
	}
	return fmt.Errorf("%w (raw response saved to %s)", cause, id)
}

var _ pipeline.Stage = (*Generate)(nil)
