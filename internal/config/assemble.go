package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gridnews/internal/archive"
	"gridnews/internal/diag"
	"gridnews/internal/extract"
	"gridnews/internal/identity"
	"gridnews/internal/period"
	"gridnews/internal/pipeline"
	"gridnews/internal/rate"
	"gridnews/internal/stage"
	"gridnews/pkg/contract"
	"gridnews/pkg/registry"
)

// Validate 对最小必要边界做静态校验；错误均为 InputError（退出码 3）。
func Validate(cfg Config) error {
	if cfg.Season.Year < 2020 || cfg.Season.Year > 2035 {
		return contract.NewInputError("season.year", fmt.Sprint(cfg.Season.Year), "want 2020..2035")
	}
	if _, err := time.Parse("2006-01-02", cfg.Season.StartDate); err != nil {
		return contract.NewInputError("season.start_date", cfg.Season.StartDate, "want YYYY-MM-DD")
	}
	if cfg.Season.PeriodCount < 1 {
		return contract.NewInputError("season.period_count", fmt.Sprint(cfg.Season.PeriodCount), "must be >= 1")
	}
	if strings.TrimSpace(cfg.Storage.WorkDir) == "" {
		return contract.NewInputError("storage.work_dir", "", "must not be empty")
	}
	if strings.TrimSpace(cfg.Storage.DocsDir) == "" {
		return contract.NewInputError("storage.docs_dir", "", "must not be empty")
	}
	switch cfg.Archive.Store {
	case "file", "sqlite", "memory":
	default:
		return contract.NewInputError("archive.store", cfg.Archive.Store, "want file|sqlite|memory")
	}
	if cfg.Archive.Store != "memory" && strings.TrimSpace(cfg.Archive.Path) == "" {
		return contract.NewInputError("archive.path", "", "must not be empty")
	}
	switch cfg.Fetch.Client {
	case "exec":
		if len(cfg.Fetch.Command) == 0 {
			return contract.NewInputError("fetch.command", "", "required when fetch.client is exec")
		}
	default:
		if registry.Fetcher[cfg.Fetch.Client] == nil {
			return contract.NewInputError("fetch.client", cfg.Fetch.Client, "not registered")
		}
	}
	if cfg.Generate.MaxTokens < 0 {
		return contract.NewInputError("generate.max_tokens", fmt.Sprint(cfg.Generate.MaxTokens), "must be >= 0")
	}
	if cfg.Generate.MaxRetries < 0 {
		return contract.NewInputError("generate.max_retries", fmt.Sprint(cfg.Generate.MaxRetries), "must be >= 0")
	}
	name := cfg.Generate.Provider
	prov, ok := cfg.Provider[name]
	if !ok {
		return contract.NewInputError("provider", name, "not configured; want one of "+strings.Join(ProviderNames(cfg), ", "))
	}
	if registry.LLMClient[prov.Client] == nil {
		return contract.NewInputError("provider."+name+".client", prov.Client, "not registered")
	}
	if prov.Limits.MaxTokensPerReq > 0 && cfg.Generate.MaxTokens > prov.Limits.MaxTokensPerReq {
		return contract.NewInputError("generate.max_tokens", fmt.Sprint(cfg.Generate.MaxTokens),
			fmt.Sprintf("exceeds provider.%s.limits.max_tokens_per_req(%d)", name, prov.Limits.MaxTokensPerReq))
	}
	return nil
}

// ProviderNames 返回已配置 provider 名（排序）。
func ProviderNames(cfg Config) []string {
	out := make([]string, 0, len(cfg.Provider))
	for k := range cfg.Provider {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// App: 装配完成的运行单元。Close 释放归档存储等资源。
type App struct {
	Orchestrator *pipeline.Orchestrator
	Reindex      *stage.Reindex
	Validate     *stage.Validate
	closers      []func() error
}

// Close 按逆序释放资源，返回第一个错误。
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// Assemble 校验配置并构造三个阶段、编排器与归档重建器。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 JSON。
// 只构造 generate.provider 指定的大模型客户端。
func Assemble(ctx context.Context, cfg Config, logger *diag.Logger) (*App, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = diag.Nop()
	}
	app := &App{}
	fail := func(err error) (*App, error) {
		_ = app.Close()
		return nil, err
	}

	scheme := identity.Scheme{Root: cfg.Storage.WorkDir, Label: cfg.Storage.PeriodLabel}
	workR, err := registry.Reader["fs"](mustJSON(map[string]any{"root": cfg.Storage.WorkDir}))
	if err != nil {
		return fail(err)
	}
	workW, err := registry.Writer["fs"](mustJSON(map[string]any{"output_dir": cfg.Storage.WorkDir}))
	if err != nil {
		return fail(err)
	}
	docsW, err := registry.Writer["fs"](mustJSON(map[string]any{"output_dir": cfg.Storage.DocsDir}))
	if err != nil {
		return fail(err)
	}
	store, closeStore, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		return fail(err)
	}
	if closeStore != nil {
		app.closers = append(app.closers, closeStore)
	}

	// 阶段一
	var fetch pipeline.Stage
	if cfg.Fetch.Client == "exec" {
		fetch = &pipeline.ExecStage{StageName: "fetch", Command: append([]string(nil), cfg.Fetch.Command...), Stdout: os.Stderr}
	} else {
		f, err := registry.Fetcher[cfg.Fetch.Client](fetchOptions(cfg.Fetch), logger)
		if err != nil {
			return fail(err)
		}
		fetch = &stage.Fetch{Fetcher: f, Source: cfg.Fetch.Client, Scheme: scheme, Work: workW, Logger: logger}
	}

	// 阶段二
	pb, err := registry.PromptBuilder["newsletter"](mustJSON(map[string]any{
		"system_template_path": cfg.Generate.PromptFile,
		"max_summary_chars":    cfg.Generate.MaxSummaryChars,
		"max_narrative_bytes":  cfg.Generate.MaxNarrativeBytes,
		"period_name":          cfg.Publish.PeriodName,
	}))
	if err != nil {
		return fail(err)
	}
	name := cfg.Generate.Provider
	pv, err := buildProvider(ctx, name, cfg.Provider[name], cfg.Generate.MaxRetries)
	if err != nil {
		return fail(err)
	}
	generate := &stage.Generate{
		Providers:     map[string]stage.Provider{name: pv},
		Prompt:        pb,
		Extractor:     extract.New(extract.Options{MaxSummaryRunes: cfg.Generate.MaxSummaryChars}),
		Scheme:        scheme,
		Read:          workR,
		Work:          workW,
		BytesPerToken: cfg.Generate.BytesPerToken,
		MaxTokens:     cfg.Generate.MaxTokens,
		RetryInitial:  time.Duration(cfg.Generate.RetryInitialMS) * time.Millisecond,
		Logger:        logger,
	}

	// 阶段三
	rd, err := registry.Renderer["html"](mustJSON(map[string]any{
		"template_file":       cfg.Publish.TemplateFile,
		"index_template_file": cfg.Publish.IndexTemplateFile,
		"icon_base_url":       cfg.Publish.IconBaseURL,
		"period_name":         cfg.Publish.PeriodName,
	}))
	if err != nil {
		return fail(err)
	}
	publish := &stage.Publish{
		Renderer: rd, Scheme: scheme, Read: workR, Work: workW, Docs: docsW,
		Archive: store, SiteTitle: cfg.Publish.SiteTitle, PeriodName: cfg.Publish.PeriodName, Logger: logger,
	}

	start, _ := time.Parse("2006-01-02", cfg.Season.StartDate)
	resolver, err := period.New(cfg.Season.PeriodStrategy, start, cfg.Season.PeriodCount, cfg.Season.ManualPeriod)
	if err != nil {
		return fail(err)
	}
	app.Orchestrator = &pipeline.Orchestrator{
		Stages:          [3]pipeline.Stage{fetch, generate, publish},
		Resolver:        resolver,
		Scheme:          scheme,
		SeasonYear:      cfg.Season.Year,
		Providers:       []string{name},
		DefaultProvider: name,
		Logger:          logger,
	}
	app.Reindex = &stage.Reindex{
		Renderer: rd, Scheme: scheme, Read: workR, Docs: docsW,
		Archive: store, SiteTitle: cfg.Publish.SiteTitle, PeriodName: cfg.Publish.PeriodName, Logger: logger,
	}
	app.Validate = &stage.Validate{Scheme: scheme, Read: workR}
	return app, nil
}

// buildProvider 构造客户端与限流闸门；分组键优先由 API Key 派生，失败时退化为 provider 名称。
func buildProvider(ctx context.Context, name string, p Provider, maxRetries int) (stage.Provider, error) {
	raw, err := json.Marshal(p.Options)
	if err != nil {
		return stage.Provider{}, contract.NewInputError("provider."+name+".options", "", err.Error())
	}
	client, err := registry.LLMClient[p.Client](ctx, raw)
	if err != nil {
		return stage.Provider{}, err
	}
	key, derr := rate.DeriveKey(p.Client, raw, os.Getenv)
	if derr != nil {
		key = rate.LimitKey(name)
	}
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{
		key: {RPM: p.Limits.RPM, TPM: p.Limits.TPM, MaxTokensPerReq: p.Limits.MaxTokensPerReq},
	}, nil)
	return stage.Provider{Name: name, Client: client, Gate: gate, Key: key, MaxRetries: maxRetries}, nil
}

// openArchive 按配置打开归档存储；file 存储的路径拆分为目录 + 文件名。
// memory 仅存活于本进程，用于演练。
func openArchive(ctx context.Context, a Archive) (archive.Store, func() error, error) {
	dir, file := filepath.Split(filepath.Clean(a.Path))
	if dir == "" {
		dir = "."
	}
	switch a.Store {
	case "memory":
		return archive.NewMemoryStore(), nil, nil
	case "sqlite":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
		s, err := archive.OpenSQLite(ctx, a.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		r, err := registry.Reader["fs"](mustJSON(map[string]any{"root": dir}))
		if err != nil {
			return nil, nil, err
		}
		w, err := registry.Writer["fs"](mustJSON(map[string]any{"output_dir": dir}))
		if err != nil {
			return nil, nil, err
		}
		return archive.NewFileStore(r, w, contract.ArtifactID(file)), nil, nil
	}
}

func fetchOptions(f Fetch) json.RawMessage {
	return mustJSON(map[string]any{
		"base_url":           f.BaseURL,
		"season_type":        f.SeasonType,
		"concurrency":        f.Concurrency,
		"timeout_seconds":    f.TimeoutSeconds,
		"max_retries":        f.MaxRetries,
		"rpm":                f.RPM,
		"timezone":           f.Timezone,
		"skip_recaps":        f.SkipRecaps,
		"include_unfinished": f.IncludeUnfinished,
	})
}

// mustJSON 编码本包构造的选项表（仅含标量）。
func mustJSON(v map[string]any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("config: encode options: %v", err))
	}
	return b
}
