package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "gridnews/internal/config"
	"gridnews/internal/diag"
)

// 子命令：run | fetch | generate | publish | reindex | validate | init-config。
// 退出码：0 成功，1 无数据，2 失败，3 参数/配置错误。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError 携带子命令决定的退出码；其余 Execute 错误均视为参数错误。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return diag.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !errors.Is(ee.err, context.Canceled) {
			fprintf(stderr, "%v\n", ee.err)
		}
		return ee.code
	}
	fprintf(stderr, "参数错误: %v\n", err)
	return diag.ExitInvalid
}

// options: 阶段命令共享的旗标。
type options struct {
	config   string
	date     string
	mode     string
	provider string
	status   bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "gridnews",
		Short: "Generate the weekly NFL newsletter: fetch scores, summarize with an LLM, publish HTML",
		Long: `gridnews runs a three-stage pipeline for one calendar date:

  fetch     pull finished games into {work_dir}/{year}-{label}{NN}/[YYYYMMDD/]base.json
  generate  summarize and tag every game with the configured LLM provider
  publish   render the newsletter page and refresh the archive index

Exit codes: 0 success, 1 no games, 2 failure, 3 invalid arguments or config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: diag.ExitInvalid, err: fmt.Errorf("参数错误: %w", err)}
	})

	root.AddCommand(
		newStageCmd(stdout, stderr, "run", "Run fetch, generate and publish in order", 0),
		newStageCmd(stdout, stderr, "fetch", "Run only stage 1 (fetch games)", 1),
		newStageCmd(stdout, stderr, "generate", "Run only stage 2 (LLM summaries and tags)", 2),
		newStageCmd(stdout, stderr, "publish", "Run only stage 3 (render and archive)", 3),
		newReindexCmd(stdout, stderr),
		newValidateCmd(stdout, stderr),
		newInitConfigCmd(stdout, stderr),
	)
	return root
}

func addConfigFlag(cmd *cobra.Command, o *options) {
	cmd.Flags().StringVar(&o.config, "config", "", "配置文件路径（YAML）；缺省读取 $GRIDNEWS_CONFIG_FILE 或 ./config.yaml（若存在）")
}

// resolveConfigPath: --config > GRIDNEWS_CONFIG_FILE > ./config.yaml（若存在）。
func resolveConfigPath(flagPath string) string {
	if s := strings.TrimSpace(flagPath); s != "" {
		return s
	}
	if s := strings.TrimSpace(os.Getenv("GRIDNEWS_CONFIG_FILE")); s != "" {
		return s
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

// session: 一次命令调用装配出的运行环境。
type session struct {
	cfg    cfgpkg.Config
	app    *cfgpkg.App
	logger *diag.Logger
	term   *diag.Terminal
}

// open 加载 .env 与配置、合并 CLI 覆盖、装配应用。
// 配置错误退出码 3；装配期的 I/O 等内部失败按错误分类（通常为 2）。
func open(ctx context.Context, o options, stderr io.Writer) (*session, error) {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
	if err := cfgpkg.LoadDotEnv(".env"); err != nil {
		return nil, &exitError{code: diag.ExitInvalid, err: fmt.Errorf(".env 读取失败: %w", err)}
	}
	cfg, err := cfgpkg.Load(resolveConfigPath(o.config), nil)
	if err != nil {
		return nil, &exitError{code: diag.ExitInvalid, err: fmt.Errorf("配置解析失败: %w", err)}
	}
	cfg = cfgpkg.Merge(cfg, cfgpkg.Config{Generate: cfgpkg.Generate{Provider: o.provider}})

	logger := diag.NewLoggerDir(uuid.NewString(), cfg.Logging.Level, cfg.Logging.Dir)
	app, err := cfgpkg.Assemble(ctx, cfg, logger)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), err.Error(), nil)
		_ = logger.Sync()
		return nil, &exitError{code: diag.ExitCode(err), err: fmt.Errorf("装配失败: %w", err)}
	}
	logger.DebugStart("config", "effective", "", map[string]string{
		"provider":   cfg.Generate.Provider,
		"client":     cfg.Provider[cfg.Generate.Provider].Client,
		"fetch":      cfg.Fetch.Client,
		"work_dir":   cfg.Storage.WorkDir,
		"docs_dir":   cfg.Storage.DocsDir,
		"archive":    cfg.Archive.Store,
		"max_tokens": fmt.Sprint(cfg.Generate.MaxTokens),
	})
	term := diag.NewTerminal(stderr, o.status)
	app.Orchestrator.Terminal = term
	return &session{cfg: cfg, app: app, logger: logger, term: term}, nil
}

// close 释放资源并按需导出指标；返回首个错误。
func (s *session) close() error {
	var first error
	if err := s.app.Close(); err != nil {
		first = err
	}
	if p := strings.TrimSpace(s.cfg.Metrics.Textfile); p != "" {
		if err := diag.WriteMetrics(p); err != nil && first == nil {
			first = fmt.Errorf("写入指标失败: %w", err)
		}
	}
	if err := s.logger.Sync(); err != nil && first == nil {
		first = err
	}
	return first
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
