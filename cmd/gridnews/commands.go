package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cfgpkg "gridnews/internal/config"
	"gridnews/internal/diag"
	"gridnews/internal/pipeline"
	"gridnews/internal/quality"
)

// newStageCmd: n=0 运行完整流水线，1..3 只运行对应阶段。
func newStageCmd(stdout, stderr io.Writer, use, short string, n int) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd.Context(), o, stderr)
			if err != nil {
				return err
			}
			req := pipeline.Request{Date: o.date, Mode: o.mode, Provider: s.cfg.Generate.Provider}
			code, runErr := runRequest(cmd, s, req, n, stdout)
			if cerr := s.close(); cerr != nil {
				fprintf(stderr, "%v\n", cerr)
			}
			if code == diag.ExitOK {
				return nil
			}
			if runErr != nil {
				runErr = fmt.Errorf("运行失败: %w", runErr)
			}
			return &exitError{code: code, err: runErr}
		},
	}
	addConfigFlag(cmd, &o)
	cmd.Flags().StringVar(&o.date, "date", "", "运行日期 YYYYMMDD（必填）")
	cmd.Flags().StringVar(&o.mode, "mode", "day", "运行粒度：day|week")
	cmd.Flags().StringVar(&o.provider, "provider", "", "provider 名称（覆盖配置 generate.provider）")
	cmd.Flags().BoolVar(&o.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 逐行输出")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func runRequest(cmd *cobra.Command, s *session, req pipeline.Request, n int, stdout io.Writer) (int, error) {
	ctx := cmd.Context()
	if n == 0 {
		res := s.app.Orchestrator.Run(ctx, req)
		if res.State != "" && res.Identity.Year > 0 {
			fprintf(stdout, "%s %s\n", res.Identity, res.State)
		}
		return res.ExitCode, res.Err
	}
	id, code, err := s.app.Orchestrator.RunStage(ctx, req, n)
	if id.Year > 0 {
		fprintf(stdout, "%s %s exit=%d\n", id, cmd.Name(), code)
	}
	return code, err
}

func newReindexCmd(stdout, stderr io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the archive and index.html from every augmented.json in the work tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd.Context(), o, stderr)
			if err != nil {
				return err
			}
			n, runErr := s.app.Reindex.Run(cmd.Context())
			if cerr := s.close(); cerr != nil {
				fprintf(stderr, "%v\n", cerr)
			}
			if runErr != nil {
				return &exitError{code: diag.ExitCode(runErr), err: fmt.Errorf("重建索引失败: %w", runErr)}
			}
			fprintf(stdout, "reindexed %d entries\n", n)
			return nil
		},
	}
	addConfigFlag(cmd, &o)
	return cmd
}

// newValidateCmd 对已生成的 augmented.json 重跑质量检查；存在 error 级问题时退出码 2。
func newValidateCmd(stdout, stderr io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Re-run the data quality checks on a generated augmented.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd.Context(), o, stderr)
			if err != nil {
				return err
			}
			rep, runErr := validate(cmd, s, o, stdout)
			if cerr := s.close(); cerr != nil {
				fprintf(stderr, "%v\n", cerr)
			}
			if runErr != nil {
				return &exitError{code: diag.ExitCode(runErr), err: fmt.Errorf("检查失败: %w", runErr)}
			}
			if err := rep.Err(); err != nil {
				return &exitError{code: diag.ExitCode(err), err: fmt.Errorf("质量检查未通过: %d 个错误", rep.Count(quality.SevError))}
			}
			return nil
		},
	}
	addConfigFlag(cmd, &o)
	cmd.Flags().StringVar(&o.date, "date", "", "运行日期 YYYYMMDD（必填）")
	cmd.Flags().StringVar(&o.mode, "mode", "day", "运行粒度：day|week")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func validate(cmd *cobra.Command, s *session, o options, stdout io.Writer) (quality.Report, error) {
	job, err := s.app.Orchestrator.Prepare(pipeline.Request{Date: o.date, Mode: o.mode, Provider: s.cfg.Generate.Provider})
	if err != nil {
		return quality.Report{}, err
	}
	rep, err := s.app.Validate.Run(cmd.Context(), job)
	if err != nil {
		return rep, err
	}
	for _, is := range rep.Sorted() {
		fprintf(stdout, "%s\n", is)
	}
	fprintf(stdout, "%s %s\n", job.Identity, rep.Summary())
	return rep, nil
}

func newInitConfigCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write template config.yaml and .env into dir (default .); existing files are kept",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return &exitError{code: diag.ExitInvalid, err: fmt.Errorf("生成默认配置失败: %w", err)}
			}
			b, err := cfgpkg.TemplateYAML(cfgpkg.DefaultTemplateConfig())
			if err != nil {
				return &exitError{code: diag.ExitFailed, err: fmt.Errorf("生成默认配置失败: %w", err)}
			}
			for _, f := range []struct {
				name string
				body []byte
			}{
				{"config.yaml", b},
				{".env", []byte(cfgpkg.DotEnvTemplate())},
			} {
				p := filepath.Join(dir, f.name)
				created, err := writeExclusive(p, f.body)
				if err != nil {
					return &exitError{code: diag.ExitInvalid, err: fmt.Errorf("生成 %s 失败: %w", f.name, err)}
				}
				if created {
					fprintf(stdout, "wrote %s\n", p)
				} else {
					fprintf(stderr, "提示：%s 已存在，跳过\n", p)
				}
			}
			return nil
		},
	}
}

// writeExclusive 仅在文件不存在时写入；已存在返回 created=false。
func writeExclusive(path string, b []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
