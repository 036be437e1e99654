package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"gridnews/pkg/contract"
)

// ExecStage 将外部进程适配为 Stage，退出码约定：0→Ok，1→NoData，2→StageError。
// 其他非零退出码与启动失败同样视为 StageError。
// 运行身份通过环境变量传入：GRIDNEWS_YEAR/PERIOD/MODE/SUB_KEY/DATE/PROVIDER。
type ExecStage struct {
	StageName string
	Command   []string
	Dir       string
	// Env 附加到当前进程环境之后。
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

func (e *ExecStage) Name() string { return e.StageName }

func (e *ExecStage) Run(ctx context.Context, job Job) error {
	if len(e.Command) == 0 {
		return fmt.Errorf("%w: exec stage %q without command", contract.ErrStageError, e.StageName)
	}
	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Dir = e.Dir
	cmd.Env = append(append(os.Environ(), e.Env...), jobEnv(job)...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", contract.ErrStageError, ctxErr)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		switch ee.ExitCode() {
		case 1:
			return fmt.Errorf("%s: %w", e.StageName, contract.ErrNoData)
		default:
			return fmt.Errorf("%w: %s exited with %d", contract.ErrStageError, e.StageName, ee.ExitCode())
		}
	}
	return fmt.Errorf("%w: start %s: %w", contract.ErrStageError, e.StageName, err)
}

func jobEnv(job Job) []string {
	id := job.Identity
	return []string{
		"GRIDNEWS_YEAR=" + strconv.Itoa(id.Year),
		"GRIDNEWS_PERIOD=" + strconv.Itoa(id.Period),
		"GRIDNEWS_MODE=" + id.Mode.CLIToken(),
		"GRIDNEWS_SUB_KEY=" + id.SubKey,
		"GRIDNEWS_DATE=" + job.Date.Format("20060102"),
		"GRIDNEWS_PROVIDER=" + job.Provider,
	}
}

// upstreamKV 取出上游 HTTP 诊断信息写入日志 kv。
func upstreamKV(err error) map[string]string {
	var u contract.UpstreamError
	if !errors.As(err, &u) {
		return nil
	}
	msg := u.UpstreamMessage()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return map[string]string{"http_status": strconv.Itoa(u.UpstreamStatus()), "upstream": msg}
}
