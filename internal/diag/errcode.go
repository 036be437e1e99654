package diag

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"time"

	"gridnews/pkg/contract"
)

// Code 是错误分类代码，仅用于日志/指标汇总；退出码见 ExitCode。
type Code string

const (
	CodeUnknown           Code = "unknown"
	CodeInvalidInput      Code = "invalid_input"
	CodeNoData            Code = "no_data"
	CodeMalformedIdentity Code = "malformed_identity"
	CodeUnparsable        Code = "unparsable"
	CodeSchema            Code = "schema"
	CodeIncomplete        Code = "incomplete"
	CodeBudget            Code = "budget"
	CodeNetwork           Code = "network"
	CodeIO                Code = "io"
	CodeCancel            Code = "cancel"
	CodeInvariant         Code = "invariant"
)

// Classify 将错误归为最小分类。仅依赖哨兵与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	switch {
	case errors.Is(err, contract.ErrNoData):
		return CodeNoData
	case errors.Is(err, contract.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, contract.ErrMalformedIdentity):
		return CodeMalformedIdentity
	case errors.Is(err, contract.ErrSchemaViolation):
		return CodeSchema
	case errors.Is(err, contract.ErrUnparsableResponse):
		return CodeUnparsable
	case errors.Is(err, contract.ErrIncompleteGeneration):
		return CodeIncomplete
	case errors.Is(err, contract.ErrBudgetExceeded), errors.Is(err, contract.ErrRateLimited):
		return CodeBudget
	case errors.Is(err, contract.ErrInvariantViolation), errors.Is(err, contract.ErrPathInvalid):
		return CodeInvariant
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	var uerr contract.UpstreamError
	if errors.As(err, &uerr) {
		return CodeNetwork
	}
	return CodeUnknown
}

// 进程退出码。
const (
	ExitOK      = 0
	ExitNoData  = 1
	ExitFailed  = 2
	ExitInvalid = 3
)

// ExitCode 将单阶段命令的错误映射为退出码：nil→0，NoData→1，InvalidInput→3，其余→2。
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, contract.ErrNoData):
		return ExitNoData
	case errors.Is(err, contract.ErrInvalidInput):
		return ExitInvalid
	default:
		return ExitFailed
	}
}

// NowUTC 返回 RFC3339 UTC 时间字符串。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
