package contract

import (
	"errors"
	"fmt"
)

// 运行级错误分类（哨兵）。上层只用 errors.Is/As 判定，不做字符串匹配。
var (
	// ErrInvalidInput: 任何阶段开始前的参数错误（date/mode/provider/配置）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoData: 预期内的空结果（例如轮空周），非错误终态。
	ErrNoData = errors.New("no data")
	// ErrMalformedIdentity: 身份/路径派生的不变量违例，属调用方缺陷。
	ErrMalformedIdentity = errors.New("malformed identity")
	// ErrUnparsableResponse: 生成文本中找不到可解析的 JSON 对象。
	ErrUnparsableResponse = errors.New("unparsable response")
	// ErrSchemaViolation: JSON 可解析但不符合条目结构。
	ErrSchemaViolation = errors.New("schema violation")
	// ErrIncompleteGeneration: 存在没有生成内容的基础记录。
	ErrIncompleteGeneration = errors.New("incomplete generation")
	// ErrStageError: 外部协作者冒泡的不透明失败。
	ErrStageError = errors.New("stage error")
)

// 支撑性错误分类。
var (
	// ErrRateLimited: 上游 429 或本地闸门拒绝。
	ErrRateLimited = errors.New("rate limited")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrBudgetExceeded: 预算或配额不足（如 token 预算、上游配额）。
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)

// InputError 指明具体出错的输入字段；Unwrap 为 ErrInvalidInput。
type InputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// NewInputError 便捷构造。
func NewInputError(field, value, reason string) error {
	return &InputError{Field: field, Value: value, Reason: reason}
}
