// Package wire 收拢各 LLM 客户端共用的小工具：上游错误、提示词拆分、密钥解析。
package wire

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"gridnews/pkg/contract"
)

// Error 是 HTTP 上游错误。
// 5xx/408 以 net.Error 语义暴露（可重试）；429 归入 ErrRateLimited；其余 4xx 归入 ErrStageError。
type Error struct {
	Provider string
	Status   int
	Msg      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s upstream %d: %s", e.Provider, e.Status, e.Msg)
}
func (e *Error) Timeout() bool           { return e.Status == http.StatusRequestTimeout }
func (e *Error) Temporary() bool         { return e.Status/100 == 5 || e.Status == http.StatusRequestTimeout }
func (e *Error) UpstreamStatus() int     { return e.Status }
func (e *Error) UpstreamMessage() string { return e.Msg }

func (e *Error) Unwrap() error {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return contract.ErrRateLimited
	case e.Temporary():
		return nil
	default:
		return contract.ErrStageError
	}
}

// NewError 构造上游错误；消息截断到 512 字节，避免日志膨胀。
func NewError(provider string, status int, msg string) *Error {
	msg = strings.TrimSpace(msg)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return &Error{Provider: provider, Status: status, Msg: msg}
}

// SplitPrompt 把 Prompt 拆为 system 与 user 两段文本。
// ChatPrompt: 所有 system 消息合并为 system，其余按序以空行连接为 user。
// TextPrompt: 整体作为 user。
func SplitPrompt(p contract.Prompt) (system, user string, err error) {
	switch v := p.(type) {
	case contract.TextPrompt:
		if strings.TrimSpace(string(v)) == "" {
			return "", "", fmt.Errorf("%w: empty prompt", contract.ErrInvariantViolation)
		}
		return "", string(v), nil
	case contract.ChatPrompt:
		var sys, usr []string
		for _, m := range v {
			if strings.EqualFold(strings.TrimSpace(m.Role), "system") {
				sys = append(sys, m.Content)
				continue
			}
			usr = append(usr, m.Content)
		}
		user = strings.Join(usr, "\n\n")
		if strings.TrimSpace(user) == "" {
			return "", "", fmt.Errorf("%w: prompt without user content", contract.ErrInvariantViolation)
		}
		return strings.Join(sys, "\n\n"), user, nil
	default:
		return "", "", fmt.Errorf("%w: unsupported prompt type %T", contract.ErrInvariantViolation, p)
	}
}

// ResolveKey: 明文 key 优先，其次环境变量；缺失返回 InputError。
func ResolveKey(provider, key, env string) (string, error) {
	if key != "" {
		return key, nil
	}
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	return "", contract.NewInputError("provider", provider, "missing api key (set "+env+")")
}
