package contract

// UpstreamError 承载 HTTP 上游错误（LLM provider / 比分接口）的最小诊断信息。
// 日志层通过 errors.As 取出状态码与消息片段写入 kv 字段。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}
