package contract

import "context"

// Raw: LLM 客户端返回的原始文本载荷。
// 约束：原样返回，不做清洗/截断/归一化；抽取由 extract 包负责。
type Raw struct {
	Text string
}

// LLMClient: 以 BaseRecordSet+Prompt 为单位与大模型交互，返回原始文本 Raw。
// 单次调用、同步返回；应尊重 ctx 取消/超时并及时释放资源。
type LLMClient interface {
	Invoke(ctx context.Context, set BaseRecordSet, p Prompt) (Raw, error)
}

// ModelNamer: 可选接口，暴露实际使用的模型名（写入生成元信息）。
type ModelNamer interface {
	Model() string
}
