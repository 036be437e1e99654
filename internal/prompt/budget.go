package prompt

import (
	"fmt"

	"gridnews/pkg/contract"
)

// MakeEstimator 返回近似 token 估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// bytesPerToken<=0 时采用默认 4。
func MakeEstimator(bytesPerToken int) contract.TokenEstimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// EffectiveMaxTokens 计算预扣固定提示开销后的有效预算。
// 返回 (effectiveMax, overheadTokens)。若 maxTokens<=0，返回 (0,0)。
func EffectiveMaxTokens(pb contract.PromptBuilder, bytesPerToken int, maxTokens int) (int, int) {
	if maxTokens <= 0 {
		return 0, 0
	}
	overhead := pb.EstimateOverheadTokens(MakeEstimator(bytesPerToken))
	return maxTokens - overhead, overhead
}

// PromptTokens 估算已构造提示词的 token 数（TextPrompt 或 ChatPrompt）。
func PromptTokens(p contract.Prompt, est contract.TokenEstimator) int {
	switch v := p.(type) {
	case contract.TextPrompt:
		return est(string(v))
	case contract.ChatPrompt:
		n := 0
		for _, m := range v {
			n += est(m.Content)
		}
		return n
	case string:
		return est(v)
	default:
		return 0
	}
}

// Check 校验提示词是否落在预算内；maxTokens<=0 表示不限制。
// 返回估算的提示词 token 数；超限时错误包裹 ErrBudgetExceeded。
func Check(pb contract.PromptBuilder, p contract.Prompt, bytesPerToken, maxTokens int) (int, error) {
	used := PromptTokens(p, MakeEstimator(bytesPerToken))
	if maxTokens <= 0 {
		return used, nil
	}
	eff, overhead := EffectiveMaxTokens(pb, bytesPerToken, maxTokens)
	if eff <= 0 {
		return used, fmt.Errorf("%w: fixed prompt overhead %d tokens leaves no room in %d", contract.ErrBudgetExceeded, overhead, maxTokens)
	}
	if used > maxTokens {
		return used, fmt.Errorf("%w: prompt needs ~%d tokens (overhead %d), budget %d", contract.ErrBudgetExceeded, used, overhead, maxTokens)
	}
	return used, nil
}
