package prompt

import (
	"context"
	"errors"
	"testing"

	"gridnews/pkg/contract"
)

type mockPB struct{ overhead int }

func (m *mockPB) Build(context.Context, contract.BaseRecordSet) (contract.Prompt, error) {
	return nil, nil
}

func (m *mockPB) EstimateOverheadTokens(contract.TokenEstimator) int { return m.overhead }

// UT-PRM-01: 默认估算器
func TestMakeEstimatorDefault(t *testing.T) {
	est := MakeEstimator(0)
	if est("abcdef") != 2 {
		t.Fatalf("6 字节应估算为 2 token")
	}
	if est("") != 0 {
		t.Fatalf("空串应为 0")
	}
}

// UT-PRM-02: 0 预算
func TestEffectiveMaxTokensZero(t *testing.T) {
	eff, over := EffectiveMaxTokens(&mockPB{}, 0, 0)
	if eff != 0 || over != 0 {
		t.Fatalf("应返回 0,0")
	}
}

// 补充覆盖: 非零开销
func TestEffectiveMaxTokensOverhead(t *testing.T) {
	eff, over := EffectiveMaxTokens(&mockPB{overhead: 5}, 4, 10)
	if eff != 5 || over != 5 {
		t.Fatalf("预期 5,5 得到 %d,%d", eff, over)
	}
}

// UT-PRM-03: 提示词估算
func TestPromptTokens(t *testing.T) {
	est := MakeEstimator(4)
	if n := PromptTokens(contract.TextPrompt("12345678"), est); n != 2 {
		t.Fatalf("TextPrompt 估算错误: %d", n)
	}
	chat := contract.ChatPrompt{{Role: "system", Content: "1234"}, {Role: "user", Content: "12345"}}
	if n := PromptTokens(chat, est); n != 3 {
		t.Fatalf("ChatPrompt 估算错误: %d", n)
	}
	if n := PromptTokens(42, est); n != 0 {
		t.Fatalf("未知载荷应为 0: %d", n)
	}
}

// UT-PRM-04: 预算检查
func TestCheck(t *testing.T) {
	p := contract.TextPrompt("0123456789012345") // 16 字节 → 4 token
	if n, err := Check(&mockPB{overhead: 1}, p, 4, 0); err != nil || n != 4 {
		t.Fatalf("不限预算应通过: %d %v", n, err)
	}
	if _, err := Check(&mockPB{overhead: 1}, p, 4, 4); err != nil {
		t.Fatalf("恰好等于预算应通过: %v", err)
	}
	if _, err := Check(&mockPB{overhead: 1}, p, 4, 3); !errors.Is(err, contract.ErrBudgetExceeded) {
		t.Fatalf("超预算应失败: %v", err)
	}
	if _, err := Check(&mockPB{overhead: 10}, p, 4, 10); !errors.Is(err, contract.ErrBudgetExceeded) {
		t.Fatalf("开销吞没预算应失败: %v", err)
	}
}
