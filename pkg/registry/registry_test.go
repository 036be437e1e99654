package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"gridnews/pkg/contract"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	if err := strictUnmarshal(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil 输入失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`null`), &o); err != nil || o.A != 0 {
		t.Fatalf("null 输入失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1}`), &o); err != nil || o.A != 1 {
		t.Fatalf("合法 JSON 解析失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o); err == nil {
		t.Fatalf("未知字段应报错")
	}
}

// TestFactories 遍历注册表入口；未知字段一律归类为 InvalidInput。
func TestFactories(t *testing.T) {
	bad := json.RawMessage(`{"x":1}`)
	mustInvalid := func(t *testing.T, err error) {
		t.Helper()
		if !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("期望 InvalidInput，得到 %v", err)
		}
	}
	t.Run("reader", func(t *testing.T) {
		if _, err := Reader["fs"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("reader: %v", err)
		}
		_, err := Reader["fs"](bad)
		mustInvalid(t, err)
	})
	t.Run("writer", func(t *testing.T) {
		tmp := t.TempDir()
		raw := json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, tmp))
		if _, err := Writer["fs"](raw); err != nil {
			t.Fatalf("writer: %v", err)
		}
		_, err := Writer["fs"](json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"x":1}`, tmp)))
		mustInvalid(t, err)
	})
	t.Run("fetcher", func(t *testing.T) {
		if _, err := Fetcher["espn"](nil, nil); err != nil {
			t.Fatalf("espn: %v", err)
		}
		_, err := Fetcher["espn"](bad, nil)
		mustInvalid(t, err)
		_, err = Fetcher["espn"](json.RawMessage(`{"season_type":9}`), nil)
		mustInvalid(t, err)
	})
	t.Run("prompt", func(t *testing.T) {
		if _, err := PromptBuilder["newsletter"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("prompt: %v", err)
		}
		_, err := PromptBuilder["newsletter"](bad)
		mustInvalid(t, err)
	})
	t.Run("renderer", func(t *testing.T) {
		if _, err := Renderer["html"](nil); err != nil {
			t.Fatalf("renderer: %v", err)
		}
		_, err := Renderer["html"](bad)
		mustInvalid(t, err)
	})
	t.Run("llm-offline", func(t *testing.T) {
		for _, name := range []string{"mock", "flaky"} {
			if _, err := LLMClient[name](context.Background(), json.RawMessage(`{}`)); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			_, err := LLMClient[name](context.Background(), bad)
			mustInvalid(t, err)
		}
	})
	t.Run("llm-missing-key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("GOOGLE_API_KEY", "")
		for _, name := range []string{"claude", "openai", "gemini"} {
			_, err := LLMClient[name](context.Background(), json.RawMessage(`{}`))
			mustInvalid(t, err)
		}
	})
	t.Run("llm-with-key", func(t *testing.T) {
		for _, name := range []string{"claude", "openai", "gemini"} {
			if _, err := LLMClient[name](context.Background(), json.RawMessage(`{"api_key":"k"}`)); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
		}
	})
}
