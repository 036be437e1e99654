package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// DeriveKey 从 client 名与原样 Options JSON 中取出 API Key，
// 返回 client:sha256(key) 形式的分组键；同一把 key 的多个 provider 共享额度。
// 仅识别 "api_key" 与 "api_key_env"；lookup 为环境变量读取函数（nil 视为全空）。
// mock/flaky 客户端无 key 时使用固定调试键。
func DeriveKey(client string, raw json.RawMessage, lookup func(string) string) (LimitKey, error) {
	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	pick := func(key string) string {
		if s, ok := obj[key].(string); ok {
			return s
		}
		return ""
	}

	key := pick("api_key")
	if key == "" && lookup != nil {
		if env := pick("api_key_env"); env != "" {
			key = lookup(env)
		}
	}
	if key == "" && (client == "mock" || client == "flaky") {
		key = "MOCK_DEBUG_KEY"
	}
	if key == "" {
		return "", fmt.Errorf("rate: missing api key for client %s", client)
	}
	sum := sha256.Sum256([]byte(key))
	return LimitKey(fmt.Sprintf("%s:%x", client, sum[:8])), nil
}
