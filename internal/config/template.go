package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个"可运行"的默认配置模板：
// - 使用 mock provider 与合理限额（本地/离线调试友好）；
// - 工作树 ./data，站点目录 ./docs；
// - 三个真实 provider 给出模型与密钥变量名，密钥本身只放在 .env。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Generate.Provider = "mock"
	cfg.Generate.MaxTokens = 100000
	cfg.Logging.Dir = "logs"
	cfg.Provider = map[string]Provider{
		"mock": {
			Client:  "mock",
			Options: map[string]any{"prefix": "MOCK", "response_mode": "fenced"},
			Limits:  Limits{RPM: 60, TPM: 200000, MaxTokensPerReq: 150000},
		},
		"flaky": {
			Client:  "flaky",
			Options: map[string]any{"failures": 1},
		},
		"claude": {
			Client: "claude",
			Options: map[string]any{
				"model":           "claude-sonnet-4-20250514",
				"api_key_env":     "ANTHROPIC_API_KEY",
				"max_tokens":      8192,
				"timeout_seconds": 120,
			},
			Limits: Limits{RPM: 50, TPM: 400000, MaxTokensPerReq: 150000},
		},
		"openai": {
			Client: "openai",
			Options: map[string]any{
				"model":           "gpt-4o",
				"api_key_env":     "OPENAI_API_KEY",
				"max_tokens":      8192,
				"timeout_seconds": 120,
			},
			Limits: Limits{RPM: 60, TPM: 300000, MaxTokensPerReq: 120000},
		},
		"gemini": {
			Client: "gemini",
			Options: map[string]any{
				"model":              "gemini-2.5-flash",
				"api_key_env":        "GOOGLE_API_KEY",
				"max_tokens":         8192,
				"timeout_seconds":    120,
				"response_mime_type": "",
			},
			Limits: Limits{RPM: 10, TPM: 250000, MaxTokensPerReq: 150000},
		},
	}
	return cfg
}

// TemplateYAML 渲染 config.yaml 模板内容。
func TemplateYAML(cfg Config) ([]byte, error) {
	var b strings.Builder
	b.WriteString("# gridnews 配置（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(GRIDNEWS_*) > 本文件 > 内置默认\n")
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// DotEnvTemplate 返回 .env 模板：常用覆盖项与供应商密钥，值均为空。
func DotEnvTemplate() string {
	var b strings.Builder
	b.WriteString("# gridnews .env 模板（由 init-config 生成）\n")
	b.WriteString("# 空值表示未设置；已存在的环境变量不会被覆盖。\n\n")
	b.WriteString("# 供应商 API Key\n")
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY"} {
		b.WriteString(k + "=\n")
	}
	b.WriteString("\n# 运行参数覆盖\n")
	for _, k := range []string{
		"SEASON_YEAR", "SEASON_START_DATE",
		"STORAGE_WORK_DIR", "STORAGE_DOCS_DIR",
		"LOG_LEVEL", "METRICS_TEXTFILE",
		"GENERATE_PROVIDER", "GENERATE_MAX_RETRIES",
	} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	return b.String()
}
