package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"gridnews/pkg/contract"
)

// EnvPrefix 为配置覆盖的环境变量前缀。
const EnvPrefix = "GRIDNEWS_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Season: Season{
			Year:           2025,
			StartDate:      "2025-09-04",
			PeriodCount:    18,
			PeriodStrategy: "date",
		},
		Storage: Storage{WorkDir: "data", DocsDir: "docs", PeriodLabel: "week"},
		Archive: Archive{Store: "file", Path: "docs/archive.json"},
		Logging: Logging{Level: "info"},
		Fetch: Fetch{
			Client:         "espn",
			SeasonType:     2,
			Concurrency:    5,
			TimeoutSeconds: 15,
			MaxRetries:     3,
			Timezone:       "America/New_York",
		},
		Generate: Generate{
			Provider:        "claude",
			MaxSummaryChars: 1500,
			MaxTokens:       150000,
			BytesPerToken:   4,
			MaxRetries:      2,
			RetryInitialMS:  2000,
		},
		Publish: Publish{SiteTitle: "NFL Weekly Newsletter", PeriodName: "Week"},
		Provider: map[string]Provider{
			"claude": {Client: "claude"},
			"openai": {Client: "openai"},
			"gemini": {Client: "gemini"},
			"mock":   {Client: "mock"},
			"flaky":  {Client: "flaky"},
		},
	}
}

// Load 按 defaults < file < ENV 的顺序生成配置。
// path 为空时跳过文件；environ 为 nil 时读取进程环境。
func Load(path string, environ map[string]string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		if err := DecodeYAML(f, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, environ); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DecodeYAML 在 cfg 现有值之上严格解码（未知字段报错）；空文档不修改 cfg。
func DecodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return contract.NewInputError("config", "", err.Error())
	}
	return nil
}

// ApplyEnv 以 GRIDNEWS_ 前缀的环境变量覆盖标量字段。
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return contract.NewInputError("env", "", err.Error())
	}
	return nil
}

// Merge 按优先级合并（后者覆盖前者）。用于 CLI 覆盖：仅非零字段替换。
func Merge(base, over Config) Config {
	out := base
	if s := strings.TrimSpace(over.Generate.Provider); s != "" {
		out.Generate.Provider = s
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}
	if s := strings.TrimSpace(over.Storage.WorkDir); s != "" {
		out.Storage.WorkDir = s
	}
	if s := strings.TrimSpace(over.Storage.DocsDir); s != "" {
		out.Storage.DocsDir = s
	}
	if s := strings.TrimSpace(over.Metrics.Textfile); s != "" {
		out.Metrics.Textfile = s
	}
	// Provider（完整替换对应键）
	if len(over.Provider) > 0 {
		merged := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			merged[k] = v
		}
		for k, v := range over.Provider {
			merged[k] = v
		}
		out.Provider = merged
	}
	return out
}

// LoadDotEnv 读取简单的 .env 文件并注入进程环境。
// 规则：
// - 忽略不存在的文件；
// - 跳过空行与 # 注释；支持可选的前缀 "export "；
// - 仅按首个 '=' 分割；成对的单/双引号被去除，双引号内处理 \n \t \" \\；
// - 空值与已存在的环境变量均不写入。
func LoadDotEnv(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for key, val := range ParseDotEnv(b) {
		if val == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return err
		}
	}
	return nil
}

// ParseDotEnv 解析 .env 内容；空值键保留为空串。
func ParseDotEnv(b []byte) map[string]string {
	out := map[string]string{}
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 {
			q := val[0]
			if (q == '\'' || q == '"') && val[len(val)-1] == q {
				val = val[1 : len(val)-1]
				if q == '"' {
					val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
				}
			}
		}
		out[key] = val
	}
	return out
}
