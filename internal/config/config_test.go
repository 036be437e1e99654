package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridnews/internal/pipeline"
	"gridnews/pkg/contract"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// UT-CFG-01: YAML 覆盖默认值，provider 选项原样保留
func TestLoadYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", `
season:
  year: 2024
  start_date: "2024-09-05"
storage:
  work_dir: out/data
generate:
  provider: openai
  max_retries: 0
provider:
  openai:
    client: openai
    options:
      model: gpt-4o-mini
      extra_headers:
        X-Team: gridnews
    limits:
      rpm: 30
`)
	cfg, err := Load(p, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, 2024, cfg.Season.Year)
	assert.Equal(t, 18, cfg.Season.PeriodCount, "未出现的键保持默认")
	assert.Equal(t, "out/data", cfg.Storage.WorkDir)
	assert.Equal(t, "docs", cfg.Storage.DocsDir)
	assert.Equal(t, 0, cfg.Generate.MaxRetries, "显式 0 覆盖默认")
	assert.Equal(t, "gpt-4o-mini", cfg.Provider["openai"].Options["model"])
	assert.Equal(t, map[string]any{"X-Team": "gridnews"}, cfg.Provider["openai"].Options["extra_headers"])
	assert.Equal(t, 30, cfg.Provider["openai"].Limits.RPM)
	assert.Contains(t, cfg.Provider, "claude", "未覆盖的 provider 保留")
	require.NoError(t, Validate(cfg))
}

// UT-CFG-02: 未知字段与类型错误均为 InvalidInput
func TestLoadYAMLStrict(t *testing.T) {
	dir := t.TempDir()
	for _, body := range []string{
		"unknown: 1\n",
		"season:\n  yaer: 2025\n",
		"generate:\n  max_retries: many\n",
	} {
		_, err := Load(writeFile(t, dir, "c.yaml", body), map[string]string{})
		if !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("%q 应返回 InvalidInput，得到 %v", body, err)
		}
	}
	cfg, err := Load(writeFile(t, dir, "empty.yaml", ""), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Defaults().Season, cfg.Season)

	_, err = Load(filepath.Join(dir, "missing.yaml"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// UT-CFG-03: ENV 覆盖文件；空值不覆盖
func TestEnvOverlay(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", "generate:\n  provider: openai\nlogging:\n  level: warn\n")
	cfg, err := Load(p, map[string]string{
		"GRIDNEWS_GENERATE_PROVIDER":  "gemini",
		"GRIDNEWS_SEASON_YEAR":        "2026",
		"GRIDNEWS_FETCH_COMMAND":      "/bin/sh fetch.sh",
		"GRIDNEWS_FETCH_SKIP_RECAPS":  "true",
		"GRIDNEWS_LOG_LEVEL":          "",
		"GRIDNEWS_ARCHIVE_STORE":      "sqlite",
		"GRIDNEWS_STORAGE_DOCS_DIR":   "site",
		"UNRELATED_GENERATE_PROVIDER": "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Generate.Provider)
	assert.Equal(t, 2026, cfg.Season.Year)
	assert.Equal(t, []string{"/bin/sh", "fetch.sh"}, cfg.Fetch.Command)
	assert.True(t, cfg.Fetch.SkipRecaps)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Archive.Store)
	assert.Equal(t, "site", cfg.Storage.DocsDir)

	_, err = Load("", map[string]string{"GRIDNEWS_SEASON_YEAR": "soon"})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

// UT-CFG-04: CLI 合并仅替换非零字段
func TestMerge(t *testing.T) {
	base := Defaults()
	out := Merge(base, Config{Generate: Generate{Provider: " mock "}, Provider: map[string]Provider{"local": {Client: "mock"}}})
	assert.Equal(t, "mock", out.Generate.Provider)
	assert.Equal(t, base.Logging, out.Logging)
	assert.Contains(t, out.Provider, "local")
	assert.Contains(t, out.Provider, "claude")
	assert.NotContains(t, base.Provider, "local", "Merge 不修改输入")
}

// UT-CFG-05: 校验错误分支
func TestValidateErrors(t *testing.T) {
	cases := []struct {
		field string
		mut   func(*Config)
	}{
		{"season.year", func(c *Config) { c.Season.Year = 2019 }},
		{"season.start_date", func(c *Config) { c.Season.StartDate = "09/04/2025" }},
		{"season.period_count", func(c *Config) { c.Season.PeriodCount = 0 }},
		{"storage.work_dir", func(c *Config) { c.Storage.WorkDir = " " }},
		{"archive.store", func(c *Config) { c.Archive.Store = "redis" }},
		{"fetch.client", func(c *Config) { c.Fetch.Client = "nfl.com" }},
		{"fetch.command", func(c *Config) { c.Fetch.Client = "exec" }},
		{"generate.max_retries", func(c *Config) { c.Generate.MaxRetries = -1 }},
		{"provider", func(c *Config) { c.Generate.Provider = "grok" }},
		{"provider.mock.client", func(c *Config) { c.Generate.Provider = "mock"; c.Provider["mock"] = Provider{Client: "x"} }},
		{"generate.max_tokens", func(c *Config) {
			c.Generate.Provider = "mock"
			c.Provider["mock"] = Provider{Client: "mock", Limits: Limits{MaxTokensPerReq: 10}}
		}},
	}
	for _, c := range cases {
		t.Run(c.field, func(t *testing.T) {
			cfg := DefaultTemplateConfig()
			c.mut(&cfg)
			var ie *contract.InputError
			require.ErrorAs(t, Validate(cfg), &ie)
			assert.Equal(t, c.field, ie.Field)
		})
	}
	require.NoError(t, Validate(DefaultTemplateConfig()))
}

// UT-CFG-06: 模板可被严格解析回相同配置
func TestTemplateRoundTrip(t *testing.T) {
	want := DefaultTemplateConfig()
	b, err := TemplateYAML(want)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "# gridnews"))
	p := writeFile(t, t.TempDir(), "config.yaml", string(b))
	got, err := Load(p, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, want.Season, got.Season)
	assert.Equal(t, want.Generate, got.Generate)
	assert.Equal(t, want.Provider["claude"].Options["api_key_env"], got.Provider["claude"].Options["api_key_env"])
	assert.Equal(t, want.Provider["mock"].Limits, got.Provider["mock"].Limits)

	env := ParseDotEnv([]byte(DotEnvTemplate()))
	assert.Contains(t, env, "ANTHROPIC_API_KEY")
	assert.Contains(t, env, "GRIDNEWS_GENERATE_PROVIDER")
}

// 补充覆盖: .env 解析与不覆盖已有变量
func TestDotEnv(t *testing.T) {
	got := ParseDotEnv([]byte("# c\nexport A=1\nB = \"x\\ny\"\nC='q'\nbad\n=v\nD=\n"))
	assert.Equal(t, map[string]string{"A": "1", "B": "x\ny", "C": "q", "D": ""}, got)

	t.Setenv("GRIDNEWS_DOTENV_KEEP", "orig")
	p := writeFile(t, t.TempDir(), ".env", "GRIDNEWS_DOTENV_KEEP=new\nGRIDNEWS_DOTENV_NEW=v\nGRIDNEWS_DOTENV_EMPTY=\n")
	t.Cleanup(func() { os.Unsetenv("GRIDNEWS_DOTENV_NEW") })
	require.NoError(t, LoadDotEnv(p))
	assert.Equal(t, "orig", os.Getenv("GRIDNEWS_DOTENV_KEEP"))
	assert.Equal(t, "v", os.Getenv("GRIDNEWS_DOTENV_NEW"))
	_, set := os.LookupEnv("GRIDNEWS_DOTENV_EMPTY")
	assert.False(t, set)
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "none")))
}

// UT-CFG-07: 装配离线配置并跑通完整流水线（exec 抓取 + mock 生成）
func TestAssembleRun(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("依赖 /bin/sh")
	}
	root := t.TempDir()
	cfg := DefaultTemplateConfig()
	cfg.Storage.WorkDir = filepath.Join(root, "data")
	cfg.Storage.DocsDir = filepath.Join(root, "docs")
	cfg.Archive.Path = filepath.Join(root, "docs", "archive.json")
	cfg.Fetch.Client = "exec"
	// 外部抓取器按身份环境变量写出 base.json
	cfg.Fetch.Command = []string{"/bin/sh", "-c", `dir="$WORK/2025-week10/$GRIDNEWS_SUB_KEY"; mkdir -p "$dir"; cat > "$dir/base.json" <<EOF
{"identity":{"year":$GRIDNEWS_YEAR,"period":$GRIDNEWS_PERIOD,"mode":"sub","sub_key":"$GRIDNEWS_SUB_KEY"},"fetched_at":"2025-11-10T12:00:00Z","records":[{"id":"401","fields":{"away_team":"Bills","home_team":"Dolphins","away_score":30,"home_score":27}}]}
EOF`}
	t.Setenv("WORK", cfg.Storage.WorkDir)

	app, err := Assemble(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer app.Close()
	res := app.Orchestrator.Run(context.Background(), pipeline.Request{Date: "20251109"})
	require.NoError(t, res.Err)
	assert.Equal(t, pipeline.Succeeded, res.State)

	idx, err := os.ReadFile(filepath.Join(cfg.Storage.DocsDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(idx), "2025-week10-sun-251109.html")
	assert.FileExists(t, cfg.Archive.Path)

	n, err := app.Reindex.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// 补充覆盖: 缺少密钥的 provider 与 sqlite 归档
func TestAssembleErrors(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	root := t.TempDir()
	cfg := Defaults()
	cfg.Storage.WorkDir = filepath.Join(root, "data")
	cfg.Storage.DocsDir = filepath.Join(root, "docs")
	_, err := Assemble(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	cfg.Generate.Provider = "mock"
	cfg.Archive.Store = "sqlite"
	cfg.Archive.Path = filepath.Join(root, "db", "archive.db")
	app, err := Assemble(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, app.Close())
	assert.FileExists(t, cfg.Archive.Path)
}
