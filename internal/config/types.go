package config

// Config: 运行期只读配置（一次解析，运行期不变）。
// YAML 使用 snake_case 且严格拒绝未知字段；ENV 以 GRIDNEWS_ 为前缀覆盖标量。
type Config struct {
	Season   Season   `yaml:"season" envPrefix:"SEASON_"`
	Storage  Storage  `yaml:"storage" envPrefix:"STORAGE_"`
	Archive  Archive  `yaml:"archive" envPrefix:"ARCHIVE_"`
	Logging  Logging  `yaml:"logging" envPrefix:"LOG_"`
	Metrics  Metrics  `yaml:"metrics" envPrefix:"METRICS_"`
	Fetch    Fetch    `yaml:"fetch" envPrefix:"FETCH_"`
	Generate Generate `yaml:"generate" envPrefix:"GENERATE_"`
	Publish  Publish  `yaml:"publish" envPrefix:"PUBLISH_"`

	// Provider: 命名 provider 定义；键即 --provider 的取值。
	Provider map[string]Provider `yaml:"provider" env:"-"`
}

// Season: 赛季与周次策略。
type Season struct {
	Year int `yaml:"year" env:"YEAR"`
	// StartDate: 赛季首日 YYYY-MM-DD（第 1 周的第一天）。
	StartDate      string `yaml:"start_date" env:"START_DATE"`
	PeriodCount    int    `yaml:"period_count" env:"PERIOD_COUNT"`
	PeriodStrategy string `yaml:"period_strategy" env:"PERIOD_STRATEGY"` // date|manual
	ManualPeriod   int    `yaml:"manual_period" env:"MANUAL_PERIOD"`
}

// Storage: 工作树与站点目录。
type Storage struct {
	WorkDir     string `yaml:"work_dir" env:"WORK_DIR"`
	DocsDir     string `yaml:"docs_dir" env:"DOCS_DIR"`
	PeriodLabel string `yaml:"period_label" env:"PERIOD_LABEL"`
}

// Archive: 归档索引存储（file|sqlite|memory）。
type Archive struct {
	Store string `yaml:"store" env:"STORE"`
	Path  string `yaml:"path" env:"PATH"`
}

// Logging: 日志等级与目录；Dir 为空时输出到 stderr。
type Logging struct {
	Level string `yaml:"level" env:"LEVEL"`
	Dir   string `yaml:"dir" env:"DIR"`
}

// Metrics: Prometheus textfile 导出路径；为空则不导出。
type Metrics struct {
	Textfile string `yaml:"textfile" env:"TEXTFILE"`
}

// Fetch: 阶段一数据源。client=exec 时运行外部命令（退出码 0/1/2 约定）。
type Fetch struct {
	Client            string   `yaml:"client" env:"CLIENT"` // espn|exec
	Command           []string `yaml:"command" env:"COMMAND" envSeparator:" "`
	BaseURL           string   `yaml:"base_url" env:"BASE_URL"`
	SeasonType        int      `yaml:"season_type" env:"SEASON_TYPE"`
	Concurrency       int      `yaml:"concurrency" env:"CONCURRENCY"`
	TimeoutSeconds    int      `yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	MaxRetries        int      `yaml:"max_retries" env:"MAX_RETRIES"`
	RPM               int      `yaml:"rpm" env:"RPM"`
	Timezone          string   `yaml:"timezone" env:"TIMEZONE"`
	SkipRecaps        bool     `yaml:"skip_recaps" env:"SKIP_RECAPS"`
	IncludeUnfinished bool     `yaml:"include_unfinished" env:"INCLUDE_UNFINISHED"`
}

// Generate: 阶段二。
type Generate struct {
	Provider          string `yaml:"provider" env:"PROVIDER"`
	PromptFile        string `yaml:"prompt_file" env:"PROMPT_FILE"`
	MaxSummaryChars   int    `yaml:"max_summary_chars" env:"MAX_SUMMARY_CHARS"`
	MaxNarrativeBytes int    `yaml:"max_narrative_bytes" env:"MAX_NARRATIVE_BYTES"`
	// MaxTokens: 提示词 token 预算；0 表示不检查。
	MaxTokens     int `yaml:"max_tokens" env:"MAX_TOKENS"`
	BytesPerToken int `yaml:"bytes_per_token" env:"BYTES_PER_TOKEN"`
	// MaxRetries: 大模型调用重试次数（>=0）。0 表示不重试。
	MaxRetries     int `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryInitialMS int `yaml:"retry_initial_ms" env:"RETRY_INITIAL_MS"`
}

// Publish: 阶段三与索引页。
type Publish struct {
	TemplateFile      string `yaml:"template_file" env:"TEMPLATE_FILE"`
	IndexTemplateFile string `yaml:"index_template_file" env:"INDEX_TEMPLATE_FILE"`
	SiteTitle         string `yaml:"site_title" env:"SITE_TITLE"`
	// PeriodName: 页面标题、提示词与索引标签中的周期称呼（例如 Week）。
	PeriodName        string `yaml:"period_name" env:"PERIOD_NAME"`
	IconBaseURL       string `yaml:"icon_base_url" env:"ICON_BASE_URL"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
// Options 原样转为 JSON 交给工厂严格解码。
type Provider struct {
	Client  string         `yaml:"client"`
	Options map[string]any `yaml:"options,omitempty"`
	Limits  Limits         `yaml:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `yaml:"rpm"`
	TPM             int `yaml:"tpm"`
	MaxTokensPerReq int `yaml:"max_tokens_per_req"`
}
