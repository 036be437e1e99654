package claude

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"gridnews/pkg/contract"
	"gridnews/plugins/llmclient/internal/wire"
)

// Options: Anthropic Messages API 的最小配置。
type Options struct {
	BaseURL          string            `json:"base_url"`    // 例如 https://api.anthropic.com
	Model            string            `json:"model"`       // 为空则使用默认
	APIKeyEnv        string            `json:"api_key_env"` // 优先从环境变量读取
	APIKey           string            `json:"api_key"`     // 明文传入（仅测试）
	TimeoutSeconds   int               `json:"timeout_seconds"`
	MaxTokens        int               `json:"max_tokens"` // 输出上限
	Temperature      *float64          `json:"temperature,omitempty"`
	AnthropicVersion string            `json:"anthropic_version"` // 为空则使用 SDK 默认
	ExtraHeaders     map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.Model == "" {
		o.Model = "claude-sonnet-4-20250514"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 8192
	}
}

type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int
	temp      *float64
}

// New 构造客户端；缺少 key 返回 InputError。SDK 自带重试关闭，重试统一由上层 rate.Do 负责。
func New(opts *Options) (*Client, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.defaults()
	key, err := wire.ResolveKey("claude", o.APIKey, o.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(o.TimeoutSeconds) * time.Second
	ro := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if o.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(strings.TrimRight(o.BaseURL, "/")+"/"))
	}
	if o.AnthropicVersion != "" {
		ro = append(ro, option.WithHeader("anthropic-version", o.AnthropicVersion))
	}
	for k, v := range o.ExtraHeaders {
		if k == "" {
			continue
		}
		ro = append(ro, option.WithHeader(k, v))
	}
	return &Client{
		sdk:       anthropic.NewClient(ro...),
		model:     o.Model,
		maxTokens: o.MaxTokens,
		temp:      o.Temperature,
	}, nil
}

// Model 实现 contract.ModelNamer。
func (c *Client) Model() string { return c.model }

// Invoke: 单次调用，同步返回。
func (c *Client) Invoke(ctx context.Context, _ contract.BaseRecordSet, p contract.Prompt) (contract.Raw, error) {
	system, user, err := wire.SplitPrompt(p)
	if err != nil {
		return contract.Raw{}, err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if c.temp != nil {
		params.Temperature = anthropic.Float(*c.temp)
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Raw{}, ctx.Err()
		}
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			body := strings.TrimSpace(apierr.RawJSON())
			if body == "" {
				body = http.StatusText(apierr.StatusCode)
			}
			return contract.Raw{}, wire.NewError("claude", apierr.StatusCode, body)
		}
		var nerr net.Error
		if errors.As(err, &nerr) {
			return contract.Raw{}, fmt.Errorf("claude: %w", err)
		}
		// 2xx 但响应体无法解码
		return contract.Raw{}, fmt.Errorf("claude decode: %v: %w", err, contract.ErrUnparsableResponse)
	}
	var sb strings.Builder
	for _, blk := range msg.Content {
		if blk.Type == "text" {
			sb.WriteString(blk.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return contract.Raw{}, fmt.Errorf("claude: empty content (stop_reason=%s): %w", msg.StopReason, contract.ErrUnparsableResponse)
	}
	return contract.Raw{Text: sb.String()}, nil
}

var (
	_ contract.LLMClient  = (*Client)(nil)
	_ contract.ModelNamer = (*Client)(nil)
)
