package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"gridnews/pkg/contract"
	"gridnews/plugins/llmclient/internal/wire"
)

// Options: 最小必需配置。
type Options struct {
	BaseURL        string            `json:"base_url"`    // 例如 https://api.openai.com/v1；兼容服务可覆盖
	Model          string            `json:"model"`       // 为空则使用默认
	APIKeyEnv      string            `json:"api_key_env"` // 优先从环境变量读取
	APIKey         string            `json:"api_key"`     // 明文传入（仅测试）
	TimeoutSeconds int               `json:"timeout_seconds"`
	MaxTokens      int               `json:"max_tokens"` // 映射为 max_completion_tokens
	Temperature    *float64          `json:"temperature,omitempty"`
	ExtraHeaders   map[string]string `json:"extra_headers"` // 追加请求头（Azure/OpenRouter 等兼容服务）
}

func (o *Options) defaults() {
	if o.Model == "" {
		o.Model = "gpt-4o"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 8192
	}
}

type Client struct {
	sdk       sdk.Client
	model     string
	maxTokens int
	temp      *float64
}

// New 构造客户端。SDK 自带重试关闭，重试统一由上层 rate.Do 负责。
func New(opts *Options) (*Client, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.defaults()
	key, err := wire.ResolveKey("openai", o.APIKey, o.APIKeyEnv)
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
		ro = append(ro, option.WithBaseURL(o.BaseURL))
	}
	for k, v := range o.ExtraHeaders {
		if k == "" {
			continue
		}
		ro = append(ro, option.WithHeader(k, v))
	}
	return &Client{
		sdk:       sdk.NewClient(ro...),
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
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		msgs = append(msgs, sdk.SystemMessage(system))
	}
	msgs = append(msgs, sdk.UserMessage(user))
	params := sdk.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            msgs,
		MaxCompletionTokens: sdk.Int(int64(c.maxTokens)),
	}
	if c.temp != nil {
		params.Temperature = sdk.Float(*c.temp)
	}

	res, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Raw{}, ctx.Err()
		}
		var apierr *sdk.Error
		if errors.As(err, &apierr) {
			msg := apierr.Message
			if msg == "" {
				msg = http.StatusText(apierr.StatusCode)
			}
			return contract.Raw{}, wire.NewError("openai", apierr.StatusCode, msg)
		}
		return contract.Raw{}, fmt.Errorf("openai: %w", err)
	}
	if len(res.Choices) == 0 || strings.TrimSpace(res.Choices[0].Message.Content) == "" {
		return contract.Raw{}, fmt.Errorf("openai: empty choices: %w", contract.ErrUnparsableResponse)
	}
	return contract.Raw{Text: res.Choices[0].Message.Content}, nil
}

var (
	_ contract.LLMClient  = (*Client)(nil)
	_ contract.ModelNamer = (*Client)(nil)
)
