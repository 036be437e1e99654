package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"gridnews/pkg/contract"
	"gridnews/plugins/llmclient/internal/wire"
)

// Options: Gemini Developer API 最小必需。
type Options struct {
	BaseURL   string `json:"base_url"`    // 为空使用 SDK 默认端点
	Model     string `json:"model"`       // 默认 gemini-2.5-flash
	APIKeyEnv string `json:"api_key_env"` // 默认 GOOGLE_API_KEY
	APIKey    string `json:"api_key"`
	// 客户端超时（秒）。未设置或 <=0 时采用默认 60 秒。
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	MaxTokens      int      `json:"max_tokens"` // 映射为 maxOutputTokens
	Temperature    *float64 `json:"temperature,omitempty"`
	// ResponseMIMEType: 例如 application/json，强制模型输出 JSON。
	ResponseMIMEType string            `json:"response_mime_type,omitempty"`
	ExtraHeaders     map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 8192
	}
}

type Client struct {
	models    *genai.Models
	model     string
	maxTokens int32
	temp      *float32
	mime      string
}

// New 构造客户端；ctx 仅用于 SDK 初始化。
func New(ctx context.Context, opts *Options) (*Client, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.defaults()
	key, err := wire.ResolveKey("gemini", o.APIKey, o.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(o.TimeoutSeconds) * time.Second
	hopts := genai.HTTPOptions{BaseURL: o.BaseURL, Timeout: &timeout}
	if len(o.ExtraHeaders) > 0 {
		hopts.Headers = http.Header{}
		for k, v := range o.ExtraHeaders {
			if k == "" {
				continue
			}
			hopts.Headers.Set(k, v)
		}
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: timeout},
		HTTPOptions: hopts,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	c := &Client{models: gc.Models, model: o.Model, maxTokens: int32(o.MaxTokens), mime: o.ResponseMIMEType}
	if o.Temperature != nil {
		c.temp = genai.Ptr(float32(*o.Temperature))
	}
	return c, nil
}

// Model 实现 contract.ModelNamer。
func (c *Client) Model() string { return c.model }

// Invoke: 单次调用，同步返回。
func (c *Client) Invoke(ctx context.Context, _ contract.BaseRecordSet, p contract.Prompt) (contract.Raw, error) {
	system, user, err := wire.SplitPrompt(p)
	if err != nil {
		return contract.Raw{}, err
	}
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens:  c.maxTokens,
		Temperature:      c.temp,
		ResponseMIMEType: c.mime,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := c.models.GenerateContent(ctx, c.model, []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Raw{}, ctx.Err()
		}
		var apierr genai.APIError
		if errors.As(err, &apierr) {
			return contract.Raw{}, wire.NewError("gemini", apierr.Code, apierr.Message)
		}
		return contract.Raw{}, fmt.Errorf("gemini: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return contract.Raw{}, fmt.Errorf("gemini: empty candidates: %w", contract.ErrUnparsableResponse)
	}
	return contract.Raw{Text: text}, nil
}

var (
	_ contract.LLMClient  = (*Client)(nil)
	_ contract.ModelNamer = (*Client)(nil)
)
