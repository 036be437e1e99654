package registry

import (
	"bytes"
	"context"
	"encoding/json"

	"gridnews/internal/diag"
	"gridnews/pkg/contract"
	espn "gridnews/plugins/fetcher/espn"
	cld "gridnews/plugins/llmclient/claude"
	flaky "gridnews/plugins/llmclient/flaky"
	gmi "gridnews/plugins/llmclient/gemini"
	mock "gridnews/plugins/llmclient/mock"
	oai "gridnews/plugins/llmclient/openai"
	pnl "gridnews/plugins/prompt/newsletter"
	rfs "gridnews/plugins/reader/filesystem"
	rhtml "gridnews/plugins/renderer/html"
	wfs "gridnews/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decode 将选项解码失败归类为配置错误（退出码 3）。
func decode(kind, name string, raw json.RawMessage, v any) error {
	if err := strictUnmarshal(raw, v); err != nil {
		return contract.NewInputError(kind+"."+name+".options", "", err.Error())
	}
	return nil
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewFetcher 工厂签名：接收原样 JSON Options 与日志（可为 nil）。
type NewFetcher func(raw json.RawMessage, log *diag.Logger) (contract.Fetcher, error)

// NewPromptBuilder 工厂签名：接收原样 JSON Options。
type NewPromptBuilder func(raw json.RawMessage) (contract.PromptBuilder, error)

// NewLLMClient 工厂签名：ctx 仅用于构造期（部分 SDK 需要）。
type NewLLMClient func(ctx context.Context, raw json.RawMessage) (contract.LLMClient, error)

// NewRenderer 工厂签名：接收原样 JSON Options。
type NewRenderer func(raw json.RawMessage) (contract.Renderer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统 Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := decode("reader", "fs", raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := decode("writer", "fs", raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Fetcher 工厂注册表。
var Fetcher = map[string]NewFetcher{
	// espn: 记分板 + 战报
	"espn": func(raw json.RawMessage, log *diag.Logger) (contract.Fetcher, error) {
		var opts espn.Options
		if err := decode("fetch", "espn", raw, &opts); err != nil {
			return nil, err
		}
		f, err := espn.New(&opts)
		if err != nil {
			return nil, err
		}
		return f.WithLogger(log), nil
	},
}

// PromptBuilder 工厂注册表。
var PromptBuilder = map[string]NewPromptBuilder{
	// newsletter: 每场比赛一个 "GAME i: id" 块
	"newsletter": func(raw json.RawMessage) (contract.PromptBuilder, error) {
		var opts pnl.Options
		if err := decode("prompt", "newsletter", raw, &opts); err != nil {
			return nil, err
		}
		return pnl.New(&opts)
	},
}

// LLMClient 工厂注册表。
var LLMClient = map[string]NewLLMClient{
	"claude": func(_ context.Context, raw json.RawMessage) (contract.LLMClient, error) {
		var opts cld.Options
		if err := decode("provider", "claude", raw, &opts); err != nil {
			return nil, err
		}
		return cld.New(&opts)
	},
	"openai": func(_ context.Context, raw json.RawMessage) (contract.LLMClient, error) {
		var opts oai.Options
		if err := decode("provider", "openai", raw, &opts); err != nil {
			return nil, err
		}
		return oai.New(&opts)
	},
	"gemini": func(ctx context.Context, raw json.RawMessage) (contract.LLMClient, error) {
		var opts gmi.Options
		if err := decode("provider", "gemini", raw, &opts); err != nil {
			return nil, err
		}
		return gmi.New(ctx, &opts)
	},
	// mock/flaky: 离线演练
	"mock": func(_ context.Context, raw json.RawMessage) (contract.LLMClient, error) {
		var opts mock.Options
		if err := decode("provider", "mock", raw, &opts); err != nil {
			return nil, err
		}
		return mock.New(&opts)
	},
	"flaky": func(_ context.Context, raw json.RawMessage) (contract.LLMClient, error) {
		var opts flaky.Options
		if err := decode("provider", "flaky", raw, &opts); err != nil {
			return nil, err
		}
		return flaky.New(&opts)
	},
}

// Renderer 工厂注册表。
var Renderer = map[string]NewRenderer{
	// html: 内置 html/template 模板，可由文件覆盖
	"html": func(raw json.RawMessage) (contract.Renderer, error) {
		var opts rhtml.Options
		if err := decode("renderer", "html", raw, &opts); err != nil {
			return nil, err
		}
		return rhtml.New(&opts)
	},
}
