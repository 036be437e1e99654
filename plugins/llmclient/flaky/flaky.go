package flaky

import (
	"context"
	"os"
	"sync/atomic"

	"gridnews/pkg/contract"
	"gridnews/plugins/llmclient/mock"
)

// Options 定义可选项。
type Options struct {
	Prefix string `json:"prefix"`
	// Failures: 前 N 次调用返回 ErrRateLimited，默认 1。
	Failures int `json:"failures"`
	// Garbage: 限流之后再返回一次不可解析文本。
	Garbage bool `json:"garbage"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

// Client 是带状态的 LLM 实现：
// 前 Failures 次 Invoke 返回 ErrRateLimited；
// Garbage 时下一次返回无法解析的文本；
// 之后与 mock 相同，返回围栏 JSON。
type Client struct {
	prefix   string
	failures int32
	garbage  bool
	logPath  string
	count    atomic.Int32
}

// New 构造 Client。
func New(opts *Options) (*Client, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Prefix == "" {
		o.Prefix = "FLAKY"
	}
	if o.Failures <= 0 {
		o.Failures = 1
	}
	return &Client{prefix: o.Prefix, failures: int32(o.Failures), garbage: o.Garbage, logPath: o.LogPath}, nil
}

// Model 实现 contract.ModelNamer。
func (c *Client) Model() string { return "flaky-1" }

// Calls 返回已发生的调用次数。
func (c *Client) Calls() int { return int(c.count.Load()) }

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Invoke 实现 contract.LLMClient。
func (c *Client) Invoke(ctx context.Context, set contract.BaseRecordSet, _ contract.Prompt) (contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return contract.Raw{}, err
	}
	n := c.count.Add(1)
	switch {
	case n <= c.failures:
		c.log("rate_limited")
		return contract.Raw{}, contract.ErrRateLimited
	case c.garbage && n == c.failures+1:
		c.log("invalid_json")
		return contract.Raw{Text: "sorry, no games today"}, nil
	}
	body, err := mock.Games(set, c.prefix, nil)
	if err != nil {
		return contract.Raw{}, err
	}
	c.log("ok")
	return contract.Raw{Text: "```json\n" + body + "\n```"}, nil
}

var (
	_ contract.LLMClient  = (*Client)(nil)
	_ contract.ModelNamer = (*Client)(nil)
)
