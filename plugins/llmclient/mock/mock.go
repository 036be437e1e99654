package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"gridnews/pkg/contract"
)

// Options: 离线调试配置（可选）。
type Options struct {
	Prefix string `json:"prefix"` // 摘要前缀，默认 "MOCK"
	Model  string `json:"model"`  // 写入生成元信息，默认 mock-1
	// APIKey: 仅用于限流分组（调试用），不参与任何网络请求。
	APIKey string `json:"api_key"`
	// ResponseMode: 响应外形。
	//  - "" 或 "fenced": ```json 围栏包裹的对象（默认）；
	//  - "prose": 前后带说明文字的裸对象；
	//  - "bare": 仅对象本身。
	ResponseMode string `json:"response_mode,omitempty"`
	// Omit: 不为这些 game_id 生成条目，用于演练不完整生成。
	Omit []string `json:"omit,omitempty"`
}

type Client struct {
	prefix string
	model  string
	mode   string
	omit   []string
}

func New(opts *Options) (*Client, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Prefix == "" {
		o.Prefix = "MOCK"
	}
	if o.Model == "" {
		o.Model = "mock-1"
	}
	switch o.ResponseMode {
	case "":
		o.ResponseMode = "fenced"
	case "fenced", "prose", "bare":
	default:
		return nil, contract.NewInputError("response_mode", o.ResponseMode, "want fenced|prose|bare")
	}
	return &Client{prefix: o.Prefix, model: o.Model, mode: o.ResponseMode, omit: o.Omit}, nil
}

// Model 实现 contract.ModelNamer。
func (c *Client) Model() string { return c.model }

// Invoke 按记录集确定性地合成 {"games":[...]}，不读取 Prompt 内容。
func (c *Client) Invoke(ctx context.Context, set contract.BaseRecordSet, _ contract.Prompt) (contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return contract.Raw{}, err
	}
	body, err := Games(set, c.prefix, c.omit)
	if err != nil {
		return contract.Raw{}, err
	}
	switch c.mode {
	case "prose":
		return contract.Raw{Text: "Here is the newsletter content you asked for:\n" + body + "\nLet me know if you need changes."}, nil
	case "bare":
		return contract.Raw{Text: body}, nil
	default:
		return contract.Raw{Text: "```json\n" + body + "\n```"}, nil
	}
}

type game struct {
	GameID  string   `json:"game_id"`
	Summary string   `json:"summary"`
	Badges  []string `json:"badges"`
}

// Games 生成 {"games":[{game_id,summary,badges}]} 文本，供 mock 与 flaky 共用。
func Games(set contract.BaseRecordSet, prefix string, omit []string) (string, error) {
	out := struct {
		Games []game `json:"games"`
	}{Games: make([]game, 0, len(set.Records))}
	for _, r := range set.Records {
		if slices.Contains(omit, r.ID) {
			continue
		}
		out.Games = append(out.Games, game{GameID: r.ID, Summary: summary(prefix, r.Fields), Badges: badges(r.Fields)})
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("mock: %w", err)
	}
	return string(b), nil
}

func summary(prefix string, f map[string]any) string {
	away, home := contract.FieldString(f, contract.FieldAwayTeam), contract.FieldString(f, contract.FieldHomeTeam)
	as, aok := contract.FieldInt(f, contract.FieldAwayScore)
	hs, hok := contract.FieldInt(f, contract.FieldHomeScore)
	if !aok || !hok {
		return fmt.Sprintf("%s: %s at %s.", prefix, away, home)
	}
	switch {
	case as > hs:
		return fmt.Sprintf("%s: %s beat %s %d-%d.", prefix, away, home, as, hs)
	case hs > as:
		return fmt.Sprintf("%s: %s beat %s %d-%d.", prefix, home, away, hs, as)
	default:
		return fmt.Sprintf("%s: %s and %s tied %d-%d.", prefix, away, home, as, hs)
	}
}

// badges: 分差 <=3 为 nail-biter，>=21 为 blowout；客队获胜计为 upset。最多两个。
func badges(f map[string]any) []string {
	as, aok := contract.FieldInt(f, contract.FieldAwayScore)
	hs, hok := contract.FieldInt(f, contract.FieldHomeScore)
	out := []string{}
	if !aok || !hok {
		return out
	}
	diff := as - hs
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= 3:
		out = append(out, "nail-biter")
	case diff >= 21:
		out = append(out, "blowout")
	}
	if as > hs {
		out = append(out, "upset")
	}
	return out
}

var (
	_ contract.LLMClient  = (*Client)(nil)
	_ contract.ModelNamer = (*Client)(nil)
)
