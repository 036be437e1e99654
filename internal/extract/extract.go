// Package extract 从生成式模型的自由文本中抽取并校验结构化载荷。
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"gridnews/pkg/contract"
)

// 默认值。
const (
	DefaultListKey         = "games"
	DefaultMaxSummaryRunes = 1500
	MaxTags                = 2
)

// DefaultVocabulary 为封闭的标签词表。
var DefaultVocabulary = []string{"upset", "nail-biter", "comeback", "blowout", "game-of-week"}

// Options: 零值即默认。
type Options struct {
	ListKey         string
	MaxSummaryRunes int
	Vocabulary      []string
}

// Entry: 通过校验的单条生成内容。
type Entry struct {
	ID      string
	Summary string
	Tags    []string
}

// Issue: 单条目的校验问题。Index 为条目在列表中的下标。
type Issue struct {
	Index  int
	ID     string
	Field  string
	Reason string
}

func (i Issue) String() string {
	if i.ID != "" {
		return fmt.Sprintf("[%d] id=%s %s: %s", i.Index, i.ID, i.Field, i.Reason)
	}
	return fmt.Sprintf("[%d] %s: %s", i.Index, i.Field, i.Reason)
}

// Payload: 抽取结果。Entries 仅含合法条目（保持载荷顺序），Issues 逐条报告。
type Payload struct {
	Entries []Entry
	Issues  []Issue
}

// Err 在存在逐条问题时返回 *ValidationError（Unwrap 为 ErrSchemaViolation）。
func (p Payload) Err() error {
	if len(p.Issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: p.Issues}
}

// ValidationError 汇总逐条问题。
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.String())
	}
	return fmt.Sprintf("schema violation: %d issue(s): %s", len(e.Issues), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return contract.ErrSchemaViolation }

// Extractor 无状态，可并发使用。
type Extractor struct {
	listKey  string
	maxRunes int
	vocab    map[string]struct{}
}

// New 构造抽取器。
func New(opts Options) *Extractor {
	x := &Extractor{listKey: opts.ListKey, maxRunes: opts.MaxSummaryRunes}
	if strings.TrimSpace(x.listKey) == "" {
		x.listKey = DefaultListKey
	}
	if x.maxRunes <= 0 {
		x.maxRunes = DefaultMaxSummaryRunes
	}
	words := opts.Vocabulary
	if len(words) == 0 {
		words = DefaultVocabulary
	}
	x.vocab = make(map[string]struct{}, len(words))
	for _, w := range words {
		x.vocab[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return x
}

// Extract 抽取并校验。
// 返回错误仅有两类：ErrUnparsableResponse（找不到 JSON 对象）与
// ErrSchemaViolation（顶层列表缺失/类型错误）；逐条问题放在 Payload.Issues。
func (x *Extractor) Extract(raw string) (Payload, error) {
	obj, err := locate(raw)
	if err != nil {
		return Payload{}, err
	}
	list, ok := obj[x.listKey]
	if !ok {
		return Payload{}, fmt.Errorf("%w: missing top-level %q list", contract.ErrSchemaViolation, x.listKey)
	}
	var items []json.RawMessage
	if bytes.Equal(bytes.TrimSpace(list), []byte("null")) || json.Unmarshal(list, &items) != nil {
		return Payload{}, fmt.Errorf("%w: top-level %q is not a list", contract.ErrSchemaViolation, x.listKey)
	}

	var p Payload
	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		e, issues := x.entry(i, it)
		if len(issues) > 0 {
			p.Issues = append(p.Issues, issues...)
			continue
		}
		if _, dup := seen[e.ID]; dup {
			p.Issues = append(p.Issues, Issue{Index: i, ID: e.ID, Field: "id", Reason: "duplicate id"})
			continue
		}
		seen[e.ID] = struct{}{}
		p.Entries = append(p.Entries, e)
	}
	return p, nil
}

// entry 校验单个条目；字段别名 game_id/badges 兼容旧提示词。
func (x *Extractor) entry(i int, raw json.RawMessage) (Entry, []Issue) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return Entry{}, []Issue{{Index: i, Field: "entry", Reason: "not an object"}}
	}
	var (
		e      Entry
		issues []Issue
	)
	add := func(field, reason string) {
		issues = append(issues, Issue{Index: i, ID: e.ID, Field: field, Reason: reason})
	}

	idRaw, ok := pick(m, "id", "game_id")
	switch id, isStr := scalarString(idRaw); {
	case !ok:
		add("id", "missing")
	case !isStr:
		add("id", "not a string")
	case strings.TrimSpace(id) == "":
		add("id", "empty")
	default:
		e.ID = strings.TrimSpace(id)
	}

	sumRaw, ok := m["summary"]
	var sum string
	if ok && json.Unmarshal(sumRaw, &sum) != nil {
		add("summary", "not a string")
	} else {
		sum = strings.TrimSpace(sum)
		switch n := utf8.RuneCountInString(sum); {
		case !ok:
			add("summary", "missing")
		case n == 0:
			add("summary", "empty")
		case n > x.maxRunes:
			add("summary", fmt.Sprintf("too long (%d > %d)", n, x.maxRunes))
		default:
			e.Summary = sum
		}
	}

	e.Tags = []string{}
	if tagsRaw, ok := pick(m, "tags", "badges"); ok && !bytes.Equal(bytes.TrimSpace(tagsRaw), []byte("null")) {
		var tags []string
		if err := json.Unmarshal(tagsRaw, &tags); err != nil {
			add("tags", "not a list of strings")
		} else if len(tags) > MaxTags {
			add("tags", fmt.Sprintf("too many tags (%d > %d)", len(tags), MaxTags))
		} else {
			for _, t := range tags {
				norm := strings.ToLower(strings.TrimSpace(t))
				if _, known := x.vocab[norm]; !known {
					add("tags", fmt.Sprintf("unknown tag %q", t))
					continue
				}
				e.Tags = append(e.Tags, norm)
			}
		}
	}
	return e, issues
}

func pick(m map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// scalarString 接受 JSON 字符串，或整数（模型偶尔把数字 id 去掉引号）。
func scalarString(raw json.RawMessage) (string, bool) {
	if raw == nil {
		return "", false
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, true
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		if _, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return n.String(), true
		}
	}
	return "", false
}
