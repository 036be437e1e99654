package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridnews/pkg/contract"
)

const bare = `{"games":[
  {"id":"401772","summary":"The Bills held on late.","tags":["nail-biter"]},
  {"id":"401773","summary":"A {curly} \"quoted\" blowout.","tags":["blowout","upset"]}
]}`

// UT-EXT-01: 围栏 / 散文包裹 / 裸 JSON 抽取结果一致
func TestExtractEquivalentForms(t *testing.T) {
	x := New(Options{})
	want, err := x.Extract(bare)
	require.NoError(t, err)
	require.Len(t, want.Entries, 2)

	forms := map[string]string{
		"fenced":       "Here you go:\n```json\n" + bare + "\n```\nHope that helps!",
		"fenced upper": "```JSON\n" + bare + "\n```",
		"tilde fence":  "~~~json\n" + bare + "\n~~~",
		"prose":        "Sure! Below is the newsletter data. " + bare + " Let me know if you need edits.",
		"unclosed":     "```json\n" + bare,
		"crlf":         strings.ReplaceAll("```json\n"+bare+"\n```", "\n", "\r\n"),
	}
	for name, text := range forms {
		t.Run(name, func(t *testing.T) {
			got, err := x.Extract(text)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("抽取结果不一致 (-want +got):\n%s", diff)
			}
		})
	}
}

// UT-EXT-02: 括号匹配需识别字符串内的括号与转义引号；散文中的孤立括号或引号不吞掉后续载荷
func TestBraceMatching(t *testing.T) {
	text := `note {not json} then {"a":"}{\"","b":{"c":1}} tail {"z":2}`
	b := []byte(text)
	start := strings.Index(text, `{"a"`)
	end := matchBrace(b, start)
	require.Equal(t, `{"a":"}{\"","b":{"c":1}}`, text[start:end+1])
	assert.Equal(t, -1, matchBrace([]byte(`{"open":"}`), 0))

	obj, err := locate(text)
	require.NoError(t, err)
	assert.Contains(t, obj, "a", "首个可解析片段胜出")

	payload := "{\"games\":[{\"id\":\"1\",\"summary\":\"s\",\"tags\":[]}]}"
	x := New(Options{})
	for _, text := range []string{
		"I grouped games as {upsets first. Here:\n" + payload,
		"Output {\"note: see below}\n" + payload,
		"{wrapper " + payload + " end}",
	} {
		p, err := x.Extract(text)
		if err != nil || len(p.Entries) != 1 {
			t.Fatalf("%q: entries=%d err=%v", text, len(p.Entries), err)
		}
	}
}

// UT-EXT-03: 无 JSON → UnparsableResponse；缺少顶层列表 → SchemaViolation
func TestExtractFailures(t *testing.T) {
	x := New(Options{})
	for _, text := range []string{"", "no json here", "```json\nnot json\n```", "{unbalanced"} {
		_, err := x.Extract(text)
		assert.True(t, errors.Is(err, contract.ErrUnparsableResponse), "%q -> %v", text, err)
	}
	for _, text := range []string{`{"items":[]}`, `{"games":null}`, `{"games":{"id":"1"}}`} {
		_, err := x.Extract(text)
		assert.True(t, errors.Is(err, contract.ErrSchemaViolation), "%q -> %v", text, err)
	}
}

// UT-EXT-04: 逐条报告问题，不整体失败，也不静默丢弃
func TestExtractPerEntryIssues(t *testing.T) {
	x := New(Options{MaxSummaryRunes: 10})
	text := `{"games":[
	  {"id":"1","summary":"ok","tags":[]},
	  {"id":"","summary":"ok"},
	  {"id":"3","summary":"   "},
	  {"id":"4","summary":"way too long for ten"},
	  {"id":"5","summary":"ok","tags":["upset","blowout","comeback"]},
	  {"id":"6","summary":"ok","tags":["overtime"]},
	  {"id":"1","summary":"dup"},
	  "oops",
	  {"game_id":7,"summary":"alias","badges":[" Upset "]}
	]}`
	p, err := x.Extract(text)
	require.NoError(t, err)
	require.Equal(t, []Entry{
		{ID: "1", Summary: "ok", Tags: []string{}},
		{ID: "7", Summary: "alias", Tags: []string{"upset"}},
	}, p.Entries)

	fields := map[int]string{}
	for _, is := range p.Issues {
		fields[is.Index] = is.Field
	}
	assert.Equal(t, map[int]string{1: "id", 2: "summary", 3: "summary", 4: "tags", 5: "tags", 6: "id", 7: "entry"}, fields)

	verr := p.Err()
	require.Error(t, verr)
	assert.True(t, errors.Is(verr, contract.ErrSchemaViolation))
	var ve *ValidationError
	require.ErrorAs(t, verr, &ve)
	assert.Len(t, ve.Issues, 7)
	assert.Contains(t, verr.Error(), "duplicate id")
}

func TestPayloadErrNil(t *testing.T) {
	p, err := New(Options{}).Extract(`{"games":[]}`)
	require.NoError(t, err)
	assert.NoError(t, p.Err())
	assert.Empty(t, p.Entries)
}

// 补充覆盖: 非 json 标签的围栏被跳过，退回括号匹配
func TestFencedBlocksSkipOtherTags(t *testing.T) {
	text := "```python\nprint({'a': 1})\n```\n```json\n{\"games\":[]}\n```"
	blocks := fencedBlocks(text)
	require.Equal(t, []string{`{"games":[]}`}, blocks)
}
