package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gridnews/pkg/contract"
)

// 围栏信息串中视为结构化数据的标签（小写比较）。
var fenceTags = map[string]struct{}{"json": {}, "jsonc": {}, "json5": {}}

// locate 依次尝试：带 json 标签的围栏块 → 括号匹配得到的 {...} 片段。
// 均失败时返回 ErrUnparsableResponse。
func locate(text string) (map[string]json.RawMessage, error) {
	for _, body := range fencedBlocks(text) {
		if obj, ok := decodeObject(body); ok {
			return obj, nil
		}
	}
	if obj, ok := braceObject(text); ok {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: no JSON object in %d bytes of text", contract.ErrUnparsableResponse, len(text))
}

func decodeObject(s string) (map[string]json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// fencedBlocks 返回所有带 json 标签的围栏块内容（按出现顺序）。
// 围栏为 ``` 或 ~~~（≥3），闭合围栏须同字符且不短于开启围栏；未闭合时取到文末。
func fencedBlocks(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var out []string
	for i := 0; i < len(lines); i++ {
		ch, n, info := fenceOpen(lines[i])
		if n == 0 {
			continue
		}
		var body []string
		j := i + 1
		for ; j < len(lines); j++ {
			if isFenceClose(lines[j], ch, n) {
				break
			}
			body = append(body, lines[j])
		}
		tag := strings.ToLower(firstWord(info))
		if _, ok := fenceTags[tag]; ok {
			out = append(out, strings.Join(body, "\n"))
		}
		i = j
	}
	return out
}

func fenceOpen(line string) (ch byte, n int, info string) {
	s := strings.TrimLeft(line, " \t")
	if len(s) < 3 || (s[0] != '`' && s[0] != '~') {
		return 0, 0, ""
	}
	ch = s[0]
	for n < len(s) && s[n] == ch {
		n++
	}
	if n < 3 {
		return 0, 0, ""
	}
	return ch, n, strings.TrimSpace(s[n:])
}

func isFenceClose(line string, ch byte, n int) bool {
	s := strings.TrimSpace(line)
	if len(s) < n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != ch {
			return false
		}
	}
	return true
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \t{"); i >= 0 {
		return s[:i]
	}
	return s
}

// matchBrace 从 b[start]=='{' 开始括号匹配，返回闭合 '}' 的下标；未闭合返回 -1。
// 仅在对象内部跟踪字符串字面量与反斜杠转义；对象外的引号属于散文，忽略。
func matchBrace(b []byte, start int) int {
	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := start; i < len(b); i++ {
		c := b[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// braceObject 依次以每个 '{' 为起点括号匹配并解码，返回首个合法对象。
// 未闭合或解码失败时从下一个 '{' 重新开始，散文中孤立的括号或引号不影响后续载荷。
func braceObject(text string) (map[string]json.RawMessage, bool) {
	b := []byte(text)
	for start := bytes.IndexByte(b, '{'); start >= 0; {
		if end := matchBrace(b, start); end >= 0 {
			if obj, ok := decodeObject(string(b[start : end+1])); ok {
				return obj, true
			}
		}
		next := bytes.IndexByte(b[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}
