// Package merge 将生成内容按 id 合并回基础记录集。
package merge

import (
	"fmt"
	"strings"

	"gridnews/internal/extract"
	"gridnews/pkg/contract"
)

// Report: 合并异常。Orphans 为载荷中无对应基础记录的 id（已排除）；
// Missing 为没有生成内容的基础记录 id。
type Report struct {
	Orphans []string
	Missing []string
}

// Err: 只要存在 Missing 即整体失败（ErrIncompleteGeneration）；仅有 Orphans 不致命。
func (r Report) Err() error {
	if len(r.Missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d record(s) without generated content: %s",
		contract.ErrIncompleteGeneration, len(r.Missing), strings.Join(r.Missing, ","))
}

// Merge 产出增强记录：保持 base 顺序，丢弃 Narrative，附加 summary/tags/生成元信息。
// 绝不凭空生成或丢失身份：输出 id ⊆ base id。
func Merge(base []contract.BaseRecord, entries []extract.Entry, meta contract.GenerationMeta) ([]contract.AugmentedRecord, Report) {
	var rep Report
	byID := make(map[string]extract.Entry, len(entries))
	known := make(map[string]struct{}, len(base))
	for _, b := range base {
		known[b.ID] = struct{}{}
	}
	for _, e := range entries {
		if _, ok := known[e.ID]; !ok {
			rep.Orphans = append(rep.Orphans, e.ID)
			continue
		}
		if _, dup := byID[e.ID]; !dup {
			byID[e.ID] = e
		}
	}

	out := make([]contract.AugmentedRecord, 0, len(base))
	for _, b := range base {
		e, ok := byID[b.ID]
		if !ok {
			rep.Missing = append(rep.Missing, b.ID)
			continue
		}
		tags := make([]string, len(e.Tags))
		copy(tags, e.Tags)
		out = append(out, contract.AugmentedRecord{
			ID:         b.ID,
			Fields:     cloneFields(b.Fields),
			Summary:    e.Summary,
			Tags:       tags,
			Generation: meta,
		})
	}
	return out, rep
}

// cloneFields 深拷贝，避免增强记录与基础记录共享可变状态。
func cloneFields(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	default:
		return v
	}
}
