package merge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridnews/internal/extract"
	"gridnews/pkg/contract"
)

func baseSet() []contract.BaseRecord {
	return []contract.BaseRecord{
		{ID: "a", Fields: map[string]any{"home_team": "Bills", "nested": map[string]any{"q": 1}}, Narrative: "long recap a"},
		{ID: "b", Fields: map[string]any{"home_team": "Jets"}, Narrative: "long recap b"},
		{ID: "c", Fields: map[string]any{"home_team": "Dolphins"}, Narrative: "long recap c"},
	}
}

var meta = contract.GenerationMeta{GeneratedAt: time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC), Provider: "gemini"}

// UT-MRG-01: 3 条基础记录 + 1 个孤儿 + 1 条缺失 → 2 条输出，报告两类异常，运行级升级为 IncompleteGeneration
func TestMergeOrphanAndMissing(t *testing.T) {
	entries := []extract.Entry{
		{ID: "c", Summary: "sum c", Tags: []string{"upset"}},
		{ID: "zzz", Summary: "orphan"},
		{ID: "a", Summary: "sum a", Tags: []string{}},
	}
	out, rep := Merge(baseSet(), entries, meta)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID, "输出保持 base 顺序而非载荷顺序")
	assert.Equal(t, "c", out[1].ID)
	assert.Equal(t, []string{"zzz"}, rep.Orphans)
	assert.Equal(t, []string{"b"}, rep.Missing)
	assert.True(t, errors.Is(rep.Err(), contract.ErrIncompleteGeneration))
}

// UT-MRG-02: 输出 id 永远是 base id 的子集；Narrative 丢弃；字段深拷贝
func TestMergeFieldsAndMetadata(t *testing.T) {
	base := baseSet()
	entries := []extract.Entry{{ID: "a", Summary: "x", Tags: []string{"blowout"}}, {ID: "b", Summary: "y"}, {ID: "c", Summary: "z"}}
	out, rep := Merge(base, entries, meta)
	require.Empty(t, rep.Orphans)
	require.NoError(t, rep.Err())
	require.Len(t, out, 3)
	for _, r := range out {
		assert.Equal(t, meta, r.Generation)
		assert.NotNil(t, r.Tags)
	}
	assert.Equal(t, "Bills", out[0].Fields["home_team"])

	out[0].Fields["nested"].(map[string]any)["q"] = 2
	out[0].Tags[0] = "changed"
	assert.Equal(t, 1, base[0].Fields["nested"].(map[string]any)["q"], "不应与 base 共享")
	assert.Equal(t, "blowout", entries[0].Tags[0], "不应与载荷共享")
}

// 补充覆盖: 只有孤儿时不致命
func TestMergeOrphanOnly(t *testing.T) {
	base := baseSet()[:1]
	out, rep := Merge(base, []extract.Entry{{ID: "a", Summary: "s"}, {ID: "x", Summary: "s"}}, meta)
	assert.Len(t, out, 1)
	assert.NoError(t, rep.Err())
	assert.Equal(t, []string{"x"}, rep.Orphans)
}
