package html

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridnews/pkg/contract"
)

func augmented(mode contract.Mode, sub string) contract.AugmentedRecordSet {
	return contract.AugmentedRecordSet{
		Identity:   contract.RunIdentity{Year: 2025, Period: 10, Mode: mode, SubKey: sub},
		Generation: contract.GenerationMeta{GeneratedAt: time.Date(2025, 11, 10, 3, 0, 0, 0, time.UTC), Provider: "mock"},
		Records: []contract.AugmentedRecord{
			{ID: "402", Fields: map[string]any{"away_team": "Jets", "home_team": "Chiefs", "away_score": 3.0, "home_score": 35.0,
				"game_date_iso": "2025-11-09T21:25Z", "home_abbr": "KC"}, Summary: "KC rolled.", Tags: []string{"blowout"}},
			{ID: "401", Fields: map[string]any{"away_team": "Bills", "home_team": "Dolphins", "away_score": 30.0, "home_score": 27.0,
				"game_date_iso": "2025-11-09T18:00Z", "stadium": "Hard Rock Stadium", "recap_url": "https://x/recap?a=1&b=2"},
				Summary: "Allen <b>late</b> drive.", Tags: []string{"nail-biter", "upset"}},
			{ID: "403", Fields: map[string]any{"away_team": "Rams", "home_team": "49ers", "away_score": 17, "home_score": 17},
				Summary: "Deadlock.", Tags: []string{"unknown"}},
		},
	}
}

// UT-HTM-01: 胜负样式、标签、爆冷计数、排序与转义
func TestRenderArtifact(t *testing.T) {
	r, err := New(&Options{IconBaseURL: "https://cdn.example/"})
	require.NoError(t, err)
	var sb strings.Builder
	require.NoError(t, r.RenderArtifact(context.Background(), augmented(contract.ModeAggregate, ""), contract.ArtifactMeta{SiteTitle: "Gridiron Weekly"}, &sb))
	out := sb.String()

	for _, want := range []string{
		"<title>Gridiron Weekly - Week 10</title>",
		"3 games", "1 upset<",
		`team away winner`, `team home loser`, `team away tie`, `team home tie`,
		`badge badge-nailbiter`, `badge badge-upset`, `badge badge-blowout`,
		"Allen &lt;b&gt;late&lt;/b&gt; drive.",
		`href="https://x/recap?a=1&amp;b=2"`,
		`src="https://cdn.example/images/KC.png"`,
		"Generated 2025-11-10 03:00 UTC by mock",
		"Hard Rock Stadium",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q", want)
		}
	}
	// 按开赛时间排序，缺失时间的排最后
	i401, i402, i403 := strings.Index(out, `id="game-401"`), strings.Index(out, `id="game-402"`), strings.Index(out, `id="game-403"`)
	require.True(t, i401 < i402 && i402 < i403, "顺序错误: %d %d %d", i401, i402, i403)
}

// UT-HTM-02: 单日标题与显式标题
func TestTitle(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, "Week 10", r.Title(contract.RunIdentity{Period: 10, Mode: contract.ModeAggregate}))
	assert.Equal(t, "Week 10 · Sunday", r.Title(contract.RunIdentity{Period: 10, Mode: contract.ModeSub, SubKey: "20251109"}))
	assert.Equal(t, "Week 10", r.Title(contract.RunIdentity{Period: 10, Mode: contract.ModeSub, SubKey: "bad"}))

	var sb strings.Builder
	require.NoError(t, r.RenderArtifact(context.Background(), augmented(contract.ModeSub, "20251109"), contract.ArtifactMeta{Title: "Custom"}, &sb))
	assert.Contains(t, sb.String(), "<h2>Custom</h2>")
}

// UT-HTM-03: 索引页分组与空索引
func TestRenderIndex(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)
	items := []contract.SummaryItem{
		{Year: 2025, Period: 10, Mode: contract.ModeAggregate, Label: "Week 10", Filename: "2025-week10.html", RecordCount: 14},
		{Year: 2025, Period: 10, Mode: contract.ModeSub, Label: "Week 10 · Sun Nov 9", Filename: "2025-week10-sun-251109.html", RecordCount: 1},
		{Year: 2025, Period: 9, Mode: contract.ModeAggregate, Label: "Week 9", Filename: "2025-week09.html", RecordCount: 13},
	}
	var sb strings.Builder
	require.NoError(t, r.RenderIndex(context.Background(), "Gridiron", items, &sb))
	out := sb.String()
	assert.Equal(t, 2, strings.Count(out, `class="week-section"`))
	assert.Contains(t, out, "Week 10 - 2025")
	assert.Contains(t, out, `href="2025-week10-sun-251109.html"`)
	assert.Contains(t, out, "1 game<")
	assert.Contains(t, out, "14 games")
	assert.Less(t, strings.Index(out, "Week 10 - 2025"), strings.Index(out, "Week 9 - 2025"))

	sb.Reset()
	require.NoError(t, r.RenderIndex(context.Background(), "Gridiron", nil, &sb))
	assert.Contains(t, sb.String(), "No newsletters yet.")
}

// UT-HTM-04: 模板覆盖、解析失败、执行失败不写出半截、取消
func TestTemplates(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "page.tmpl")
	require.NoError(t, os.WriteFile(good, []byte("{{.Title}}|{{.UpsetCount}}"), 0o644))
	r, err := New(&Options{TemplateFile: good, PeriodName: "Round"})
	require.NoError(t, err)
	var sb strings.Builder
	require.NoError(t, r.RenderArtifact(context.Background(), augmented(contract.ModeAggregate, ""), contract.ArtifactMeta{}, &sb))
	assert.Equal(t, "Round 10|1", sb.String())

	bad := filepath.Join(dir, "bad.tmpl")
	require.NoError(t, os.WriteFile(bad, []byte("{{.Nope}}"), 0o644))
	r, err = New(&Options{IndexTemplateFile: bad})
	require.NoError(t, err)
	sb.Reset()
	require.Error(t, r.RenderIndex(context.Background(), "x", nil, &sb))
	assert.Empty(t, sb.String())

	require.NoError(t, os.WriteFile(bad, []byte("{{"), 0o644))
	_, err = New(&Options{TemplateFile: bad})
	require.Error(t, err)
	_, err = New(&Options{TemplateFile: filepath.Join(dir, "missing")})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.RenderArtifact(ctx, contract.AugmentedRecordSet{}, contract.ArtifactMeta{}, &sb), context.Canceled)
	require.ErrorIs(t, r.RenderIndex(ctx, "", nil, &sb), context.Canceled)
}
