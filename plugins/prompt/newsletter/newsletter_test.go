package newsletter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridnews/internal/prompt"
	"gridnews/pkg/contract"
)

func sample() contract.BaseRecordSet {
	return contract.BaseRecordSet{
		Identity: contract.RunIdentity{Year: 2025, Period: 10, Mode: contract.ModeAggregate},
		Records: []contract.BaseRecord{
			{ID: "401", Fields: map[string]any{
				"away_team": "Buffalo Bills", "away_abbr": "BUF", "away_score": 30.0, "away_record": "6-2",
				"home_team": "Miami Dolphins", "home_abbr": "MIA", "home_score": 27.0, "home_record": "2-7",
				"game_date_display": "Sun 11/9 1:00PM ET", "stadium": "Hard Rock Stadium", "tv_network": "CBS",
			}, Narrative: "Josh Allen threw for 300 yards."},
			{ID: "402", Fields: map[string]any{"away_team": "Jets", "home_team": "Chiefs", "game_date_iso": "2025-11-09T18:00Z"}},
		},
	}
}

// UT-NWS-01: user 消息包含 GAME 块与元数据；system 列出标签
func TestBuild(t *testing.T) {
	b, err := New(nil)
	require.NoError(t, err)
	p, err := b.Build(context.Background(), sample())
	require.NoError(t, err)
	cp, ok := p.(contract.ChatPrompt)
	require.True(t, ok)
	require.Len(t, cp, 2)
	assert.Equal(t, "system", cp[0].Role)
	for _, tag := range DefaultTags {
		assert.Contains(t, cp[0].Content, "- "+tag)
	}
	assert.Contains(t, cp[0].Content, "under 1500 characters")

	u := cp[1].Content
	for _, want := range []string{
		"Here are 2 NFL games from Week 10.",
		"GAME 1: 401",
		"Away Team: Buffalo Bills (BUF) - 30 - Record: 6-2",
		"Home Team: Miami Dolphins (MIA) - 27 - Record: 2-7",
		"Date: Sun 11/9 1:00PM ET",
		"Stadium: Hard Rock Stadium",
		"TV Network: CBS",
		"RECAP ARTICLE:\nJosh Allen threw for 300 yards.",
		"GAME 2: 402",
		"Date: 2025-11-09T18:00Z",
		"(no recap available)",
	} {
		if !strings.Contains(u, want) {
			t.Fatalf("user 消息缺少 %q:\n%s", want, u)
		}
	}
	assert.Less(t, strings.Index(u, "GAME 1:"), strings.Index(u, "GAME 2:"))
}

// UT-NWS-02: 模板来源、截断与错误
func TestOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("FILE {{len .Tags}}"), 0o644))
	b, err := New(&Options{SystemTemplatePath: path, Tags: []string{"upset"}, PeriodName: "Round", MaxNarrativeBytes: 6})
	require.NoError(t, err)
	assert.Equal(t, "FILE 1", b.System())
	p, err := b.Build(context.Background(), sample())
	require.NoError(t, err)
	u := p.(contract.ChatPrompt)[1].Content
	assert.Contains(t, u, "from Round 10.")
	assert.Contains(t, u, "RECAP ARTICLE:\nJosh A\n")

	b, err = New(&Options{InlineSystemTemplate: "INLINE", SystemTemplatePath: path})
	require.NoError(t, err)
	assert.Equal(t, "INLINE", b.System())

	_, err = New(&Options{SystemTemplatePath: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	_, err = New(&Options{InlineSystemTemplate: "{{.Nope}}"})
	require.Error(t, err)
	_, err = New(&Options{InlineSystemTemplate: "{{"})
	require.Error(t, err)
	_, err = New(&Options{MaxNarrativeBytes: -1})
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	_, err = b.Build(context.Background(), contract.BaseRecordSet{})
	require.ErrorIs(t, err, contract.ErrInvariantViolation)
	_, err = b.Build(context.Background(), contract.BaseRecordSet{Records: []contract.BaseRecord{{}}})
	require.ErrorIs(t, err, contract.ErrInvariantViolation)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Build(ctx, sample())
	require.ErrorIs(t, err, context.Canceled)
}

// UT-NWS-03: 固定开销估算小于完整提示词
func TestOverhead(t *testing.T) {
	b, err := New(nil)
	require.NoError(t, err)
	est := prompt.MakeEstimator(4)
	over := b.EstimateOverheadTokens(est)
	assert.Positive(t, over)
	assert.Zero(t, b.EstimateOverheadTokens(nil))
	p, err := b.Build(context.Background(), sample())
	require.NoError(t, err)
	assert.Greater(t, prompt.PromptTokens(p, est), over)
}

// 补充覆盖: UTF-8 截断
func TestClip(t *testing.T) {
	assert.Equal(t, "ab", clip("ab", 0))
	assert.Equal(t, "a", clip("a中", 3))
	assert.Equal(t, "a中", clip("a中b", 4))
}
