package mock

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridnews/internal/extract"
	"gridnews/pkg/contract"
)

func set() contract.BaseRecordSet {
	return contract.BaseRecordSet{Records: []contract.BaseRecord{
		{ID: "401", Fields: map[string]any{"away_team": "Bills", "home_team": "Dolphins", "away_score": 30.0, "home_score": 27.0}},
		{ID: "402", Fields: map[string]any{"away_team": "Jets", "home_team": "Chiefs", "away_score": "3", "home_score": 35}},
		{ID: "403", Fields: map[string]any{"away_team": "Rams", "home_team": "49ers"}},
	}}
}

// UT-MCK-01: 三种响应外形抽取结果一致
func TestResponseModesExtractEqual(t *testing.T) {
	x := extract.New(extract.Options{})
	var want extract.Payload
	for i, mode := range []string{"fenced", "prose", "bare"} {
		c, err := New(&Options{ResponseMode: mode})
		require.NoError(t, err)
		raw, err := c.Invoke(context.Background(), set(), contract.TextPrompt("x"))
		require.NoError(t, err)
		p, err := x.Extract(raw.Text)
		require.NoError(t, err)
		require.NoError(t, p.Err())
		if i == 0 {
			want = p
			continue
		}
		if d := cmp.Diff(want, p); d != "" {
			t.Fatalf("模式 %s 抽取结果不一致 (-want +got):\n%s", mode, d)
		}
	}
	require.Len(t, want.Entries, 3)
	assert.Equal(t, []string{"nail-biter", "upset"}, want.Entries[0].Tags)
	assert.Equal(t, "MOCK: Bills beat Dolphins 30-27.", want.Entries[0].Summary)
	assert.Equal(t, []string{"blowout"}, want.Entries[1].Tags)
	assert.Empty(t, want.Entries[2].Tags)
}

// UT-MCK-02: Omit 演练不完整生成；非法模式与取消
func TestOmitAndGuards(t *testing.T) {
	c, err := New(&Options{Omit: []string{"402"}, Prefix: "P", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", c.Model())
	raw, err := c.Invoke(context.Background(), set(), nil)
	require.NoError(t, err)
	p, err := extract.New(extract.Options{}).Extract(raw.Text)
	require.NoError(t, err)
	require.Len(t, p.Entries, 2)
	assert.Equal(t, "403", p.Entries[1].ID)

	_, err = New(&Options{ResponseMode: "yaml"})
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Invoke(ctx, set(), nil)
	require.ErrorIs(t, err, context.Canceled)
}
