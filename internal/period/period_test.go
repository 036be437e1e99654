package period

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridnews/pkg/contract"
)

var seasonStart = time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC)

// UT-PER-01: 赛季首日之前一律为 1
func TestResolveBeforeSeason(t *testing.T) {
	for _, d := range []time.Time{
		seasonStart.AddDate(0, 0, -1),
		seasonStart.AddDate(0, -3, 0),
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		assert.Equal(t, 1, Resolve(d, seasonStart, 18), d.Format("2006-01-02"))
	}
}

// UT-PER-02: seasonStart + 7*(k-1) 恰为第 k 周，周内 6 天不跨周
func TestResolveEachPeriod(t *testing.T) {
	const n = 18
	for k := 1; k <= n; k++ {
		d := seasonStart.AddDate(0, 0, 7*(k-1))
		require.Equal(t, k, Resolve(d, seasonStart, n), "k=%d", k)
		require.Equal(t, k, Resolve(d.AddDate(0, 0, 6), seasonStart, n), "k=%d +6d", k)
	}
}

// UT-PER-03: seasonStart + count*7 及之后一律为 count
func TestResolveClampHigh(t *testing.T) {
	const n = 18
	assert.Equal(t, n, Resolve(seasonStart.AddDate(0, 0, 7*n), seasonStart, n))
	assert.Equal(t, n, Resolve(seasonStart.AddDate(2, 0, 0), seasonStart, n))
}

// 补充覆盖: 时刻与时区不影响日历日计算
func TestResolveIgnoresClock(t *testing.T) {
	et := time.FixedZone("ET", -5*3600)
	d := time.Date(2025, 11, 9, 23, 59, 0, 0, et)
	assert.Equal(t, 10, Resolve(d, seasonStart, 18))
	assert.Equal(t, 1, Resolve(d, seasonStart, 0), "count<1 视为 1")
}

func TestStrategies(t *testing.T) {
	s, err := New("date", seasonStart, 18, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, s.Period(time.Date(2025, 11, 9, 0, 0, 0, 0, time.UTC)))

	s, err = New("manual", seasonStart, 18, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Period(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, err = New("manual", seasonStart, 18, 19)
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))

	_, err = New("lunar", seasonStart, 18, 0)
	var ie *contract.InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "period_strategy", ie.Field)

	assert.Equal(t, 18, Manual{Fixed: 40, Count: 18}.Period(time.Time{}))
}
