// Package archive 维护已发布工件的持久索引：按键 upsert（替换不重复）与纯函数视图派生。
package archive

import (
	"fmt"
	"sort"
	"strings"

	"gridnews/internal/identity"
	"gridnews/pkg/contract"
)

// Entry: 带分组键的待 upsert 条目。
type Entry struct {
	Year   int
	Period int
	contract.ArchiveEntry
}

// key 为组内自然键：sub 为 (mode, subKey)，aggregate 仅 mode。
func key(e contract.ArchiveEntry) string {
	if e.Mode == contract.ModeSub {
		return string(e.Mode) + "/" + e.SubKey
	}
	return string(e.Mode)
}

// Upsert 返回插入或替换后的新索引；输入索引不被修改。
// 校验失败时返回原索引与错误（全有或全无）。
func Upsert(idx contract.ArchiveIndex, e Entry) (contract.ArchiveIndex, error) {
	norm, err := normalize(e)
	if err != nil {
		return idx, err
	}
	out := clone(idx)

	// 同一 (year, period) 的重复分组并入首个分组
	gi := -1
	groups := out.Groups[:0]
	for _, g := range out.Groups {
		if g.Year != norm.Year || g.Period != norm.Period {
			groups = append(groups, g)
			continue
		}
		if gi < 0 {
			gi = len(groups)
			groups = append(groups, g)
			continue
		}
		groups[gi].Entries = append(groups[gi].Entries, g.Entries...)
	}
	out.Groups = groups
	if gi < 0 {
		out.Groups = append(out.Groups, contract.ArchivePeriodGroup{Year: norm.Year, Period: norm.Period})
		gi = len(out.Groups) - 1
	}
	g := &out.Groups[gi]
	// 移除组内全部同键条目（含历史遗留的重复项）后再写入
	k := key(norm.ArchiveEntry)
	kept := g.Entries[:0]
	for _, e := range g.Entries {
		if key(e) != k {
			kept = append(kept, e)
		}
	}
	g.Entries = append(kept, norm.ArchiveEntry)
	sortEntries(g.Entries)
	sortGroups(out.Groups)
	return out, nil
}

// normalize 校验不变量，并从 SubKey 补齐 Date/Weekday。
func normalize(e Entry) (Entry, error) {
	if e.Year <= 0 || e.Period <= 0 {
		return e, fmt.Errorf("%w: archive entry year=%d period=%d", contract.ErrInvariantViolation, e.Year, e.Period)
	}
	if strings.TrimSpace(e.Filename) == "" || strings.ContainsAny(e.Filename, `/\`) {
		return e, fmt.Errorf("%w: archive entry filename %q", contract.ErrInvariantViolation, e.Filename)
	}
	if e.RecordCount < 0 {
		return e, fmt.Errorf("%w: archive entry record count %d", contract.ErrInvariantViolation, e.RecordCount)
	}
	switch e.Mode {
	case contract.ModeAggregate:
		if e.SubKey != "" || e.Date != "" {
			return e, fmt.Errorf("%w: aggregate archive entry carries a date", contract.ErrMalformedIdentity)
		}
		e.Weekday = ""
	case contract.ModeSub:
		d, err := identity.ParseSubKey(e.SubKey)
		if err != nil {
			return e, err
		}
		e.Date = d.Format("2006-01-02")
		e.Weekday = identity.WeekdayAbbr(d)
	default:
		return e, fmt.Errorf("%w: archive entry mode %q", contract.ErrMalformedIdentity, e.Mode)
	}
	return e, nil
}

// 组内排序：sub 按 SubKey 升序，唯一的 aggregate 条目置于末尾。
func sortEntries(es []contract.ArchiveEntry) {
	sort.SliceStable(es, func(i, j int) bool {
		ai, aj := es[i].Mode == contract.ModeAggregate, es[j].Mode == contract.ModeAggregate
		if ai != aj {
			return aj
		}
		return es[i].SubKey < es[j].SubKey
	})
}

func sortGroups(gs []contract.ArchivePeriodGroup) {
	sort.SliceStable(gs, func(i, j int) bool {
		if gs[i].Year != gs[j].Year {
			return gs[i].Year < gs[j].Year
		}
		return gs[i].Period < gs[j].Period
	})
}

func clone(idx contract.ArchiveIndex) contract.ArchiveIndex {
	out := contract.ArchiveIndex{Groups: make([]contract.ArchivePeriodGroup, len(idx.Groups))}
	for i, g := range idx.Groups {
		es := make([]contract.ArchiveEntry, len(g.Entries))
		copy(es, g.Entries)
		out.Groups[i] = contract.ArchivePeriodGroup{Year: g.Year, Period: g.Period, Entries: es}
	}
	return out
}

// Len 返回条目总数。
func Len(idx contract.ArchiveIndex) int {
	n := 0
	for _, g := range idx.Groups {
		n += len(g.Entries)
	}
	return n
}
