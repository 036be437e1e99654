package archive

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"gridnews/pkg/contract"
)

var titleCase = cases.Title(language.English)

// DefaultPeriodName: 标签中周期的默认称呼。
const DefaultPeriodName = "Week"

// Render 派生扁平视图（最新在前），每次调用重新计算，不修改索引。
// 组按 (year, period) 降序；组内先 aggregate，再按 SubKey 降序。
// periodName 为标签中的周期称呼，空值取 DefaultPeriodName。
func Render(idx contract.ArchiveIndex, periodName string) []contract.SummaryItem {
	if periodName == "" {
		periodName = DefaultPeriodName
	}
	items := make([]contract.SummaryItem, 0, Len(idx))
	for gi := len(idx.Groups) - 1; gi >= 0; gi-- {
		g := idx.Groups[gi]
		es := make([]contract.ArchiveEntry, len(g.Entries))
		copy(es, g.Entries)
		sortEntries(es)
		// 升序排好后逆序遍历：aggregate 在末尾，因而最先输出
		for i := len(es) - 1; i >= 0; i-- {
			e := es[i]
			items = append(items, contract.SummaryItem{
				Year:        g.Year,
				Period:      g.Period,
				Mode:        e.Mode,
				SubKey:      e.SubKey,
				Date:        e.Date,
				Label:       label(periodName, g.Period, e),
				Filename:    e.Filename,
				RecordCount: e.RecordCount,
				GeneratedAt: e.GeneratedAt,
			})
		}
	}
	return items
}

func label(name string, period int, e contract.ArchiveEntry) string {
	if e.Mode != contract.ModeSub {
		return fmt.Sprintf("%s %d", name, period)
	}
	d, err := time.Parse("2006-01-02", e.Date)
	if err != nil {
		return fmt.Sprintf("%s %d · %s", name, period, e.SubKey)
	}
	return fmt.Sprintf("%s %d · %s %s", name, period, titleCase.String(e.Weekday), d.Format("Jan 2"))
}
