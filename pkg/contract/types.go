package contract

import (
	"fmt"
	"time"
)

// Mode: 运行粒度。aggregate=整周（week），sub=单日（day）。
type Mode string

const (
	ModeAggregate Mode = "aggregate"
	ModeSub       Mode = "sub"
)

// CLIToken 返回命令行/归档中使用的短名（week|day）。
func (m Mode) CLIToken() string {
	switch m {
	case ModeSub:
		return "day"
	case ModeAggregate:
		return "week"
	default:
		return string(m)
	}
}

// RunIdentity: 单次运行的不可变身份。
// 约束：SubKey 非空 ⇔ Mode==ModeSub；SubKey 为紧凑日期 YYYYMMDD。
// 三个阶段的全部路径都只从这一个值派生。
type RunIdentity struct {
	Year   int    `json:"year"`
	Period int    `json:"period"`
	Mode   Mode   `json:"mode"`
	SubKey string `json:"sub_key,omitempty"`
}

// Validate 校验身份不变量（不检查日期是否真实存在，由 identity 包负责）。
func (id RunIdentity) Validate() error {
	if id.Year <= 0 || id.Period <= 0 {
		return fmt.Errorf("%w: year=%d period=%d", ErrMalformedIdentity, id.Year, id.Period)
	}
	switch id.Mode {
	case ModeAggregate:
		if id.SubKey != "" {
			return fmt.Errorf("%w: aggregate identity carries sub key %q", ErrMalformedIdentity, id.SubKey)
		}
	case ModeSub:
		if id.SubKey == "" {
			return fmt.Errorf("%w: sub identity without sub key", ErrMalformedIdentity)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrMalformedIdentity, id.Mode)
	}
	return nil
}

// String 用于日志字段 run，例如 2025-p09-sub-20251109。
func (id RunIdentity) String() string {
	if id.Mode == ModeSub {
		return fmt.Sprintf("%d-p%02d-%s-%s", id.Year, id.Period, id.Mode, id.SubKey)
	}
	return fmt.Sprintf("%d-p%02d-%s", id.Year, id.Period, id.Mode)
}

// BaseRecord: Stage 1 抓取得到的单条内容（一场比赛）。
// Fields 为领域字段（比分/球队/场馆等），Narrative 为仅供摘要输入的大字段（战报全文）。
type BaseRecord struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	Narrative string         `json:"narrative,omitempty"`
}

// BaseRecordSet: base.json 的文档形状。
type BaseRecordSet struct {
	Identity  RunIdentity  `json:"identity"`
	FetchedAt time.Time    `json:"fetched_at"`
	Source    string       `json:"source,omitempty"`
	Records   []BaseRecord `json:"records"`
}

// GenerationMeta: 生成元信息（时间戳 + provider）。
type GenerationMeta struct {
	GeneratedAt time.Time `json:"generated_at"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model,omitempty"`
}

// AugmentedRecord: BaseRecord 去掉 Narrative，加上摘要与标签。
type AugmentedRecord struct {
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields"`
	Summary    string         `json:"summary"`
	Tags       []string       `json:"tags"`
	Generation GenerationMeta `json:"generation"`
}

// AugmentedRecordSet: augmented.json 的文档形状。
type AugmentedRecordSet struct {
	Identity   RunIdentity       `json:"identity"`
	Generation GenerationMeta    `json:"generation"`
	Records    []AugmentedRecord `json:"records"`
}

// ArchiveEntry: 一个已发布工件的描述。
// 聚合条目没有 SubKey/Date/Weekday。
type ArchiveEntry struct {
	Mode        Mode      `json:"mode"`
	SubKey      string    `json:"sub_key,omitempty"`
	Date        string    `json:"date,omitempty"` // YYYY-MM-DD
	Weekday     string    `json:"weekday,omitempty"`
	Filename    string    `json:"filename"`
	RecordCount int       `json:"record_count"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ArchivePeriodGroup: 以 (Year, Period) 为键的条目组。
type ArchivePeriodGroup struct {
	Year    int            `json:"year"`
	Period  int            `json:"period"`
	Entries []ArchiveEntry `json:"entries"`
}

// ArchiveIndex: 归档索引（单个 JSON 文档）。
type ArchiveIndex struct {
	Groups []ArchivePeriodGroup `json:"periods"`
}

// SummaryItem: 索引页的一行（由 ArchiveIndex 临时派生，从不持久化）。
type SummaryItem struct {
	Year        int
	Period      int
	Mode        Mode
	SubKey      string
	Date        string
	Label       string
	Filename    string
	RecordCount int
	GeneratedAt time.Time
}

// ArtifactID: 写出/读取工件的相对标识（正斜杠路径）。
type ArtifactID string
