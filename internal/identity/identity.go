// Package identity 从 RunIdentity 确定性派生工作目录与工件文件名（纯函数，无 I/O）。
package identity

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gridnews/pkg/contract"
)

// 工作目录内的固定文档名。
const (
	BaseFileName      = "base.json"
	AugmentedFileName = "augmented.json"
)

// DefaultLabel 为目录/文件名中周次前的标签。
const DefaultLabel = "period"

// Scheme: 路径方案。对固定的 Root+Label，Derive 是单射。
type Scheme struct {
	Root  string
	Label string
}

// Paths: 某一身份下三个阶段读写的全部位置。
type Paths struct {
	// WorkDir 为文件系统路径；Rel 为相对 Root 的正斜杠形式（供 Writer/Reader 使用）。
	WorkDir  string
	Rel      string
	Filename string
}

// BaseFile 为 Stage 1 写出的基础记录集。
func (p Paths) BaseFile() contract.ArtifactID { return contract.JoinArtifactID(p.Rel, BaseFileName) }

// AugmentedFile 为 Stage 2 写出的增强记录集。
func (p Paths) AugmentedFile() contract.ArtifactID {
	return contract.JoinArtifactID(p.Rel, AugmentedFileName)
}

// ArtifactFile 为 Stage 3 渲染结果在工作树中的位置。
func (p Paths) ArtifactFile() contract.ArtifactID { return contract.JoinArtifactID(p.Rel, p.Filename) }

// DebugFile 为生成失败时保存原始响应的位置。
func (p Paths) DebugFile(ts time.Time) contract.ArtifactID {
	return contract.JoinArtifactID(p.Rel, "generation-debug-"+ts.UTC().Format("20060102T150405Z")+".txt")
}

func (s Scheme) label() string {
	if l := strings.TrimSpace(s.Label); l != "" {
		return l
	}
	return DefaultLabel
}

// Derive 计算身份对应的路径。
// aggregate: {root}/{year}-{label}{NN}/           文件名 {year}-{label}{NN}.html
// sub:       {root}/{year}-{label}{NN}/{YYYYMMDD}/ 文件名 {year}-{label}{NN}-{ddd}-{yymmdd}.html
// subKey 非法时在产生任何路径前返回 ErrMalformedIdentity。
func (s Scheme) Derive(id contract.RunIdentity) (Paths, error) {
	if err := id.Validate(); err != nil {
		return Paths{}, err
	}
	group := fmt.Sprintf("%d-%s%02d", id.Year, s.label(), id.Period)
	switch id.Mode {
	case contract.ModeAggregate:
		return Paths{
			WorkDir:  filepath.Join(s.Root, group),
			Rel:      group,
			Filename: group + ".html",
		}, nil
	default:
		d, err := ParseSubKey(id.SubKey)
		if err != nil {
			return Paths{}, err
		}
		rel := group + "/" + id.SubKey
		return Paths{
			WorkDir:  filepath.Join(s.Root, group, id.SubKey),
			Rel:      rel,
			Filename: fmt.Sprintf("%s-%s-%s.html", group, WeekdayAbbr(d), d.Format("060102")),
		}, nil
	}
}

// ParseSubKey 解析紧凑日期 YYYYMMDD；长度/字符/日历非法均为 ErrMalformedIdentity。
func ParseSubKey(key string) (time.Time, error) {
	if len(key) != 8 || !allDigits(key) {
		return time.Time{}, fmt.Errorf("%w: sub key %q must be 8 digits", contract.ErrMalformedIdentity, key)
	}
	d, err := time.Parse("20060102", key)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: sub key %q: %v", contract.ErrMalformedIdentity, key, err)
	}
	return d, nil
}

// WeekdayAbbr 返回小写三字母星期缩写（sun/mon/...）。
func WeekdayAbbr(d time.Time) string {
	return strings.ToLower(d.Weekday().String()[:3])
}

// SubKeyOf 将日期格式化为紧凑形式。
func SubKeyOf(d time.Time) string { return d.Format("20060102") }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
