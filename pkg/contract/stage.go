package contract

import (
	"context"
	"io"
	"time"
)

// Fetcher: Stage 1 数据源。返回该身份范围内的全部基础记录；
// 无记录时返回空切片（由调用方转换为 ErrNoData），而不是错误。
// date 为请求日期（单日模式下与 SubKey 一致）。
type Fetcher interface {
	Fetch(ctx context.Context, id RunIdentity, date time.Time) ([]BaseRecord, error)
}

// ArtifactMeta: 渲染所需的外围信息（标题/站点名等）。
type ArtifactMeta struct {
	SiteTitle string
	Title     string
	Filename  string
}

// Renderer: Stage 3 渲染器。
// RenderArtifact 输出单期 HTML；RenderIndex 输出归档索引页。
type Renderer interface {
	RenderArtifact(ctx context.Context, set AugmentedRecordSet, meta ArtifactMeta, w io.Writer) error
	RenderIndex(ctx context.Context, siteTitle string, items []SummaryItem, w io.Writer) error
}
