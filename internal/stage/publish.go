package stage

import (
	"bytes"
	"context"
	"fmt"

	"gridnews/internal/archive"
	"gridnews/internal/diag"
	"gridnews/internal/identity"
	"gridnews/internal/pipeline"
	"gridnews/pkg/contract"
)

// IndexFile 为站点目录中的归档索引页。
const IndexFile contract.ArtifactID = "index.html"

// Publish: 阶段三。渲染 augmented.json，写入工作树与站点目录，更新归档与索引页。
type Publish struct {
	Renderer   contract.Renderer
	Scheme     identity.Scheme
	Read       contract.Reader
	Work       contract.Writer
	Docs       contract.Writer
	Archive    archive.Store
	SiteTitle  string
	// PeriodName: 索引标签中的周期称呼，空值取 archive.DefaultPeriodName。
	PeriodName string
	Logger     *diag.Logger
}

func (s *Publish) Name() string { return "publish" }

func (s *Publish) Run(ctx context.Context, job pipeline.Job) error {
	paths, err := s.Scheme.Derive(job.Identity)
	if err != nil {
		return err
	}
	set, err := readJSON[contract.AugmentedRecordSet](ctx, s.Read, paths.AugmentedFile())
	if err != nil {
		return err
	}
	if len(set.Records) == 0 {
		return fmt.Errorf("%w: %s holds no records", contract.ErrInvariantViolation, paths.AugmentedFile())
	}
	if set.Identity != job.Identity {
		return fmt.Errorf("%w: %s belongs to %s", contract.ErrInvariantViolation, paths.AugmentedFile(), set.Identity)
	}

	var buf bytes.Buffer
	meta := contract.ArtifactMeta{SiteTitle: s.SiteTitle, Filename: paths.Filename}
	if err := s.Renderer.RenderArtifact(ctx, set, meta, &buf); err != nil {
		return fmt.Errorf("render %s: %w", paths.Filename, err)
	}
	if err := writeBytes(ctx, s.Work, paths.ArtifactFile(), buf.Bytes()); err != nil {
		return err
	}
	if err := writeBytes(ctx, s.Docs, contract.ArtifactID(paths.Filename), buf.Bytes()); err != nil {
		return err
	}

	idx, err := archive.Apply(ctx, s.Archive, entryOf(job.Identity, paths, set))
	if err != nil {
		return err
	}
	if err := WriteIndex(ctx, s.Renderer, s.Docs, s.SiteTitle, s.PeriodName, idx); err != nil {
		return err
	}
	s.Logger.InfoFinish("stage.publish", "published: "+paths.Filename, set.Generation.GeneratedAt, int64(len(set.Records)))
	return nil
}

// entryOf 由身份与增强记录集构造归档条目；Date/Weekday 由 archive 从 SubKey 补齐。
func entryOf(id contract.RunIdentity, paths identity.Paths, set contract.AugmentedRecordSet) archive.Entry {
	return archive.Entry{
		Year:   id.Year,
		Period: id.Period,
		ArchiveEntry: contract.ArchiveEntry{
			Mode:        id.Mode,
			SubKey:      id.SubKey,
			Filename:    paths.Filename,
			RecordCount: len(set.Records),
			GeneratedAt: set.Generation.GeneratedAt.UTC(),
		},
	}
}

// WriteIndex 由归档派生视图并重写站点索引页。
func WriteIndex(ctx context.Context, r contract.Renderer, docs contract.Writer, siteTitle, periodName string, idx contract.ArchiveIndex) error {
	var buf bytes.Buffer
	if err := r.RenderIndex(ctx, siteTitle, archive.Render(idx, periodName), &buf); err != nil {
		return fmt.Errorf("render index: %w", err)
	}
	return writeBytes(ctx, docs, IndexFile, buf.Bytes())
}

var _ pipeline.Stage = (*Publish)(nil)
