package stage

import (
	"context"
	"fmt"
	"time"

	"gridnews/internal/diag"
	"gridnews/internal/identity"
	"gridnews/internal/pipeline"
	"gridnews/pkg/contract"
)

// Fetch: 阶段一。抓取记录并写出 base.json；无记录返回 ErrNoData 且不写文件。
type Fetch struct {
	Fetcher contract.Fetcher
	Source  string
	Scheme  identity.Scheme
	Work    contract.Writer
	Now     func() time.Time
	Logger  *diag.Logger
}

func (s *Fetch) Name() string { return "fetch" }

func (s *Fetch) Run(ctx context.Context, job pipeline.Job) error {
	paths, err := s.Scheme.Derive(job.Identity)
	if err != nil {
		return err
	}
	recs, err := s.Fetcher.Fetch(ctx, job.Identity, job.Date)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("%s: %w", job.Identity, contract.ErrNoData)
	}
	for i, r := range recs {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d without id", contract.ErrInvariantViolation, i)
		}
	}
	set := contract.BaseRecordSet{
		Identity:  job.Identity,
		FetchedAt: now(s.Now),
		Source:    s.Source,
		Records:   recs,
	}
	if err := writeJSON(ctx, s.Work, paths.BaseFile(), set); err != nil {
		return err
	}
	s.Logger.InfoFinish("stage.fetch", "base written: "+string(paths.BaseFile()), set.FetchedAt, int64(len(recs)))
	return nil
}

var _ pipeline.Stage = (*Fetch)(nil)
