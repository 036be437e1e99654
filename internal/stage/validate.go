package stage

import (
	"context"
	"fmt"

	"gridnews/internal/identity"
	"gridnews/internal/pipeline"
	"gridnews/internal/quality"
	"gridnews/pkg/contract"
)

// Validate 对已生成的 augmented.json 重跑质量检查，不写任何文件。
type Validate struct {
	Scheme identity.Scheme
	Read   contract.Reader
}

func (s *Validate) Run(ctx context.Context, job pipeline.Job) (quality.Report, error) {
	paths, err := s.Scheme.Derive(job.Identity)
	if err != nil {
		return quality.Report{}, err
	}
	set, err := readJSON[contract.AugmentedRecordSet](ctx, s.Read, paths.AugmentedFile())
	if err != nil {
		return quality.Report{}, err
	}
	if set.Identity != job.Identity {
		return quality.Report{}, fmt.Errorf("%w: %s belongs to %s", contract.ErrInvariantViolation, paths.AugmentedFile(), set.Identity)
	}
	return quality.Check(set.Records, quality.Options{Period: job.Identity.Period, Mode: job.Identity.Mode}), nil
}
