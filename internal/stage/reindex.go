package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"gridnews/internal/archive"
	"gridnews/internal/diag"
	"gridnews/internal/identity"
	"gridnews/pkg/contract"
)

// Reindex 从工作树中的 augmented.json 重建归档并重写索引页。
// 不在其身份派生位置上的文档被跳过并记录告警。
type Reindex struct {
	Renderer   contract.Renderer
	Scheme     identity.Scheme
	Read       contract.Reader
	Docs       contract.Writer
	Archive    archive.Store
	SiteTitle  string
	// PeriodName: 索引标签中的周期称呼，空值取 archive.DefaultPeriodName。
	PeriodName string
	Logger     *diag.Logger
}

// Run 返回重建后的条目数。
func (s *Reindex) Run(ctx context.Context) (int, error) {
	tm := s.Logger.Start("stage.reindex", "reindex start")
	var entries []archive.Entry
	err := s.Read.Walk(ctx, identity.AugmentedFileName, func(id contract.ArtifactID, rc io.ReadCloser) error {
		defer rc.Close()
		set, err := decodeAugmented(rc)
		if err != nil {
			return fmt.Errorf("decode %s: %w", id, err)
		}
		paths, err := s.Scheme.Derive(set.Identity)
		if err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		if path.Dir(string(id)) != paths.Rel {
			s.Logger.Warn("stage.reindex", "misplaced", "skipped "+string(id), set.Identity.String(),
				map[string]string{"expected": paths.Rel})
			return nil
		}
		entries = append(entries, entryOf(set.Identity, paths, set))
		return nil
	})
	if err != nil {
		return 0, err
	}
	idx, err := archive.Rebuild(ctx, s.Archive, entries)
	if err != nil {
		return 0, err
	}
	if err := WriteIndex(ctx, s.Renderer, s.Docs, s.SiteTitle, s.PeriodName, idx); err != nil {
		return 0, err
	}
	n := archive.Len(idx)
	tm.Finish("reindex done", int64(n))
	return n, nil
}

func decodeAugmented(r io.Reader) (contract.AugmentedRecordSet, error) {
	var set contract.AugmentedRecordSet
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	err := dec.Decode(&set)
	return set, err
}
