// Package stage 实现三个阶段体（抓取/生成/发布）与归档重建。
// 阶段之间只通过工作树中的 base.json / augmented.json 交接，路径全部由运行身份派生。
package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gridnews/pkg/contract"
)

// readJSON 读取并严格解码一个工件。
func readJSON[T any](ctx context.Context, r contract.Reader, id contract.ArtifactID) (T, error) {
	var v T
	rc, err := r.Open(ctx, id)
	if err != nil {
		return v, fmt.Errorf("open %s: %w", id, err)
	}
	defer rc.Close()
	dec := json.NewDecoder(rc)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("decode %s: %w", id, err)
	}
	return v, nil
}

// writeJSON 以缩进 JSON 原子写出工件。
func writeJSON(ctx context.Context, w contract.Writer, id contract.ArtifactID, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	b = append(b, '\n')
	return writeBytes(ctx, w, id, b)
}

func writeBytes(ctx context.Context, w contract.Writer, id contract.ArtifactID, b []byte) error {
	if err := w.Write(ctx, id, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	return nil
}

func now(f func() time.Time) time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}
