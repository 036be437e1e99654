package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gridnews/pkg/contract"
)

func writeFile(t *testing.T, p, s string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(s), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// UT-RFS-01: Open 读取相对 root 的工件
func TestOpen(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2025", "week09", "base.json"), "hello")
	r := New(&Options{Root: dir})
	rc, err := r.Open(context.Background(), "2025/week09/base.json")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "hello" {
		t.Fatalf("内容异常 %q", string(b))
	}
}

// UT-RFS-02: 不存在的工件返回 fs.ErrNotExist；越界路径返回 ErrPathInvalid
func TestOpenErrors(t *testing.T) {
	r := New(&Options{Root: t.TempDir()})
	if _, err := r.Open(context.Background(), "missing.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("期望 ErrNotExist，得到 %v", err)
	}
	for _, id := range []contract.ArtifactID{"../x", "/abs", ""} {
		if _, err := r.Open(context.Background(), id); !errors.Is(err, contract.ErrPathInvalid) {
			t.Fatalf("%q 期望 ErrPathInvalid，得到 %v", id, err)
		}
	}
}

// UT-RFS-03: Walk 稳定顺序、按基名过滤、跳过排除目录
func TestWalk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2025", "week10", "augmented.json"), "b")
	writeFile(t, filepath.Join(dir, "2025", "week09", "augmented.json"), "a")
	writeFile(t, filepath.Join(dir, "2025", "week09", "base.json"), "x")
	writeFile(t, filepath.Join(dir, "2025", "week09", "sub-20251109", "augmented.json"), "c")
	writeFile(t, filepath.Join(dir, "skip", "augmented.json"), "s")

	r := New(&Options{Root: dir, ExcludeDirNames: []string{"SKIP"}})
	var ids, bodies []string
	err := r.Walk(context.Background(), "augmented.json", func(id contract.ArtifactID, rc io.ReadCloser) error {
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		ids = append(ids, string(id))
		bodies = append(bodies, string(b))
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	want := "2025/week09/sub-20251109/augmented.json,2025/week09/augmented.json,2025/week10/augmented.json"
	if strings.Join(ids, ",") != want {
		t.Fatalf("顺序异常: %v", ids)
	}
	if strings.Join(bodies, "") != "cab" {
		t.Fatalf("内容异常: %v", bodies)
	}
}

// UT-RFS-04: root 不存在视为空树；yield 错误直接上抛
func TestWalkEdges(t *testing.T) {
	r := New(&Options{Root: filepath.Join(t.TempDir(), "nope")})
	if err := r.Walk(context.Background(), "a", func(contract.ArtifactID, io.ReadCloser) error { return nil }); err != nil {
		t.Fatalf("不存在的 root 应视为空: %v", err)
	}

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), "1")
	boom := errors.New("boom")
	r = New(&Options{Root: dir})
	err := r.Walk(context.Background(), "a", func(contract.ArtifactID, io.ReadCloser) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("期望 boom，得到 %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Walk(ctx, "a", func(contract.ArtifactID, io.ReadCloser) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("期望取消，得到 %v", err)
	}
}
