package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gridnews/pkg/contract"
)

func noTmp(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("临时文件未清理: %s", e.Name())
		}
	}
}

// UT-WFS-01: 原子写入嵌套路径，父目录自动创建
func TestWriteAtomicNested(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	id := contract.ArtifactID("2025/week09/sub-20251109/base.json")
	if err := w.Write(context.Background(), id, bytes.NewBufferString("data")); err != nil {
		t.Fatalf("write: %v", err)
	}
	p := filepath.Join(dir, "2025", "week09", "sub-20251109", "base.json")
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "data" {
		t.Fatalf("文件内容异常 %v %q", err, string(b))
	}
	noTmp(t, filepath.Dir(p))
}

// UT-WFS-02: 目标已存在时整体替换
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	ctx := context.Background()
	if err := w.Write(ctx, "out.html", bytes.NewBufferString("v1")); err != nil {
		t.Fatalf("write v1: %v", err)
	}
	if err := w.Write(ctx, "out.html", bytes.NewBufferString("v2")); err != nil {
		t.Fatalf("write v2: %v", err)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "out.html"))
	if string(b) != "v2" {
		t.Fatalf("期望替换为 v2，得到 %q", string(b))
	}
	noTmp(t, dir)
}

// UT-WFS-03: 越界路径拒绝
func TestWritePathInvalid(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	for _, id := range []contract.ArtifactID{"../bad", "/etc/passwd", "", ".", "a/../../b"} {
		err := w.Write(context.Background(), id, bytes.NewBufferString("x"))
		if !errors.Is(err, contract.ErrPathInvalid) {
			t.Fatalf("%q 期望 ErrPathInvalid，得到 %v", id, err)
		}
	}
}

// UT-WFS-04: 非原子写入
func TestWriteNonAtomic(t *testing.T) {
	dir := t.TempDir()
	a := false
	w, _ := New(&Options{OutputDir: dir, Atomic: &a})
	if err := w.Write(context.Background(), "x.txt", bytes.NewBufferString("plain")); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "x.txt"))
	if string(b) != "plain" {
		t.Fatalf("内容异常 %q", string(b))
	}
}

// UT-WFS-05: ctx 取消时不产生目标文件
func TestWriteCanceled(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Write(ctx, "c.txt", bytes.NewBufferString("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，得到 %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "c.txt")); !os.IsNotExist(err) {
		t.Fatalf("取消后不应生成文件")
	}
}

// UT-WFS-06: 缺少 OutputDir
func TestNewInvalid(t *testing.T) {
	if _, err := New(&Options{}); err == nil {
		t.Fatalf("期望错误")
	}
	if _, err := New(nil); err == nil {
		t.Fatalf("期望错误")
	}
}
