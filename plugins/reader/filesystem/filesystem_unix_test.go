//go:build !windows

package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"gridnews/pkg/contract"
)

// UT-RFS-05: 非常规文件被忽略；指向常规文件的符号链接可读
func TestWalkNonRegularAndSymlink(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := syscall.Mkfifo(filepath.Join(sub, "augmented.json"), 0o644); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	target := filepath.Join(root, "real.json")
	if err := os.WriteFile(target, []byte("r"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	linkDir := filepath.Join(root, "b")
	_ = os.MkdirAll(linkDir, 0o755)
	if err := os.Symlink(target, filepath.Join(linkDir, "augmented.json")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	var visited []string
	err := New(&Options{Root: root}).Walk(context.Background(), "augmented.json", func(id contract.ArtifactID, rc io.ReadCloser) error {
		visited = append(visited, string(id))
		return rc.Close()
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(visited) != 1 || visited[0] != "b/augmented.json" {
		t.Fatalf("期望仅访问符号链接文件，得到 %v", visited)
	}
}
