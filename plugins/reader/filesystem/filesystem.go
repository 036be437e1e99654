package filesystem

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gridnews/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置。
type Options struct {
	// Root: 工作树根目录；ArtifactID 相对于它解析。
	Root string `json:"root"`
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: Walk 时跳过这些目录名（基名，大小写不敏感）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
}

// FileSystem 实现基于本地文件系统的 Reader。
type FileSystem struct {
	root    string
	bufSize int
	// 以小写形式保存，比较时按小写基名匹配。
	excludeDir map[string]struct{}
}

// New 创建 FileSystem Reader。Root 为空时使用当前目录。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	b := defaultBuf
	root := "."
	ex := make(map[string]struct{})
	if opts != nil {
		if opts.BufSize > 0 {
			b = opts.BufSize
		}
		if strings.TrimSpace(opts.Root) != "" {
			root = opts.Root
		}
		for _, name := range opts.ExcludeDirNames {
			if name == "" {
				continue
			}
			ex[strings.ToLower(name)] = struct{}{}
		}
	}
	return &FileSystem{root: root, bufSize: b, excludeDir: ex}
}

var _ contract.Reader = (*FileSystem)(nil)

// Open 打开 root 下的单个工件。不存在时错误满足 errors.Is(err, fs.ErrNotExist)。
func (r *FileSystem) Open(ctx context.Context, id contract.ArtifactID) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	p, err := r.mapPath(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	return newBufferedCloser(f, r.bufSize), nil
}

// Walk 以稳定顺序（字典序，先子目录后文件）遍历 root，
// 对基名等于 name 的常规文件调用 yield；rc 由 yield 负责关闭。
// root 不存在时视为空树。
func (r *FileSystem) Walk(ctx context.Context, name string, yield func(id contract.ArtifactID, rc io.ReadCloser) error) error {
	if _, err := os.Stat(r.root); os.IsNotExist(err) {
		return nil
	}
	return r.walkDir(ctx, r.root, name, yield)
}

func (r *FileSystem) mapPath(id contract.ArtifactID) (string, error) {
	s := string(contract.NormalizeArtifactID(string(id)))
	if s == "." || s == "" || strings.HasPrefix(s, "/") || s == ".." || strings.HasPrefix(s, "../") {
		return "", contract.ErrPathInvalid
	}
	rel := filepath.FromSlash(s)
	if filepath.VolumeName(rel) != "" {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(r.root, rel), nil
}

func (r *FileSystem) relID(p string) contract.ArtifactID {
	rel, err := filepath.Rel(r.root, p)
	if err != nil {
		return contract.NormalizeArtifactID(filepath.ToSlash(p))
	}
	return contract.NormalizeArtifactID(filepath.ToSlash(rel))
}

func (r *FileSystem) walkDir(ctx context.Context, dir, name string, yield func(contract.ArtifactID, io.ReadCloser) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// 先目录（不跟随目录符号链接）
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), name, yield); err != nil {
			return err
		}
	}
	// 再文件（允许指向常规文件的符号链接）
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if e.IsDir() || e.Name() != name {
			continue
		}
		p := filepath.Join(dir, e.Name())
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		brc := newBufferedCloser(f, r.bufSize)
		if err := yield(r.relID(p), brc); err != nil {
			_ = brc.Close()
			return err
		}
	}
	return nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
