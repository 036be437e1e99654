package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"gridnews/pkg/contract"
)

// Store: 归档索引的持久化句柄（显式传入，不做全局状态）。
// 读写均为整份文档；不支持并发写者，需要时由外部互斥。
type Store interface {
	// Load 读取整份索引；文档不存在时返回空索引。
	Load(ctx context.Context) (contract.ArchiveIndex, error)
	// Save 整体覆盖写入。
	Save(ctx context.Context, idx contract.ArchiveIndex) error
}

// Apply 执行一次 load → upsert → save；upsert 失败时不写入。
func Apply(ctx context.Context, s Store, e Entry) (contract.ArchiveIndex, error) {
	idx, err := s.Load(ctx)
	if err != nil {
		return contract.ArchiveIndex{}, fmt.Errorf("archive load: %w", err)
	}
	next, err := Upsert(idx, e)
	if err != nil {
		return idx, fmt.Errorf("archive upsert: %w", err)
	}
	if err := s.Save(ctx, next); err != nil {
		return idx, fmt.Errorf("archive save: %w", err)
	}
	return next, nil
}

// Rebuild 从零开始按顺序 upsert 全部条目并整体保存（reindex）。
func Rebuild(ctx context.Context, s Store, entries []Entry) (contract.ArchiveIndex, error) {
	var idx contract.ArchiveIndex
	for _, e := range entries {
		next, err := Upsert(idx, e)
		if err != nil {
			return contract.ArchiveIndex{}, fmt.Errorf("archive rebuild: %w", err)
		}
		idx = next
	}
	if err := s.Save(ctx, idx); err != nil {
		return contract.ArchiveIndex{}, fmt.Errorf("archive save: %w", err)
	}
	return idx, nil
}

// MemoryStore: 内存替身，保存深拷贝。
type MemoryStore struct {
	mu    sync.Mutex
	idx   contract.ArchiveIndex
	saves int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) (contract.ArchiveIndex, error) {
	if err := ctx.Err(); err != nil {
		return contract.ArchiveIndex{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.idx), nil
}

func (m *MemoryStore) Save(ctx context.Context, idx contract.ArchiveIndex) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idx = clone(idx)
	m.saves++
	return nil
}

// Saves 返回 Save 调用次数（测试用）。
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FileStore: 固定路径上的单个 JSON 文档；写入经由原子 Writer（临时文件 + rename）。
type FileStore struct {
	r  contract.Reader
	w  contract.Writer
	id contract.ArtifactID
}

// NewFileStore 以同一根目录下的 Reader/Writer 与文档标识构造。
func NewFileStore(r contract.Reader, w contract.Writer, id contract.ArtifactID) *FileStore {
	return &FileStore{r: r, w: w, id: id}
}

func (f *FileStore) Load(ctx context.Context) (contract.ArchiveIndex, error) {
	rc, err := f.r.Open(ctx, f.id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return contract.ArchiveIndex{}, nil
		}
		return contract.ArchiveIndex{}, err
	}
	defer rc.Close()
	return decodeIndex(rc)
}

func (f *FileStore) Save(ctx context.Context, idx contract.ArchiveIndex) error {
	b, err := encodeIndex(idx)
	if err != nil {
		return err
	}
	return f.w.Write(ctx, f.id, bytes.NewReader(b))
}

func decodeIndex(r io.Reader) (contract.ArchiveIndex, error) {
	var idx contract.ArchiveIndex
	b, err := io.ReadAll(r)
	if err != nil {
		return idx, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return idx, nil
	}
	if err := json.Unmarshal(b, &idx); err != nil {
		return contract.ArchiveIndex{}, fmt.Errorf("decode archive index: %w", err)
	}
	return idx, nil
}

func encodeIndex(idx contract.ArchiveIndex) ([]byte, error) {
	if idx.Groups == nil {
		idx.Groups = []contract.ArchivePeriodGroup{}
	}
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
