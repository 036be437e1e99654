package contract

import (
	"context"
	"io"
)

// Reader: 工作树读取抽象。
// 约束：
// 1) 流式读取，按文件维度回调；
// 2) ArtifactID 为相对 root 的正斜杠路径，稳定排序；
// 3) 不做解码/业务解析，仅提供字节流；
// 4) 不在内部起并发。
type Reader interface {
	// Open 打开单个工件；不存在时返回的错误满足 errors.Is(err, fs.ErrNotExist)。
	Open(ctx context.Context, id ArtifactID) (io.ReadCloser, error)
	// Walk 遍历 root 下基名等于 name 的文件。
	Walk(ctx context.Context, name string, yield func(id ArtifactID, r io.ReadCloser) error) error
}
