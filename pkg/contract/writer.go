package contract

import (
	"context"
	"io"
)

// Writer: 将工件以流式方式持久化到目标介质。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 流式写入，按字节透传，不读取/修改业务内容；
//  3. 整体替换：读者要么看到旧文件，要么看到完整的新文件；
//  4. ctx 取消/超时需尽快返回；
//  5. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
