package cache

import (
	"encoding/hex"
	"path/filepath"

	"lukechampine.com/blake3"

	"github.com/rdf-hub/rdf-hub/internal/format"
)

// dirKeyBytes 是目录名使用的摘要字节数（128 bit，32 个十六进制字符）。
const dirKeyBytes = 16

// DirKey 将源 URI 映射为稳定的目录名，同一 URI 永远得到同一结果。
func DirKey(uri string) string {
	sum := blake3.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:dirKeyBytes])
}

// DirFor 返回 uri 在 root 下的缓存目录。
func DirFor(root, uri string) string {
	return filepath.Join(root, DirKey(uri))
}

// FileFor 返回目录 dir 中格式 f 的条目路径。
func FileFor(dir string, f format.Format) string {
	return filepath.Join(dir, f.FileName())
}
