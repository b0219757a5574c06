package cache

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rdf-hub/rdf-hub/internal/format"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<CachePath>/<blake3(uri)>/<format-key>.<ext>    # 某个 URI 在某种格式下的文档
//
// 目录中文件是否存在是“已缓存”的唯一依据，没有索引或元数据旁路文件。
// 条目一旦写入即视为永久有效，不做过期与再验证。
type Store interface {
	// Dir 返回 uri 对应的缓存目录（纯计算，不访问文件系统）。
	Dir(uri string) string

	// EnsureDir 确保 uri 的缓存目录存在，返回目录在调用前是否已存在。
	// 返回 false 意味着目录是新建的，必然没有任何条目。
	EnsureDir(ctx context.Context, uri string) (bool, error)

	// Exists 判断条目文件是否存在。
	Exists(ctx context.Context, locator Locator) (bool, error)

	// List 枚举目录中可识别格式的条目，按注册表声明顺序返回。
	// machineReadableOnly 为 true 时只返回机器可读格式。
	List(ctx context.Context, uri string, machineReadableOnly bool) ([]Entry, error)

	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 原子地写入条目（临时文件 + rename），重复写入相同内容是幂等的。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Locator 唯一定位一个缓存条目（源 URI + 格式）。
type Locator struct {
	URI    string
	Format format.Format
}

// Entry 表示磁盘上的一个缓存条目。
type Entry struct {
	Locator   Locator
	FilePath  string
	SizeBytes int64
	ModTime   time.Time
}

// FileName 返回条目文件的 basename，用于 Content-Disposition。
func (e Entry) FileName() string {
	return e.Locator.Format.FileName()
}

// ReadResult 组合 Entry 与正文 Reader，便于代理层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
