package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/natefinch/atomic"

	"github.com/rdf-hub/rdf-hub/internal/format"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
// 根目录不可用时返回错误，调用方应视为启动失败。
func NewStore(basePath string, registry format.Registry) (Store, error) {
	if basePath == "" {
		return nil, errors.New("cache path required")
	}
	if registry == nil {
		return nil, errors.New("format registry required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve cache path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		registry: registry,
	}, nil
}

// fileStore 依赖文件系统的 rename 原子性协调并发写入，不持有跨请求的锁。
type fileStore struct {
	basePath string
	registry format.Registry
}

func (s *fileStore) Dir(uri string) string {
	return DirFor(s.basePath, uri)
}

func (s *fileStore) EnsureDir(ctx context.Context, uri string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir := s.Dir(uri)
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return true, nil
	case err == nil:
		return false, fmt.Errorf("cache dir %s is not a directory", dir)
	case !errors.Is(err, fs.ErrNotExist):
		return false, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	return false, nil
}

func (s *fileStore) Exists(ctx context.Context, locator Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	filePath, err := s.entryPath(locator)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *fileStore) List(ctx context.Context, uri string, machineReadableOnly bool) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := s.Dir(uri)
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		f, ok := s.classify(item.Name())
		if !ok {
			continue
		}
		if machineReadableOnly && !f.MachineReadable {
			continue
		}
		info, err := item.Info()
		if err != nil {
			// 枚举与 stat 之间文件被替换或删除，跳过即可。
			continue
		}
		entries = append(entries, Entry{
			Locator:   Locator{URI: uri, Format: f},
			FilePath:  filepath.Join(dir, item.Name()),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
	}

	// 目录枚举顺序不稳定，统一按注册表声明顺序排序。
	sort.SliceStable(entries, func(i, j int) bool {
		return s.registry.Position(entries[i].Locator.Format) < s.registry.Position(entries[j].Locator.Format)
	})
	return entries, nil
}

// classify 仅接受 <key>.<ext> 形式的文件名，忽略临时文件与未知扩展名。
func (s *fileStore) classify(name string) (format.Format, bool) {
	ext := filepath.Ext(name)
	if ext == "" {
		return format.Format{}, false
	}
	f, ok := s.registry.ByExtension(ext)
	if !ok || f.FileName() != name {
		return format.Format{}, false
	}
	return f, true
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}

	entry := Entry{
		Locator:   locator,
		FilePath:  filePath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}

	return &ReadResult{
		Entry:  entry,
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	filePath, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, err
	}

	counter := &countingReader{ctx: ctx, src: body}
	if err := atomic.WriteFile(filePath, counter); err != nil {
		return nil, err
	}
	// atomic.WriteFile 新建文件时使用临时文件的 0600 权限。
	if err := os.Chmod(filePath, 0o644); err != nil {
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := os.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, err
	}

	entry := Entry{
		Locator:   locator,
		FilePath:  filePath,
		SizeBytes: counter.n,
		ModTime:   modTime,
	}
	return &entry, nil
}

func (s *fileStore) entryPath(locator Locator) (string, error) {
	if locator.URI == "" {
		return "", errors.New("source uri required")
	}
	if locator.Format.IsZero() {
		return "", errors.New("format required")
	}
	if _, ok := s.registry.ByExtension(locator.Format.Extension); !ok {
		return "", fmt.Errorf("format %s is not registered", locator.Format.Key)
	}
	return FileFor(s.Dir(locator.URI), locator.Format), nil
}

// countingReader 在每次读取前检查 ctx，并统计写入字节数。
type countingReader struct {
	ctx context.Context
	src io.Reader
	n   int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.src.Read(p)
	r.n += int64(n)
	return n, err
}
