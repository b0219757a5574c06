package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v3"

	"github.com/rdf-hub/rdf-hub/internal/cache"
	"github.com/rdf-hub/rdf-hub/internal/failure"
	"github.com/rdf-hub/rdf-hub/internal/format"
	"github.com/rdf-hub/rdf-hub/internal/resolve"
)

// Response 是响应构造器的产物：Stream 与 Body 二选一。
// 缓存文件以 Stream 形式按需读取，刚下载且无需转换的文档直接使用内存 Body。
type Response struct {
	Format      format.Format
	FileName    string
	Disposition string
	Outcome     resolve.Outcome

	Stream io.ReadCloser
	Size   int64
	Body   []byte
}

// BuildResponse 将 Resolution 转换为可写回客户端的 Response。
// 缓存文件在打开时已不存在（被外部删除）时返回 KindNotFound。
func BuildResponse(ctx context.Context, store cache.Store, res *resolve.Resolution) (*Response, error) {
	resp := &Response{
		Format:      res.Format,
		FileName:    res.Format.FileName(),
		Disposition: contentDisposition(res.Format),
		Outcome:     res.Outcome,
	}

	if res.Body != nil {
		resp.Body = res.Body
		resp.Size = int64(len(res.Body))
		return resp, nil
	}

	read, err := store.Get(ctx, res.Locator)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, failure.Wrap(failure.KindNotFound, err, "cached %s document disappeared before it could be served", res.Format.Key)
		}
		return nil, failure.Wrap(failure.KindStorageFailure, err, "failed to open cached %s document", res.Format.Key)
	}
	resp.Stream = read.Reader
	resp.Size = read.Entry.SizeBytes
	resp.FileName = read.Entry.FileName()
	return resp, nil
}

// Close 释放未写出的文件句柄，写出后由 fasthttp 负责关闭。
func (r *Response) Close() error {
	if r == nil || r.Stream == nil {
		return nil
	}
	return r.Stream.Close()
}

// Write 设置 Content-Type / Content-Disposition 并输出正文。
func (r *Response) Write(c fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, r.Format.MediaType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`%s; filename="%s"`, r.Disposition, r.FileName))
	if r.Outcome != "" {
		c.Set(headerResolution, string(r.Outcome))
	}
	c.Status(fiber.StatusOK)

	if r.Stream != nil {
		size := int(r.Size)
		if size <= 0 {
			size = -1
		}
		return c.SendStream(r.Stream, size)
	}
	return c.Send(r.Body)
}

func contentDisposition(f format.Format) string {
	if f.Display {
		return "inline"
	}
	return "attachment"
}
