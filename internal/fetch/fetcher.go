// Package fetch 负责按指定 Accept 格式回源下载 RDF 文档。
// 每个请求只尝试一次，不做重试。
package fetch

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rdf-hub/rdf-hub/internal/failure"
	"github.com/rdf-hub/rdf-hub/internal/format"
	"github.com/rdf-hub/rdf-hub/internal/version"
)

// DefaultMaxDocumentSize 是单个回源文档的默认大小上限。
const DefaultMaxDocumentSize int64 = 256 << 20

// Document 是一次回源得到的原始字节及源站声明的格式。
type Document struct {
	Body   []byte
	Format format.Format
	// ModTime 取自 Last-Modified，缺失时为零值。
	ModTime time.Time
	// StatusCode 与 URL 仅用于日志。
	StatusCode int
	URL        string
}

// Options 控制 Fetcher 的可选行为。
type Options struct {
	MaxDocumentSize int64
	UserAgent       string
}

// Fetcher 执行回源请求。
type Fetcher struct {
	client   *http.Client
	registry format.Registry
	logger   *logrus.Logger
	opts     Options
}

// NewFetcher constructs a fetcher sharing the given HTTP client.
func NewFetcher(client *http.Client, registry format.Registry, logger *logrus.Logger, opts Options) *Fetcher {
	if client == nil {
		client = NewClient()
	}
	if opts.MaxDocumentSize <= 0 {
		opts.MaxDocumentSize = DefaultMaxDocumentSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = version.UserAgent()
	}
	return &Fetcher{
		client:   client,
		registry: registry,
		logger:   logger,
		opts:     opts,
	}
}

// Fetch 以 accept 作为 Accept 头下载 uri。非 2xx、网络错误与超时均返回 KindUpstreamFailure。
// 返回文档的格式取自响应 Content-Type，不假定与 accept 相同。
func (f *Fetcher) Fetch(ctx context.Context, uri *url.URL, accept format.Format, timeout time.Duration) (*Document, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, failure.Wrap(failure.KindUpstreamFailure, err, "failed to build request for %s", uri)
	}
	req.Header.Set("Accept", accept.MediaType)
	req.Header.Set("User-Agent", f.opts.UserAgent)

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, failure.Wrap(failure.KindUpstreamFailure, err,
				"fetching %s timed out after %s", uri, timeout)
		}
		return nil, failure.Wrap(failure.KindUpstreamFailure, err, "failed to fetch %s", uri)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, failure.New(failure.KindUpstreamFailure,
			"upstream %s responded with status %d", uri, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxDocumentSize+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, failure.Wrap(failure.KindUpstreamFailure, err,
				"fetching %s timed out after %s", uri, timeout)
		}
		return nil, failure.Wrap(failure.KindUpstreamFailure, err, "failed to read body of %s", uri)
	}
	if int64(len(body)) > f.opts.MaxDocumentSize {
		return nil, failure.New(failure.KindUpstreamFailure,
			"document at %s exceeds the size limit of %d bytes", uri, f.opts.MaxDocumentSize)
	}

	declared := f.declaredFormat(resp)
	if f.logger != nil {
		f.logger.WithFields(logrus.Fields{
			"action":        "fetch",
			"uri":           uri.String(),
			"accept":        accept.MediaType,
			"content_type":  resp.Header.Get("Content-Type"),
			"source_format": declared.Key,
			"status":        resp.StatusCode,
			"bytes":         len(body),
			"elapsed_ms":    time.Since(started).Milliseconds(),
		}).Debug("upstream fetched")
	}

	return &Document{
		Body:       body,
		Format:     declared,
		ModTime:    extractModTime(resp.Header),
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.String(),
	}, nil
}

// declaredFormat 依次尝试 Content-Type、最终 URL 的扩展名，最后回退默认格式。
// 扩展名只在 Content-Type 缺失或无法识别时生效；不少静态托管把 .ttl/.nt
// 一律标成 text/plain，直接回退默认格式会把它们误判为 Turtle。
func (f *Fetcher) declaredFormat(resp *http.Response) format.Format {
	if raw := resp.Header.Get("Content-Type"); raw != "" {
		if mediaType, _, err := mime.ParseMediaType(raw); err == nil {
			if found, ok := f.registry.ByMediaType(mediaType); ok {
				return found
			}
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		if ext := path.Ext(resp.Request.URL.Path); ext != "" {
			if found, ok := f.registry.ByExtension(ext); ok {
				return found
			}
		}
	}
	return f.registry.Default()
}

func extractModTime(header http.Header) time.Time {
	raw := header.Get("Last-Modified")
	if raw == "" {
		return time.Time{}
	}
	parsed, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
