package resolve

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/rdf-hub/rdf-hub/internal/cache"
	"github.com/rdf-hub/rdf-hub/internal/convert"
	"github.com/rdf-hub/rdf-hub/internal/failure"
	"github.com/rdf-hub/rdf-hub/internal/fetch"
	"github.com/rdf-hub/rdf-hub/internal/format"
	"github.com/rdf-hub/rdf-hub/internal/negotiate"
)

// Fetcher 下载源文档；*fetch.Fetcher 实现该接口。
type Fetcher interface {
	Fetch(ctx context.Context, uri *url.URL, accept format.Format, timeout time.Duration) (*fetch.Document, error)
}

// Converter 执行格式转换；*convert.Chain 实现该接口。
type Converter interface {
	Convert(ctx context.Context, job convert.Job) (convert.Result, error)
}

// supporter 由能预先判断格式组合的转换器实现，例如 *convert.Chain。
type supporter interface {
	Supports(from, to format.Format) bool
}

var _ supporter = (*convert.Chain)(nil)

// Outcome 标记结果是通过哪条路径得到的。
type Outcome string

const (
	OutcomeCacheHit     Outcome = "cache-hit"
	OutcomeCacheConvert Outcome = "cache-convert"
	OutcomeFetch        Outcome = "fetch"
	OutcomeFetchConvert Outcome = "fetch-convert"
)

// Resolution 是可直接构造响应的结果。Body 非 nil 时直接返回内存数据，
// 否则从 Locator 指向的缓存文件流式读取。
type Resolution struct {
	Format       format.Format
	Outcome      Outcome
	Locator      cache.Locator
	Body         []byte
	SourceFormat format.Format
	Converter    string
}

// Options 汇总 Engine 的依赖。
type Options struct {
	Store     cache.Store
	Fetcher   Fetcher
	Converter Converter
	Logger    *logrus.Logger
}

// Engine 实现缓存命中 → 转换缓存 → 回源（必要时转换）的决策流程。
type Engine struct {
	store     cache.Store
	fetcher   Fetcher
	converter Converter
	logger    *logrus.Logger
	group     singleflight.Group
}

// NewEngine validates dependencies and builds an engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Converter == nil {
		return nil, errors.New("converter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		store:     opts.Store,
		fetcher:   opts.Fetcher,
		converter: opts.Converter,
		logger:    logger,
	}, nil
}

// Resolve 返回 req.Target 格式的文档。相同 key 的并发调用共享同一次执行；
// ctx 结束时调用方立即返回 ctx.Err()，已开始的工作在后台继续完成。
func (e *Engine) Resolve(ctx context.Context, req negotiate.Request) (*Resolution, error) {
	detached := context.WithoutCancel(ctx)
	ch := e.group.DoChan(flightKey(req), func() (val interface{}, err error) {
		// DoChan 会在新 goroutine 中重新 panic，这里必须就地转换为错误。
		defer func() {
			if r := recover(); r != nil {
				e.logger.WithFields(logrus.Fields{
					"action":        "resolve",
					"uri":           req.SourceURI(),
					"target_format": req.Target.Key,
					"panic":         r,
				}).Error("resolve_panic")
				val, err = nil, failure.New(failure.KindInternal, "internal error while resolving %s", req.SourceURI())
			}
		}()
		return e.resolve(detached, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Resolution), nil
	}
}

func flightKey(req negotiate.Request) string {
	return req.SourceURI() + "\x00" + req.Target.Key + "\x00" + req.UpstreamAccept.Key
}

func (e *Engine) resolve(ctx context.Context, req negotiate.Request) (*Resolution, error) {
	uri := req.SourceURI()
	target := cache.Locator{URI: uri, Format: req.Target}

	// false 表示目录刚刚创建，其中必然没有条目，可以跳过所有查找。
	mightBeCached, err := e.store.EnsureDir(ctx, uri)
	if err != nil {
		return nil, failure.Wrap(failure.KindStorageFailure, err, "failed to ensure cache directory exists")
	}

	if mightBeCached {
		exists, err := e.store.Exists(ctx, target)
		if err != nil {
			return nil, failure.Wrap(failure.KindStorageFailure, err, "failed to look up cache entry")
		}
		if exists {
			return &Resolution{
				Format:       req.Target,
				Outcome:      OutcomeCacheHit,
				Locator:      target,
				SourceFormat: req.Target,
			}, nil
		}
	}

	if req.Preference == negotiate.PreferConvert && mightBeCached {
		res, err := e.convertCached(ctx, req)
		if err != nil || res != nil {
			return res, err
		}
	}

	return e.fetchAndConvert(ctx, req)
}

// convertCached 按注册表顺序尝试把已缓存的机器可读格式转换为目标格式。
// 单个候选失败只记录日志；全部失败时返回 (nil, nil) 交由回源处理。
func (e *Engine) convertCached(ctx context.Context, req negotiate.Request) (*Resolution, error) {
	uri := req.SourceURI()
	candidates, err := e.store.List(ctx, uri, true)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_list",
			"uri":    uri,
		}).Warn("cache_list_failed")
		return nil, nil
	}

	for _, candidate := range candidates {
		from := candidate.Locator.Format
		if from.Equal(req.Target) {
			continue
		}
		if s, ok := e.converter.(supporter); ok && !s.Supports(from, req.Target) {
			continue
		}
		input, err := e.readEntry(ctx, candidate.Locator)
		if err != nil {
			e.logCandidateFailure(req, from, err)
			continue
		}
		result, err := e.converter.Convert(ctx, convert.Job{
			Input:   input,
			From:    from,
			To:      req.Target,
			BaseURI: uri,
		})
		if err != nil {
			e.logCandidateFailure(req, from, err)
			continue
		}

		if err := e.persist(ctx, req.Target, uri, result.Data, time.Time{}); err != nil {
			return nil, err
		}
		e.logConversion(req, from, result.Converter, true)
		return &Resolution{
			Format:       req.Target,
			Outcome:      OutcomeCacheConvert,
			Locator:      cache.Locator{URI: uri, Format: req.Target},
			SourceFormat: from,
			Converter:    result.Converter,
		}, nil
	}
	return nil, nil
}

// fetchAndConvert 回源一次并持久化结果；格式不同且可机读时转换一次。
func (e *Engine) fetchAndConvert(ctx context.Context, req negotiate.Request) (*Resolution, error) {
	uri := req.SourceURI()
	doc, err := e.fetcher.Fetch(ctx, req.URI, req.UpstreamAccept, req.Timeout)
	if err != nil {
		if failure.IsKind(err, failure.KindUpstreamFailure) {
			return nil, err
		}
		return nil, failure.Wrap(failure.KindUpstreamFailure, err, "failed to fetch %s", uri)
	}

	if err := e.persist(ctx, doc.Format, uri, doc.Body, doc.ModTime); err != nil {
		return nil, err
	}

	if doc.Format.Equal(req.Target) {
		return &Resolution{
			Format:       req.Target,
			Outcome:      OutcomeFetch,
			Locator:      cache.Locator{URI: uri, Format: req.Target},
			Body:         doc.Body,
			SourceFormat: doc.Format,
		}, nil
	}

	if !doc.Format.MachineReadable {
		return nil, failure.New(failure.KindNotConvertible,
			"as the format returned by the server (%s) is not machine-readable, it cannot be converted into the requested format (%s)",
			doc.Format.MediaType, req.Target.MediaType)
	}

	result, err := e.converter.Convert(ctx, convert.Job{
		Input:   doc.Body,
		From:    doc.Format,
		To:      req.Target,
		BaseURI: uri,
	})
	if err != nil {
		return nil, failure.Wrap(failure.KindConversionFailure, err,
			"failed to convert the downloaded document from %s to %s", doc.Format.MediaType, req.Target.MediaType)
	}

	if err := e.persist(ctx, req.Target, uri, result.Data, time.Time{}); err != nil {
		return nil, err
	}
	e.logConversion(req, doc.Format, result.Converter, false)
	return &Resolution{
		Format:       req.Target,
		Outcome:      OutcomeFetchConvert,
		Locator:      cache.Locator{URI: uri, Format: req.Target},
		SourceFormat: doc.Format,
		Converter:    result.Converter,
	}, nil
}

func (e *Engine) readEntry(ctx context.Context, locator cache.Locator) ([]byte, error) {
	result, err := e.store.Get(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer result.Reader.Close()
	return io.ReadAll(result.Reader)
}

func (e *Engine) persist(ctx context.Context, f format.Format, uri string, data []byte, modTime time.Time) error {
	locator := cache.Locator{URI: uri, Format: f}
	if _, err := e.store.Put(ctx, locator, bytes.NewReader(data), cache.PutOptions{ModTime: modTime}); err != nil {
		return failure.Wrap(failure.KindStorageFailure, err, "failed to write %s cache entry", f.Key)
	}
	return nil
}

func (e *Engine) logCandidateFailure(req negotiate.Request, from format.Format, err error) {
	e.logger.WithError(err).WithFields(logrus.Fields{
		"action":        "convert_cached",
		"uri":           req.SourceURI(),
		"source_format": from.Key,
		"target_format": req.Target.Key,
	}).Warn("cached_candidate_failed")
}

func (e *Engine) logConversion(req negotiate.Request, from format.Format, converter string, cached bool) {
	origin := "downloaded"
	if cached {
		origin = "cached"
	}
	e.logger.WithFields(logrus.Fields{
		"action":        "convert",
		"uri":           req.SourceURI(),
		"source_format": from.Key,
		"target_format": req.Target.Key,
		"converter":     converter,
		"origin":        origin,
	}).Info("converted")
}
