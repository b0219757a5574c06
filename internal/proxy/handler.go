package proxy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/rdf-hub/rdf-hub/internal/cache"
	"github.com/rdf-hub/rdf-hub/internal/failure"
	"github.com/rdf-hub/rdf-hub/internal/format"
	"github.com/rdf-hub/rdf-hub/internal/logging"
	"github.com/rdf-hub/rdf-hub/internal/negotiate"
	"github.com/rdf-hub/rdf-hub/internal/resolve"
	"github.com/rdf-hub/rdf-hub/internal/server"
)

const headerResolution = "X-Rdf-Hub-Resolution"

// Resolver 由 *resolve.Engine 实现，测试中可替换。
type Resolver interface {
	Resolve(ctx context.Context, req negotiate.Request) (*resolve.Resolution, error)
}

// Options 汇总 Handler 的依赖。
type Options struct {
	Resolver Resolver
	Store    cache.Store
	Registry format.Registry
	Settings negotiate.Settings
	Logger   *logrus.Logger
}

// Handler 负责 “解析请求 → 决策 → 构造响应” 的全流程，对外暴露 Fiber handler。
type Handler struct {
	resolver Resolver
	store    cache.Store
	registry format.Registry
	offers   []string
	settings negotiate.Settings
	logger   *logrus.Logger
}

// NewHandler constructs a handler with the shared engine/store/logger.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("format registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		resolver: opts.Resolver,
		store:    opts.Store,
		registry: opts.Registry,
		offers:   negotiate.Offers(opts.Registry),
		settings: opts.Settings,
		logger:   logger,
	}, nil
}

// Handle 处理 GET /?uri=&file-ext=&query-accept=，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)

	req, err := negotiate.Parse(c.Queries(), h.accept(c), h.registry, h.settings)
	if err != nil {
		return h.fail(c, resultLog{requestID: requestID, started: started}, err)
	}

	entry := resultLog{
		requestID: requestID,
		started:   started,
		uri:       req.SourceURI(),
		target:    req.Target,
	}

	// Fiber 的请求 context 不会因客户端断开而取消，已开始的解析总会跑完，
	// 结果仍写入缓存供后续请求复用。
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := h.resolver.Resolve(ctx, req)
	if err != nil {
		return h.fail(c, entry, err)
	}
	entry.resolution = res

	resp, err := BuildResponse(ctx, h.store, res)
	if err != nil {
		return h.fail(c, entry, err)
	}
	if err := resp.Write(c); err != nil {
		resp.Close()
		return h.fail(c, entry, err)
	}
	h.logResult(entry, fiber.StatusOK, nil)
	return nil
}

// accept 用 Fiber 的内容协商从注册的 media type 中挑选目标类型。
// 未携带 Accept 头时不参与协商，交由 Parse 使用默认格式。
func (h *Handler) accept(c fiber.Ctx) negotiate.Accept {
	header := c.Get(fiber.HeaderAccept)
	if strings.TrimSpace(header) == "" {
		return negotiate.Accept{}
	}
	return negotiate.Accept{Header: header, MediaType: c.Accepts(h.offers...)}
}

func (h *Handler) fail(c fiber.Ctx, entry resultLog, err error) error {
	classified := failure.From(err)
	status := classified.Kind.Status()
	h.logResult(entry, status, err)
	return c.Status(status).JSON(fiber.Map{
		"error":   string(classified.Kind),
		"stage":   classified.Kind.Stage(),
		"message": classified.Message,
	})
}

type resultLog struct {
	requestID  string
	started    time.Time
	uri        string
	target     format.Format
	resolution *resolve.Resolution
}

func (h *Handler) logResult(entry resultLog, status int, err error) {
	var source, outcome, converter string
	if entry.resolution != nil {
		source = entry.resolution.SourceFormat.Key
		outcome = string(entry.resolution.Outcome)
		converter = entry.resolution.Converter
	}
	fields := logging.RequestFields(entry.uri, entry.target.Key, source, outcome, converter)
	fields["action"] = "resolve"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(entry.started).Milliseconds()
	if entry.requestID != "" {
		fields["request_id"] = entry.requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		if failure.From(err).Kind.Status() >= fiber.StatusInternalServerError {
			h.logger.WithFields(fields).Error("resolve_failed")
			return
		}
		h.logger.WithFields(fields).Warn("resolve_rejected")
		return
	}
	h.logger.WithFields(fields).Info("resolve_complete")
}
