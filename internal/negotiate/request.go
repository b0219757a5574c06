// Package negotiate 将入站请求的 query 参数与 Accept 头解析为 Request。
// 解析是纯函数：不访问网络与文件系统。
package negotiate

import (
	"net/url"
	"strings"
	"time"

	"github.com/rdf-hub/rdf-hub/internal/failure"
	"github.com/rdf-hub/rdf-hub/internal/format"
)

// Query 参数名。
const (
	ParamURI         = "uri"
	ParamFileExt     = "file-ext"
	ParamQueryAccept = "query-accept"
)

// Preference 决定目标格式未缓存时优先转换已有缓存还是重新下载。
type Preference string

const (
	PreferDownload Preference = "download"
	PreferConvert  Preference = "convert"
)

// ParsePreference 解析配置中的偏好值，大小写不敏感。
func ParsePreference(raw string) (Preference, bool) {
	switch Preference(strings.ToLower(strings.TrimSpace(raw))) {
	case PreferDownload:
		return PreferDownload, true
	case PreferConvert:
		return PreferConvert, true
	default:
		return "", false
	}
}

// Settings 是服务级参数，每个请求共享同一份。
type Settings struct {
	Preference Preference
	Timeout    time.Duration
}

// Request 是一次入站请求解析后的不可变描述。
type Request struct {
	// URI 是源文档的绝对地址，仅用作缓存键与回源目标。
	URI *url.URL
	// Target 是客户端希望拿到的格式。
	Target format.Format
	// UpstreamAccept 是回源时 Accept 头使用的格式，默认等于 Target。
	UpstreamAccept format.Format
	Preference     Preference
	Timeout        time.Duration
}

// SourceURI 返回缓存键使用的 URI 字符串。
func (r Request) SourceURI() string {
	return r.URI.String()
}

// Accept 是 Accept 头协商的结果。
// Header 为原始头部；MediaType 为 HTTP 层从 Offers 中选出的类型，
// 无可接受类型时为空。
type Accept struct {
	Header    string
	MediaType string
}

// Offers 返回参与 Accept 协商的 media type：默认格式在前，
// 其余按注册顺序，别名排在规范类型之后。
func Offers(registry format.Registry) []string {
	seen := make(map[string]struct{})
	var offers []string
	add := func(mediaType string) {
		if mediaType == "" {
			return
		}
		if _, ok := seen[mediaType]; ok {
			return
		}
		seen[mediaType] = struct{}{}
		offers = append(offers, mediaType)
	}
	add(registry.Default().MediaType)
	for _, mediaType := range registry.MediaTypes() {
		add(mediaType)
	}
	return offers
}

// Parse 根据 query 参数与 Accept 协商结果构造 Request。
//
// 目标格式优先级：file-ext → Accept → 注册表默认格式。
// query 中出现但为空的 file-ext/query-accept 视为非法值。
func Parse(query map[string]string, accept Accept, registry format.Registry, settings Settings) (Request, error) {
	target, err := targetFormat(query, accept, registry)
	if err != nil {
		return Request{}, err
	}

	uri, err := sourceURI(query)
	if err != nil {
		return Request{}, err
	}

	upstream := target
	if raw, ok := query[ParamQueryAccept]; ok {
		f, found := registry.ByMediaType(raw)
		if !found {
			return Request{}, failure.New(failure.KindUnsupportedFormat,
				"failed to parse content-type to be requested upstream %q to an RDF MIME type", raw)
		}
		upstream = f
	}

	return Request{
		URI:            uri,
		Target:         target,
		UpstreamAccept: upstream,
		Preference:     settings.Preference,
		Timeout:        settings.Timeout,
	}, nil
}

func targetFormat(query map[string]string, accept Accept, registry format.Registry) (format.Format, error) {
	if raw, ok := query[ParamFileExt]; ok {
		f, found := registry.ByExtension(raw)
		if !found {
			return format.Format{}, failure.New(failure.KindUnsupportedFormat,
				"failed to parse file extension to be requested %q to an RDF MIME type", raw)
		}
		return f, nil
	}

	if strings.TrimSpace(accept.Header) != "" {
		f, found := registry.ByMediaType(accept.MediaType)
		if !found {
			return format.Format{}, failure.New(failure.KindUnsupportedFormat,
				"failed to parse requested content-type %q to an RDF MIME type", accept.Header)
		}
		return f, nil
	}

	return registry.Default(), nil
}

func sourceURI(query map[string]string) (*url.URL, error) {
	raw, ok := query[ParamURI]
	if !ok {
		return nil, failure.New(failure.KindInvalidInput, "'uri' param missing")
	}
	uri, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, failure.Wrap(failure.KindInvalidURI, err, "'uri' is invalid: %v", err)
	}
	if !uri.IsAbs() || uri.Host == "" {
		return nil, failure.New(failure.KindInvalidURI, "'uri' is invalid: %q is not an absolute URI", raw)
	}
	if uri.Scheme != "http" && uri.Scheme != "https" {
		return nil, failure.New(failure.KindInvalidURI, "'uri' is invalid: unsupported scheme %q", uri.Scheme)
	}
	return uri, nil
}
