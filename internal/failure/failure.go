// Package failure 定义请求级错误分类，以及到 HTTP 状态码与处理阶段的映射。
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是请求终止错误的分类。
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidURI        Kind = "invalid_uri"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindUpstreamFailure   Kind = "upstream_failed"
	KindNotConvertible    Kind = "not_convertible"
	KindConversionFailure Kind = "conversion_failed"
	KindStorageFailure    Kind = "storage_failed"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal_error"
)

// Status 返回该分类对应的 HTTP 状态码。
func (k Kind) Status() int {
	switch k {
	case KindInvalidInput, KindNotFound:
		return http.StatusNotFound
	case KindInvalidURI, KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Stage 返回出错的处理阶段，供客户端区分 parse/fetch/convert。
func (k Kind) Stage() string {
	switch k {
	case KindInvalidInput, KindInvalidURI, KindUnsupportedFormat:
		return "parse"
	case KindUpstreamFailure:
		return "fetch"
	case KindNotConvertible, KindConversionFailure:
		return "convert"
	case KindStorageFailure:
		return "storage"
	case KindNotFound:
		return "serve"
	default:
		return "internal"
	}
}

// Error 携带分类、面向客户端的信息以及仅用于日志的底层原因。
// Message 不得包含本地文件路径。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建不带底层原因的错误。
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 创建携带底层原因的错误。
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// From 提取错误链中的 *Error；非分类错误归入 KindInternal。
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// IsKind 判断错误链中是否存在指定分类。
func IsKind(err error, kind Kind) bool {
	var classified *Error
	return errors.As(err, &classified) && classified.Kind == kind
}
