// Package convert 封装 RDF 序列化之间的转换能力。具体转换由外部工具完成，
// 本包只负责挑选转换器、传递字节并归类失败原因。
package convert

import (
	"context"
	"errors"
	"fmt"

	"github.com/rdf-hub/rdf-hub/internal/format"
)

// ErrNoConverter 表示没有任何已配置的转换器支持该格式组合。
var ErrNoConverter = errors.New("no converter supports the requested conversion")

// Job 描述一次转换：把 From 格式的 Input 转成 To 格式。
type Job struct {
	Input []byte
	From  format.Format
	To    format.Format
	// BaseURI 用于解析文档中的相对 IRI，通常是源 URI。
	BaseURI string
}

// Result 是转换成功后的输出以及实际执行的转换器名称。
type Result struct {
	Data      []byte
	Converter string
}

// Converter 是单个转换后端。
type Converter interface {
	Name() string
	Supports(from, to format.Format) bool
	Convert(ctx context.Context, job Job) ([]byte, error)
}

// Chain 按顺序尝试支持该格式组合的转换器，第一个成功者胜出。
type Chain struct {
	converters []Converter
}

// NewChain builds a chain; nil entries are skipped.
func NewChain(converters ...Converter) *Chain {
	chain := &Chain{}
	for _, c := range converters {
		if c != nil {
			chain.converters = append(chain.converters, c)
		}
	}
	return chain
}

// Converters 返回链中的转换器，供诊断接口展示。
func (c *Chain) Converters() []Converter {
	return append([]Converter(nil), c.converters...)
}

// Supports 判断链中是否有转换器支持 from → to。
func (c *Chain) Supports(from, to format.Format) bool {
	for _, conv := range c.converters {
		if conv.Supports(from, to) {
			return true
		}
	}
	return false
}

// Convert 依次尝试支持的转换器；全部失败时返回合并后的错误。
func (c *Chain) Convert(ctx context.Context, job Job) (Result, error) {
	if job.From.Equal(job.To) {
		return Result{Data: job.Input, Converter: "identity"}, nil
	}

	var errs []error
	for _, conv := range c.converters {
		if !conv.Supports(job.From, job.To) {
			continue
		}
		data, err := conv.Convert(ctx, job)
		if err == nil {
			return Result{Data: data, Converter: conv.Name()}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", conv.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return Result{}, fmt.Errorf("%s -> %s: %w", job.From.Key, job.To.Key, ErrNoConverter)
	}
	return Result{}, errors.Join(errs...)
}
