package convert

import (
	"context"

	"github.com/rdf-hub/rdf-hub/internal/format"
)

// subsetOf 列出语法上是目标格式子集的源格式：源文档原样即为合法的目标文档。
var subsetOf = map[string][]string{
	format.NTriples.Key: {format.Turtle.Key, format.TriG.Key, format.N3.Key, format.NQuads.Key},
	format.Turtle.Key:   {format.TriG.Key, format.N3.Key},
}

// Superset 在源语法是目标语法子集时直接透传字节，无需外部工具。
type Superset struct{}

func (Superset) Name() string { return "superset" }

func (Superset) Supports(from, to format.Format) bool {
	for _, key := range subsetOf[from.Key] {
		if key == to.Key {
			return true
		}
	}
	return false
}

func (Superset) Convert(ctx context.Context, job Job) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]byte(nil), job.Input...), nil
}
