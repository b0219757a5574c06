package format

import "strings"

// Format 描述一种受支持的 RDF 序列化格式。值可比较，相等性以 Key 为准。
type Format struct {
	// Key 是注册表内的唯一标识，同时作为缓存文件名（<Key>.<Extension>）。
	Key string
	// MediaType 是规范的 Content-Type 字符串，不带参数。
	MediaType string
	// Extension 为缓存文件扩展名（不含点），注册表内唯一。
	Extension string
	// MachineReadable 表示转换器可以解析该格式。
	MachineReadable bool
	// Display 表示浏览器可直接展示的格式，响应时使用 inline。
	Display bool
}

// IsZero 判断是否为空值（未解析到任何格式）。
func (f Format) IsZero() bool {
	return f.Key == ""
}

// Equal 以注册表身份比较两个格式。
func (f Format) Equal(other Format) bool {
	return f.Key == other.Key
}

// FileName 返回该格式在缓存目录中的文件名。
func (f Format) FileName() string {
	return f.Key + "." + f.Extension
}

func (f Format) String() string {
	return f.MediaType
}

// Registry 是格式注册表的只读能力集合，便于测试中替换。
type Registry interface {
	// ByKey 按注册键查找，例如 turtle、jsonld。
	ByKey(key string) (Format, bool)
	// ByMediaType 按 Content-Type 查找，忽略参数与大小写。
	ByMediaType(mediaType string) (Format, bool)
	// ByExtension 按扩展名查找，忽略前导点与大小写。
	ByExtension(ext string) (Format, bool)
	// Default 返回未指定格式时使用的默认格式。
	Default() Format
	// All 按声明顺序返回全部格式。
	All() []Format
	// Position 返回格式的声明序号，未注册时返回 -1。
	Position(f Format) int
	// MediaTypes 返回全部可识别的 media type：先按声明顺序列出规范类型，再列出别名。
	MediaTypes() []string
}

func normalizeMediaType(raw string) string {
	base := raw
	if idx := strings.IndexByte(base, ';'); idx >= 0 {
		base = base[:idx]
	}
	return strings.ToLower(strings.TrimSpace(base))
}

func normalizeExtension(raw string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "."))
}
