package format

import (
	"fmt"
	"strings"
	"sync"
)

// Table 是可注册的格式表，保留声明顺序。零值不可用，请使用 NewTable。
type Table struct {
	mu          sync.RWMutex
	ordered     []Format
	byKey       map[string]int
	byMediaType map[string]int
	byExt       map[string]int
	aliases     []string
	defaultKey  string
}

// NewTable 创建空的格式表。
func NewTable() *Table {
	return &Table{
		byKey:       make(map[string]int),
		byMediaType: make(map[string]int),
		byExt:       make(map[string]int),
	}
}

// Register 将格式加入表中，aliases 为额外可识别的 media type。
// Key、MediaType、Extension 以及别名冲突时返回错误。
func (t *Table) Register(f Format, aliases ...string) error {
	f.Key = strings.ToLower(strings.TrimSpace(f.Key))
	f.MediaType = normalizeMediaType(f.MediaType)
	f.Extension = normalizeExtension(f.Extension)
	if f.Key == "" {
		return fmt.Errorf("format key is required")
	}
	if f.MediaType == "" {
		return fmt.Errorf("format %s: media type is required", f.Key)
	}
	if f.Extension == "" {
		return fmt.Errorf("format %s: extension is required", f.Key)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byKey[f.Key]; exists {
		return fmt.Errorf("format %s already registered", f.Key)
	}
	if _, exists := t.byExt[f.Extension]; exists {
		return fmt.Errorf("format %s: extension %s already registered", f.Key, f.Extension)
	}
	mediaTypes := []string{f.MediaType}
	for _, alias := range aliases {
		if normalized := normalizeMediaType(alias); normalized != "" {
			mediaTypes = append(mediaTypes, normalized)
		}
	}
	for _, mt := range mediaTypes {
		if _, exists := t.byMediaType[mt]; exists {
			return fmt.Errorf("format %s: media type %s already registered", f.Key, mt)
		}
	}

	idx := len(t.ordered)
	t.ordered = append(t.ordered, f)
	t.byKey[f.Key] = idx
	t.byExt[f.Extension] = idx
	for _, mt := range mediaTypes {
		t.byMediaType[mt] = idx
	}
	t.aliases = append(t.aliases, mediaTypes[1:]...)
	return nil
}

// MustRegister 在注册失败时 panic，适合包初始化阶段调用。
func (t *Table) MustRegister(f Format, aliases ...string) {
	if err := t.Register(f, aliases...); err != nil {
		panic(err)
	}
}

// SetDefault 指定默认格式，key 必须已注册。
func (t *Table) SetDefault(key string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byKey[key]; !ok {
		return fmt.Errorf("default format %s is not registered", key)
	}
	t.defaultKey = key
	return nil
}

// ByKey 按注册键查找。
func (t *Table) ByKey(key string) (Format, bool) {
	return t.lookup(t.byKey, strings.ToLower(strings.TrimSpace(key)))
}

func (t *Table) ByMediaType(mediaType string) (Format, bool) {
	return t.lookup(t.byMediaType, normalizeMediaType(mediaType))
}

func (t *Table) ByExtension(ext string) (Format, bool) {
	return t.lookup(t.byExt, normalizeExtension(ext))
}

// Default 返回默认格式；未设置时回退到第一个注册的格式。
func (t *Table) Default() Format {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if idx, ok := t.byKey[t.defaultKey]; ok {
		return t.ordered[idx]
	}
	if len(t.ordered) > 0 {
		return t.ordered[0]
	}
	return Format{}
}

func (t *Table) All() []Format {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Format(nil), t.ordered...)
}

func (t *Table) Position(f Format) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if idx, ok := t.byKey[f.Key]; ok {
		return idx
	}
	return -1
}

func (t *Table) MediaTypes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]string, 0, len(t.ordered)+len(t.aliases))
	for _, f := range t.ordered {
		result = append(result, f.MediaType)
	}
	return append(result, t.aliases...)
}

func (t *Table) lookup(index map[string]int, key string) (Format, bool) {
	if key == "" {
		return Format{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := index[key]
	if !ok {
		return Format{}, false
	}
	return t.ordered[idx], true
}
