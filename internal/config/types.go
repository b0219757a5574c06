package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rdf-hub/rdf-hub/internal/negotiate"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述服务级运行参数，所有请求共享同一份。
type GlobalConfig struct {
	ListenAddress   string   `mapstructure:"ListenAddress"`
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	CachePath       string   `mapstructure:"CachePath"`
	Preference      string   `mapstructure:"Preference"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	MaxDocumentSize int64    `mapstructure:"MaxDocumentSize"`
}

// ConverterConfig 声明一个外部转换工具。
type ConverterConfig struct {
	Name     string `mapstructure:"Name"`
	Path     string `mapstructure:"Path"`
	Disabled bool   `mapstructure:"Disabled"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global     GlobalConfig      `mapstructure:",squash"`
	Converters []ConverterConfig `mapstructure:"Converter"`
}

// PreferenceValue 返回解析后的回退偏好（假定 Validate 已经通过）。
func (g GlobalConfig) PreferenceValue() negotiate.Preference {
	pref, ok := negotiate.ParsePreference(g.Preference)
	if !ok {
		return negotiate.PreferDownload
	}
	return pref
}

// ListenAddr 返回 host:port 形式的监听地址。
func (g GlobalConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", g.ListenAddress, g.ListenPort)
}

// Settings 将配置映射为请求解析使用的服务级参数。
func (g GlobalConfig) Settings() negotiate.Settings {
	return negotiate.Settings{
		Preference: g.PreferenceValue(),
		Timeout:    g.UpstreamTimeout.DurationValue(),
	}
}

// EnabledConverters 返回未禁用的转换工具，顺序与配置一致。
func (c *Config) EnabledConverters() []ConverterConfig {
	result := make([]ConverterConfig, 0, len(c.Converters))
	for _, conv := range c.Converters {
		if conv.Disabled {
			continue
		}
		result = append(result, conv)
	}
	return result
}
