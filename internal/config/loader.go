package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rdf-hub/rdf-hub/internal/version"
)

// EnvConfigPath 在未通过 --config 指定时提供配置文件路径。
const EnvConfigPath = "RDF_HUB_CONFIG"

// envPrefix 使 RDF_HUB_LISTENPORT 等环境变量可以覆盖对应字段。
const envPrefix = "RDF_HUB"

// flagKeys 将命令行 flag 绑定到配置键，显式传入的 flag 优先级最高。
var flagKeys = map[string]string{
	"addr":       "ListenAddress",
	"port":       "ListenPort",
	"cache-root": "CachePath",
	"prefer":     "Preference",
	"timeout":    "UpstreamTimeout",
	"log-level":  "LogLevel",
	"log-file":   "LogFilePath",
}

// Load 读取可选的 TOML 配置文件，叠加环境变量与命令行 flag，并注入默认值与校验逻辑。
// path 为空时尝试 RDF_HUB_CONFIG；两者都为空则完全使用默认值。
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyConverterDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absCache, err := filepath.Abs(cfg.Global.CachePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CachePath = absCache

	return &cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("绑定命令行参数 --%s 失败: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenAddress", "127.0.0.1")
	v.SetDefault("ListenPort", 3000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CachePath", defaultCachePath())
	v.SetDefault("Preference", "download")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("MaxDocumentSize", 256*1024*1024)
}

// defaultCachePath 使用系统用户缓存目录，无法获取时退回工作目录。
func defaultCachePath() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, version.Name)
	}
	return filepath.Join(".", "cache")
}

func applyGlobalDefaults(g *GlobalConfig) {
	g.ListenAddress = strings.TrimSpace(g.ListenAddress)
	if g.ListenAddress == "" {
		g.ListenAddress = "127.0.0.1"
	}
	if g.ListenPort == 0 {
		g.ListenPort = 3000
	}
	g.Preference = strings.ToLower(strings.TrimSpace(g.Preference))
	if g.Preference == "" {
		g.Preference = "download"
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
}

// applyConverterDefaults 在未声明任何 [[Converter]] 时启用全部内置工具，Path 缺省为工具名。
func applyConverterDefaults(cfg *Config) {
	if len(cfg.Converters) == 0 {
		cfg.Converters = []ConverterConfig{{Name: "riot"}, {Name: "rapper"}}
	}
	for i := range cfg.Converters {
		conv := &cfg.Converters[i]
		conv.Name = strings.ToLower(strings.TrimSpace(conv.Name))
		conv.Path = strings.TrimSpace(conv.Path)
		if conv.Path == "" {
			conv.Path = conv.Name
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
