package config

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rdf-hub/rdf-hub/internal/convert"
	"github.com/rdf-hub/rdf-hub/internal/negotiate"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenAddress == "" {
		return newFieldError("Global.ListenAddress", "不能为空")
	}
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.CachePath == "" {
		return newFieldError("Global.CachePath", "不能为空")
	}
	if _, ok := negotiate.ParsePreference(g.Preference); !ok {
		return newFieldError("Global.Preference", "仅支持 download|convert")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.MaxDocumentSize <= 0 {
		return newFieldError("Global.MaxDocumentSize", "必须大于 0")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", fmt.Sprintf("无法识别的日志级别: %s", g.LogLevel))
	}

	seen := map[string]struct{}{}
	for _, conv := range c.Converters {
		if conv.Name == "" {
			return newFieldError(converterField("", "Name"), "不能为空")
		}
		if _, ok := convert.Profiles[conv.Name]; !ok {
			return newFieldError(converterField(conv.Name, "Name"), "仅支持 "+convert.ProfileNames())
		}
		if _, exists := seen[conv.Name]; exists {
			return newFieldError(converterField(conv.Name, "Name"), "重复")
		}
		seen[conv.Name] = struct{}{}
	}

	return nil
}
