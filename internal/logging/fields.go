package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供源 URI、格式与决策路径字段，供请求日志复用。
func RequestFields(uri, targetFormat, sourceFormat, resolution, converter string) logrus.Fields {
	fields := logrus.Fields{
		"uri":           uri,
		"target_format": targetFormat,
		"resolution":    resolution,
	}
	if sourceFormat != "" {
		fields["source_format"] = sourceFormat
	}
	if converter != "" {
		fields["converter"] = converter
	}
	return fields
}
