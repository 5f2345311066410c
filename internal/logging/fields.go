package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 host / key_name / 规范化 URI 字段，供缓存引擎与网关日志复用。
func RequestFields(host, keyName, uri string) logrus.Fields {
	return logrus.Fields{
		"host":     host,
		"key_name": keyName,
		"uri":      uri,
	}
}

// OutcomeFields 在 RequestFields 基础上附加本次请求的缓存结论。
func OutcomeFields(host, keyName, uri, outcome string, stale bool) logrus.Fields {
	fields := RequestFields(host, keyName, uri)
	fields["outcome"] = outcome
	fields["stale"] = stale
	return fields
}
