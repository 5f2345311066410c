package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
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

// GlobalConfig 描述全局运行时行为，所有 Host 共享同一份参数。
type GlobalConfig struct {
	ListenPort     int      `mapstructure:"ListenPort"`
	LogLevel       string   `mapstructure:"LogLevel"`
	LogFilePath    string   `mapstructure:"LogFilePath"`
	LogMaxSize     int      `mapstructure:"LogMaxSize"`
	LogMaxBackups  int      `mapstructure:"LogMaxBackups"`
	LogCompress    bool     `mapstructure:"LogCompress"`
	StoragePath    string   `mapstructure:"StoragePath"`
	Domain         string   `mapstructure:"Domain"`
	CacheTTL       Duration `mapstructure:"CacheTTL"`
	CachingEnabled bool     `mapstructure:"CachingEnabled"`
	// UpstreamTimeout 限制一次回源请求的总时长，超时按回源失败处理。
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	// StaleBackupTTL 是从 backup 恢复的响应重新写回主条目后的新鲜期。
	StaleBackupTTL Duration `mapstructure:"StaleBackupTTL"`
	// BackupTTL 为 backup domain 的 TTL，0 表示 backup 永不过期。
	BackupTTL     Duration `mapstructure:"BackupTTL"`
	WriteBackups  bool     `mapstructure:"WriteBackups"`
	PurgeInterval Duration `mapstructure:"PurgeInterval"`
}

// HostConfig 对应一个 [[Host]] 配置块，即一个允许缓存的 API host。
type HostConfig struct {
	Host     string   `mapstructure:"Host"`
	Upstream string   `mapstructure:"Upstream"`
	ExpireIn Duration `mapstructure:"ExpireIn"`
	KeyName  string   `mapstructure:"KeyName"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Hosts  []HostConfig `mapstructure:"Host"`
}

// BackupDomain 返回 backup bucket 使用的 domain，与主 domain 隔离。
func (g GlobalConfig) BackupDomain() string {
	return g.Domain + "-backup"
}

// HostNames 返回所有 Host 的摘要，例如 api.twitter.com:twitter，供启动日志使用。
func HostNames(hosts []HostConfig) []string {
	if len(hosts) == 0 {
		return nil
	}
	result := make([]string, len(hosts))
	for i, host := range hosts {
		result[i] = fmt.Sprintf("%s:%s", host.Host, host.KeyName)
	}
	return result
}

// EffectiveExpireIn 返回 Host 生效的新鲜期，未设置时回退至全局 CacheTTL。
func (c *Config) EffectiveExpireIn(h HostConfig) time.Duration {
	if h.ExpireIn.DurationValue() > 0 {
		return h.ExpireIn.DurationValue()
	}
	return c.Global.CacheTTL.DurationValue()
}
