package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.Domain == "" || g.Domain == "." || g.Domain == ".." || strings.ContainsAny(g.Domain, `/\ `) {
		return newFieldError("Global.Domain", "必须是不含路径分隔符的名称")
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError("Global.CacheTTL", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.StaleBackupTTL.DurationValue() <= 0 {
		return newFieldError("Global.StaleBackupTTL", "必须大于 0")
	}
	if g.BackupTTL.DurationValue() < 0 {
		return newFieldError("Global.BackupTTL", "不能为负数")
	}
	if g.PurgeInterval.DurationValue() < 0 {
		return newFieldError("Global.PurgeInterval", "不能为负数")
	}

	if len(c.Hosts) == 0 {
		return errors.New("至少需要配置一个 Host")
	}

	seen := map[string]struct{}{}
	for i := range c.Hosts {
		host := &c.Hosts[i]
		host.Host = strings.ToLower(strings.TrimSpace(host.Host))
		if err := validateHost(host.Host); err != nil {
			return fmt.Errorf("%s: %w", hostField(host.Host, "Host"), err)
		}
		if _, exists := seen[host.Host]; exists {
			return newFieldError(hostField(host.Host, "Host"), "重复")
		}
		seen[host.Host] = struct{}{}

		if host.ExpireIn.DurationValue() <= 0 {
			return newFieldError(hostField(host.Host, "ExpireIn"), "必须大于 0")
		}
		if strings.TrimSpace(host.KeyName) == "" {
			return newFieldError(hostField(host.Host, "KeyName"), "不能为空")
		}
		if err := validateUpstream(host.Upstream); err != nil {
			return fmt.Errorf("%s: %w", hostField(host.Host, "Upstream"), err)
		}
	}

	return nil
}

func validateHost(host string) error {
	if host == "" {
		return errors.New("Host 不能为空")
	}
	if strings.Contains(host, "/") {
		return errors.New("Host 不允许包含路径")
	}
	if strings.Contains(host, " ") {
		return errors.New("Host 不允许包含空格")
	}
	if strings.HasPrefix(host, "http") && strings.Contains(host, "://") {
		return errors.New("Host 不应包含协议头")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
