package registry

import (
	"errors"

	"github.com/any-hub/api-cache/internal/config"
)

// FromConfig 根据 [[Host]] 配置构建注册表。调用方应在启动阶段创建一次并复用。
func FromConfig(cfg *config.Config) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	r := New()
	for _, host := range cfg.Hosts {
		err := r.Register(host.Host, Options{
			ExpireIn: cfg.EffectiveExpireIn(host),
			KeyName:  host.KeyName,
			Upstream: host.Upstream,
		})
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}
