// Package registry keeps the table of API hosts whose GET responses may be
// cached, together with each host's caching policy. A registry is built once
// at startup and then only read, from any number of goroutines.
package registry

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrHostExists 表示同一 host 被重复注册。
var ErrHostExists = errors.New("host already registered")

// Options 是 Register 的必填参数，对应配置中的 ExpireIn / KeyName。
type Options struct {
	// ExpireIn 是该 host 期望的新鲜期，必须大于 0。
	ExpireIn time.Duration
	// KeyName 是该 host 的逻辑名，用于日志、指标和异常回调。
	KeyName string
	// Upstream 可选，网关模式下请求被转发到的源站地址。
	Upstream string
}

// HostPolicy 描述单个已注册 host 的缓存策略，注册后不再修改。
type HostPolicy struct {
	Host        string
	ExpireIn    time.Duration
	KeyName     string
	UpstreamURL *url.URL
}

// Registry 提供 host 到 HostPolicy 的查询能力。
type Registry struct {
	mu       sync.RWMutex
	policies map[string]*HostPolicy
	ordered  []*HostPolicy
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{policies: make(map[string]*HostPolicy)}
}

// Register 校验参数并登记 host；host 为空、缺少必填项或重复注册时返回错误。
func (r *Registry) Register(host string, opts Options) error {
	normalized := normalizeHost(host)
	if normalized == "" {
		return errors.New("you must provide a host that you are caching API responses for")
	}

	var missing []string
	if opts.ExpireIn <= 0 {
		missing = append(missing, "expire_in")
	}
	if strings.TrimSpace(opts.KeyName) == "" {
		missing = append(missing, "key_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing some required options: %s", strings.Join(missing, ", "))
	}

	policy := &HostPolicy{
		Host:     normalized,
		ExpireIn: opts.ExpireIn,
		KeyName:  strings.TrimSpace(opts.KeyName),
	}
	if opts.Upstream != "" {
		upstream, err := parseUpstream(opts.Upstream)
		if err != nil {
			return fmt.Errorf("host %s: %w", normalized, err)
		}
		policy.UpstreamURL = upstream
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.policies[normalized]; exists {
		return fmt.Errorf("%w: %s", ErrHostExists, normalized)
	}
	r.policies[normalized] = policy
	r.ordered = append(r.ordered, policy)
	return nil
}

// MustRegister panics when registration fails; meant for static setup code.
func (r *Registry) MustRegister(host string, opts Options) {
	if err := r.Register(host, opts); err != nil {
		panic(err)
	}
}

// Lookup 根据 Host 或 Host:port 查找策略，大小写与末尾的 '.' 不敏感。
func (r *Registry) Lookup(host string) (HostPolicy, bool) {
	if r == nil {
		return HostPolicy{}, false
	}
	normalized := normalizeHost(host)
	if normalized == "" {
		return HostPolicy{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	policy, ok := r.policies[normalized]
	if !ok {
		return HostPolicy{}, false
	}
	return *policy, true
}

// List 返回按注册顺序排列的策略副本，用于 /-/hosts 诊断输出。
func (r *Registry) List() []HostPolicy {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.ordered) == 0 {
		return nil
	}
	result := make([]HostPolicy, len(r.ordered))
	for i, policy := range r.ordered {
		result[i] = *policy
	}
	return result
}

// Len reports how many hosts are registered.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

func parseUpstream(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("upstream must be http/https: %s", raw)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("upstream is missing a host: %s", raw)
	}
	return parsed, nil
}

// normalizeHost 把 Host 头或配置中的 host 统一成 lookup 用的键：去端口、去末尾的点、小写。
func normalizeHost(raw string) string {
	host := strings.TrimSpace(raw)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
