package server

import (
	"net"
	"net/http"
	"time"

	"github.com/any-hub/api-cache/internal/config"
)

// minClientTimeout 只约束不经缓存的 bypass 请求；缓存回源另有引擎的 UpstreamTimeout。
const minClientTimeout = 30 * time.Second

// NewUpstreamClient 构建所有上游请求共用的 http.Client。
// 不跟随重定向：3xx 原样交给引擎，按非成功状态走 fallback。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := minClientTimeout
	if cfg != nil {
		if configured := cfg.Global.UpstreamTimeout.DurationValue(); configured > timeout {
			timeout = configured
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: newUpstreamTransport(timeout),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// newUpstreamTransport 在默认 Transport 基础上放大单 host 的空闲连接池：
// 网关只面向少量已注册的上游 host。
func newUpstreamTransport(timeout time.Duration) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 32
	transport.ResponseHeaderTimeout = timeout
	return transport
}
