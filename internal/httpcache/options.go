package httpcache

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/api-cache/internal/cache"
	"github.com/any-hub/api-cache/internal/registry"
)

const (
	// DefaultTimeout bounds one upstream fetch, body included.
	DefaultTimeout = 5 * time.Second
	// DefaultStaleTTL is the freshness given to a response restored from backup.
	DefaultStaleTTL = 300 * time.Second
)

// Transport 执行一次真实的 HTTP 请求；*http.Client 天然满足该接口。
type Transport interface {
	Do(*http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(*http.Request) (*http.Response, error)

// Do calls f(req).
func (f TransportFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// ErrorHandler 在回源抛错（含超时）时被调用，仅用于观测，返回后状态机照常进入 Fallback。
type ErrorHandler func(err error, keyName, normalizedURI string)

// Recorder 接收引擎的指标事件，*metrics.Metrics 实现了它。
type Recorder interface {
	RecordRequest(host, outcome string)
	RecordUpstreamError(host, kind string)
	ObserveUpstream(host string, duration time.Duration)
}

// Options 汇总引擎的全部进程级配置，构造后不再修改。
type Options struct {
	// Enabled 是全局缓存开关，关闭时所有请求直接回源。
	Enabled bool
	// Timeout 限制一次回源；0 使用 DefaultTimeout。
	Timeout time.Duration
	// StaleTTL 是 backup 写回主条目后的新鲜期；0 使用 DefaultStaleTTL。
	StaleTTL time.Duration

	Registry  *registry.Registry
	Store     *cache.FileStore
	Backups   *cache.Buckets
	Transport Transport

	Logger  *logrus.Logger
	OnError ErrorHandler
	Metrics Recorder

	// WriteBackups 控制成功回源后是否同步写入 backup bucket。
	WriteBackups bool
	// Coalesce 合并同一规范化 URI 上并发的 miss，只回源一次。
	Coalesce bool

	// Now 仅供测试注入时钟。
	Now func() time.Time
}

// DefaultOptions returns Options with every documented default applied.
// A zero Options leaves backups and coalescing off.
func DefaultOptions() Options {
	return Options{
		Timeout:      DefaultTimeout,
		StaleTTL:     DefaultStaleTTL,
		WriteBackups: true,
		Coalesce:     true,
	}
}
