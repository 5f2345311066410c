// Package httpcache implements the caching decision engine: for every
// request it decides between a live call, a cached response, a fresh fetch
// that is then stored, and a stale backup served while the upstream fails.
//
// The engine wraps a Transport instead of altering it. Do serves one request;
// RoundTripper exposes the same logic as an http.RoundTripper decorator.
package httpcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/api-cache/internal/cache"
	"github.com/any-hub/api-cache/internal/cachekey"
	"github.com/any-hub/api-cache/internal/logging"
	"github.com/any-hub/api-cache/internal/registry"
)

// Engine 是并发安全的；所有配置在 New 之后只读。
type Engine struct {
	enabled      bool
	timeout      time.Duration
	staleTTL     time.Duration
	registry     *registry.Registry
	store        *cache.FileStore
	backups      *cache.Buckets
	transport    Transport
	logger       *logrus.Logger
	onError      ErrorHandler
	metrics      Recorder
	writeBackups bool
	flights      *singleflight.Group
	now          func() time.Time
}

// New 校验配置并构建引擎；开启缓存时必须提供 Registry 与 Store。
func New(opts Options) (*Engine, error) {
	if opts.Enabled {
		if opts.Registry == nil {
			return nil, errors.New("registry is required when caching is enabled")
		}
		if opts.Store == nil {
			return nil, errors.New("cache store is required when caching is enabled")
		}
	}
	if opts.Timeout < 0 || opts.StaleTTL < 0 {
		return nil, fmt.Errorf("timeout and stale ttl must not be negative")
	}

	e := &Engine{
		enabled:      opts.Enabled,
		timeout:      opts.Timeout,
		staleTTL:     opts.StaleTTL,
		registry:     opts.Registry,
		store:        opts.Store,
		backups:      opts.Backups,
		transport:    opts.Transport,
		logger:       opts.Logger,
		onError:      opts.OnError,
		metrics:      opts.Metrics,
		writeBackups: opts.WriteBackups,
		now:          opts.Now,
	}
	if e.timeout == 0 {
		e.timeout = DefaultTimeout
	}
	if e.staleTTL == 0 {
		e.staleTTL = DefaultStaleTTL
	}
	if e.transport == nil {
		e.transport = http.DefaultClient
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	if e.metrics == nil {
		e.metrics = nopRecorder{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if opts.Coalesce {
		e.flights = new(singleflight.Group)
	}
	return e, nil
}

// Enabled reports the global caching switch.
func (e *Engine) Enabled() bool {
	return e.enabled
}

// Eligible 判断请求是否进入缓存流程：开关打开、GET 请求、host 已注册。
func (e *Engine) Eligible(req *http.Request) (registry.HostPolicy, bool) {
	if !e.cacheable(req) {
		return registry.HostPolicy{}, false
	}
	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	return e.registry.Lookup(host)
}

// Do 执行一次请求。只有 *NoResponseError 与缓存读取错误会作为 error 返回；
// 上游的非 2xx 响应在没有 backup 时以 OutcomeDegraded 原样返回。
func (e *Engine) Do(req *http.Request) (*Response, error) {
	policy, ok := e.Eligible(req)
	if !ok {
		return e.passThrough(req)
	}
	return e.serveRecorded(req, policy)
}

// DoFor 与 Do 相同，但使用调用方已解析的 policy，不再按 req.URL 查找 registry。
// 网关按客户端 Host 头路由、而上游地址可能是另一个域名时使用。
func (e *Engine) DoFor(req *http.Request, policy registry.HostPolicy) (*Response, error) {
	if !e.cacheable(req) || policy.Host == "" {
		return e.passThrough(req)
	}
	return e.serveRecorded(req, policy)
}

func (e *Engine) cacheable(req *http.Request) bool {
	if !e.enabled || req == nil || req.URL == nil {
		return false
	}
	return req.Method == "" || req.Method == http.MethodGet
}

func (e *Engine) passThrough(req *http.Request) (*Response, error) {
	resp, err := e.bypass(req)
	if err == nil {
		e.metrics.RecordRequest("", string(OutcomeBypass))
	}
	return resp, err
}

func (e *Engine) serveRecorded(req *http.Request, policy registry.HostPolicy) (*Response, error) {
	resp, err := e.serve(req, policy)
	switch {
	case err == nil:
		e.metrics.RecordRequest(policy.Host, string(resp.Outcome))
	case errors.Is(err, ErrNoResponse):
		e.metrics.RecordRequest(policy.Host, "no_response")
	default:
		e.metrics.RecordRequest(policy.Host, "error")
	}
	return resp, err
}

func (e *Engine) serve(req *http.Request, policy registry.HostPolicy) (*Response, error) {
	key, err := cachekey.FromRequest(req)
	if err != nil {
		return e.bypass(req)
	}
	// 超时之外不向上游传播取消：客户端断开后本次回源与写缓存仍会完成。
	ctx := context.WithoutCancel(req.Context())
	fields := logging.RequestFields(policy.Host, policy.KeyName, key.URI)

	var stored StoredResponse
	err = e.store.Get(ctx, key.URI, &stored)
	switch {
	case err == nil && !stored.belongsTo(key):
		// 文件被另一个 URI 占用，按未命中处理，回源后覆盖。
		e.logger.WithFields(fields).WithField("stored_uri", stored.URI).Debug("cache_key_mismatch")
	case err == nil:
		resp, decodeErr := stored.response(key, OutcomeHit, false)
		if decodeErr != nil {
			return nil, e.decodeError(key.URI, decodeErr)
		}
		e.logger.WithFields(fields).Info("cache_hit")
		return resp, nil
	case !errors.Is(err, cache.ErrNotFound):
		e.logger.WithFields(fields).WithError(err).Error("cache_read_failed")
		return nil, fmt.Errorf("read cache entry %s: %w", key.URI, err)
	}

	if e.flights == nil {
		return e.fetch(ctx, req, policy, key)
	}
	v, err, shared := e.flights.Do(key.URI, func() (any, error) {
		return e.fetch(ctx, req, policy, key)
	})
	if err != nil {
		return nil, err
	}
	resp := v.(*Response)
	if shared {
		resp = resp.clone()
	}
	return resp, nil
}

func (e *Engine) fetch(ctx context.Context, req *http.Request, policy registry.HostPolicy, key cachekey.Key) (*Response, error) {
	fields := logging.RequestFields(policy.Host, policy.KeyName, key.URI)

	status, header, body, err := e.perform(ctx, req, policy.Host)
	if err != nil {
		e.logger.WithFields(fields).WithError(err).Warn("upstream_failed")
		if e.onError != nil {
			e.onError(err, policy.KeyName, key.URI)
		}
		return e.fallback(ctx, policy, key, nil, err)
	}

	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		e.storeFresh(ctx, policy, key, NewStoredResponse(key.URI, status, header, body, e.now()))
		return &Response{
			StatusCode: status,
			Header:     header,
			Body:       body,
			Outcome:    OutcomeStored,
			Key:        key,
		}, nil
	}

	e.metrics.RecordUpstreamError(policy.Host, "status")
	fields["upstream_status"] = status
	e.logger.WithFields(fields).Warn("upstream_bad_status")
	degraded := &Response{
		StatusCode: status,
		Header:     header,
		Body:       body,
		Outcome:    OutcomeDegraded,
		Key:        key,
	}
	return e.fallback(ctx, policy, key, degraded, nil)
}

// perform 在 e.timeout 内完成请求并读完 body；超时与其他传输错误同等处理。
func (e *Engine) perform(ctx context.Context, req *http.Request, host string) (int, http.Header, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	resp, err := e.transport.Do(req.Clone(ctx))
	if err != nil {
		e.metrics.RecordUpstreamError(host, errorKind(err))
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	e.metrics.ObserveUpstream(host, time.Since(started))
	if err != nil {
		e.metrics.RecordUpstreamError(host, errorKind(err))
		return 0, nil, nil, fmt.Errorf("read upstream body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// storeFresh 写主条目与 backup。写失败只记录日志，已拿到的响应照常返回。
func (e *Engine) storeFresh(ctx context.Context, policy registry.HostPolicy, key cachekey.Key, stored StoredResponse) {
	fields := logging.RequestFields(policy.Host, policy.KeyName, key.URI)

	if err := e.store.SetWithTTL(ctx, key.URI, stored, policy.ExpireIn); err != nil {
		e.logger.WithFields(fields).WithError(err).Warn("cache_store_failed")
	} else {
		e.logger.WithFields(fields).Info("cache_stored")
	}

	if !e.writeBackups || e.backups == nil {
		return
	}
	if err := e.backups.HSet(ctx, key.URI, key.Member(), stored); err != nil {
		e.logger.WithFields(fields).WithError(err).Warn("backup_store_failed")
	}
}

func (e *Engine) fallback(ctx context.Context, policy registry.HostPolicy, key cachekey.Key, degraded *Response, cause error) (*Response, error) {
	fields := logging.RequestFields(policy.Host, policy.KeyName, key.URI)

	if e.backups != nil {
		var backup StoredResponse
		err := e.backups.HGet(ctx, key.URI, key.Member(), &backup)
		switch {
		case err == nil && !backup.belongsTo(key):
			e.logger.WithFields(fields).WithField("stored_uri", backup.URI).Debug("backup_key_mismatch")
		case err == nil:
			resp, decodeErr := backup.response(key, OutcomeStale, true)
			if decodeErr != nil {
				return nil, &cache.DecodeError{Key: key.URI, Err: decodeErr}
			}
			if err := e.store.SetWithTTL(ctx, key.URI, backup, e.staleTTL); err != nil {
				e.logger.WithFields(fields).WithError(err).Warn("cache_store_failed")
			}
			e.logger.WithFields(fields).Info("backup_served")
			return resp, nil
		case !errors.Is(err, cache.ErrNotFound):
			e.logger.WithFields(fields).WithError(err).Error("backup_read_failed")
			return nil, fmt.Errorf("read backup entry %s: %w", key.URI, err)
		}
	}

	if degraded != nil {
		e.logger.WithFields(fields).Info("degraded_response")
		return degraded, nil
	}

	e.logger.WithFields(fields).WithError(cause).Error("no_response")
	return nil, &NoResponseError{
		KeyName: policy.KeyName,
		Host:    policy.Host,
		URI:     key.URI,
		Err:     cause,
	}
}

// bypass 直接回源，不设置引擎超时，也不读写缓存。
func (e *Engine) bypass(req *http.Request) (*Response, error) {
	e.logger.WithField("action", "bypass").Debug("caching_off")
	resp, err := e.transport.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Outcome:    OutcomeBypass,
	}, nil
}

func (e *Engine) decodeError(key string, err error) error {
	filePath, _ := e.store.Path(key)
	return &cache.DecodeError{Key: key, Path: filePath, Err: err}
}

func errorKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "transport"
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, string)          {}
func (nopRecorder) RecordUpstreamError(string, string)    {}
func (nopRecorder) ObserveUpstream(string, time.Duration) {}
