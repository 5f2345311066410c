// Package proxy bridges Fiber requests to the cache engine: it rebuilds the
// request against the host's upstream, lets the engine decide how to serve it,
// and writes the result back with the cache outcome header.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/api-cache/internal/httpcache"
	"github.com/any-hub/api-cache/internal/httpheader"
	"github.com/any-hub/api-cache/internal/logging"
	"github.com/any-hub/api-cache/internal/registry"
	"github.com/any-hub/api-cache/internal/server"
	"github.com/any-hub/api-cache/internal/version"
)

// Handler 实现 server.ProxyHandler，所有缓存决策都交给 httpcache.Engine。
type Handler struct {
	engine *httpcache.Engine
	logger *logrus.Logger
}

// NewHandler constructs a proxy handler around a shared engine.
func NewHandler(engine *httpcache.Engine, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{engine: engine, logger: logger}
}

var _ server.ProxyHandler = (*Handler)(nil)

// Handle 构造上游请求并交给引擎；NoResponseError 映射为 502，缓存读取错误映射为 500。
func (h *Handler) Handle(c fiber.Ctx, policy registry.HostPolicy) error {
	started := time.Now()
	requestID := server.RequestID(c)

	upstream := resolveUpstreamURL(policy, c)
	req, err := h.buildUpstreamRequest(c, upstream)
	if err != nil {
		h.logResult(policy, upstream.String(), requestID, nil, started, err)
		return h.writeError(c, fiber.StatusBadRequest, "bad_request")
	}

	resp, err := h.engine.DoFor(req, policy)
	if err != nil {
		h.logResult(policy, upstream.String(), requestID, nil, started, err)
		var noResp *httpcache.NoResponseError
		if errors.As(err, &noResp) {
			return h.writeError(c, fiber.StatusBadGateway, "no_response")
		}
		return h.writeError(c, fiber.StatusInternalServerError, "cache_error")
	}

	h.logResult(policy, upstream.String(), requestID, resp, started, nil)
	copyResponseHeaders(c, resp.Header)
	c.Set(httpcache.HeaderOutcome, string(resp.Outcome))
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	return c.Status(resp.StatusCode).Send(resp.Body)
}

func (h *Handler) buildUpstreamRequest(c fiber.Ctx, upstream *url.URL) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), upstream.String(), bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}

	httpheader.Copy(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Host = upstream.Host
	req.Header.Set("Host", upstream.Host)
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Protocol())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", version.UserAgent())
	}
	return req, nil
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	policy registry.HostPolicy,
	upstream string,
	requestID string,
	resp *httpcache.Response,
	started time.Time,
	err error,
) {
	var fields logrus.Fields
	if err != nil {
		fields = logging.RequestFields(policy.Host, policy.KeyName, upstream)
		fields["error"] = err.Error()
	} else {
		fields = logging.OutcomeFields(policy.Host, policy.KeyName, upstream, string(resp.Outcome), resp.Stale)
		fields["upstream_status"] = resp.StatusCode
	}
	fields["action"] = "proxy"
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

// resolveUpstreamURL 把请求路径与原始 query 拼到 host 的上游地址上；未配置上游时直连 https://host。
func resolveUpstreamURL(policy registry.HostPolicy, c fiber.Ctx) *url.URL {
	base := policy.UpstreamURL
	if base == nil {
		base = &url.URL{Scheme: "https", Host: policy.Host}
	}

	uri := c.Request().URI()
	clean := normalizeRequestPath(string(uri.Path()))
	relative := &url.URL{Path: clean}
	if query := uri.QueryString(); len(query) > 0 {
		relative.RawQuery = string(query)
	}
	resolved := base.ResolveReference(relative)
	if prefix := strings.TrimSuffix(base.Path, "/"); prefix != "" {
		resolved.Path = prefix + clean
	}
	return resolved
}

// normalizeRequestPath 清理 "." 与 ".." 段，但保留末尾的 '/'，由缓存 key 规范化负责去掉它。
func normalizeRequestPath(raw string) string {
	if raw == "" {
		return "/"
	}
	clean := path.Clean("/" + raw)
	if strings.HasSuffix(raw, "/") && clean != "/" {
		clean += "/"
	}
	return clean
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range httpheader.Filtered(headers, fiber.HeaderContentLength) {
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
