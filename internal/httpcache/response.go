package httpcache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/any-hub/api-cache/internal/cachekey"
)

// HeaderOutcome carries the Outcome of a response served through the cache.
const HeaderOutcome = "X-Api-Cache"

// Outcome 描述一次请求在状态机中的结局。
type Outcome string

const (
	// OutcomeBypass: 缓存关闭、非 GET 或 host 未注册，直接回源。
	OutcomeBypass Outcome = "bypass"
	// OutcomeHit: 命中未过期的主条目，未访问上游。
	OutcomeHit Outcome = "hit"
	// OutcomeStored: 回源成功并写入缓存。
	OutcomeStored Outcome = "stored"
	// OutcomeStale: 回源失败，返回 backup 并以 stale TTL 写回。
	OutcomeStale Outcome = "stale"
	// OutcomeDegraded: 回源返回非 2xx 且没有 backup，原样返回上游响应。
	OutcomeDegraded Outcome = "degraded"
)

// Response 是引擎交给调用方的完整响应，Body 已读入内存。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Outcome    Outcome
	// Stale 为 true 表示内容来自 backup，可能已经过时。
	Stale bool
	// Key 在 bypass 时为零值。
	Key cachekey.Key
}

func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Header = r.Header.Clone()
	out.Body = append([]byte(nil), r.Body...)
	return &out
}

// HTTPResponse 把 Response 转成可交给 http.Client 调用方的 *http.Response，并附带 X-Api-Cache 头。
func (r *Response) HTTPResponse(req *http.Request) *http.Response {
	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(HeaderOutcome, string(r.Outcome))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode)),
		StatusCode:    r.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}
