package httpcache

import (
	"net/http"

	"golang.org/x/sync/singleflight"
)

// RoundTripper 返回以 next 为真实传输层的装饰器：不符合缓存条件的请求原样交给 next，
// 其余请求走与 Do 相同的状态机。next 为 nil 时使用 http.DefaultTransport。
func (e *Engine) RoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	wrapped := *e
	wrapped.transport = TransportFunc(next.RoundTrip)
	if e.flights != nil {
		wrapped.flights = new(singleflight.Group)
	}
	return &roundTripper{engine: &wrapped, next: next}
}

type roundTripper struct {
	engine *Engine
	next   http.RoundTripper
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := rt.engine.Eligible(req); !ok {
		return rt.next.RoundTrip(req)
	}
	resp, err := rt.engine.Do(req)
	if err != nil {
		return nil, err
	}
	return resp.HTTPResponse(req), nil
}
