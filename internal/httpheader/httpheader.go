// Package httpheader holds the hop-by-hop header rules shared by the gateway
// and the cache engine.
package httpheader

import (
	"net/http"
	"net/textproto"
	"strings"
)

// hopByHop 是 RFC 7230 §6.1 中只对单跳连接有效的字段；Proxy-Connection 非标准但仍常见。
var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// IsHopByHop reports whether name is one of the fixed hop-by-hop fields.
func IsHopByHop(name string) bool {
	_, ok := hopByHop[textproto.CanonicalMIMEHeaderKey(name)]
	return ok
}

// Copy 把 src 中可转发的字段追加到 dst。
func Copy(dst, src http.Header) {
	skip := connectionTokens(src)
	for key, values := range src {
		canonical := textproto.CanonicalMIMEHeaderKey(key)
		if IsHopByHop(canonical) {
			continue
		}
		if _, listed := skip[canonical]; listed {
			continue
		}
		for _, value := range values {
			dst.Add(canonical, value)
		}
	}
}

// Filtered 返回去掉逐跳字段与 drop 中字段后的规范化副本；结果为空时返回 nil。
func Filtered(src http.Header, drop ...string) http.Header {
	if len(src) == 0 {
		return nil
	}
	dst := make(http.Header, len(src))
	Copy(dst, src)
	for _, name := range drop {
		dst.Del(name)
	}
	if len(dst) == 0 {
		return nil
	}
	return dst
}

// connectionTokens 收集 Connection 头中点名的字段，这些字段同样只属于当前连接。
func connectionTokens(h http.Header) map[string]struct{} {
	var tokens map[string]struct{}
	for _, value := range h.Values("Connection") {
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if tokens == nil {
				tokens = make(map[string]struct{})
			}
			tokens[textproto.CanonicalMIMEHeaderKey(token)] = struct{}{}
		}
	}
	return tokens
}
