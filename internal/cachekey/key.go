// Package cachekey canonicalizes request URIs into cache keys and derives the
// content hash used to address backup bucket members.
package cachekey

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ErrUnsupportedURI is returned for URIs without a scheme or host; such
// requests cannot be attributed to a registered API host.
var ErrUnsupportedURI = errors.New("uri must be absolute")

// Key 是一次请求只计算一次的缓存标识。
type Key struct {
	// URI 是规范化后的请求 URI，同时作为主条目的 key 与 backup bucket 名。
	URI string
	// Hash 是 URI 的摘要，backup bucket 中的 member key。
	Hash digest.Digest
	// Host 是小写、去掉端口的主机名，用于查找 HostPolicy。
	Host string
}

// Member returns the encoded digest used as the bucket member key.
func (k Key) Member() string {
	return k.Hash.Encoded()
}

// FromRequest 基于请求 URL 生成 Key。
func FromRequest(req *http.Request) (Key, error) {
	if req == nil || req.URL == nil {
		return Key{}, fmt.Errorf("%w: missing request url", ErrUnsupportedURI)
	}
	return FromURL(req.URL)
}

// FromString parses raw and builds its Key.
func FromString(raw string) (Key, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Key{}, err
	}
	return FromURL(u)
}

// FromURL builds the Key of an already parsed absolute URL.
func FromURL(u *url.URL) (Key, error) {
	if u.Scheme == "" || u.Host == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrUnsupportedURI, u.String())
	}
	normalized := NormalizeURL(u)
	return Key{
		URI:  normalized,
		Hash: Hash(normalized),
		Host: strings.ToLower(u.Hostname()),
	}, nil
}

// Normalize 规范化 URI 字符串：scheme、host 小写，query 按原始子串排序，
// 去掉 path 末尾的 '/'。Normalize(Normalize(x)) == Normalize(x)。
func Normalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return NormalizeURL(u), nil
}

// NormalizeURL is Normalize for a parsed URL; u is not modified.
func NormalizeURL(u *url.URL) string {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	n.RawQuery = sortQuery(n.RawQuery)
	n.ForceQuery = false

	// "/p/"、"/p//" 都规范为 "/p"
	escaped := n.EscapedPath()
	if trimmed := strings.TrimRight(escaped, "/"); trimmed != escaped {
		if unescaped, err := url.PathUnescape(trimmed); err == nil {
			n.Path = unescaped
			n.RawPath = trimmed
		}
	}
	return n.String()
}

// sortQuery 按 '&' 切分原始 query 并按字典序排序，不做解码；空 query 保持为空。
func sortQuery(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// Hash returns the SHA-256 digest of a normalized URI.
func Hash(normalized string) digest.Digest {
	return digest.FromString(normalized)
}
