package httpcache

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/any-hub/api-cache/internal/cachekey"
	"github.com/any-hub/api-cache/internal/httpheader"
)

const encodingBase64 = "base64"

// StoredResponse 是写入磁盘的 JSON 结构。文本 body 直接以字符串保存，便于人工查看；
// 非 UTF-8 body 以 base64 保存并在 Encoding 中标注。
// 不同的规范化 URI 可能映射到同一个文件，URI 记录条目真正属于哪个 key。
type StoredResponse struct {
	URI      string      `json:"uri"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     string      `json:"body"`
	Encoding string      `json:"encoding,omitempty"`
	StoredAt time.Time   `json:"stored_at"`
}

// NewStoredResponse captures a response for persistence. Hop-by-hop fields and
// Content-Length, which the server recomputes on replay, are not kept.
func NewStoredResponse(uri string, status int, header http.Header, body []byte, storedAt time.Time) StoredResponse {
	stored := StoredResponse{
		URI:      uri,
		Status:   status,
		Header:   httpheader.Filtered(header, "Content-Length"),
		StoredAt: storedAt.UTC(),
	}
	if utf8.Valid(body) {
		stored.Body = string(body)
	} else {
		stored.Body = base64.StdEncoding.EncodeToString(body)
		stored.Encoding = encodingBase64
	}
	return stored
}

// Bytes 解码 body；未知 Encoding 视为损坏条目。
func (s StoredResponse) Bytes() ([]byte, error) {
	switch s.Encoding {
	case "":
		return []byte(s.Body), nil
	case encodingBase64:
		return base64.StdEncoding.DecodeString(s.Body)
	default:
		return nil, fmt.Errorf("unknown body encoding %q", s.Encoding)
	}
}

// belongsTo reports whether the entry was stored for key.
func (s StoredResponse) belongsTo(key cachekey.Key) bool {
	return s.URI == key.URI
}

func (s StoredResponse) response(key cachekey.Key, outcome Outcome, stale bool) (*Response, error) {
	body, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	header := s.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		StatusCode: s.Status,
		Header:     header,
		Body:       body,
		Outcome:    outcome,
		Stale:      stale,
		Key:        key,
	}, nil
}
