package httpcache

import (
	"errors"
	"fmt"
)

// ErrNoResponse 表示既没有缓存、也没有 backup，且回源失败。
var ErrNoResponse = errors.New("bad response from API server or timeout occurred and no backup was in the cache")

// NoResponseError 是唯一会向调用方抛出的终态失败，携带诊断所需的 key 与 host。
type NoResponseError struct {
	KeyName string
	Host    string
	URI     string
	Err     error
}

func (e *NoResponseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s (%s)", e.KeyName, ErrNoResponse, e.URI)
	}
	return fmt.Sprintf("%s: %s (%s): %v", e.KeyName, ErrNoResponse, e.URI, e.Err)
}

// Is makes errors.Is(err, ErrNoResponse) hold.
func (e *NoResponseError) Is(target error) bool {
	return target == ErrNoResponse
}

func (e *NoResponseError) Unwrap() error {
	return e.Err
}
