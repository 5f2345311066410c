package cache

import (
	"context"
	"time"
)

// SetWithTTL 让条目比 Store TTL 更早过期：文件修改时间被回拨 (storeTTL - ttl)，
// 这样 Get 的惰性过期和 Purge 仍只需比较一个 store 级 TTL。
// ttl 不短于 Store TTL（或 Store 不过期）时与 Set 相同。
func (s *FileStore) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.SetWithOptions(ctx, key, value, SetOptions{ModTime: s.modTimeFor(ttl)})
}

func (s *FileStore) modTimeFor(ttl time.Duration) time.Time {
	if s.ttl <= 0 || ttl <= 0 || ttl >= s.ttl {
		return time.Time{}
	}
	return s.now().Add(ttl - s.ttl)
}
