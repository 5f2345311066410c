package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Store 是决策引擎依赖的最小读写接口，FileStore 为唯一的生产实现。
type Store interface {
	// Exists 仅检查条目文件是否存在，不触发过期删除。
	Exists(ctx context.Context, key string) (bool, error)

	// Get 读取并反序列化条目；不存在或已过期时返回 ErrNotFound，
	// JSON 损坏时返回 *DecodeError。
	Get(ctx context.Context, key string, out any) error

	// Set 覆盖写入条目，使用 Store 级 TTL。
	Set(ctx context.Context, key string, value any) error

	// SetWithTTL 写入条目，并让它在 ttl（若短于 Store TTL）后过期。
	SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete 删除条目，条目不存在时不报错。
	Delete(ctx context.Context, key string) error
}

// SetOptions 控制写入过程中的可选属性。
type SetOptions struct {
	// ModTime 非零时覆盖文件修改时间，过期判断以此为起点。
	ModTime time.Time
}

// PurgeReport 汇总一次 Purge 清理掉的文件与目录数量。
type PurgeReport struct {
	FilesRemoved int `json:"files_removed"`
	DirsRemoved  int `json:"dirs_removed"`
}

// Stats 描述 domain 子树下的条目规模，供诊断接口输出。
type Stats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Option 定制 FileStore 的权限与时钟。
type Option func(*FileStore)

// WithDirPerm sets the permission used for directories the store creates.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *FileStore) {
		s.dirPerm = mode
	}
}

// WithFilePerm sets the permission applied to entry files.
func WithFilePerm(mode os.FileMode) Option {
	return func(s *FileStore) {
		s.filePerm = mode
	}
}

// WithClock replaces time.Now, mainly for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// ErrNotFound 表示缓存不存在（或已在读取时过期删除）。
var ErrNotFound = errors.New("cache entry not found")

// ErrInvalidKey 表示 key 无法解析，或映射出的路径越过了 domain 根目录。
var ErrInvalidKey = errors.New("invalid cache key")

// DecodeError 表示条目文件存在但内容不是合法 JSON，需与 ErrNotFound 区分。
type DecodeError struct {
	Key  string
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode cache entry %q (%s): %v", e.Key, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
