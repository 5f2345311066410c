package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

const bucketDirSuffix = ".bucket"

// Buckets 在 FileStore 之上提供 bucket -> member -> value 的两级映射。
// bucket 名按普通 key 映射出文件路径，再加 ".bucket" 后缀作为目录，每个 member 一个文件，
// 因此 bucket 与同名的普通条目可以共存。过期、Purge、Clear 语义与普通条目一致。
type Buckets struct {
	store *FileStore
}

// NewBuckets wraps store with the bucket layout.
func NewBuckets(store *FileStore) *Buckets {
	return &Buckets{store: store}
}

// HSet 写入 bucket 中的一个 member，覆盖旧值。
func (b *Buckets) HSet(ctx context.Context, bucket, member string, value any) error {
	filePath, err := b.memberPath(bucket, member)
	if err != nil {
		return err
	}
	return b.store.setAt(ctx, filePath, value, SetOptions{})
}

// HGet 读取 member；语义同 FileStore.Get（惰性过期、ErrNotFound、*DecodeError）。
func (b *Buckets) HGet(ctx context.Context, bucket, member string, out any) error {
	filePath, err := b.memberPath(bucket, member)
	if err != nil {
		return err
	}
	return b.store.getAt(ctx, bucket+"["+member+"]", filePath, out)
}

// HExists 判断 member 文件是否存在，不触发过期删除。
func (b *Buckets) HExists(ctx context.Context, bucket, member string) (bool, error) {
	filePath, err := b.memberPath(bucket, member)
	if err != nil {
		return false, err
	}
	return b.store.existsAt(ctx, filePath)
}

// HDelete 删除 member，不存在时不报错。
func (b *Buckets) HDelete(ctx context.Context, bucket, member string) error {
	filePath, err := b.memberPath(bucket, member)
	if err != nil {
		return err
	}
	return b.store.deleteAt(ctx, filePath)
}

func (b *Buckets) memberPath(bucket, member string) (string, error) {
	rel, err := keyPath(bucket)
	if err != nil {
		return "", err
	}
	name := sanitizeFilename(strings.ReplaceAll(member, "/", "%2F"))
	switch {
	case name == "", name == ".", name == "..", strings.HasPrefix(name, "."), strings.ContainsRune(name, filepath.Separator):
		return "", fmt.Errorf("%w: bucket member %q", ErrInvalidKey, member)
	}
	return b.store.resolve(rel + bucketDirSuffix + "/" + name)
}
