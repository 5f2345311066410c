package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Purge 递归清理 domain 子树：删除修改时间早于 TTL 的文件，随后删除因此变空的目录。
// TTL 为 0 时不做任何事。以 '.' 开头的文件不会被删除，唯一的例外是超过 TTL 的
// 临时文件：正常写入会在毫秒级内 rename 掉它，留到这么久只可能是写入中途崩溃。
// 清理过程中被其他调用方删掉的文件视为已处理；其余 I/O 错误会中止清理并返回。
func (s *FileStore) Purge(ctx context.Context) (PurgeReport, error) {
	var report PurgeReport
	if s.ttl <= 0 {
		return report, nil
	}

	s.treeMu.RLock()
	defer s.treeMu.RUnlock()

	started := s.now()
	if err := s.purgeDir(ctx, s.root, started, &report, true); err != nil {
		return report, fmt.Errorf("purge cache domain %s: %w", s.domain, err)
	}
	return report, nil
}

func (s *FileStore) purgeDir(ctx context.Context, dir string, started time.Time, report *PurgeReport, isRoot bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !isRoot && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := s.purgeDir(ctx, full, started, report, false); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(entry.Name(), ".") && !strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		removed, err := s.purgeFile(full, started)
		if err != nil {
			return err
		}
		if removed {
			report.FilesRemoved++
		}
	}

	if isRoot {
		return nil
	}
	return s.removeIfEmpty(dir, report)
}

func (s *FileStore) purgeFile(filePath string, started time.Time) (bool, error) {
	unlock := s.lockEntry(filePath)
	defer unlock()

	info, err := os.Lstat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !s.expired(info.ModTime(), started) {
		return false, nil
	}
	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// removeIfEmpty 删除空目录；若并发写入刚好在目录里落了新文件则保留它。
func (s *FileStore) removeIfEmpty(dir string, report *PurgeReport) error {
	remaining, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(remaining) > 0 {
		return nil
	}
	if err := os.Remove(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if again, readErr := os.ReadDir(dir); readErr == nil && len(again) > 0 {
			return nil
		}
		return err
	}
	report.DirsRemoved++
	return nil
}

// Stats 遍历 domain 子树统计条目数量与字节数，临时文件不计入。
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	s.treeMu.RLock()
	defer s.treeMu.RUnlock()

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p != s.root {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		stats.Entries++
		stats.Bytes += info.Size()
		return nil
	})
	return stats, err
}
