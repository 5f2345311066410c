package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	defaultDomain   = "default"
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644

	// tempPrefix 标记写入中的临时文件；崩溃遗留的临时文件由 Purge 按 TTL 回收。
	tempPrefix = ".cache-"
)

// syscallNotDir 出现在 key 的某级父路径是普通文件时，按“不存在”处理。
var syscallNotDir error = syscall.ENOTDIR

// NewFileStore 以 basePath/domain 为根目录构建磁盘缓存。ttl 为 0 表示条目永不过期。
func NewFileStore(basePath, domain string, ttl time.Duration, opts ...Option) (*FileStore, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	if domain == "" {
		domain = defaultDomain
	}
	if domain == "." || domain == ".." || strings.ContainsAny(domain, `/\`) {
		return nil, fmt.Errorf("invalid cache domain %q", domain)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("cache ttl must not be negative: %s", ttl)
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	s := &FileStore{
		root:     filepath.Join(abs, domain),
		domain:   domain,
		ttl:      ttl,
		dirPerm:  defaultDirPerm,
		filePerm: defaultFilePerm,
		now:      time.Now,
		locks:    make(map[string]*entryLock),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.root, s.dirPerm); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}
	return s, nil
}

// FileStore 通过 entryLock 串行化同一文件上的读写，treeMu 保护 Clear 对整棵子树的重建。
type FileStore struct {
	root     string
	domain   string
	ttl      time.Duration
	dirPerm  os.FileMode
	filePerm os.FileMode
	now      func() time.Time

	treeMu sync.RWMutex

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

var _ Store = (*FileStore)(nil)

// Root returns the absolute directory of this domain.
func (s *FileStore) Root() string {
	return s.root
}

// Domain returns the namespace the store is scoped to.
func (s *FileStore) Domain() string {
	return s.domain
}

// TTL returns the store-wide expiry window.
func (s *FileStore) TTL() time.Duration {
	return s.ttl
}

// Path 返回 key 对应的条目文件绝对路径，不创建任何目录。
func (s *FileStore) Path(key string) (string, error) {
	rel, err := keyPath(key)
	if err != nil {
		return "", err
	}
	return s.resolve(rel)
}

func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	filePath, err := s.Path(key)
	if err != nil {
		return false, err
	}
	return s.existsAt(ctx, filePath)
}

func (s *FileStore) Get(ctx context.Context, key string, out any) error {
	filePath, err := s.Path(key)
	if err != nil {
		return err
	}
	return s.getAt(ctx, key, filePath, out)
}

func (s *FileStore) Set(ctx context.Context, key string, value any) error {
	return s.SetWithOptions(ctx, key, value, SetOptions{})
}

// SetWithOptions 写入条目，可通过 opts.ModTime 指定文件时间戳。
func (s *FileStore) SetWithOptions(ctx context.Context, key string, value any, opts SetOptions) error {
	filePath, err := s.Path(key)
	if err != nil {
		return err
	}
	return s.setAt(ctx, filePath, value, opts)
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	filePath, err := s.Path(key)
	if err != nil {
		return err
	}
	return s.deleteAt(ctx, filePath)
}

// Clear 删除整个 domain 子树（不论是否过期）并重建空的根目录。
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.treeMu.Lock()
	defer s.treeMu.Unlock()

	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("clear cache domain %s: %w", s.domain, err)
	}
	if err := os.MkdirAll(s.root, s.dirPerm); err != nil {
		return fmt.Errorf("recreate cache domain %s: %w", s.domain, err)
	}
	return nil
}

func (s *FileStore) existsAt(ctx context.Context, filePath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscallNotDir) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *FileStore) getAt(ctx context.Context, key, filePath string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.treeMu.RLock()
	defer s.treeMu.RUnlock()
	unlock := s.lockEntry(filePath)
	defer unlock()

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscallNotDir) {
			return ErrNotFound
		}
		return err
	}
	if info.IsDir() {
		return ErrNotFound
	}

	if s.expired(info.ModTime(), s.now()) {
		if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("expire cache entry: %w", err)
		}
		return ErrNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Key: key, Path: filePath, Err: err}
	}
	return nil
}

func (s *FileStore) setAt(ctx context.Context, filePath string, value any, opts SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	s.treeMu.RLock()
	defer s.treeMu.RUnlock()
	unlock := s.lockEntry(filePath)
	defer unlock()

	tempName, err := s.writeTemp(filepath.Dir(filePath), payload)
	if err != nil {
		return err
	}
	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = s.now()
	}
	return os.Chtimes(filePath, modTime, modTime)
}

// writeTemp 在目标目录中写入临时文件；Purge 可能刚好删掉了空目录，因此缺目录时重建一次。
func (s *FileStore) writeTemp(dir string, payload []byte) (string, error) {
	var (
		tempFile *os.File
		err      error
	)
	for attempt := 0; attempt < 2; attempt++ {
		if err = os.MkdirAll(dir, s.dirPerm); err != nil {
			return "", err
		}
		tempFile, err = os.CreateTemp(dir, tempPrefix+"*")
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			break
		}
	}
	if err != nil {
		return "", err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(payload)
	if err == nil {
		err = tempFile.Chmod(s.filePerm)
	}
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return "", err
	}
	return tempName, nil
}

func (s *FileStore) deleteAt(ctx context.Context, filePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.treeMu.RLock()
	defer s.treeMu.RUnlock()
	unlock := s.lockEntry(filePath)
	defer unlock()

	if err := os.Remove(filePath); err != nil &&
		!errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscallNotDir) {
		return err
	}
	return nil
}

func (s *FileStore) expired(modTime, now time.Time) bool {
	return s.ttl > 0 && now.Sub(modTime) >= s.ttl
}

func (s *FileStore) lockEntry(filePath string) func() {
	s.mu.Lock()
	lock := s.locks[filePath]
	if lock == nil {
		lock = &entryLock{}
		s.locks[filePath] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, filePath)
		}
		s.mu.Unlock()
	}
}

func (s *FileStore) resolve(rel string) (string, error) {
	filePath := filepath.Join(s.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes cache root", ErrInvalidKey)
	}
	return filePath, nil
}
