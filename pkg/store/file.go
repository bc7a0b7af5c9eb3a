// Package store 提供core.Store的持久化实现
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

const (
	appDirName    = "pingdeck"
	storeFileName = "store.yaml"
)

// FileStore 把所有键保存在同一个YAML文档中
// 写入采用临时文件+重命名，并通过文件锁与其他进程互斥
type FileStore struct {
	path string
	lock *flock.Flock

	mu   sync.Mutex
	doc  map[string]yaml.Node
	read bool
}

// NewFileStore 创建位于path的文件存储，path为空时使用默认位置
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath()
	}
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path 返回存储文件路径
func (s *FileStore) Path() string {
	return s.path
}

// Get 实现core.Store接口
func (s *FileStore) Get(key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return false, err
	}

	node, ok := s.doc[key]
	if !ok {
		return false, nil
	}
	if err := node.Decode(out); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

// Set 实现core.Store接口
func (s *FileStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking store: %w", err)
	}
	defer s.lock.Unlock()

	// 重新读取磁盘内容，保留其他进程写入的键
	s.read = false
	if err := s.readLocked(); err != nil {
		return err
	}

	var node yaml.Node
	if err := node.Encode(value); err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	s.doc[key] = node

	return s.writeLocked()
}

// loadLocked 在首次访问时读取文件
func (s *FileStore) loadLocked() error {
	if s.read {
		return nil
	}
	if err := s.lock.RLock(); err != nil {
		return fmt.Errorf("locking store: %w", err)
	}
	defer s.lock.Unlock()
	return s.readLocked()
}

// readLocked 读取文件内容，文件不存在时视为空文档
func (s *FileStore) readLocked() error {
	doc := make(map[string]yaml.Node)

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("reading store: %w", err)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing store: %w", err)
		}
		if doc == nil {
			doc = make(map[string]yaml.Node)
		}
	}

	s.doc = doc
	s.read = true
	return nil
}

// writeLocked 原子地写回整个文档
func (s *FileStore) writeLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating store dir: %w", err)
	}

	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("marshaling store: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming store file: %w", err)
	}
	committed = true
	return nil
}

// DefaultPath 返回 ~/.config/pingdeck/store.yaml，优先使用XDG_CONFIG_HOME
func DefaultPath() string {
	return filepath.Join(DefaultDir(), storeFileName)
}

// DefaultDir 返回默认的配置目录
func DefaultDir() string {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", appDirName)
}
