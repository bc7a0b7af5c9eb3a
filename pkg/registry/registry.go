// Package registry 管理已知目标集合（内置+自定义）、收藏和显示顺序
// 注册表只由显式的用户操作修改，测量事件永远不会改变它
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/google/uuid"
)

// 持久化使用的两个键
const (
	KeyCustomServers = "custom_servers"
	KeyFavorites     = "favorites"
)

var (
	ErrNotFound     = errors.New("目标不存在")
	ErrBuiltin      = errors.New("内置目标不可删除")
	ErrRunning      = errors.New("目标正在测量中")
	ErrDuplicate    = errors.New("目标标识符已存在")
	ErrInvalidInput = errors.New("输入无效")
)

// Persister 接收每次变更后的持久化投影
type Persister interface {
	Persist(p Projection)
}

// PersisterFunc 允许普通函数作为Persister使用
type PersisterFunc func(p Projection)

// Persist 实现Persister接口
func (f PersisterFunc) Persist(p Projection) {
	f(p)
}

// Option 注册表选项函数类型
type Option func(*Registry)

// WithRunningCheck 设置判断目标是否正在测量的回调，删除运行中的目标会被拒绝
func WithRunningCheck(fn func(id string) bool) Option {
	return func(r *Registry) {
		r.running = fn
	}
}

// WithPersister 设置变更后的持久化写入者
func WithPersister(p Persister) Option {
	return func(r *Registry) {
		r.persister = p
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Registry 目标注册表
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]core.Endpoint

	running   func(id string) bool
	persister Persister
	logger    *slog.Logger
}

// New 创建只包含内置目标的注册表
func New(opts ...Option) *Registry {
	r := &Registry{
		endpoints: make(map[string]core.Endpoint),
		running:   func(string) bool { return false },
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.replace(Builtins())
	return r
}

// Load 从存储读取自定义目标和收藏并与内置目标合并
// 读取或解码失败时退回到仅内置目标（无收藏、无自定义），并返回错误供调用方记录
func (r *Registry) Load(store core.Store) ([]core.Endpoint, error) {
	customs, favorites, err := readPersisted(store)
	if err != nil {
		r.logger.Warn("failed to load persisted endpoints, using built-ins", "error", err)
		r.replace(Builtins())
		return r.List(), err
	}

	r.replace(Merge(Builtins(), customs, favorites))
	r.logger.Info("registry loaded", "customs", len(customs), "favorites", len(favorites))
	return r.List(), nil
}

// readPersisted 读取两个持久化键
func readPersisted(store core.Store) ([]core.Endpoint, []string, error) {
	if store == nil {
		return nil, nil, nil
	}

	var customs []core.Endpoint
	if _, err := store.Get(KeyCustomServers, &customs); err != nil {
		return nil, nil, fmt.Errorf("读取自定义目标失败: %w", err)
	}

	var favorites []string
	if _, err := store.Get(KeyFavorites, &favorites); err != nil {
		return nil, nil, fmt.Errorf("读取收藏失败: %w", err)
	}

	return customs, favorites, nil
}

// replace 用给定集合替换当前目标表
func (r *Registry) replace(endpoints []core.Endpoint) {
	m := make(map[string]core.Endpoint, len(endpoints))
	for _, e := range endpoints {
		m[e.ID] = e
	}
	r.mu.Lock()
	r.endpoints = m
	r.mu.Unlock()
}

// Get 按标识符查找目标
func (r *Registry) Get(id string) (core.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[id]
	return e, ok
}

// List 返回按显示顺序排列的目标副本，每次读取时重新排序
func (r *Registry) List() []core.Endpoint {
	r.mu.RLock()
	out := make([]core.Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		out = append(out, e)
	}
	r.mu.RUnlock()

	SortForDisplay(out)
	return out
}

// Len 返回目标数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// Add 添加一个自定义目标，ID为空时自动生成
// 输入校验应在调用前通过ValidateInput完成
func (r *Registry) Add(e core.Endpoint) (core.Endpoint, error) {
	e.Name = strings.TrimSpace(e.Name)
	e.Address = strings.TrimSpace(e.Address)
	e.Custom = true
	if e.ID == "" {
		e.ID = "custom-" + uuid.NewString()[:8]
	}

	r.mu.Lock()
	if _, exists := r.endpoints[e.ID]; exists || IsBuiltin(e.ID) {
		r.mu.Unlock()
		return core.Endpoint{}, fmt.Errorf("%w: %s", ErrDuplicate, e.ID)
	}
	r.endpoints[e.ID] = e
	p := r.projectionLocked()
	r.mu.Unlock()

	r.logger.Info("endpoint added", "id", e.ID, "address", e.Address)
	r.persist(p)
	return e, nil
}

// Remove 删除一个自定义目标
// 内置目标或正在测量的目标会被拒绝
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.endpoints[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !e.Custom {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBuiltin, id)
	}
	if r.running(id) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunning, id)
	}
	delete(r.endpoints, id)
	p := r.projectionLocked()
	r.mu.Unlock()

	r.logger.Info("endpoint removed", "id", id)
	r.persist(p)
	return nil
}

// ToggleFavorite 切换收藏状态并返回新的状态
func (r *Registry) ToggleFavorite(id string) (bool, error) {
	r.mu.Lock()
	e, ok := r.endpoints[id]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.Favorite = !e.Favorite
	r.endpoints[id] = e
	p := r.projectionLocked()
	r.mu.Unlock()

	r.persist(p)
	return e.Favorite, nil
}

// Projection 返回当前状态的持久化投影
func (r *Registry) Projection() Projection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.projectionLocked()
}

func (r *Registry) projectionLocked() Projection {
	all := make([]core.Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		all = append(all, e)
	}
	return project(all)
}

func (r *Registry) persist(p Projection) {
	if r.persister != nil {
		r.persister.Persist(p)
	}
}

// WriteProjection 把投影写入存储的两个键
func WriteProjection(store core.Store, p Projection) error {
	if err := store.Set(KeyCustomServers, p.Customs); err != nil {
		return fmt.Errorf("写入自定义目标失败: %w", err)
	}
	if err := store.Set(KeyFavorites, p.Favorites); err != nil {
		return fmt.Errorf("写入收藏失败: %w", err)
	}
	return nil
}
