// Package monitor 把注册表、会话、路由器和探测引擎组合成一个完整的监控器
// 所有状态变更（用户命令和测量事件）都在同一把锁下逐个处理完成
// 等待引擎确认的启动和停止请求不持有这把锁，其他目标的事件照常投递
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/registry"
	"github.com/Kevin-Rudy/pingdeck/pkg/router"
	"github.com/Kevin-Rudy/pingdeck/pkg/session"
	"github.com/Kevin-Rudy/pingdeck/pkg/store"
)

var (
	ErrUnknownEndpoint = errors.New("未知的目标")
	ErrEngineClosed    = errors.New("探测引擎事件通道已关闭")
)

// Status 目标及其会话快照
type Status struct {
	Endpoint core.Endpoint    `json:"endpoint"`
	Session  session.Snapshot `json:"session"`
}

// Monitor 监控器
type Monitor struct {
	cfg      *Config
	engine   core.Engine
	store    core.Store
	recorder RunRecorder
	logger   *slog.Logger

	registry  *registry.Registry
	router    *router.Router
	persister *persister

	// mu 串行化所有状态变更
	mu sync.Mutex

	// starting 正在等待引擎确认启动的目标，期间到达的事件暂存于此，由mu保护
	starting map[string][]core.SampleEvent

	// smu 保护sessions映射本身，写入时同时持有mu
	smu      sync.RWMutex
	sessions map[string]*session.Session
}

// New 创建监控器，初始只包含内置目标，调用Load读取持久化数据
func New(engine core.Engine, opts ...Option) (*Monitor, error) {
	if engine == nil {
		return nil, errors.New("必须指定探测引擎")
	}

	m := &Monitor{
		cfg:      DefaultConfig(),
		engine:   engine,
		logger:   slog.New(slog.DiscardHandler),
		sessions: make(map[string]*session.Session),
		starting: make(map[string][]core.SampleEvent),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}

	m.router = router.New(m.logger.With("component", "router"))
	m.persister = newPersister(m.store, m.recorder, m.logger.With("component", "persister"))
	m.registry = registry.New(
		registry.WithRunningCheck(m.runningLocked),
		registry.WithPersister(m.persister),
		registry.WithLogger(m.logger.With("component", "registry")),
	)

	m.mu.Lock()
	m.syncSessionsLocked()
	m.mu.Unlock()
	return m, nil
}

// Load 从存储读取自定义目标和收藏
// 失败时退回到内置目标并返回错误，监控器仍然可用
func (m *Monitor) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.registry.Load(m.store)
	m.syncSessionsLocked()
	return err
}

// syncSessionsLocked 使会话集合与注册表一致
// 已有会话保留，多余的空闲会话被移除
func (m *Monitor) syncSessionsLocked() {
	known := make(map[string]struct{}, m.registry.Len())
	for _, e := range m.registry.List() {
		known[e.ID] = struct{}{}
		m.ensureSessionLocked(e.ID)
	}

	m.smu.Lock()
	defer m.smu.Unlock()
	for id, s := range m.sessions {
		if _, ok := known[id]; ok || s.Running() || m.startingLocked(id) {
			continue
		}
		m.router.Unregister(id)
		delete(m.sessions, id)
	}
}

func (m *Monitor) ensureSessionLocked(id string) *session.Session {
	m.smu.Lock()
	defer m.smu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := session.New(id, m.cfg.HistorySize)
	m.sessions[id] = s
	m.router.Register(id, router.HandlerFunc(func(ev core.SampleEvent) bool {
		changed := s.HandleEvent(ev)
		if changed && ev.Kind.Terminal() {
			m.runEnded(s, ev)
		}
		return changed
	}))
	return s
}

// runningLocked 供注册表在删除时检查，调用时已持有mu
// 正在启动的目标也视为运行中
func (m *Monitor) runningLocked(id string) bool {
	if m.startingLocked(id) {
		return true
	}
	m.smu.RLock()
	s, ok := m.sessions[id]
	m.smu.RUnlock()
	return ok && s.Running()
}

func (m *Monitor) startingLocked(id string) bool {
	_, ok := m.starting[id]
	return ok
}

func (m *Monitor) session(id string) (*session.Session, bool) {
	m.smu.RLock()
	defer m.smu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Run 运行事件循环，直到ctx取消或引擎通道关闭
// 引擎通道关闭时所有运行中的会话被强制回到空闲并返回ErrEngineClosed
func (m *Monitor) Run(ctx context.Context) error {
	events := m.engine.Events()
	m.logger.Info("event loop started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("event loop stopped", "reason", ctx.Err())
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				m.engineClosed()
				return ErrEngineClosed
			}
			m.Dispatch(ev)
		}
	}
}

// Dispatch 处理单个引擎事件，未知目标的事件被丢弃
// 目标正在等待启动确认时事件被暂存，确认后按原顺序投递
func (m *Monitor) Dispatch(ev core.SampleEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.starting[ev.EndpointID]; ok {
		m.starting[ev.EndpointID] = append(held, ev)
		return true
	}
	return m.router.Dispatch(ev)
}

func (m *Monitor) engineClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.smu.RLock()
	defer m.smu.RUnlock()
	for id, s := range m.sessions {
		if s.ForceIdle() {
			m.logger.Error("engine channel closed, session forced idle", "endpoint", id)
		}
	}
}

// runEnded 在一轮测量结束时排队保存结果摘要
func (m *Monitor) runEnded(s *session.Session, ev core.SampleEvent) {
	snap := s.Snapshot()
	ep, _ := m.registry.Get(s.ID())

	m.logger.Info("run ended",
		"endpoint", s.ID(),
		"kind", ev.Kind.String(),
		"samples", snap.Stats.Samples,
		"timeouts", snap.Stats.Timeouts,
		"loss", snap.Stats.Loss)

	m.persister.Record(store.RunRecord{
		EndpointID: s.ID(),
		Address:    ep.Address,
		StartedAt:  snap.StartedAt,
		EndedAt:    snap.EndedAt,
		Stopped:    ev.Kind == core.EventStopped,
		Samples:    snap.Stats.Samples,
		Timeouts:   snap.Stats.Timeouts,
		AvgMs:      snap.Stats.Avg,
		MinMs:      snap.Stats.Min,
		MaxMs:      snap.Stats.Max,
		LossPct:    snap.Stats.Loss,
	})
}

// Start 开始对目标的一轮测量，返回引擎是否接受
// 会话已在运行、正在启动或引擎拒绝时返回false且不是错误
func (m *Monitor) Start(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	ep, ok := m.registry.Get(id)
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownEndpoint, id)
	}
	if m.startingLocked(id) {
		m.mu.Unlock()
		return false, nil
	}
	s := m.ensureSessionLocked(id)
	m.starting[id] = nil
	m.mu.Unlock()

	accepted, err := s.Start(ctx, m.engine, ep.Address, m.cfg.SampleCount)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishStartLocked(id)

	if err != nil {
		m.logger.Error("start failed", "endpoint", id, "error", err)
		return false, err
	}
	if !accepted {
		m.logger.Debug("start rejected", "endpoint", id)
		return false, nil
	}
	m.logger.Info("run started", "endpoint", ep.String(), "count", m.cfg.SampleCount)
	return true, nil
}

// finishStartLocked 结束启动等待并投递暂存的事件
func (m *Monitor) finishStartLocked(id string) {
	held := m.starting[id]
	delete(m.starting, id)
	for _, ev := range held {
		m.router.Dispatch(ev)
	}
}

// Stop 请求停止目标的测量，运行状态在收到终止事件后才清除
func (m *Monitor) Stop(ctx context.Context, id string) error {
	s, ok := m.session(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, id)
	}
	if err := s.Stop(ctx, m.engine); err != nil {
		m.logger.Error("stop failed", "endpoint", id, "error", err)
		return err
	}
	return nil
}

// Toggle 空闲时开始测量，运行中时请求停止
// 返回请求后会话是否处于运行状态
func (m *Monitor) Toggle(ctx context.Context, id string) (bool, error) {
	if s, ok := m.session(id); ok && s.Running() {
		if err := m.Stop(ctx, id); err != nil {
			return true, err
		}
		return true, nil
	}
	return m.Start(ctx, id)
}

// StopAll 请求停止所有运行中的测量
func (m *Monitor) StopAll(ctx context.Context) error {
	m.smu.RLock()
	running := make([]*session.Session, 0)
	for _, s := range m.sessions {
		if s.Running() {
			running = append(running, s)
		}
	}
	m.smu.RUnlock()

	var errs []error
	for _, s := range running {
		if err := s.Stop(ctx, m.engine); err != nil {
			errs = append(errs, err)
		}
	}
	if len(running) > 0 {
		m.logger.Info("stop requested for all runs", "count", len(running))
	}
	return errors.Join(errs...)
}

// Add 校验输入后添加一个自定义目标
func (m *Monitor) Add(name, address string) (core.Endpoint, error) {
	if err := registry.ValidateInput(name, address); err != nil {
		return core.Endpoint{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.registry.Add(core.Endpoint{Name: name, Address: address})
	if err != nil {
		return core.Endpoint{}, err
	}
	m.ensureSessionLocked(e.ID)
	return e, nil
}

// Remove 删除自定义目标，运行中的目标和内置目标会被拒绝
// 删除后该目标的迟到事件会被路由器丢弃
func (m *Monitor) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.registry.Remove(id); err != nil {
		return err
	}

	m.smu.Lock()
	m.router.Unregister(id)
	delete(m.sessions, id)
	m.smu.Unlock()
	return nil
}

// ToggleFavorite 切换收藏状态
func (m *Monitor) ToggleFavorite(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.ToggleFavorite(id)
}

// List 按显示顺序返回所有目标
func (m *Monitor) List() []core.Endpoint {
	return m.registry.List()
}

// Endpoint 按标识符查找目标
func (m *Monitor) Endpoint(id string) (core.Endpoint, bool) {
	return m.registry.Get(id)
}

// Snapshot 返回目标会话的当前快照
func (m *Monitor) Snapshot(id string) (session.Snapshot, bool) {
	s, ok := m.session(id)
	if !ok {
		return session.Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Statuses 按显示顺序返回所有目标及其会话快照
func (m *Monitor) Statuses() []Status {
	endpoints := m.registry.List()
	out := make([]Status, 0, len(endpoints))
	for _, e := range endpoints {
		snap, ok := m.Snapshot(e.ID)
		if !ok {
			snap = session.Snapshot{EndpointID: e.ID}
		}
		out = append(out, Status{Endpoint: e, Session: snap})
	}
	return out
}

// RunningCount 返回运行中的会话数量
func (m *Monitor) RunningCount() int {
	m.smu.RLock()
	defer m.smu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.Running() {
			n++
		}
	}
	return n
}

// Subscribe 订阅目标的事件，id为空表示订阅所有目标
func (m *Monitor) Subscribe(id string) *router.Subscription {
	return m.router.Subscribe(id)
}

// Dropped 返回被丢弃的无法路由事件数
func (m *Monitor) Dropped() uint64 {
	return m.router.Dropped()
}

// SampleCount 返回每轮探测次数
func (m *Monitor) SampleCount() int {
	return m.cfg.SampleCount
}

// Close 等待所有排队的持久化写入完成
func (m *Monitor) Close() {
	m.persister.Close()
}
