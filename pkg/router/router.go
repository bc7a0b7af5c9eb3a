// Package router 将共享事件流按目标标识符分发给对应的处理者和订阅者
package router

import (
	"log/slog"
	"sync"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
)

// Handler 接收已路由到某个目标的事件
type Handler interface {
	HandleEvent(ev core.SampleEvent) bool
}

// HandlerFunc 允许普通函数作为Handler使用
type HandlerFunc func(ev core.SampleEvent) bool

// HandleEvent 实现Handler接口
func (f HandlerFunc) HandleEvent(ev core.SampleEvent) bool {
	return f(ev)
}

// Router 事件路由器
// Dispatch应由单个goroutine调用，从而保证同一目标的事件按到达顺序投递
type Router struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	subs     map[string]map[*Subscription]struct{} // ""键存放全局订阅
	dropped  uint64
}

// New 创建路由器，logger为nil时丢弃日志
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		logger:   logger,
		handlers: make(map[string]Handler),
		subs:     make(map[string]map[*Subscription]struct{}),
	}
}

// Register 为目标注册处理者，已存在时替换
func (r *Router) Register(endpointID string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[endpointID] = h
}

// Unregister 移除目标的处理者，之后该目标的事件将被丢弃
func (r *Router) Unregister(endpointID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, endpointID)
}

// Registered 判断目标是否有处理者
func (r *Router) Registered(endpointID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[endpointID]
	return ok
}

// Dispatch 投递单个事件
// 未知目标的事件被静默丢弃并返回false，这不是错误
func (r *Router) Dispatch(ev core.SampleEvent) bool {
	r.mu.RLock()
	h, ok := r.handlers[ev.EndpointID]
	targets := make([]*Subscription, 0, len(r.subs[ev.EndpointID])+len(r.subs[""]))
	if ok {
		for sub := range r.subs[ev.EndpointID] {
			targets = append(targets, sub)
		}
		for sub := range r.subs[""] {
			targets = append(targets, sub)
		}
	}
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.logger.Debug("dropping unroutable event", "endpoint", ev.EndpointID, "kind", ev.Kind.String())
		return false
	}

	h.HandleEvent(ev)

	// 订阅者在处理者之后收到事件，读取快照时已包含该事件的影响
	for _, sub := range targets {
		sub.deliver(ev)
	}
	return true
}

// Dropped 返回累计丢弃的无法路由事件数
func (r *Router) Dropped() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}

// Subscribe 订阅某个目标的事件，endpointID为空表示订阅所有目标
func (r *Router) Subscribe(endpointID string) *Subscription {
	sub := newSubscription(r, endpointID)

	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[endpointID]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[endpointID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// remove 从订阅表中移除一个订阅，不影响其他订阅者
func (r *Router) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[sub.endpointID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, sub.endpointID)
	}
}

// SubscriberCount 返回某个目标（含全局）的订阅数
func (r *Router) SubscriberCount(endpointID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[endpointID])
}
