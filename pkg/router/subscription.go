package router

import (
	"context"
	"errors"
	"sync"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
)

// ErrClosed 表示订阅已取消且队列已读空
var ErrClosed = errors.New("subscription closed")

// Subscription 是一个无界FIFO邮箱
// 投递永远不会阻塞路由器，因此一个慢订阅者不会影响其他目标或其他订阅者
type Subscription struct {
	router     *Router
	endpointID string

	mu     sync.Mutex
	queue  []core.SampleEvent
	notify chan struct{}
	closed bool
}

func newSubscription(r *Router, endpointID string) *Subscription {
	return &Subscription{
		router:     r,
		endpointID: endpointID,
		notify:     make(chan struct{}, 1),
	}
}

// EndpointID 返回订阅的目标，空字符串表示全部目标
func (s *Subscription) EndpointID() string {
	return s.endpointID
}

// deliver 将事件追加到队列末尾并唤醒等待者
func (s *Subscription) deliver(ev core.SampleEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// C 返回一个通知通道，队列中有新事件时可读
// 收到通知后应调用Drain读取所有已排队事件
func (s *Subscription) C() <-chan struct{} {
	return s.notify
}

// Drain 取出当前排队的所有事件
func (s *Subscription) Drain() []core.SampleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.queue
	s.queue = nil
	return events
}

// Next 阻塞等待下一个事件
// 订阅取消后仍会先返回已排队的事件，读空后返回ErrClosed
func (s *Subscription) Next(ctx context.Context) (core.SampleEvent, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return core.SampleEvent{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return core.SampleEvent{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Unsubscribe 取消订阅
// 取消前已投递的事件保留在队列中，可继续通过Drain或Next读取
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.router.remove(s)

	// 唤醒阻塞在Next上的调用者
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Close 等同于Unsubscribe
func (s *Subscription) Close() error {
	s.Unsubscribe()
	return nil
}
