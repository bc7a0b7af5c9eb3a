// Package session 实现单个目标的测量会话状态机
// 状态转换：Idle -> Running（引擎接受启动）-> Idle（完成或停止事件）
package session

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/stats"
)

// DefaultHistorySize 默认的可视化缓冲区大小
const DefaultHistorySize = 150

// State 表示会话的运行状态
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Snapshot 表示会话在某一时刻的不可变副本
type Snapshot struct {
	EndpointID string           `json:"endpointId"`
	Running    bool             `json:"running"`
	Stopping   bool             `json:"stopping"` // 已请求停止但尚未收到终止事件
	Stats      stats.Snapshot   `json:"stats"`
	History    []core.DataPoint `json:"-"`
	StartedAt  time.Time        `json:"startedAt"`
	EndedAt    time.Time        `json:"endedAt"`
	LastEvent  core.EventKind   `json:"lastEvent"`
}

// State 返回快照对应的状态
func (s Snapshot) State() State {
	if s.Running {
		return Running
	}
	return Idle
}

// Session 维护单个目标的测量状态
// 所有变更由监控循环串行调用；Snapshot可在任意goroutine中并发读取
type Session struct {
	id          string
	historySize int

	mu        sync.RWMutex
	running   bool
	stopping  bool
	agg       *stats.Aggregator
	current   stats.Snapshot
	history   []core.DataPoint
	startedAt time.Time
	endedAt   time.Time
	lastEvent core.EventKind
}

// New 创建一个惰性（未运行、无样本）的会话
func New(endpointID string, historySize int) *Session {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	agg := stats.NewAggregator()
	return &Session{
		id:          endpointID,
		historySize: historySize,
		agg:         agg,
		current:     agg.Snapshot(),
		history:     make([]core.DataPoint, 0, historySize),
		lastEvent:   -1,
	}
}

// ID 返回会话绑定的目标标识符
func (s *Session) ID() string {
	return s.id
}

// Running 判断会话是否处于运行状态
func (s *Session) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Start 重置本地样本后请求引擎开始一轮探测
// 会话已在运行时直接返回false且不改变任何状态；引擎拒绝时会话保持空闲
func (s *Session) Start(ctx context.Context, engine core.Engine, address string, sampleCount int) (bool, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false, nil
	}
	// 重置必须先于引擎请求，新一轮的首个事件不会看到上一轮的数据
	s.resetLocked()
	s.mu.Unlock()

	accepted, err := engine.RequestStart(ctx, s.id, address, sampleCount)
	if err != nil {
		return false, fmt.Errorf("start %s: %w", s.id, err)
	}
	if !accepted {
		return false, nil
	}

	s.mu.Lock()
	s.running = true
	s.stopping = false
	s.startedAt = time.Now()
	s.endedAt = time.Time{}
	s.mu.Unlock()
	return true, nil
}

// Stop 请求引擎停止本轮探测
// running仅在收到终止事件后清除；重复的停止请求不会再次调用引擎
func (s *Session) Stop(ctx context.Context, engine core.Engine) error {
	s.mu.Lock()
	if !s.running || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	if err := engine.RequestStop(ctx, s.id); err != nil {
		s.mu.Lock()
		s.stopping = false
		s.mu.Unlock()
		return fmt.Errorf("stop %s: %w", s.id, err)
	}
	return nil
}

// HandleEvent 将一个已路由到本会话的事件应用到状态上
// 返回事件是否改变了会话状态
func (s *Session) HandleEvent(ev core.SampleEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.EndpointID != s.id {
		return false
	}

	switch ev.Kind {
	case core.EventSample:
		if !s.running {
			return false
		}
		s.agg.AddSample(ev.LatencyMs)
		s.appendPointLocked(ev, core.PointSuccess)
	case core.EventTimeout:
		if !s.running {
			return false
		}
		s.agg.AddTimeout()
		s.appendPointLocked(ev, core.PointTimeout)
	case core.EventComplete, core.EventStopped:
		if !s.running {
			return false
		}
		s.running = false
		s.stopping = false
		s.endedAt = ev.At
		if s.endedAt.IsZero() {
			s.endedAt = time.Now()
		}
	default:
		return false
	}

	s.lastEvent = ev.Kind
	s.current = s.agg.Snapshot()
	return true
}

// ForceIdle 在引擎通道异常时强制会话回到空闲状态
func (s *Session) ForceIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.running = false
	s.stopping = false
	s.endedAt = time.Now()
	return true
}

// Snapshot 返回当前状态的不可变副本
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]core.DataPoint, len(s.history))
	copy(history, s.history)

	return Snapshot{
		EndpointID: s.id,
		Running:    s.running,
		Stopping:   s.stopping,
		Stats:      s.current,
		History:    history,
		StartedAt:  s.startedAt,
		EndedAt:    s.endedAt,
		LastEvent:  s.lastEvent,
	}
}

// resetLocked 清空样本、超时计数和可视化缓冲区
func (s *Session) resetLocked() {
	s.agg.Reset()
	s.current = s.agg.Snapshot()
	s.history = s.history[:0]
	s.lastEvent = -1
}

// appendPointLocked 追加数据点并维护缓冲区上限
func (s *Session) appendPointLocked(ev core.SampleEvent, status core.PointStatus) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	value := ev.LatencyMs
	if status == core.PointTimeout {
		value = math.NaN()
	}

	if len(s.history) >= s.historySize {
		// 移除最老的数据点
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, core.DataPoint{Timestamp: at, Value: value, Status: status})
}
