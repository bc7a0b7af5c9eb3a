package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/registry"
	"github.com/Kevin-Rudy/pingdeck/pkg/store"
)

// RunRecorder 保存每轮测量结束时的结果摘要
type RunRecorder interface {
	RecordRun(ctx context.Context, r store.RunRecord) error
}

// persister 在后台goroutine中执行所有持久化写入，调用方永不阻塞
// 注册表投影只保留最新的一份，测量摘要按顺序全部写入
type persister struct {
	store    core.Store
	recorder RunRecorder
	logger   *slog.Logger

	mu      sync.Mutex
	pending *registry.Projection
	runs    []store.RunRecord
	closed  bool

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

func newPersister(s core.Store, recorder RunRecorder, logger *slog.Logger) *persister {
	p := &persister{
		store:    s,
		recorder: recorder,
		logger:   logger,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// Persist 实现registry.Persister接口
func (p *persister) Persist(pr registry.Projection) {
	if p.store == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("persister closed, dropping registry write")
		return
	}
	p.pending = &pr
	p.mu.Unlock()
	p.wake()
}

// Record 排队一条测量摘要
func (p *persister) Record(r store.RunRecord) {
	if p.recorder == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.runs = append(p.runs, r)
	p.mu.Unlock()
	p.wake()
}

func (p *persister) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *persister) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.notify:
			p.flush()
		case <-p.done:
			p.flush()
			return
		}
	}
}

// flush 写出当前排队的内容，失败只记录日志，内存状态仍然有效
func (p *persister) flush() {
	p.mu.Lock()
	pending := p.pending
	runs := p.runs
	p.pending = nil
	p.runs = nil
	p.mu.Unlock()

	if pending != nil {
		if err := registry.WriteProjection(p.store, *pending); err != nil {
			p.logger.Error("failed to persist registry", "error", err)
		} else {
			p.logger.Debug("registry persisted", "customs", len(pending.Customs), "favorites", len(pending.Favorites))
		}
	}

	for _, r := range runs {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.recorder.RecordRun(ctx, r); err != nil {
			p.logger.Error("failed to record run", "endpoint", r.EndpointID, "error", err)
		}
		cancel()
	}
}

// Close 写出剩余内容后停止后台goroutine
func (p *persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
}
