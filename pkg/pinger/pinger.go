// Package pinger 实现了core.Engine接口，对每个目标执行固定次数的探测
// 根据操作系统和用户权限自动选择最合适的底层实现
package pinger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"golang.org/x/time/rate"
)

var (
	ErrClosed         = errors.New("探测引擎已关闭")
	ErrInvalidAddress = errors.New("地址格式无效")
)

// run 表示一个目标正在进行的一轮探测
type run struct {
	id      string
	address string
	count   int
	ctx     context.Context
	cancel  context.CancelFunc
	prev    *run          // 同一目标的上一轮，必须等它的终止事件发出后才能发事件
	done    chan struct{} // 终止事件发出后关闭
}

// Engine 探测引擎
// 每轮探测由独立goroutine执行，同一目标的事件按顺序发到共享通道
type Engine struct {
	config  *Config
	echoer  echoer
	logger  *slog.Logger
	limiter *rate.Limiter

	events   chan core.SampleEvent
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	runs   map[string]*run // 正在进行的轮次
	tails  map[string]*run // 每个目标最近一轮，用于保证跨轮次的事件顺序
	closed bool
}

// New 创建探测引擎
func New(config *Config, logger *slog.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p, err := selectEchoer(config)
	if err != nil {
		return nil, err
	}
	return newEngine(config, p, logger), nil
}

// newEngine 使用给定的探测实现创建引擎
func newEngine(config *Config, p echoer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{
		config:   config,
		echoer:   p,
		logger:   logger.With("echoer", p.name()),
		events:   make(chan core.SampleEvent, config.BufferSize),
		stopChan: make(chan struct{}),
		runs:     make(map[string]*run),
		tails:    make(map[string]*run),
	}
	if config.StartRate > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.StartRate), config.StartBurst)
	}
	return e
}

// selectEchoer 按配置和平台能力选择探测实现
func selectEchoer(config *Config) (echoer, error) {
	platform := getPlatformCapability()

	switch config.Mode {
	case ModeCommand:
		return newCommandEchoer(config), nil
	case ModeICMP:
		return platform.newPrivilegedEchoer(config)
	}

	// 优先尝试特权模式（所有平台统一用raw socket）
	if platform.hasPrivilegedAccess() {
		return platform.newPrivilegedEchoer(config)
	}

	// 降级到非特权模式（各平台不同的实现）
	return platform.newUnprivilegedEchoer(config)
}

// Name 返回使用中的探测实现名称
func (e *Engine) Name() string {
	return e.echoer.name()
}

// Events 实现core.Engine接口
func (e *Engine) Events() <-chan core.SampleEvent {
	return e.events
}

// RequestStart 实现core.Engine接口
// 同一目标已有一轮在进行时返回false
func (e *Engine) RequestStart(ctx context.Context, endpointID, address string, sampleCount int) (bool, error) {
	if sampleCount <= 0 {
		return false, errors.New("探测次数必须大于0")
	}
	if !validAddress(address) {
		return false, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false, ErrClosed
	}
	if _, busy := e.runs[endpointID]; busy {
		return false, nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:      endpointID,
		address: address,
		count:   sampleCount,
		ctx:     runCtx,
		cancel:  cancel,
		prev:    e.tails[endpointID],
		done:    make(chan struct{}),
	}
	e.runs[endpointID] = r
	e.tails[endpointID] = r

	e.wg.Add(1)
	go e.execute(r)

	e.logger.Debug("run accepted", "endpoint", endpointID, "address", address, "count", sampleCount)
	return true, nil
}

// RequestStop 实现core.Engine接口，停止结果通过EventStopped确认
func (e *Engine) RequestStop(_ context.Context, endpointID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if r, ok := e.runs[endpointID]; ok {
		r.cancel()
	}
	return nil
}

// Active 返回正在进行的轮数
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

// Close 停止所有探测并关闭事件通道
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, r := range e.runs {
		r.cancel()
	}
	e.mu.Unlock()

	// 发送停止信号
	close(e.stopChan)

	// 等待所有goroutine结束
	e.wg.Wait()

	err := e.echoer.close()

	// 关闭事件通道
	close(e.events)
	return err
}

// execute 执行一轮探测
func (e *Engine) execute(r *run) {
	defer e.wg.Done()
	defer r.cancel()

	// 等待同一目标上一轮的终止事件发出
	if r.prev != nil {
		select {
		case <-r.prev.done:
		case <-e.stopChan:
		}
		r.prev = nil
	}

	dst, err := e.config.resolve(r.address)
	if err != nil {
		e.logger.Warn("resolve failed", "endpoint", r.id, "error", err)
		e.finish(r)
		return
	}

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for seq := 1; seq <= r.count; seq++ {
		if seq > 1 {
			select {
			case <-r.ctx.Done():
				e.finish(r)
				return
			case <-ticker.C:
			}
		}
		if r.ctx.Err() != nil {
			break
		}

		rtt, err := e.echoer.echo(r.ctx, dst, seq)
		if r.ctx.Err() != nil {
			break
		}
		if err != nil {
			e.logger.Debug("echo failed", "endpoint", r.id, "seq", seq, "error", err)
			e.emit(core.NewTimeout(r.id, seq))
			continue
		}
		e.emit(core.NewSample(r.id, seq, float64(rtt.Nanoseconds())/1e6))
	}

	e.finish(r)
}

// finish 先从进行表中移除再发出终止事件
// 收到终止事件的消费者可以立即为同一目标开始新一轮
func (e *Engine) finish(r *run) {
	kind := core.EventComplete
	if r.ctx.Err() != nil {
		kind = core.EventStopped
	}

	e.mu.Lock()
	if e.runs[r.id] == r {
		delete(e.runs, r.id)
	}
	e.mu.Unlock()

	e.emit(core.NewTerminal(r.id, kind))
	close(r.done)

	e.mu.Lock()
	if e.tails[r.id] == r {
		delete(e.tails, r.id)
	}
	e.mu.Unlock()

	e.logger.Debug("run finished", "endpoint", r.id, "kind", kind.String())
}

// emit 发送事件到共享通道，只在引擎关闭时放弃
func (e *Engine) emit(ev core.SampleEvent) {
	select {
	case e.events <- ev:
	case <-e.stopChan:
	}
}

// validAddress 地址只允许字母、数字、'.'、'-'、':'，且不能以'-'开头
func validAddress(address string) bool {
	if address == "" || address[0] == '-' {
		return false
	}
	for _, c := range address {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '-', c == ':':
		default:
			return false
		}
	}
	return true
}

// GetSystemInfo 获取完整的系统信息
// 返回操作系统名称、权限状态和实现类型
func GetSystemInfo() (osName, privilegeStatus, implementationType string) {
	// 获取操作系统名称
	switch runtime.GOOS {
	case "windows":
		osName = "Windows"
	case "linux":
		osName = "Linux"
	case "darwin":
		osName = "macOS"
	default:
		osName = runtime.GOOS
	}

	// 获取当前平台能力并检查权限状态
	platform := getPlatformCapability()
	hasPriv := platform.hasPrivilegedAccess()

	switch runtime.GOOS {
	case "windows":
		if hasPriv {
			privilegeStatus = "管理员模式 (Raw Socket)"
			implementationType = "Raw Socket"
		} else {
			privilegeStatus = "普通用户模式 (Windows API)"
			implementationType = "Windows ICMP API"
		}
	case "linux":
		if hasPriv {
			privilegeStatus = "特权模式 (Raw Socket)"
			implementationType = "Linux Raw Socket"
		} else {
			privilegeStatus = "非特权模式 (DGRAM Socket)"
			implementationType = "Linux DGRAM Socket"
		}
	case "darwin":
		if hasPriv {
			privilegeStatus = "特权模式 (Root权限)"
			implementationType = "macOS Raw Socket"
		} else {
			privilegeStatus = "非特权模式 (系统ping命令)"
			implementationType = "System ping command"
		}
	default:
		if hasPriv {
			privilegeStatus = "特权模式"
			implementationType = "通用Raw Socket"
		} else {
			privilegeStatus = "非特权模式 (系统ping命令)"
			implementationType = "System ping command"
		}
	}

	return
}
