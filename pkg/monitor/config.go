package monitor

import (
	"errors"
	"log/slog"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/session"
)

// Config 监控器配置
type Config struct {
	SampleCount int // 每轮探测的次数
	HistorySize int // 每个会话的可视化缓冲区大小
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		SampleCount: 20,
		HistorySize: session.DefaultHistorySize,
	}
}

// Validate 验证配置的合理性
func (c *Config) Validate() error {
	if c.SampleCount <= 0 {
		return errors.New("探测次数必须大于0")
	}
	if c.SampleCount > 100000 {
		return errors.New("探测次数不能超过100000")
	}
	if c.HistorySize < 10 {
		return errors.New("缓冲区大小不能小于10")
	}
	return nil
}

// Option 监控器选项函数类型
type Option func(*Monitor)

// WithConfig 替换默认配置
func WithConfig(cfg *Config) Option {
	return func(m *Monitor) {
		m.cfg = cfg
	}
}

// WithSampleCount 设置每轮探测次数
func WithSampleCount(n int) Option {
	return func(m *Monitor) {
		m.cfg.SampleCount = n
	}
}

// WithHistorySize 设置可视化缓冲区大小
func WithHistorySize(n int) Option {
	return func(m *Monitor) {
		m.cfg.HistorySize = n
	}
}

// WithStore 设置注册表的持久化存储
func WithStore(s core.Store) Option {
	return func(m *Monitor) {
		m.store = s
	}
}

// WithRunRecorder 设置测量结果记录器
func WithRunRecorder(r RunRecorder) Option {
	return func(m *Monitor) {
		m.recorder = r
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}
