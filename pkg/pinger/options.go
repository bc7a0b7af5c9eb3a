// Package pinger 选项模式支持
package pinger

import (
	"log/slog"
	"time"
)

// Option 配置选项函数类型
type Option func(*Config)

// WithIPVersion 设置IP版本
func WithIPVersion(version int) Option {
	return func(c *Config) {
		c.IPVersion = version
	}
}

// WithInterval 设置ping间隔
func WithInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.Interval = interval
	}
}

// WithTimeout 设置超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithBufferSize 设置缓冲区大小
func WithBufferSize(size int) Option {
	return func(c *Config) {
		c.BufferSize = size
	}
}

// WithMode 设置探测方式
func WithMode(mode string) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithStartRate 设置启动速率限制
func WithStartRate(perSecond float64, burst int) Option {
	return func(c *Config) {
		c.StartRate = perSecond
		c.StartBurst = burst
	}
}

// NewWithOptions 使用选项模式创建探测引擎
func NewWithOptions(logger *slog.Logger, opts ...Option) (*Engine, error) {
	config := DefaultConfig()

	// 应用所有选项
	for _, opt := range opts {
		opt(config)
	}

	return New(config, logger)
}
