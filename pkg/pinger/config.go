// Package pinger 配置定义
package pinger

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// 探测方式
const (
	ModeAuto    = "auto"    // 按平台和权限自动选择
	ModeICMP    = "icmp"    // 强制使用原始套接字
	ModeCommand = "command" // 调用系统ping命令
)

// Config 探测引擎的配置结构
type Config struct {
	IPVersion  int           // IP版本，4或6
	Interval   time.Duration // 同一轮内两次探测的间隔
	Timeout    time.Duration // 单次探测的超时时间
	BufferSize int           // 事件通道缓冲区大小
	Mode       string        // 探测方式
	StartRate  float64       // 每秒允许启动的测量轮数，0表示不限制
	StartBurst int           // 启动速率的突发上限
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		IPVersion:  4,               // 默认IPv4
		Interval:   time.Second,     // 默认1秒间隔
		Timeout:    2 * time.Second, // 默认2秒超时
		BufferSize: 256,             // 默认256缓冲区大小
		Mode:       ModeAuto,
		StartRate:  20,
		StartBurst: 10,
	}
}

// GetIPProtocol 获取IP协议字符串，用于网络操作
func (c *Config) GetIPProtocol() string {
	if c.IPVersion == 6 {
		return "ip6"
	}
	return "ip4"
}

// resolve 将目标地址解析为当前IP版本的地址
func (c *Config) resolve(address string) (*net.IPAddr, error) {
	if address == "" {
		return nil, errors.New("目标地址不能为空")
	}
	dst, err := net.ResolveIPAddr(c.GetIPProtocol(), address)
	if err != nil {
		return nil, fmt.Errorf("无法将 '%s' 解析为IPv%d地址: %w", address, c.IPVersion, err)
	}
	return dst, nil
}

// Validate 验证配置的合理性
func (c *Config) Validate() error {
	if c.IPVersion != 4 && c.IPVersion != 6 {
		return errors.New("IP版本必须是4或6")
	}

	if c.Interval <= 0 {
		return errors.New("ping间隔必须大于0")
	}

	if c.Interval < 10*time.Millisecond {
		return errors.New("ping间隔不能小于10ms")
	}

	if c.Timeout <= 0 {
		return errors.New("超时时间必须大于0")
	}

	if c.Timeout < 100*time.Millisecond {
		return errors.New("超时时间不能小于100ms")
	}

	if c.BufferSize <= 0 {
		return errors.New("缓冲区大小必须大于0")
	}

	switch c.Mode {
	case ModeAuto, ModeICMP, ModeCommand:
	default:
		return fmt.Errorf("未知的探测方式: %q", c.Mode)
	}

	if c.StartRate < 0 {
		return errors.New("启动速率不能为负数")
	}
	if c.StartRate > 0 && c.StartBurst <= 0 {
		return errors.New("启动突发上限必须大于0")
	}

	return nil
}
