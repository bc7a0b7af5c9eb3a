// Package pinger - 平台能力接口定义
// 定义了跨平台的权限检测和探测实现创建接口
package pinger

import (
	"context"
	"errors"
	"net"
	"time"
)

// errTimeout 探测在超时时间内未收到回复
var errTimeout = errors.New("探测超时")

// echoer 执行单次回显探测
type echoer interface {
	// name 返回实现名称，用于日志和版本信息
	name() string

	// echo 对dst发送一次回显请求并返回往返时间
	// 超时或ctx取消时返回错误
	echo(ctx context.Context, dst *net.IPAddr, seq int) (time.Duration, error)

	// close 释放实现持有的系统资源
	close() error
}

// platformCapability 定义平台能力接口
// 每个平台实现此接口来提供权限检测和探测实现创建功能
type platformCapability interface {
	// hasPrivilegedAccess 检查是否有特权访问能力
	// Windows: 检查管理员权限
	// Linux: 检查CAP_NET_RAW或root权限
	// macOS: 检查root权限
	hasPrivilegedAccess() bool

	// newPrivilegedEchoer 创建特权模式探测实现
	// 所有平台统一使用raw socket实现
	newPrivilegedEchoer(config *Config) (echoer, error)

	// newUnprivilegedEchoer 创建非特权模式探测实现
	// Windows: 使用Windows API
	// Linux: 使用DGRAM socket
	// 其他平台: 调用系统ping命令
	newUnprivilegedEchoer(config *Config) (echoer, error)
}

// echoDeadline 计算单次探测的截止时间，不晚于ctx的截止时间
func echoDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
