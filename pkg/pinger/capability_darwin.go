//go:build darwin

package pinger

import (
	"os"
)

// darwinCapability macOS平台能力实现
type darwinCapability struct{}

// hasPrivilegedAccess 检查macOS root权限
func (d *darwinCapability) hasPrivilegedAccess() bool {
	return os.Geteuid() == 0
}

// newPrivilegedEchoer 创建特权模式探测实现（使用raw socket）
func (d *darwinCapability) newPrivilegedEchoer(config *Config) (echoer, error) {
	return newPrivilegedEchoer(config), nil
}

// newUnprivilegedEchoer macOS非特权模式调用系统ping命令（setuid）
func (d *darwinCapability) newUnprivilegedEchoer(config *Config) (echoer, error) {
	return newCommandEchoer(config), nil
}

// getPlatformCapability 获取macOS平台的能力实现
func getPlatformCapability() platformCapability {
	return &darwinCapability{}
}
