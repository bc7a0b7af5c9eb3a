//go:build windows

package pinger

// windowsCapability Windows平台能力实现
type windowsCapability struct{}

// hasPrivilegedAccess 检查Windows管理员权限
func (w *windowsCapability) hasPrivilegedAccess() bool {
	return checkWindowsAdmin()
}

// newPrivilegedEchoer 创建特权模式探测实现（使用raw socket）
func (w *windowsCapability) newPrivilegedEchoer(config *Config) (echoer, error) {
	return newPrivilegedEchoer(config), nil
}

// newUnprivilegedEchoer 创建Windows API探测实现
func (w *windowsCapability) newUnprivilegedEchoer(config *Config) (echoer, error) {
	return newWindowsEchoer(config)
}

// getPlatformCapability 获取Windows平台的能力实现
func getPlatformCapability() platformCapability {
	return &windowsCapability{}
}
