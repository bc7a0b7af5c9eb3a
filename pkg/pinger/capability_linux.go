//go:build linux

package pinger

import (
	"net"
	"os"
)

// linuxCapability Linux平台能力实现
type linuxCapability struct{}

// hasPrivilegedAccess 检查Linux权限（CAP_NET_RAW或root）
func (l *linuxCapability) hasPrivilegedAccess() bool {
	return checkLinuxCapNetRaw()
}

// newPrivilegedEchoer 创建特权模式探测实现（使用raw socket）
func (l *linuxCapability) newPrivilegedEchoer(config *Config) (echoer, error) {
	return newPrivilegedEchoer(config), nil
}

// newUnprivilegedEchoer 创建Linux DGRAM探测实现
func (l *linuxCapability) newUnprivilegedEchoer(config *Config) (echoer, error) {
	return newDgramEchoer(config), nil
}

// checkLinuxCapNetRaw 检查Linux系统的CAP_NET_RAW权限或root权限
func checkLinuxCapNetRaw() bool {
	// 首先检查是否为root用户
	if os.Geteuid() == 0 {
		return true
	}

	// 尝试创建原始套接字来检测CAP_NET_RAW权限
	conn, err := net.Dial("ip4:icmp", "127.0.0.1")
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// getPlatformCapability 获取Linux平台的能力实现
func getPlatformCapability() platformCapability {
	return &linuxCapability{}
}
