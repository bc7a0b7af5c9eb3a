//go:build windows

// Package pinger - Windows非特权模式实现
// 使用Icmp.dll系统调用，适用于Windows系统
package pinger

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	// 加载Icmp.dll库
	icmpDLL = windows.NewLazyDLL("Icmp.dll")

	// 获取函数地址
	icmpCreateFile  = icmpDLL.NewProc("IcmpCreateFile")
	icmpCloseHandle = icmpDLL.NewProc("IcmpCloseHandle")
	icmpSendEcho    = icmpDLL.NewProc("IcmpSendEcho")
)

// ICMP_ECHO_REPLY Windows ICMP回复结构体
type ICMP_ECHO_REPLY struct {
	Address       uint32
	Status        uint32
	RoundTripTime uint32
	DataSize      uint16
	Reserved      uint16
	Data          uintptr
	Options       ICMP_OPTIONS
}

// ICMP_OPTIONS Windows ICMP选项结构体
type ICMP_OPTIONS struct {
	Ttl         uint8
	Tos         uint8
	Flags       uint8
	OptionsSize uint8
	OptionsData uintptr
}

// windowsEchoer Windows非特权模式的探测实现
type windowsEchoer struct {
	config *Config

	mu         sync.RWMutex
	icmpHandle syscall.Handle // ICMP句柄
}

// newWindowsEchoer 创建Windows非特权模式的探测实现
func newWindowsEchoer(config *Config) (*windowsEchoer, error) {
	if config.IPVersion == 6 {
		return nil, errors.New("Windows API模式仅支持IPv4")
	}

	// 创建ICMP句柄
	ret, _, err := icmpCreateFile.Call()
	if ret == 0 || ret == uintptr(syscall.InvalidHandle) {
		return nil, err
	}

	return &windowsEchoer{
		config:     config,
		icmpHandle: syscall.Handle(ret),
	}, nil
}

func (p *windowsEchoer) name() string {
	return "windows-icmp-api"
}

// echo IcmpSendEcho是同步调用，超时由API自身控制
func (p *windowsEchoer) echo(ctx context.Context, dst *net.IPAddr, seq int) (time.Duration, error) {
	ip := dst.IP.To4()
	if ip == nil {
		return 0, errors.New("不是IPv4地址")
	}
	// 将IP地址转换为32位整数（网络字节序）
	destAddr := uint32(ip[0]) | (uint32(ip[1]) << 8) | (uint32(ip[2]) << 16) | (uint32(ip[3]) << 24)

	replySize := unsafe.Sizeof(ICMP_ECHO_REPLY{}) + uintptr(len(echoPayload)) + 8
	replyBuffer := make([]byte, replySize)

	timeout := time.Until(echoDeadline(ctx, p.config.Timeout))
	if timeout <= 0 {
		return 0, errTimeout
	}
	timeoutMs := uint32(timeout.Milliseconds())

	p.mu.RLock()
	handle := p.icmpHandle
	p.mu.RUnlock()
	if handle == syscall.InvalidHandle {
		return 0, ErrClosed
	}

	sendTime := time.Now()
	ret, _, _ := icmpSendEcho.Call(
		uintptr(handle),                          // ICMP句柄
		uintptr(destAddr),                        // 目标IP地址
		uintptr(unsafe.Pointer(&echoPayload[0])), // 发送数据
		uintptr(len(echoPayload)),                // 发送数据长度
		0,                                        // ICMP选项（NULL）
		uintptr(unsafe.Pointer(&replyBuffer[0])), // 接收缓冲区
		uintptr(len(replyBuffer)),                // 接收缓冲区大小
		uintptr(timeoutMs),                       // 超时时间（毫秒）
	)
	receiveTime := time.Now()

	if ret == 0 {
		return 0, errTimeout
	}

	reply := (*ICMP_ECHO_REPLY)(unsafe.Pointer(&replyBuffer[0]))
	if reply.Status != 0 { // IP_SUCCESS
		return 0, errTimeout
	}

	// 优先使用Windows API返回的往返时间
	if reply.RoundTripTime > 0 {
		return time.Duration(reply.RoundTripTime) * time.Millisecond, nil
	}
	return receiveTime.Sub(sendTime), nil
}

// close 关闭ICMP句柄
func (p *windowsEchoer) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.icmpHandle != syscall.InvalidHandle {
		icmpCloseHandle.Call(uintptr(p.icmpHandle))
		p.icmpHandle = syscall.InvalidHandle
	}
	return nil
}

// checkWindowsAdmin 检查是否具有Windows管理员权限
func checkWindowsAdmin() bool {
	var sid *windows.SID

	// 获取管理员组的SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	// 获取当前进程的token
	token := windows.Token(0)

	// 检查是否是管理员组成员
	isMember, err := token.IsMember(sid)
	if err != nil {
		return false
	}

	return isMember
}
