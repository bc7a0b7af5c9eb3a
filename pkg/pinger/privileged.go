// Package pinger - 特权模式实现
// 使用原始套接字，需要管理员/root权限，但支持所有操作系统
package pinger

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

var echoPayload = []byte("pingdeck")

// privilegedEchoer 特权模式的探测实现
type privilegedEchoer struct {
	config *Config
	id     int
}

// newPrivilegedEchoer 创建特权模式的探测实现
func newPrivilegedEchoer(config *Config) *privilegedEchoer {
	return &privilegedEchoer{
		config: config,
		id:     os.Getpid() & 0xffff,
	}
}

func (p *privilegedEchoer) name() string {
	return "raw-socket"
}

// echo 每次探测使用独立的已连接套接字，内核按目标地址过滤回复
func (p *privilegedEchoer) echo(ctx context.Context, dst *net.IPAddr, seq int) (time.Duration, error) {
	network := "ip4:icmp"
	var echoType icmp.Type = ipv4.ICMPTypeEcho
	replyProto := ipv4.ICMPTypeEchoReply.Protocol()
	if p.config.IPVersion == 6 {
		network = "ip6:ipv6-icmp"
		echoType = ipv6.ICMPTypeEchoRequest
		replyProto = ipv6.ICMPTypeEchoReply.Protocol()
	}

	conn, err := net.Dial(network, dst.String())
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	// ctx取消时立即结束阻塞的读
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	// 创建ICMP包
	msg := &icmp.Message{
		Type: echoType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  seq,
			Data: echoPayload,
		},
	}
	data, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	conn.SetDeadline(echoDeadline(ctx, p.config.Timeout))

	start := time.Now()
	if _, err := conn.Write(data); err != nil {
		return 0, err
	}

	reply := make([]byte, 1500)
	for {
		n, err := conn.Read(reply)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return 0, errTimeout
			}
			return 0, err
		}
		rtt := time.Since(start)

		replyMsg, err := icmp.ParseMessage(replyProto, reply[:n])
		if err != nil {
			continue
		}
		// 只接受与本次请求匹配的回复
		if echo, ok := replyMsg.Body.(*icmp.Echo); ok && echo.ID == p.id && echo.Seq == seq {
			return rtt, nil
		}
	}
}

func (p *privilegedEchoer) close() error {
	return nil
}
