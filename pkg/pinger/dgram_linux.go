//go:build linux

// Package pinger - Linux非特权模式实现
// 使用SOCK_DGRAM类型的ICMP套接字（net.ipv4.ping_group_range），仅适用于Linux系统
package pinger

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// dgramEchoer Linux非特权模式的探测实现
type dgramEchoer struct {
	config *Config
}

// newDgramEchoer 创建Linux非特权模式的探测实现
func newDgramEchoer(config *Config) *dgramEchoer {
	return &dgramEchoer{config: config}
}

func (p *dgramEchoer) name() string {
	return "dgram-socket"
}

// echo 内核会把回显ID改写为套接字端口，因此只校验来源和序列号
func (p *dgramEchoer) echo(ctx context.Context, dst *net.IPAddr, seq int) (time.Duration, error) {
	network, listen := "udp4", "0.0.0.0"
	var echoType icmp.Type = ipv4.ICMPTypeEcho
	replyProto := ipv4.ICMPTypeEchoReply.Protocol()
	if p.config.IPVersion == 6 {
		network, listen = "udp6", "::"
		echoType = ipv6.ICMPTypeEchoRequest
		replyProto = ipv6.ICMPTypeEchoReply.Protocol()
	}

	conn, err := icmp.ListenPacket(network, listen)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	// 构建ICMP消息
	msg := &icmp.Message{
		Type: echoType,
		Code: 0,
		Body: &icmp.Echo{
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
	if _, err := conn.WriteTo(data, &net.UDPAddr{IP: dst.IP, Zone: dst.Zone}); err != nil {
		return 0, err
	}

	reply := make([]byte, 1500)
	for {
		n, from, err := conn.ReadFrom(reply)
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

		// 检查来源地址
		if udp, ok := from.(*net.UDPAddr); ok && !udp.IP.Equal(dst.IP) {
			continue
		}

		replyMsg, err := icmp.ParseMessage(replyProto, reply[:n])
		if err != nil {
			continue
		}
		if echo, ok := replyMsg.Body.(*icmp.Echo); ok && echo.Seq == seq {
			return rtt, nil
		}
	}
}

func (p *dgramEchoer) close() error {
	return nil
}
