package pinger

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
)

// fakeEchoer 按序列号返回预设结果
// block为true时每次探测一直阻塞到ctx取消
type fakeEchoer struct {
	mu      sync.Mutex
	rtt     time.Duration
	timeout map[int]bool
	block   bool
	calls   int
	closed  bool
}

func (f *fakeEchoer) name() string { return "fake" }

func (f *fakeEchoer) echo(ctx context.Context, _ *net.IPAddr, seq int) (time.Duration, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	timedOut := f.timeout[seq]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if timedOut {
		return 0, errTimeout
	}
	return f.rtt, nil
}

func (f *fakeEchoer) close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func testConfig() *Config {
	return &Config{
		IPVersion:  4,
		Interval:   10 * time.Millisecond,
		Timeout:    100 * time.Millisecond,
		BufferSize: 16,
		Mode:       ModeAuto,
	}
}

func newTestEngine(t *testing.T, p *fakeEchoer) *Engine {
	t.Helper()
	e := newEngine(testConfig(), p, nil)
	t.Cleanup(func() { e.Close() })
	return e
}

// collect 读取事件直到收到id的终止事件
func collect(t *testing.T, e *Engine, id string) []core.SampleEvent {
	t.Helper()
	var out []core.SampleEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-e.Events():
			if !ok {
				t.Fatal("Events channel closed unexpectedly")
			}
			if ev.EndpointID != id {
				continue
			}
			out = append(out, ev)
			if ev.Kind.Terminal() {
				return out
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for terminal event, got %d events", len(out))
		}
	}
}

// TestEngineRun 测试一轮探测发出N个样本和完成事件
func TestEngineRun(t *testing.T) {
	e := newTestEngine(t, &fakeEchoer{rtt: 12 * time.Millisecond})

	ok, err := e.RequestStart(context.Background(), "eu", "127.0.0.1", 3)
	if err != nil || !ok {
		t.Fatalf("Expected accepted start, got %v %v", ok, err)
	}

	events := collect(t, e, "eu")
	if len(events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(events))
	}
	for i := 0; i < 3; i++ {
		ev := events[i]
		if ev.Kind != core.EventSample || ev.Seq != i+1 || ev.LatencyMs != 12 {
			t.Errorf("Unexpected event %d: %+v", i, ev)
		}
	}
	if events[3].Kind != core.EventComplete {
		t.Errorf("Expected complete, got %s", events[3].Kind)
	}
	if e.Active() != 0 {
		t.Errorf("Expected no active runs, got %d", e.Active())
	}
}

// TestEngineTimeouts 测试超时转为超时事件
func TestEngineTimeouts(t *testing.T) {
	e := newTestEngine(t, &fakeEchoer{rtt: time.Millisecond, timeout: map[int]bool{2: true}})

	if ok, _ := e.RequestStart(context.Background(), "eu", "127.0.0.1", 3); !ok {
		t.Fatal("Expected accepted start")
	}

	events := collect(t, e, "eu")
	kinds := []core.EventKind{core.EventSample, core.EventTimeout, core.EventSample, core.EventComplete}
	if len(events) != len(kinds) {
		t.Fatalf("Expected %d events, got %d", len(kinds), len(events))
	}
	for i, k := range kinds {
		if events[i].Kind != k {
			t.Errorf("Event %d: got %s, want %s", i, events[i].Kind, k)
		}
	}
}

// TestEngineRejectsDuplicate 同一目标已在运行时拒绝启动
func TestEngineRejectsDuplicate(t *testing.T) {
	e := newTestEngine(t, &fakeEchoer{block: true})
	ctx := context.Background()

	if ok, _ := e.RequestStart(ctx, "eu", "127.0.0.1", 5); !ok {
		t.Fatal("Expected first start accepted")
	}
	ok, err := e.RequestStart(ctx, "eu", "127.0.0.1", 5)
	if err != nil || ok {
		t.Errorf("Expected duplicate start rejected, got %v %v", ok, err)
	}
	if ok, _ := e.RequestStart(ctx, "uk", "127.0.0.1", 5); !ok {
		t.Error("Expected a different endpoint to start")
	}
	if e.Active() != 2 {
		t.Errorf("Expected 2 active runs, got %d", e.Active())
	}
}

// TestEngineStop 停止请求产生stopped事件而不是complete
func TestEngineStop(t *testing.T) {
	e := newTestEngine(t, &fakeEchoer{block: true})
	ctx := context.Background()

	if ok, _ := e.RequestStart(ctx, "eu", "127.0.0.1", 5); !ok {
		t.Fatal("Expected start accepted")
	}
	if err := e.RequestStop(ctx, "eu"); err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}

	events := collect(t, e, "eu")
	if len(events) != 1 || events[0].Kind != core.EventStopped {
		t.Fatalf("Expected single stopped event, got %+v", events)
	}

	// 停止一个不存在的轮次不是错误
	if err := e.RequestStop(ctx, "nope"); err != nil {
		t.Errorf("Expected nil for unknown stop, got %v", err)
	}
}

// TestEngineRestartAfterTerminal 收到终止事件后可以立即重新开始
func TestEngineRestartAfterTerminal(t *testing.T) {
	e := newTestEngine(t, &fakeEchoer{rtt: time.Millisecond})
	ctx := context.Background()

	for round := 0; round < 3; round++ {
		ok, err := e.RequestStart(ctx, "eu", "127.0.0.1", 2)
		if err != nil || !ok {
			t.Fatalf("Round %d: expected accepted start, got %v %v", round, ok, err)
		}
		events := collect(t, e, "eu")
		if len(events) != 3 || events[2].Kind != core.EventComplete {
			t.Fatalf("Round %d: unexpected events %+v", round, events)
		}
	}
}

func TestEngineInvalidRequests(t *testing.T) {
	e := newTestEngine(t, &fakeEchoer{})
	ctx := context.Background()

	if _, err := e.RequestStart(ctx, "eu", "127.0.0.1", 0); err == nil {
		t.Error("Expected error for zero count")
	}
	if _, err := e.RequestStart(ctx, "eu", "8.8.8.8;reboot", 1); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
	if _, err := e.RequestStart(ctx, "eu", "-f", 1); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress for option-like address, got %v", err)
	}
}

// TestEngineClose 关闭后事件通道关闭，新的请求返回ErrClosed
func TestEngineClose(t *testing.T) {
	p := &fakeEchoer{block: true}
	e := newEngine(testConfig(), p, nil)
	ctx := context.Background()

	if ok, _ := e.RequestStart(ctx, "eu", "127.0.0.1", 5); !ok {
		t.Fatal("Expected start accepted")
	}

	done := make(chan struct{})
	go func() {
		for range e.Events() {
		}
		close(done)
	}()

	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Events channel not closed")
	}

	if !p.closed {
		t.Error("Expected echoer to be closed")
	}
	if _, err := e.RequestStart(ctx, "eu", "127.0.0.1", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

// TestEngineStartRate 启动速率限制在ctx取消时返回错误
func TestEngineStartRate(t *testing.T) {
	cfg := testConfig()
	cfg.StartRate = 0.001
	cfg.StartBurst = 1
	e := newEngine(cfg, &fakeEchoer{block: true}, nil)
	defer e.Close()

	if ok, err := e.RequestStart(context.Background(), "eu", "127.0.0.1", 1); !ok || err != nil {
		t.Fatalf("Expected burst start accepted, got %v %v", ok, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := e.RequestStart(ctx, "uk", "127.0.0.1", 1); err == nil {
		t.Error("Expected rate limiter error")
	}
}

// TestConfigValidation 测试配置验证
func TestConfigValidation(t *testing.T) {
	valid := DefaultConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"bad ip version", func(c *Config) { c.IPVersion = 5 }},
		{"zero interval", func(c *Config) { c.Interval = 0 }},
		{"tiny interval", func(c *Config) { c.Interval = time.Millisecond }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"tiny timeout", func(c *Config) { c.Timeout = 10 * time.Millisecond }},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }},
		{"unknown mode", func(c *Config) { c.Mode = "carrier-pigeon" }},
		{"negative rate", func(c *Config) { c.StartRate = -1 }},
		{"zero burst", func(c *Config) { c.StartBurst = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			if err := c.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestOptions(t *testing.T) {
	c := DefaultConfig()
	for _, opt := range []Option{
		WithIPVersion(6),
		WithInterval(500 * time.Millisecond),
		WithTimeout(time.Second),
		WithBufferSize(8),
		WithMode(ModeCommand),
		WithStartRate(5, 2),
	} {
		opt(c)
	}

	if c.IPVersion != 6 || c.Interval != 500*time.Millisecond || c.Timeout != time.Second ||
		c.BufferSize != 8 || c.Mode != ModeCommand || c.StartRate != 5 || c.StartBurst != 2 {
		t.Errorf("Options not applied: %+v", c)
	}
	if c.GetIPProtocol() != "ip6" {
		t.Errorf("Expected ip6, got %s", c.GetIPProtocol())
	}
}

// TestCommandMode 命令模式不需要任何权限即可创建
func TestCommandMode(t *testing.T) {
	e, err := NewWithOptions(nil, WithMode(ModeCommand))
	if err != nil {
		t.Fatalf("NewWithOptions failed: %v", err)
	}
	defer e.Close()
	if e.Name() != "ping-command" {
		t.Errorf("Expected ping-command echoer, got %s", e.Name())
	}
}

func TestValidAddress(t *testing.T) {
	tests := []struct {
		address string
		valid   bool
	}{
		{"8.8.8.8", true},
		{"dynamodb.us-east-1.amazonaws.com", true},
		{"2001:4860:4860::8888", true},
		{"", false},
		{"-c", false},
		{"host name", false},
		{"host;id", false},
		{"$(whoami)", false},
	}
	for _, tt := range tests {
		if got := validAddress(tt.address); got != tt.valid {
			t.Errorf("validAddress(%q) = %v, want %v", tt.address, got, tt.valid)
		}
	}
}

func TestParseReplyLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected float64
		ok       bool
	}{
		{"linux", "64 bytes from 8.8.8.8: icmp_seq=1 ttl=118 time=12.3 ms", 12.3, true},
		{"macOS", "64 bytes from 8.8.8.8: icmp_seq=0 ttl=118 time=44.347 ms", 44.347, true},
		{"windows", "Reply from 8.8.8.8: bytes=32 time=15ms TTL=118", 15, true},
		{"windows sub-millisecond", "Reply from 8.8.8.8: bytes=32 time<1ms TTL=118", 1, true},
		{"header", "PING 8.8.8.8 (8.8.8.8): 56 data bytes", 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseReplyLine(tt.line)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("parseReplyLine(%q) = %v, %v; want %v, %v", tt.line, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestParsePingOutput(t *testing.T) {
	success := `PING 8.8.8.8 (8.8.8.8): 56 data bytes
64 bytes from 8.8.8.8: icmp_seq=0 ttl=118 time=44.347 ms

--- 8.8.8.8 ping statistics ---
1 packets transmitted, 1 packets received, 0.0% packet loss`
	if got, ok := parsePingOutput(success); !ok || got != 44.347 {
		t.Errorf("Expected 44.347, got %v %v", got, ok)
	}

	lost := `PING 10.255.255.1 (10.255.255.1) 56(84) bytes of data.

--- 10.255.255.1 ping statistics ---
1 packets transmitted, 0 received, 100% packet loss, time 0ms`
	if _, ok := parsePingOutput(lost); ok {
		t.Error("Expected packet loss to report no reply")
	}

	windows := "Pinging 10.0.0.9 with 32 bytes of data:\r\nRequest timed out.\r\n"
	if _, ok := parsePingOutput(windows); ok {
		t.Error("Expected Windows timeout to report no reply")
	}

	if _, ok := parsePingOutput("ping: unknown host example.invalid"); ok {
		t.Error("Expected unknown host to report no reply")
	}
}

func TestIsTimeoutLine(t *testing.T) {
	lines := []string{
		"Request timed out.",
		"Request timeout for icmp_seq 0",
		"1 packets transmitted, 0 received, 100% packet loss",
		"Reply from 10.0.0.1: Destination host unreachable.",
		"ping: sendto: Network is unreachable",
	}
	for _, l := range lines {
		if !isTimeoutLine(l) {
			t.Errorf("Expected timeout line: %q", l)
		}
	}
	if isTimeoutLine("64 bytes from 8.8.8.8: icmp_seq=1 ttl=118 time=12.3 ms") {
		t.Error("Reply line is not a timeout")
	}
}

// TestGetSystemInfo 测试系统信息获取
func TestGetSystemInfo(t *testing.T) {
	osName, privilegeStatus, implementationType := GetSystemInfo()
	if osName == "" || privilegeStatus == "" || implementationType == "" {
		t.Errorf("Expected non-empty system info, got %q %q %q", osName, privilegeStatus, implementationType)
	}
}

func BenchmarkParsePingOutput(b *testing.B) {
	line := "64 bytes from 8.8.8.8: icmp_seq=1 ttl=118 time=12.3 ms"
	for i := 0; i < b.N; i++ {
		parsePingOutput(line)
	}
}
