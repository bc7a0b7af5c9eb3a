// Package pinger - 系统ping命令实现
// 不需要任何权限，每次探测执行一次系统ping并解析输出
package pinger

import (
	"bufio"
	"context"
	"math"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Linux/macOS: "64 bytes from 8.8.8.8: icmp_seq=1 ttl=118 time=12.3 ms"
// Windows: "Reply from 8.8.8.8: bytes=32 time=15ms TTL=118"，"time<1ms"
var replyTimePattern = regexp.MustCompile(`time[=<](\d+\.?\d*)\s*ms`)

// timeoutPhrases 表示本次探测没有收到回复的输出行
var timeoutPhrases = []string{
	"request timed out",
	"request timeout",
	"100% packet loss",
	"destination host unreachable",
	"network is unreachable",
}

// commandEchoer 系统ping命令的探测实现
type commandEchoer struct {
	config *Config
	path   string // ping可执行文件
}

// newCommandEchoer 创建系统ping命令的探测实现
func newCommandEchoer(config *Config) *commandEchoer {
	return &commandEchoer{config: config, path: "ping"}
}

func (p *commandEchoer) name() string {
	return "ping-command"
}

func (p *commandEchoer) echo(ctx context.Context, dst *net.IPAddr, _ int) (time.Duration, error) {
	ctx, cancel := context.WithDeadline(ctx, echoDeadline(ctx, p.config.Timeout+time.Second))
	defer cancel()

	cmd := exec.CommandContext(ctx, p.path, p.args(dst.String())...)
	// 没有回复时ping以非零状态退出，结果只看输出
	output, _ := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	latency, ok := parsePingOutput(string(output))
	if !ok {
		return 0, errTimeout
	}
	return time.Duration(latency * float64(time.Millisecond)), nil
}

// args 按平台构造单次ping的参数
func (p *commandEchoer) args(address string) []string {
	switch runtime.GOOS {
	case "windows":
		args := []string{"-n", "1", "-w", strconv.FormatInt(p.config.Timeout.Milliseconds(), 10)}
		if p.config.IPVersion == 6 {
			args = append(args, "-6")
		}
		return append(args, address)
	case "darwin":
		// macOS的-W单位为毫秒
		args := []string{"-c", "1", "-W", strconv.FormatInt(p.config.Timeout.Milliseconds(), 10)}
		return append(args, address)
	default:
		secs := int(math.Ceil(p.config.Timeout.Seconds()))
		args := []string{"-c", "1", "-W", strconv.Itoa(secs)}
		if p.config.IPVersion == 6 {
			args = append(args, "-6")
		}
		return append(args, address)
	}
}

func (p *commandEchoer) close() error {
	return nil
}

// parsePingOutput 从ping输出中取第一条回复的延迟
// 出现超时行或没有回复行时返回false
func parsePingOutput(output string) (float64, bool) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if latency, ok := parseReplyLine(line); ok {
			return latency, true
		}
		if isTimeoutLine(line) {
			return 0, false
		}
	}
	return 0, false
}

// parseReplyLine 解析单行中的延迟（毫秒）
func parseReplyLine(line string) (float64, bool) {
	m := replyTimePattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return 0, false
	}
	latency, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return latency, true
}

// isTimeoutLine 判断一行输出是否表示探测失败
func isTimeoutLine(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range timeoutPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
