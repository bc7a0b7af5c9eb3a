// Package core 定义了延迟监控客户端的核心数据结构和端口接口
// 这些接口保证了会话状态机与具体探测引擎、持久化实现的完全解耦
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Endpoint 表示一个可被探测的网络目标
type Endpoint struct {
	ID       string `json:"id" yaml:"id"`             // 唯一且稳定的标识符
	Name     string `json:"name" yaml:"name"`         // 显示名称
	Address  string `json:"address" yaml:"address"`   // 主机名或IP地址
	Favorite bool   `json:"favorite" yaml:"favorite"` // 是否收藏
	Custom   bool   `json:"custom" yaml:"custom"`     // 用户自定义（内置目标不可删除）
}

// String 返回便于日志输出的目标描述
func (e Endpoint) String() string {
	return fmt.Sprintf("%s(%s)", e.ID, e.Address)
}

// EventKind 表示探测引擎事件的类型
type EventKind int

const (
	EventSample   EventKind = iota // 成功收到一次延迟样本
	EventTimeout                   // 一次探测超时
	EventComplete                  // 本轮探测按计划完成
	EventStopped                   // 本轮探测被请求停止
)

var eventKindNames = map[EventKind]string{
	EventSample:   "sample",
	EventTimeout:  "timeout",
	EventComplete: "complete",
	EventStopped:  "stopped",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText 使事件类型在JSON中以名称输出
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Terminal 判断事件是否结束一轮探测
func (k EventKind) Terminal() bool {
	return k == EventComplete || k == EventStopped
}

// SampleEvent 是探测引擎在共享通道上发出的单个事件
type SampleEvent struct {
	EndpointID string    `json:"endpointId"`
	Kind       EventKind `json:"kind"`
	LatencyMs  float64   `json:"latencyMs,omitempty"` // 仅对EventSample有意义
	Seq        int       `json:"seq"`                 // 本轮内的探测序号，终止事件为0
	At         time.Time `json:"at"`                  // 事件产生时间
}

// MarshalJSON 只有样本事件输出latencyMs，超时的NaN不进入JSON
func (e SampleEvent) MarshalJSON() ([]byte, error) {
	out := struct {
		EndpointID string    `json:"endpointId"`
		Kind       EventKind `json:"kind"`
		LatencyMs  *float64  `json:"latencyMs,omitempty"`
		Seq        int       `json:"seq"`
		At         time.Time `json:"at"`
	}{EndpointID: e.EndpointID, Kind: e.Kind, Seq: e.Seq, At: e.At}
	if e.Kind == EventSample && !math.IsNaN(e.LatencyMs) && !math.IsInf(e.LatencyMs, 0) {
		v := e.LatencyMs
		out.LatencyMs = &v
	}
	return json.Marshal(out)
}

// NewSample 创建样本事件
func NewSample(endpointID string, seq int, latencyMs float64) SampleEvent {
	return SampleEvent{EndpointID: endpointID, Kind: EventSample, LatencyMs: latencyMs, Seq: seq, At: time.Now()}
}

// NewTimeout 创建超时事件
func NewTimeout(endpointID string, seq int) SampleEvent {
	return SampleEvent{EndpointID: endpointID, Kind: EventTimeout, LatencyMs: math.NaN(), Seq: seq, At: time.Now()}
}

// NewTerminal 创建完成或停止事件
func NewTerminal(endpointID string, kind EventKind) SampleEvent {
	return SampleEvent{EndpointID: endpointID, Kind: kind, At: time.Now()}
}

// PointStatus 表示数据点的状态
type PointStatus int

const (
	PointSuccess PointStatus = iota // 成功收到响应
	PointTimeout                    // 超时
)

// DataPoint 表示可视化缓冲区中带时间戳和状态的数据点
type DataPoint struct {
	Timestamp time.Time   // 数据点的时间戳
	Value     float64     // 延迟值，NaN表示超时
	Status    PointStatus // 数据点状态
}

// Engine 定义了外部探测引擎的命令与事件边界
// 任何探测实现（ICMP、系统ping命令、测试替身）都应该实现这个接口
type Engine interface {
	// RequestStart 请求对目标开始一轮共sampleCount次的探测
	// 返回值仅表示引擎是否接受了请求（例如同一目标已在运行时返回false），不代表完成
	RequestStart(ctx context.Context, endpointID, address string, sampleCount int) (bool, error)

	// RequestStop 尽力停止目标的探测，结果通过EventStopped事件确认
	RequestStop(ctx context.Context, endpointID string) error

	// Events 返回所有目标共享的只读事件通道
	// 同一目标的事件按发出顺序到达；通道关闭意味着引擎已不可用
	Events() <-chan SampleEvent
}

// Store 定义了持久化存储的键值契约
// 读取在注册表加载时发生一次，写入发生在每次注册表变更之后
type Store interface {
	// Get 将key对应的值解码到out中，键不存在时返回found=false
	Get(key string, out any) (found bool, err error)

	// Set 持久化写入key对应的值
	Set(key string, value any) error
}
