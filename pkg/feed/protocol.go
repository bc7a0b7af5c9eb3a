package feed

import (
	"math"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgEvent    MessageType = "event"
	MsgRunEnded MessageType = "run_ended"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Endpoints []EndpointStatus `json:"endpoints"`
}

// EventPayload 单个测量事件，超时的延迟为null
type EventPayload struct {
	EndpointID string         `json:"endpointId"`
	Kind       core.EventKind `json:"kind"`
	LatencyMs  *float64       `json:"latencyMs"`
	Seq        int            `json:"seq"`
	At         time.Time      `json:"at"`
}

// EndpointStatus 目标及其会话统计，没有数据的统计项为null
type EndpointStatus struct {
	Endpoint  core.Endpoint `json:"endpoint"`
	Running   bool          `json:"running"`
	Stopping  bool          `json:"stopping"`
	Samples   int           `json:"samples"`
	Timeouts  int           `json:"timeouts"`
	LossPct   float64       `json:"lossPct"`
	AvgMs     *float64      `json:"avgMs"`
	MinMs     *float64      `json:"minMs"`
	MaxMs     *float64      `json:"maxMs"`
	StdDevMs  *float64      `json:"stddevMs"`
	P50Ms     *float64      `json:"p50Ms"`
	P90Ms     *float64      `json:"p90Ms"`
	P99Ms     *float64      `json:"p99Ms"`
	LastMs    *float64      `json:"lastMs"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
}

// number JSON无法表示NaN，转换为null
func number(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func timestamp(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func newEventPayload(ev core.SampleEvent) EventPayload {
	p := EventPayload{EndpointID: ev.EndpointID, Kind: ev.Kind, Seq: ev.Seq, At: ev.At}
	if ev.Kind == core.EventSample {
		p.LatencyMs = number(ev.LatencyMs)
	}
	return p
}

func newEndpointStatus(st monitor.Status) EndpointStatus {
	s := st.Session.Stats
	return EndpointStatus{
		Endpoint:  st.Endpoint,
		Running:   st.Session.Running,
		Stopping:  st.Session.Stopping,
		Samples:   s.Samples,
		Timeouts:  s.Timeouts,
		LossPct:   s.Loss,
		AvgMs:     number(s.Avg),
		MinMs:     number(s.Min),
		MaxMs:     number(s.Max),
		StdDevMs:  number(s.StdDev),
		P50Ms:     number(s.P50),
		P90Ms:     number(s.P90),
		P99Ms:     number(s.P99),
		LastMs:    number(s.Last),
		StartedAt: timestamp(st.Session.StartedAt),
		EndedAt:   timestamp(st.Session.EndedAt),
	}
}

func newSnapshotPayload(statuses []monitor.Status) SnapshotPayload {
	endpoints := make([]EndpointStatus, 0, len(statuses))
	for _, st := range statuses {
		endpoints = append(endpoints, newEndpointStatus(st))
	}
	return SnapshotPayload{Endpoints: endpoints}
}
