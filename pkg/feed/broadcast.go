package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
	"github.com/Kevin-Rudy/pingdeck/pkg/monitor"
	"github.com/Kevin-Rudy/pingdeck/pkg/router"
	"github.com/gorilla/websocket"
)

// ErrTooManyConnections 连接数已达上限
var ErrTooManyConnections = errors.New("too many websocket connections")

const writeWait = 10 * time.Second

// Source 推送服务读取的数据来源
type Source interface {
	Statuses() []monitor.Status
	Subscribe(id string) *router.Subscription
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn, buffer int) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, buffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// Broadcaster 把路由器事件和周期快照广播给所有websocket客户端
type Broadcaster struct {
	source Source
	cfg    *Config
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewBroadcaster 创建广播器，调用Run开始转发事件
func NewBroadcaster(source Source, cfg *Config, logger *slog.Logger) *Broadcaster {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{
		source:  source,
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*client]bool),
	}
}

// AddClient 注册连接并立即发送一次全量快照
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	if b.cfg.MaxClients > 0 && len(b.clients) >= b.cfg.MaxClients {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	c := newClient(conn, b.cfg.SendBuffer)
	b.clients[c] = true
	b.mu.Unlock()

	data, err := json.Marshal(Message{Type: MsgSnapshot, Payload: newSnapshotPayload(b.source.Statuses())})
	if err != nil {
		b.logger.Error("failed to encode snapshot", "error", err)
		return c, nil
	}

	b.mu.RLock()
	if b.clients[c] {
		select {
		case c.send <- data:
		default:
		}
	}
	b.mu.RUnlock()

	return c, nil
}

// RemoveClient 注销连接，发送队列关闭后写协程会关闭连接
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// ClientCount 返回当前连接数
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Run 转发所有目标的事件，直到ctx取消
func (b *Broadcaster) Run(ctx context.Context) error {
	return b.run(ctx, b.source.Subscribe(""))
}

func (b *Broadcaster) run(ctx context.Context, sub *router.Subscription) error {
	defer sub.Unsubscribe()

	ticker := time.NewTicker(b.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return ctx.Err()
		case <-sub.C():
			for _, ev := range sub.Drain() {
				b.publish(ev)
			}
		case <-ticker.C:
			b.broadcast(Message{Type: MsgSnapshot, Payload: newSnapshotPayload(b.source.Statuses())})
		}
	}
}

// publish 广播单个事件，结束事件附带该目标的最终统计
func (b *Broadcaster) publish(ev core.SampleEvent) {
	if !ev.Kind.Terminal() {
		b.broadcast(Message{Type: MsgEvent, Payload: newEventPayload(ev)})
		return
	}
	for _, st := range b.source.Statuses() {
		if st.Endpoint.ID == ev.EndpointID {
			b.broadcast(Message{Type: MsgRunEnded, Payload: newEndpointStatus(st)})
			return
		}
	}
}

func (b *Broadcaster) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("broadcast marshal error", "error", err)
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	// 跟不上的客户端直接断开
	for _, c := range slow {
		b.logger.Warn("ws client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
}
