// Package feed 通过websocket和HTTP JSON向外部客户端推送实时测量数据
package feed

import (
	"errors"
	"time"
)

// Config 推送服务配置
type Config struct {
	Addr             string        // 监听地址
	SnapshotInterval time.Duration // 全量快照推送间隔
	MaxClients       int           // 最大websocket连接数，0表示不限制
	SendBuffer       int           // 每个客户端的发送队列长度
	AllowedOrigins   []string      // 额外允许的跨域来源
	AuthToken        string        // 非空时要求请求携带该令牌
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Addr:             "127.0.0.1:8642",
		SnapshotInterval: 5 * time.Second,
		MaxClients:       32,
		SendBuffer:       64,
	}
}

// Validate 验证配置的合理性
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("监听地址不能为空")
	}
	if c.SnapshotInterval <= 0 {
		return errors.New("快照间隔必须大于0")
	}
	if c.MaxClients < 0 {
		return errors.New("最大连接数不能为负数")
	}
	if c.SendBuffer <= 0 {
		return errors.New("发送队列长度必须大于0")
	}
	return nil
}
