package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MessageHandler 收到消息后的回调。payload 是原始消息体（不做任何解析）。
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client 面向业务的 MQTT 客户端接口，屏蔽底层 paho 细节。
type Client interface {
	// Start 发起连接（非阻塞）；用 AwaitConnection 等待连上。
	Start(ctx context.Context) error

	// Disconnect 主动断开连接。
	Disconnect(ctx context.Context)

	// Publish 向指定主题发布消息。
	Publish(ctx context.Context, topic string, qos int, payload []byte) error

	// Subscribe 订阅主题并注册回调；断线重连后会自动重新订阅。
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	// AwaitConnection 阻塞等待直到连上 broker（或 ctx 取消）。
	AwaitConnection(ctx context.Context) error
}

// ClientConfig MQTT 连接配置
type ClientConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	KeepAlive      uint16
	ConnectTimeout time.Duration
	CleanStart     bool
	SessionExpiry  uint32 // 秒
}

// Validate 基础校验 + 默认值。
func (c *ClientConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("mqtt config is nil")
	}
	if strings.TrimSpace(c.BrokerURL) == "" {
		return fmt.Errorf("broker_url is empty")
	}
	if _, err := url.Parse(c.BrokerURL); err != nil {
		return fmt.Errorf("invalid broker_url: %w", err)
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("client_id is empty")
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 30
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.SessionExpiry == 0 {
		c.SessionExpiry = 60
	}
	return nil
}
