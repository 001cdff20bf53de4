package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/Umesh0245/smartfleet1/internal/common/logger"
)

type pahoClient struct {
	cfg *ClientConfig
	log logger.Logger
	cm  *autopaho.ConnectionManager

	// subscriptions 保存已注册的回调。
	// key: topic filter, value: subscriptionEntry
	subscriptions sync.Map
}

type subscriptionEntry struct {
	topic   string
	qos     int
	handler MessageHandler
}

// NewClient 创建 MQTT 客户端。
func NewClient(cfg *ClientConfig, log logger.Logger) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}
	return &pahoClient{cfg: cfg, log: log}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL) // Validate 已校验过

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError:                c.onConnectError,
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.router,
			},
		},
	}

	if c.log != nil {
		c.log.Infof("starting mqtt client broker=%s client_id=%s", c.cfg.BrokerURL, c.cfg.ClientID)
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return err
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm != nil {
		_ = c.cm.Disconnect(ctx)
		if c.log != nil {
			c.log.Info("mqtt client disconnected")
		}
	}
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, payload []byte) error {
	if c.cm == nil {
		return fmt.Errorf("mqtt client not started")
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Payload: payload,
	})
	return err
}

func (c *pahoClient) Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return fmt.Errorf("mqtt client not started")
	}

	// 先记下回调：断线重连后 onConnectionUp 会重新下发 SUBSCRIBE。
	c.subscriptions.Store(topic, subscriptionEntry{
		topic:   topic,
		qos:     qos,
		handler: handler,
	})

	_, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: byte(qos)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send subscription packet: %w", err)
	}

	if c.log != nil {
		c.log.Infof("subscribed to topic %s", topic)
	}
	return nil
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return fmt.Errorf("mqtt client not started")
	}
	return c.cm.AwaitConnection(ctx)
}

// onConnectionUp 连接建立（含重连）时回调：重新订阅全部主题。
func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, ack *paho.Connack) {
	if c.log != nil {
		c.log.Info("mqtt connection established")
	}
	c.subscriptions.Range(func(key, value any) bool {
		entry := value.(subscriptionEntry)
		if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{
				{Topic: entry.topic, QoS: byte(entry.qos)},
			},
		}); err != nil && c.log != nil {
			c.log.Errorf("failed to re-subscribe topic=%s: %v", entry.topic, err)
		}
		return true
	})
}

func (c *pahoClient) onConnectError(err error) {
	if c.log != nil {
		c.log.Errorf("mqtt connection failed, retrying: %v", err)
	}
}

func (c *pahoClient) onClientError(err error) {
	if c.log != nil {
		c.log.Errorf("mqtt client internal error: %v", err)
	}
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	if c.log != nil && d != nil && d.Properties != nil {
		c.log.Warnf("mqtt server requested disconnect: %s", d.Properties.ReasonString)
	}
}

// router 把收到的消息分发给匹配的回调。
// 订阅数量是个位数级别，O(N) 遍历足够。
func (c *pahoClient) router(p paho.PublishReceived) (bool, error) {
	matched := false
	c.subscriptions.Range(func(key, value any) bool {
		entry := value.(subscriptionEntry)
		if TopicMatches(SharedTopicFilter(entry.topic), p.Packet.Topic) {
			// 回调另起 goroutine，避免阻塞 paho 的读循环
			go func(h MessageHandler) {
				h(context.Background(), p.Packet.Topic, p.Packet.Payload)
			}(entry.handler)
			matched = true
		}
		return true
	})

	if !matched && c.log != nil {
		c.log.Debugf("received message on unhandled topic %s", p.Packet.Topic)
	}

	return true, nil
}

// TopicMatches 判断 topic 是否匹配 filter（支持 + 和 # 通配符）。
func TopicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.Contains(filter, "+") && !strings.Contains(filter, "#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}

// SharedTopicFilter 把共享订阅 filter（$share/<group>/<topic>）还原成实际主题 filter。
func SharedTopicFilter(filter string) string {
	if strings.HasPrefix(filter, "$share/") {
		parts := strings.SplitN(filter, "/", 3)
		if len(parts) == 3 {
			return parts[2]
		}
	}
	return filter
}

// SharedSubscription 拼出共享订阅 filter；group 为空时退化为普通订阅。
func SharedSubscription(group, topic string) string {
	group = strings.TrimSpace(group)
	if group == "" {
		return topic
	}
	return "$share/" + group + "/" + topic
}
