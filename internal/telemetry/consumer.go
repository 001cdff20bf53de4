package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Umesh0245/smartfleet1/internal/common/logger"
	"github.com/Umesh0245/smartfleet1/internal/mqtt"
)

const (
	// handleTimeout 单条消息的处理上限（解码 + 落库 + 缓存失效）。
	handleTimeout = 10 * time.Second
)

// Consumer 总线侧遥测入口：订阅共享主题，把消息体交给与 HTTP 完全相同的
// Reconciler.Ingest。broker 按至少一次投递，重复消息靠摄入幂等性兜底。
type Consumer struct {
	client mqtt.Client
	rec    *Reconciler
	log    logger.Logger
	sem    *semaphore.Weighted // 限制同时在处理的消息数

	topic string // 共享订阅 filter，例如 $share/smartfleet-group/fleet/telemetry
	qos   int
}

// NewConsumer 创建总线消费者。workers <= 0 时默认 16。
func NewConsumer(client mqtt.Client, rec *Reconciler, log logger.Logger, group, topic string, qos, workers int) *Consumer {
	if workers <= 0 {
		workers = 16
	}
	if qos < 0 || qos > 2 {
		qos = 1
	}
	return &Consumer{
		client: client,
		rec:    rec,
		log:    log,
		sem:    semaphore.NewWeighted(int64(workers)),
		topic:  mqtt.SharedSubscription(group, topic),
		qos:    qos,
	}
}

// Start 连接 broker 并订阅遥测主题。
func (c *Consumer) Start(ctx context.Context) error {
	if c == nil || c.client == nil || c.rec == nil {
		return fmt.Errorf("consumer not initialized")
	}

	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mqtt client: %w", err)
	}
	if err := c.client.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("failed to connect mqtt broker: %w", err)
	}
	if err := c.client.Subscribe(ctx, c.topic, c.qos, c.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", c.topic, err)
	}

	if c.log != nil {
		c.log.Infof("telemetry consumer started topic=%s qos=%d", c.topic, c.qos)
	}
	return nil
}

// Stop 断开 broker 连接。
func (c *Consumer) Stop(ctx context.Context) {
	if c != nil && c.client != nil {
		c.client.Disconnect(ctx)
	}
}

// HandleMessage 处理一条总线消息。导出以便直接测试（不经过 broker）。
//
// 错误处理：
// - 解码失败：毒消息，记 warn 后丢弃（重投同样失败，没有重试价值）
// - 持久层故障：记 error 后丢弃本次处理；QoS1 下 broker 可能重投，
//   即使不重投，该车下一条遥测也会覆盖掉缺口（当前状态表，不是事件日志）
func (c *Consumer) HandleMessage(ctx context.Context, topic string, payload []byte) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		if c.log != nil {
			c.log.Warnf("telemetry message dropped, worker pool unavailable: %v", err)
		}
		return
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	res, err := c.rec.Ingest(ctx, payload, SourceMQTT)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			if c.log != nil {
				c.log.Warnf("dropping malformed telemetry message topic=%s: %v", topic, err)
			}
			return
		}
		if c.log != nil {
			c.log.Errorf("failed to ingest telemetry message topic=%s: %v", topic, err)
		}
		return
	}

	if c.log != nil {
		c.log.Debugf("telemetry message ingested vehicle_id=%s", res.VehicleID)
	}
}
