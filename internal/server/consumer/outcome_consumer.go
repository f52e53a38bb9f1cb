package consumer

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/atomic"

	"oip/fsbot/internal/model"
	"oip/fsbot/pkg/infra/redis"
	"oip/fsbot/pkg/logger"
)

// OutcomeConsumer 订阅 Worker 发布的处理结果
// 职责：
// 1. 从 Redis 频道接收结果通知
// 2. 死信结果以 error 级别记录，便于告警
// 3. 按状态计数
type OutcomeConsumer struct {
	pubsub *redis.PubSub
	logger logger.Logger

	sent       atomic.Int64
	duplicate  atomic.Int64
	deadLetter atomic.Int64
	requeued   atomic.Int64
	malformed  atomic.Int64
}

// Stats 结果计数
type Stats struct {
	Sent       int64 `json:"sent"`
	Duplicate  int64 `json:"duplicate"`
	DeadLetter int64 `json:"dead_letter"`
	Requeued   int64 `json:"requeued"`
	Malformed  int64 `json:"malformed"`
}

// NewOutcomeConsumer 创建结果消费者实例
func NewOutcomeConsumer(pubsub *redis.PubSub, log logger.Logger) *OutcomeConsumer {
	return &OutcomeConsumer{pubsub: pubsub, logger: log}
}

// Start 订阅频道并消费，直到 ctx 结束
func (c *OutcomeConsumer) Start(ctx context.Context) error {
	sub := c.pubsub.Subscribe(ctx)
	defer sub.Close()

	c.logger.Infof(ctx, "[OutcomeConsumer] Subscribed to %s", c.pubsub.Channel())
	return c.Consume(ctx, sub.Channel())
}

// Consume 消费消息通道，通道关闭时返回 nil
func (c *OutcomeConsumer) Consume(ctx context.Context, ch <-chan *goredis.Message) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Infof(ctx, "[OutcomeConsumer] Stopped")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.handle(ctx, []byte(msg.Payload))
		}
	}
}

func (c *OutcomeConsumer) handle(ctx context.Context, payload []byte) {
	n, err := redis.DecodeOutcome(payload)
	if err != nil {
		c.malformed.Inc()
		c.logger.Warnf(ctx, "[OutcomeConsumer] Malformed notification: %v", err)
		return
	}

	ctx = logger.WithField(ctx, logger.FieldMessageID, n.MessageID)
	ctx = logger.WithField(ctx, logger.FieldChatID, n.ChatID)

	switch model.OutcomeStatus(n.Status) {
	case model.OutcomeSent:
		c.sent.Inc()
		c.logger.Debugf(ctx, "[OutcomeConsumer] Reply sent: attempts=%d", n.Attempts)
	case model.OutcomeDuplicate:
		c.duplicate.Inc()
	case model.OutcomeDeadLetter:
		c.deadLetter.Inc()
		c.logger.Errorf(ctx, "[OutcomeConsumer] Message dead-lettered: kind=%s attempts=%d", n.ErrorKind, n.Attempts)
	case model.OutcomeRequeued:
		c.requeued.Inc()
		c.logger.Warnf(ctx, "[OutcomeConsumer] Message requeued: kind=%s", n.ErrorKind)
	default:
		c.malformed.Inc()
		c.logger.Warnf(ctx, "[OutcomeConsumer] Unknown status %q", n.Status)
	}
}

// Stats 返回当前计数
func (c *OutcomeConsumer) Stats() Stats {
	return Stats{
		Sent:       c.sent.Load(),
		Duplicate:  c.duplicate.Load(),
		DeadLetter: c.deadLetter.Load(),
		Requeued:   c.requeued.Load(),
		Malformed:  c.malformed.Load(),
	}
}
