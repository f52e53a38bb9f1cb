package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PubSub Redis 发布/订阅客户端
type PubSub struct {
	client  redis.UniversalClient
	channel string
}

// NewPubSub 创建 PubSub 实例
func NewPubSub(client redis.UniversalClient, channel string) *PubSub {
	return &PubSub{client: client, channel: channel}
}

// OutcomeNotification 消息处理结果通知
type OutcomeNotification struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	Status    string `json:"status"` // SENT/DUPLICATE/DEAD_LETTER/REQUEUED
	Attempts  int    `json:"attempts"`
	ErrorKind string `json:"error_kind,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Encode 序列化通知
func (n *OutcomeNotification) Encode() ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return data, nil
}

// DecodeOutcome 反序列化通知
func DecodeOutcome(data []byte) (*OutcomeNotification, error) {
	var n OutcomeNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if n.MessageID == "" || n.Status == "" {
		return nil, fmt.Errorf("notification missing message_id or status")
	}
	return &n, nil
}

// PublishOutcome 发布处理结果通知
func (p *PubSub) PublishOutcome(ctx context.Context, notification *OutcomeNotification) error {
	data, err := notification.Encode()
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Subscribe 订阅结果频道
func (p *PubSub) Subscribe(ctx context.Context) *redis.PubSub {
	return p.client.Subscribe(ctx, p.channel)
}

// Channel 频道名
func (p *PubSub) Channel() string {
	return p.channel
}
