package queue

import (
	"context"
	"errors"
	"sync"

	"oip/fsbot/internal/model"
	"oip/fsbot/pkg/errorutil"
)

// ErrUnknownMessage Ack/Nack 的消息不在投递中
var ErrUnknownMessage = errors.New("queue: message is not in flight")

// Producer 入队端（WebhookReceiver 使用）
type Producer interface {
	Enqueue(ctx context.Context, msg *model.QueuedMessage) error
}

// Consumer 消费端（MessageProcessor 使用）
// 至少一次投递：可见性窗口内未 Ack 的消息会被重新投递
type Consumer interface {
	DequeueBatch(ctx context.Context, max int) ([]*model.QueuedMessage, error)
	Ack(ctx context.Context, messageID string) error
	Nack(ctx context.Context, messageID string) error
	DeadLetter(ctx context.Context, messageID string, rec *errorutil.ErrorRecord) error
}

// Queue 完整队列契约
type Queue interface {
	Producer
	Consumer
}

// inflight 记录投递中的消息（message_id → 投递凭证）
// 同一 message_id 可能同时存在多份投递，按 FIFO 逐个确认
type inflight[T any] struct {
	mu      sync.Mutex
	entries map[string][]T
}

func newInflight[T any]() *inflight[T] {
	return &inflight[T]{entries: make(map[string][]T)}
}

func (f *inflight[T]) put(messageID string, v T) {
	f.mu.Lock()
	f.entries[messageID] = append(f.entries[messageID], v)
	f.mu.Unlock()
}

func (f *inflight[T]) take(messageID string) (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	list := f.entries[messageID]
	if len(list) == 0 {
		return zero, false
	}
	v := list[0]
	if len(list) == 1 {
		delete(f.entries, messageID)
	} else {
		f.entries[messageID] = list[1:]
	}
	return v, true
}

// drop 移除第一份满足 match 的投递凭证，其余凭证保持原有顺序
func (f *inflight[T]) drop(messageID string, match func(T) bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.entries[messageID]
	for i, v := range list {
		if !match(v) {
			continue
		}
		rest := append(list[:i:i], list[i+1:]...)
		if len(rest) == 0 {
			delete(f.entries, messageID)
		} else {
			f.entries[messageID] = rest
		}
		return true
	}
	return false
}
