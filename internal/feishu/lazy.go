package feishu

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Factory 构造 Sender
type Factory func(ctx context.Context) (Sender, error)

// LazySender 首次使用时构造 Sender，构造成功后复用
// 构造失败不缓存，下一次调用重新尝试
type LazySender struct {
	factory Factory

	mu     sync.RWMutex
	sender Sender
	group  singleflight.Group
}

// NewLazySender 创建延迟初始化的 Sender
func NewLazySender(factory Factory) *LazySender {
	return &LazySender{factory: factory}
}

// SendText 发送文本消息
func (l *LazySender) SendText(ctx context.Context, chatID, text string) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.SendText(ctx, chatID, text)
}

func (l *LazySender) get(ctx context.Context) (Sender, error) {
	l.mu.RLock()
	s := l.sender
	l.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	v, err, _ := l.group.Do("init", func() (interface{}, error) {
		l.mu.RLock()
		existing := l.sender
		l.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		created, err := l.factory(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.sender = created
		l.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Sender), nil
}

var _ Sender = (*LazySender)(nil)
