package framework

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"oip/fsbot/pkg/logger"
)

// Subscriber 订阅者：从消息队列批量拉取消息，转发给 Processor
type Subscriber struct {
	cfg        *SubscriberConfig
	source     BatchSource
	logger     logger.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewSubscriber 创建订阅者
func NewSubscriber(cfg *SubscriberConfig, source BatchSource, log logger.Logger) *Subscriber {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Subscriber{
		cfg:    cfg,
		source: source,
		logger: log,
	}
}

// Start 启动订阅循环
func (s *Subscriber) Start(parentCtx context.Context, inputChan chan<- *Batch) {
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancelFunc = cancel

	s.logger.Infof(ctx, "[Subscriber] Starting with %d workers, batch size %d", s.cfg.Concurrency, s.cfg.BatchSize)

	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.loop(logger.WithField(ctx, logger.FieldWorkerID, i), i, inputChan)
	}
}

// Stop 停止订阅（不再拉取新消息）
func (s *Subscriber) Stop() {
	s.logger.Infof(context.Background(), "[Subscriber] Stopping...")
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
}

// Wait 等待所有订阅协程退出
func (s *Subscriber) Wait() {
	s.wg.Wait()
	s.logger.Infof(context.Background(), "[Subscriber] All workers exited")
}

func (s *Subscriber) loop(ctx context.Context, workerID int, inputChan chan<- *Batch) {
	defer s.wg.Done()
	s.logger.Infof(ctx, "[Subscriber-%d] Started", workerID)

	for {
		if ctx.Err() != nil {
			s.logger.Infof(ctx, "[Subscriber-%d] Context cancelled, exiting", workerID)
			return
		}

		msgs, err := s.source.DequeueBatch(ctx, s.cfg.BatchSize)
		if err != nil {
			// 网络抖动不退出
			s.logger.Warnf(ctx, "[Subscriber-%d] Dequeue error: %v, retrying...", workerID, err)
			if !s.wait(ctx, s.cfg.ErrorBackoff) {
				return
			}
			continue
		}

		if len(msgs) > 0 {
			batch := &Batch{ID: uuid.New().String(), Messages: msgs, FetchedAt: time.Now()}
			select {
			case inputChan <- batch:
				s.logger.Debugf(ctx, "[Subscriber-%d] Batch %s sent, size %d", workerID, batch.ID, len(msgs))
			case <-ctx.Done():
				// 未确认的消息在可见性窗口结束后重新投递
				s.logger.Warnf(ctx, "[Subscriber-%d] Shutdown with batch %s in hand, %d messages left for redelivery",
					workerID, batch.ID, len(msgs))
				return
			}
		}

		if !s.wait(ctx, s.cfg.Rate) {
			return
		}
	}
}

// wait 等待 d，ctx 取消时返回 false
func (s *Subscriber) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
