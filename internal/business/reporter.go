package business

import (
	"context"
	"time"

	"oip/fsbot/internal/model"
	"oip/fsbot/pkg/infra/mysql"
	"oip/fsbot/pkg/infra/redis"
	"oip/fsbot/pkg/logger"
)

// Reporter 单条消息处理结果上报
// 上报失败只记录日志，不影响消息确认
type Reporter interface {
	Report(ctx context.Context, msg *model.QueuedMessage, res model.Result)
}

// NopReporter 不上报
type NopReporter struct{}

// Report 空实现
func (NopReporter) Report(context.Context, *model.QueuedMessage, model.Result) {}

// MultiReporter 依次调用多个 Reporter
type MultiReporter []Reporter

// Report 转发给全部 Reporter
func (m MultiReporter) Report(ctx context.Context, msg *model.QueuedMessage, res model.Result) {
	for _, r := range m {
		r.Report(ctx, msg, res)
	}
}

// OutcomeStore 结果落库
type OutcomeStore interface {
	Insert(ctx context.Context, rec *mysql.MessageOutcome) error
}

// StoreReporter 将结果写入 MySQL
type StoreReporter struct {
	store  OutcomeStore
	logger logger.Logger
}

// NewStoreReporter 创建落库 Reporter
func NewStoreReporter(store OutcomeStore, log logger.Logger) *StoreReporter {
	return &StoreReporter{store: store, logger: log}
}

// Report 写入一条结果
func (r *StoreReporter) Report(ctx context.Context, msg *model.QueuedMessage, res model.Result) {
	var kind, message string
	var details map[string]interface{}
	if res.Error != nil {
		kind, message, details = string(res.Error.Kind), res.Error.Message, res.Error.Details
	}

	rec, err := mysql.NewOutcome(res.MessageID, res.ChatID, string(res.Status), res.Attempts, kind, message, details)
	if err != nil {
		r.logger.Warnf(ctx, "[StoreReporter] Build outcome failed: %v", err)
		return
	}
	if err := r.store.Insert(ctx, rec); err != nil {
		r.logger.Warnf(ctx, "[StoreReporter] Insert outcome failed: %v", err)
	}
}

// OutcomePublisher 结果通知
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, n *redis.OutcomeNotification) error
}

// PublishReporter 将结果发布到 Redis 频道
type PublishReporter struct {
	publisher OutcomePublisher
	logger    logger.Logger

	// Now 可替换的时钟（测试用）
	Now func() time.Time
}

// NewPublishReporter 创建通知 Reporter
func NewPublishReporter(p OutcomePublisher, log logger.Logger) *PublishReporter {
	return &PublishReporter{publisher: p, logger: log}
}

// Report 发布一条通知
func (r *PublishReporter) Report(ctx context.Context, _ *model.QueuedMessage, res model.Result) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	n := &redis.OutcomeNotification{
		MessageID: res.MessageID,
		ChatID:    res.ChatID,
		Status:    string(res.Status),
		Attempts:  res.Attempts,
		Timestamp: now().UnixMilli(),
	}
	if res.Error != nil {
		n.ErrorKind = string(res.Error.Kind)
	}
	if err := r.publisher.PublishOutcome(ctx, n); err != nil {
		r.logger.Warnf(ctx, "[PublishReporter] Publish outcome failed: %v", err)
	}
}
