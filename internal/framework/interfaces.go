package framework

import (
	"context"

	"oip/fsbot/internal/model"
)

// BatchSource 批量消息源（适配不同 MQ）
type BatchSource interface {
	// DequeueBatch 拉取最多 max 条消息，无消息时返回空切片
	DequeueBatch(ctx context.Context, max int) ([]*model.QueuedMessage, error)
}

// BatchHandler 批次处理函数（注入的 MessageProcessor.ProcessBatch）
// 消息的 Ack/Nack 由处理函数负责
type BatchHandler func(ctx context.Context, msgs []*model.QueuedMessage) []model.Result
