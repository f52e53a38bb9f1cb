package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"oip/fsbot/internal/model"
	"oip/fsbot/pkg/errorutil"
	"oip/fsbot/pkg/lmstfy"
	"oip/fsbot/pkg/logger"
)

// JobClient lmstfy 客户端能力（便于替换为测试实现）
type JobClient interface {
	Publish(queue string, data []byte, ttl time.Duration, tries uint16, delay time.Duration) (string, error)
	BatchConsume(queue string, count int, ttr, timeout time.Duration) ([]*lmstfy.Job, error)
	Ack(queue string, jobID string) error
}

// LmstfyConfig 队列配置
type LmstfyConfig struct {
	Queue           string
	DeadLetterQueue string
	TTL             time.Duration // 消息存活时间，0 表示永不过期
	Tries           uint16        // 最大投递次数（耗尽后进入 lmstfy 自带死信）
	TTR             time.Duration // 可见性窗口
	PollTimeout     time.Duration // 拉取阻塞时长
}

// LmstfyQueue 基于 lmstfy 的队列适配器
type LmstfyQueue struct {
	client   JobClient
	cfg      LmstfyConfig
	inflight *inflight[inflightJob]
	logger   logger.Logger
}

type inflightJob struct {
	jobID string
	job   *model.Job
}

// NewLmstfyQueue 创建队列适配器
func NewLmstfyQueue(client JobClient, cfg LmstfyConfig, log logger.Logger) *LmstfyQueue {
	if cfg.Tries == 0 {
		cfg.Tries = 3
	}
	if cfg.TTR <= 0 {
		cfg.TTR = 30 * time.Second
	}
	if cfg.DeadLetterQueue == "" {
		cfg.DeadLetterQueue = cfg.Queue + "_dead"
	}
	return &LmstfyQueue{
		client:   client,
		cfg:      cfg,
		inflight: newInflight[inflightJob](),
		logger:   log,
	}
}

// Enqueue 入队
func (q *LmstfyQueue) Enqueue(ctx context.Context, msg *model.QueuedMessage) error {
	requestID := logger.TraceID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	data, err := model.EncodeJob(model.NewJob(requestID, msg))
	if err != nil {
		return err
	}

	jobID, err := q.client.Publish(q.cfg.Queue, data, q.cfg.TTL, q.cfg.Tries, 0)
	if err != nil {
		return err
	}
	q.logger.Debugf(ctx, "[LmstfyQueue] Enqueued message %s as job %s", msg.MessageID, jobID)
	return nil
}

// DequeueBatch 拉取最多 max 条消息
// 无法解析的任务直接 ACK，避免反复投递
func (q *LmstfyQueue) DequeueBatch(ctx context.Context, max int) ([]*model.QueuedMessage, error) {
	jobs, err := q.client.BatchConsume(q.cfg.Queue, max, q.cfg.TTR, q.cfg.PollTimeout)
	if err != nil {
		return nil, err
	}

	out := make([]*model.QueuedMessage, 0, len(jobs))
	for _, raw := range jobs {
		job, err := model.DecodeJob(raw.Data)
		if err != nil {
			q.logger.Errorf(ctx, "[LmstfyQueue] Drop malformed job %s: %v", raw.ID, err)
			if ackErr := q.client.Ack(q.cfg.Queue, raw.ID); ackErr != nil {
				q.logger.Warnf(ctx, "[LmstfyQueue] Ack malformed job %s failed: %v", raw.ID, ackErr)
			}
			continue
		}
		msg := job.Payload.Data.Data
		q.inflight.put(msg.MessageID, inflightJob{jobID: raw.ID, job: job})
		out = append(out, msg)
	}
	return out, nil
}

// Ack 确认消息
func (q *LmstfyQueue) Ack(ctx context.Context, messageID string) error {
	entry, ok := q.inflight.take(messageID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	return q.client.Ack(q.cfg.Queue, entry.jobID)
}

// Nack 放弃本次投递，TTR 到期后由 lmstfy 重新投递
func (q *LmstfyQueue) Nack(ctx context.Context, messageID string) error {
	entry, ok := q.inflight.take(messageID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	q.logger.Infof(ctx, "[LmstfyQueue] Job %s released, redelivery after ttr %v", entry.jobID, q.cfg.TTR)
	return nil
}

// DeadLetter 发布到死信队列后确认原消息
func (q *LmstfyQueue) DeadLetter(ctx context.Context, messageID string, rec *errorutil.ErrorRecord) error {
	entry, ok := q.inflight.take(messageID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}

	dead := *entry.job.Payload.Data
	dead.Error = rec
	data, err := model.EncodeJob(&model.Job{Payload: &model.JobPayload{Data: &dead}})
	if err != nil {
		q.inflight.put(messageID, entry)
		return err
	}
	if _, err := q.client.Publish(q.cfg.DeadLetterQueue, data, 0, 1, 0); err != nil {
		q.inflight.put(messageID, entry)
		return err
	}
	return q.client.Ack(q.cfg.Queue, entry.jobID)
}

var _ Queue = (*LmstfyQueue)(nil)
