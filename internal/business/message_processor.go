package business

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"oip/fsbot/internal/domains"
	"oip/fsbot/internal/feishu"
	"oip/fsbot/internal/model"
	"oip/fsbot/internal/queue"
	"oip/fsbot/internal/responder"
	"oip/fsbot/pkg/breaker"
	"oip/fsbot/pkg/errorutil"
	"oip/fsbot/pkg/ledger"
	"oip/fsbot/pkg/logger"
	"oip/fsbot/pkg/retry"
)

// ProcessorConfig MessageProcessor 配置
type ProcessorConfig struct {
	Concurrency int           // 批内并发数
	PendingTTL  time.Duration // 处理中占用的有效期（应不小于单批截止时间）
	DedupTTL    time.Duration // 发送成功后的去重有效期
}

// Deps MessageProcessor 依赖
type Deps struct {
	Queue     queue.Consumer
	Sender    feishu.Sender
	Responder responder.Responder
	Ledger    ledger.Ledger
	Retry     *retry.Policy
	Breaker   *breaker.CircuitBreaker
	Reporter  Reporter
	Logger    logger.Logger
}

// MessageProcessor 逐条处理批次消息：生成回复 → 重试+熔断发送 → Ack/死信/Nack
// 单条失败不影响批内其他消息
type MessageProcessor struct {
	cfg  ProcessorConfig
	deps Deps
}

// NewMessageProcessor 创建 MessageProcessor
func NewMessageProcessor(cfg ProcessorConfig, deps Deps) *MessageProcessor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = time.Minute
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 24 * time.Hour
	}
	if deps.Retry == nil {
		deps.Retry = retry.DefaultPolicy()
	}
	if deps.Breaker == nil {
		deps.Breaker = breaker.New(breaker.Config{Name: "feishu.send_text"})
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.NewMemory(cfg.DedupTTL, 0)
	}
	if deps.Responder == nil {
		deps.Responder = responder.NewKeywordResponder()
	}
	if deps.Reporter == nil {
		deps.Reporter = NopReporter{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	return &MessageProcessor{cfg: cfg, deps: deps}
}

// ProcessBatch 处理一批消息，返回与输入顺序一致的逐条结果
// ctx 到期后尚未开始的消息不再处理，保持未确认状态等待重新投递
func (p *MessageProcessor) ProcessBatch(ctx context.Context, msgs []*model.QueuedMessage) []model.Result {
	results := make([]model.Result, len(msgs))
	sem := semaphore.NewWeighted(int64(p.cfg.Concurrency))
	var wg sync.WaitGroup

	for i, msg := range msgs {
		if ctx.Err() != nil || sem.Acquire(ctx, 1) != nil {
			results[i] = p.requeue(ctx, msg, errorutil.Classify(ctx.Err()), 0)
			p.deps.Reporter.Report(ctx, msg, results[i])
			continue
		}
		wg.Add(1)
		go func(i int, msg *model.QueuedMessage) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = p.process(ctx, msg)
		}(i, msg)
	}
	wg.Wait()

	var sent, failed int
	for _, r := range results {
		if r.Success {
			sent++
		} else {
			failed++
		}
	}
	p.deps.Logger.Infof(ctx, "[MessageProcessor] Batch done: total=%d success=%d failed=%d", len(msgs), sent, failed)
	return results
}

func (p *MessageProcessor) process(ctx context.Context, msg *model.QueuedMessage) (res model.Result) {
	ctx = logger.WithField(ctx, logger.FieldMessageID, msg.MessageID)
	ctx = logger.WithField(ctx, logger.FieldChatID, msg.ChatID)
	log := p.deps.Logger
	// holding 为 true 时本次投递持有未提交的占用
	holding := false

	defer func() {
		if r := recover(); r != nil {
			log.Errorf(ctx, "[MessageProcessor] panic: %v", r)
			if holding {
				p.release(ctx, msg)
			}
			res = p.requeue(ctx, msg, errorutil.NewSystem("message processing panic"), 0)
		}
		p.deps.Reporter.Report(ctx, msg, res)
	}()

	if err := msg.Validate(); err != nil {
		return p.deadLetter(ctx, msg, errorutil.Classify(err), 0)
	}

	claimed, err := p.deps.Ledger.Claim(ctx, msg.MessageID, p.cfg.PendingTTL)
	if err != nil {
		log.Warnf(ctx, "[MessageProcessor] Dedup claim failed: %v", err)
		return p.requeue(ctx, msg, errorutil.Classify(err), 0)
	}
	if !claimed {
		log.Infof(ctx, "[MessageProcessor] Duplicate delivery, skip send")
		p.ack(ctx, msg)
		return model.Result{MessageID: msg.MessageID, ChatID: msg.ChatID, Success: true, Status: model.OutcomeDuplicate}
	}
	holding = true

	action, err := domains.BuildAction(ctx, msg, p.deps.Responder)
	if err != nil {
		holding = false
		p.release(ctx, msg)
		return p.deadLetter(ctx, msg, errorutil.Classify(err), 0)
	}

	sendResult := retry.Do(ctx, p.deps.Retry, func(ctx context.Context) error {
		return p.deps.Breaker.Call(func() error {
			return p.deps.Sender.SendText(ctx, action.ChatID, action.Text)
		})
	})

	holding = false
	if sendResult.OK() {
		if err := p.deps.Ledger.Commit(ctx, msg.MessageID, p.cfg.DedupTTL); err != nil {
			log.Warnf(ctx, "[MessageProcessor] Dedup commit failed: %v", err)
		}
		p.ack(ctx, msg)
		log.Infof(ctx, "[MessageProcessor] Reply sent: intent=%s attempts=%d", action.Intent, sendResult.Attempts)
		return model.Result{
			MessageID: msg.MessageID,
			ChatID:    msg.ChatID,
			Success:   true,
			Status:    model.OutcomeSent,
			Attempts:  sendResult.Attempts,
		}
	}

	p.release(ctx, msg)
	rec := sendResult.Err
	if errors.Is(rec, errorutil.ErrCircuitOpen) || ctx.Err() != nil {
		return p.requeue(ctx, msg, rec, sendResult.Attempts)
	}
	return p.deadLetter(ctx, msg, rec, sendResult.Attempts)
}

// 队列操作不跟随批次截止时间，已完成的处理结果必须落定
func (p *MessageProcessor) ack(ctx context.Context, msg *model.QueuedMessage) {
	if err := p.deps.Queue.Ack(context.WithoutCancel(ctx), msg.MessageID); err != nil {
		p.deps.Logger.Errorf(ctx, "[MessageProcessor] Ack failed: %v", err)
	}
}

func (p *MessageProcessor) release(ctx context.Context, msg *model.QueuedMessage) {
	if err := p.deps.Ledger.Release(context.WithoutCancel(ctx), msg.MessageID); err != nil {
		p.deps.Logger.Warnf(ctx, "[MessageProcessor] Dedup release failed: %v", err)
	}
}

func (p *MessageProcessor) requeue(ctx context.Context, msg *model.QueuedMessage, rec *errorutil.ErrorRecord, attempts int) model.Result {
	if err := p.deps.Queue.Nack(context.WithoutCancel(ctx), msg.MessageID); err != nil {
		p.deps.Logger.Errorf(ctx, "[MessageProcessor] Nack failed: %v", err)
	}
	p.deps.Logger.Warnf(ctx, "[MessageProcessor] Message requeued: %v", rec)
	return model.Result{
		MessageID: msg.MessageID,
		ChatID:    msg.ChatID,
		Status:    model.OutcomeRequeued,
		Attempts:  attempts,
		Error:     rec,
	}
}

func (p *MessageProcessor) deadLetter(ctx context.Context, msg *model.QueuedMessage, rec *errorutil.ErrorRecord, attempts int) model.Result {
	if err := p.deps.Queue.DeadLetter(context.WithoutCancel(ctx), msg.MessageID, rec); err != nil {
		p.deps.Logger.Errorf(ctx, "[MessageProcessor] Dead-letter failed, falling back to nack: %v", err)
		return p.requeue(ctx, msg, rec, attempts)
	}
	p.deps.Logger.Errorf(ctx, "[MessageProcessor] Message dead-lettered: kind=%s err=%v", rec.Kind, rec)
	return model.Result{
		MessageID: msg.MessageID,
		ChatID:    msg.ChatID,
		Status:    model.OutcomeDeadLetter,
		Attempts:  attempts,
		Error:     rec,
	}
}
