package worker

import (
	"context"
	"fmt"

	"oip/fsbot/internal/business"
	"oip/fsbot/internal/feishu"
	"oip/fsbot/internal/queue"
	"oip/fsbot/internal/responder"
	"oip/fsbot/pkg/breaker"
	"oip/fsbot/pkg/config"
	"oip/fsbot/pkg/errorutil"
	"oip/fsbot/pkg/infra/mysql"
	"oip/fsbot/pkg/infra/redis"
	"oip/fsbot/pkg/ledger"
	"oip/fsbot/pkg/lmstfy"
	"oip/fsbot/pkg/logger"
	"oip/fsbot/pkg/retry"
)

// Runtime Worker 进程依赖
type Runtime struct {
	Queue     queue.Queue
	Processor *business.MessageProcessor
	Breaker   *breaker.CircuitBreaker

	closers []func() error
}

// NewRuntime 按配置组装 Worker 依赖
// Redis、MySQL 未配置时分别退化为进程内账本和不落库
func NewRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runtime, error) {
	rt := &Runtime{}

	lmstfyClient, err := lmstfy.NewClient(cfg.Lmstfy.Host, cfg.Lmstfy.Port, cfg.Lmstfy.Namespace, cfg.Lmstfy.Token)
	if err != nil {
		return nil, errorutil.NewConfiguration(fmt.Sprintf("failed to create lmstfy client: %v", err)).WithCause(err)
	}
	rt.Queue = queue.NewLmstfyQueue(lmstfyClient, queue.LmstfyConfig{
		Queue:           cfg.Lmstfy.Queue,
		DeadLetterQueue: cfg.Lmstfy.DeadLetterQueue,
		TTL:             cfg.Lmstfy.TTL,
		Tries:           cfg.Lmstfy.Tries,
		TTR:             cfg.Worker.Subscriber.TTR,
		PollTimeout:     cfg.Worker.Subscriber.Timeout,
	}, log)

	var dedup ledger.Ledger = ledger.NewMemory(cfg.Dedup.TTL, 0)
	var reporters business.MultiReporter

	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		dedup = redis.NewLedger(client, cfg.App.Name+":msg:")
		reporters = append(reporters, business.NewPublishReporter(redis.NewPubSub(client, cfg.Redis.Channel), log))
		log.Infof(ctx, "[Runtime] Redis enabled: ledger + outcome channel %s", cfg.Redis.Channel)
	}

	if cfg.MySQL.Enabled() {
		dao, err := mysql.NewOutcomeDAO(cfg.MySQL.DSN)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, dao.Close)
		if err := dao.AutoMigrate(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		reporters = append(reporters, business.NewStoreReporter(dao, log))
		log.Infof(ctx, "[Runtime] MySQL outcome store enabled")
	}

	feishuCfg := feishu.Config{
		AppID:     cfg.Feishu.AppID,
		AppSecret: cfg.Feishu.AppSecret,
		BaseURL:   cfg.Feishu.BaseURL,
		Timeout:   cfg.Feishu.Timeout,
	}
	sender := feishu.NewLazySender(func(context.Context) (feishu.Sender, error) {
		if feishuCfg.AppID == "" || feishuCfg.AppSecret == "" {
			return nil, errorutil.NewConfiguration("feishu app credentials are not configured")
		}
		return feishu.NewClient(feishuCfg, nil, log), nil
	})

	policy := &retry.Policy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		BaseDelay:       cfg.Retry.BaseDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
		ExponentialBase: cfg.Retry.ExponentialBase,
		JitterFraction:  cfg.Retry.JitterFraction,
		Observe: func(ctx context.Context, attempt retry.Attempt, rec *errorutil.ErrorRecord) {
			log.Warnf(ctx, "[Retry] attempt=%d kind=%s retryable=%v delay=%v err=%s",
				attempt.Index, rec.Kind, rec.Retryable(), attempt.Delay, rec.Message)
		},
	}

	rt.Breaker = breaker.New(breaker.Config{
		Name:             "feishu.send_text",
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
	})
	rt.Breaker.OnStateChange = func(name string, from, to breaker.State) {
		log.Warnf(context.Background(), "[CircuitBreaker] %s: %s -> %s", name, from, to)
	}

	var reporter business.Reporter = business.NopReporter{}
	if len(reporters) > 0 {
		reporter = reporters
	}

	rt.Processor = business.NewMessageProcessor(business.ProcessorConfig{
		Concurrency: cfg.Worker.Concurrency,
		PendingTTL:  cfg.Worker.Processor.Timeout,
		DedupTTL:    cfg.Dedup.TTL,
	}, business.Deps{
		Queue:     rt.Queue,
		Sender:    sender,
		Responder: responder.NewKeywordResponder(),
		Ledger:    dedup,
		Retry:     policy,
		Breaker:   rt.Breaker,
		Reporter:  reporter,
		Logger:    log,
	})

	return rt, nil
}

// Close 释放外部连接
func (rt *Runtime) Close() error {
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}
