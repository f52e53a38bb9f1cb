package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"oip/fsbot/internal/queue"
	"oip/fsbot/internal/server/consumer"
	"oip/fsbot/internal/server/handlers/outcome"
	"oip/fsbot/internal/server/handlers/webhook"
	"oip/fsbot/internal/server/routers"
	"oip/fsbot/pkg/config"
	"oip/fsbot/pkg/errorutil"
	"oip/fsbot/pkg/infra/mysql"
	"oip/fsbot/pkg/infra/redis"
	"oip/fsbot/pkg/ledger"
	"oip/fsbot/pkg/lmstfy"
	"oip/fsbot/pkg/logger"
	"oip/fsbot/pkg/signature"
)

// App API Server 依赖
type App struct {
	Engine *gin.Engine
	// OutcomeConsumer 未配置 Redis 时为 nil
	OutcomeConsumer *consumer.OutcomeConsumer
}

// initializeApp 组装 WebhookReceiver：lmstfy 入队 + 签名校验 + 可选重放拦截
// 配置 Redis 时同时订阅 Worker 的处理结果，配置 MySQL 时开放处理记录查询
func initializeApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, func(), error) {
	cleanup := func() {}

	lmstfyClient, err := lmstfy.NewClient(cfg.Lmstfy.Host, cfg.Lmstfy.Port, cfg.Lmstfy.Namespace, cfg.Lmstfy.Token)
	if err != nil {
		return nil, cleanup, errorutil.NewConfiguration(fmt.Sprintf("failed to create lmstfy client: %v", err)).WithCause(err)
	}
	producer := queue.NewLmstfyQueue(lmstfyClient, queue.LmstfyConfig{
		Queue:           cfg.Lmstfy.Queue,
		DeadLetterQueue: cfg.Lmstfy.DeadLetterQueue,
		TTL:             cfg.Lmstfy.TTL,
		Tries:           cfg.Lmstfy.Tries,
		TTR:             cfg.Worker.Subscriber.TTR,
	}, log)

	validator := signature.NewValidator(cfg.Signature.Secret, cfg.Signature.MaxAge)
	opts := webhook.Options{
		VerificationToken: cfg.Signature.VerificationToken,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
	}

	app := &App{}
	var redisClient *goredis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { _ = redisClient.Close() }
		app.OutcomeConsumer = consumer.NewOutcomeConsumer(redis.NewPubSub(redisClient, cfg.Redis.Channel), log)
	}

	if cfg.Signature.ReplayProtection {
		var nonces ledger.Ledger = ledger.NewMemory(2*validator.MaxAge(), 0)
		if redisClient != nil {
			nonces = redis.NewLedger(redisClient, cfg.App.Name+":nonce:")
			log.Infof(ctx, "[App] Replay protection backed by redis %s", cfg.Redis.Addr)
		} else {
			log.Infof(ctx, "[App] Replay protection backed by in-process ledger")
		}
		opts.Replay = signature.NewReplayGuard(nonces, validator.MaxAge())
	}

	var outcomeHandler *outcome.OutcomeHandler
	if cfg.MySQL.Enabled() {
		dao, err := mysql.NewOutcomeDAO(cfg.MySQL.DSN)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		prev := cleanup
		cleanup = func() { _ = dao.Close(); prev() }
		outcomeHandler = outcome.NewOutcomeHandler(dao, log)
		log.Infof(ctx, "[App] Outcome query enabled")
	}

	handler := webhook.NewWebhookHandler(validator, producer, log, opts)
	app.Engine = routers.SetupRoutes(cfg.App.Name, handler, outcomeHandler, log)
	return app, cleanup, nil
}
