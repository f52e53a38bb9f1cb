package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"oip/fsbot/internal/worker"
	"oip/fsbot/pkg/config"
	"oip/fsbot/pkg/logger"
)

var (
	configPath = flag.String("config", "./config/config.yaml", "配置文件路径")
)

func main() {
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	// 2. 初始化 Logger
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx := context.Background()
	zapLogger.Infof(ctx, "[Main] Config loaded: %s, env: %s, worker: %s", cfg.App.Name, cfg.App.Env, cfg.Worker.Name)

	// 3. 组装依赖（队列、账本、发送端、熔断器）
	rt, err := worker.NewRuntime(ctx, cfg, zapLogger)
	if err != nil {
		log.Fatalf("Failed to create runtime: %v", err)
	}
	defer rt.Close()

	// 4. 创建 Manager
	mgr, err := worker.NewManagerInstance(cfg, rt.Queue, rt.Processor.ProcessBatch, zapLogger)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}

	// 5. 启动 Manager（阻塞到 Shutdown 完成）
	done := make(chan error, 1)
	go func() {
		done <- mgr.Start()
	}()

	zapLogger.Infof(ctx, "[Main] Worker started. Press Ctrl+C to shutdown.")

	// 6. 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		zapLogger.Infof(ctx, "[Main] Received signal %v, shutting down worker...", sig)
	case err := <-done:
		if err != nil {
			zapLogger.Errorf(ctx, "[Main] Manager exited: %v", err)
		}
	}

	// 7. 优雅关闭：停止拉取 → 排空处理中批次
	mgr.Shutdown()
	snap := rt.Breaker.Snapshot()
	zapLogger.Infof(ctx, "[Main] Worker exited gracefully, breaker=%s", snap.State)
}
