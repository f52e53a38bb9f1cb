package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

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

	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	// 2. 初始化 Logger
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	// 3. 初始化应用
	ctx := context.Background()
	app, cleanup, err := initializeApp(ctx, cfg, zapLogger)
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}
	defer cleanup()

	// 4. 创建 HTTP Server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      app.Engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 5. 启动结果订阅（后台 goroutine）
	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()
	if app.OutcomeConsumer != nil {
		go func() {
			if err := app.OutcomeConsumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Errorf(ctx, "[App] Outcome consumer exited: %v", err)
			}
		}()
	}

	// 6. 启动 HTTP Server（后台 goroutine）
	serverErrChan := make(chan error, 1)
	go func() {
		zapLogger.Infof(ctx, "[App] Starting HTTP server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// 7. 优雅停机处理
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zapLogger.Infof(ctx, "[App] Received signal %v, gracefully shutting down...", sig)
		cancelConsumer()
		shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Errorf(ctx, "[App] HTTP server shutdown error: %v", err)
		} else {
			zapLogger.Infof(ctx, "[App] HTTP server stopped gracefully")
		}
	case err := <-serverErrChan:
		zapLogger.Errorf(ctx, "[App] HTTP server error: %v", err)
		cancelConsumer()
		cleanup()
		os.Exit(1)
	}
}
