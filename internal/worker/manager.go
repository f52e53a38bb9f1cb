package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"oip/fsbot/internal/framework"
	"oip/fsbot/pkg/config"
	"oip/fsbot/pkg/logger"
)

// Manager 接口
type Manager interface {
	Start() error
	Shutdown()
}

// ManagerInstance Manager 实例
type ManagerInstance struct {
	ctx        context.Context
	cfg        *config.Config
	source     framework.BatchSource
	handler    framework.BatchHandler
	workers    []Worker
	closing    *atomic.Bool
	started    chan struct{}
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	logger     logger.Logger
}

// NewManagerInstance 创建 Manager
func NewManagerInstance(cfg *config.Config, source framework.BatchSource, handler framework.BatchHandler, log logger.Logger) (Manager, error) {
	if source == nil || handler == nil {
		return nil, fmt.Errorf("worker manager requires a batch source and handler")
	}
	return &ManagerInstance{
		ctx:        context.Background(),
		cfg:        cfg,
		source:     source,
		handler:    handler,
		closing:    atomic.NewBool(false),
		started:    make(chan struct{}),
		shutdownCh: make(chan struct{}),
		logger:     log,
	}, nil
}

// Start 启动 Manager（阻塞直到 Shutdown 完成）
func (m *ManagerInstance) Start() error {
	m.logger.Infof(m.ctx, "[Manager] Starting...")

	if err := m.loadWorkers(); err != nil {
		close(m.started)
		return fmt.Errorf("failed to load workers: %w", err)
	}

	m.mu.RLock()
	for _, worker := range m.workers {
		w := worker
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			w.Start()
		}()
		m.logger.Infof(m.ctx, "[Manager] Worker started: %s", w.GetName())
	}
	m.mu.RUnlock()
	close(m.started)

	m.logger.Infof(m.ctx, "[Manager] Start success")
	<-m.shutdownCh
	return nil
}

// Shutdown 优雅退出
func (m *ManagerInstance) Shutdown() {
	if !m.closing.CAS(false, true) {
		return
	}
	m.logger.Infof(m.ctx, "[Manager] Began to close")
	<-m.started

	m.mu.RLock()
	for _, worker := range m.workers {
		m.logger.Infof(m.ctx, "[Manager] Shutting down worker: %s", worker.GetName())
		worker.Shutdown()
	}
	m.mu.RUnlock()

	m.wg.Wait()
	close(m.shutdownCh)
	m.logger.Infof(m.ctx, "[Manager] Shutdown complete")
}

// loadWorkers 按配置创建 Worker
func (m *ManagerInstance) loadWorkers() error {
	wc := m.cfg.Worker

	subCfg := &framework.SubscriberConfig{
		Concurrency:  wc.Subscriber.Threads,
		BatchSize:    wc.BatchSize,
		Rate:         wc.Subscriber.Rate,
		ErrorBackoff: wc.Subscriber.ErrorBackoff,
	}
	procCfg := &framework.ProcessorConfig{
		Concurrency: wc.Processor.Threads,
		BufferSize:  wc.Processor.BufferSize,
		Timeout:     wc.Processor.Timeout,
	}

	worker, err := NewWorkerInstance(m.ctx, wc.Name, subCfg, procCfg, m.source, m.handler, m.logger)
	if err != nil {
		return fmt.Errorf("failed to create worker %s: %w", wc.Name, err)
	}

	m.mu.Lock()
	m.workers = append(m.workers, worker)
	m.mu.Unlock()
	return nil
}
