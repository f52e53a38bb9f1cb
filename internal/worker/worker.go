package worker

import (
	"context"
	"sync"

	"oip/fsbot/internal/framework"
	"oip/fsbot/pkg/logger"
)

// Worker 接口
type Worker interface {
	Start()
	Shutdown()
	GetName() string
}

// WorkerInstance Worker 实例（Subscriber → inputChan → Processor）
type WorkerInstance struct {
	ctx        context.Context
	name       string
	subscriber *framework.Subscriber
	processor  *framework.Processor
	inputChan  chan *framework.Batch
	startedCh  chan struct{}
	shutdownCh chan struct{}
	once       sync.Once
	logger     logger.Logger
}

// NewWorkerInstance 创建 Worker 实例
func NewWorkerInstance(
	ctx context.Context,
	name string,
	subscriberCfg *framework.SubscriberConfig,
	processorCfg *framework.ProcessorConfig,
	source framework.BatchSource,
	handler framework.BatchHandler,
	log logger.Logger,
) (Worker, error) {
	inputChan := make(chan *framework.Batch, processorCfg.BufferSize)

	return &WorkerInstance{
		ctx:        ctx,
		name:       name,
		subscriber: framework.NewSubscriber(subscriberCfg, source, log),
		processor:  framework.NewProcessor(processorCfg, handler, log),
		inputChan:  inputChan,
		startedCh:  make(chan struct{}),
		shutdownCh: make(chan struct{}),
		logger:     log,
	}, nil
}

// Start 启动 Worker（阻塞直到 Shutdown 完成）
func (w *WorkerInstance) Start() {
	w.logger.Infof(w.ctx, "[Worker] %s started", w.name)

	w.processor.Start(w.ctx, w.inputChan)
	w.subscriber.Start(w.ctx, w.inputChan)
	close(w.startedCh)

	<-w.shutdownCh
}

// Shutdown 优雅退出，须在 Start 之后调用
// 停止拉取 → 等待 Subscriber 退出 → Processor 进入 Drain → 等待处理完成
func (w *WorkerInstance) Shutdown() {
	w.once.Do(func() {
		<-w.startedCh
		w.logger.Infof(w.ctx, "[Worker] %s began to close", w.name)

		w.subscriber.Stop()
		w.subscriber.Wait()

		w.processor.SignalShutdown()
		w.processor.Wait()

		close(w.shutdownCh)
		w.logger.Infof(w.ctx, "[Worker] %s shutdown complete", w.name)
	})
}

// GetName 获取 Worker 名称
func (w *WorkerInstance) GetName() string {
	return w.name
}
